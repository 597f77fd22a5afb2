package grace_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/sre-norns/uiprobe/pkg/grace"
	"github.com/stretchr/testify/require"
)

func TestActionableError(t *testing.T) {
	cause := errors.New("timeout 10000ms exceeded")
	err := grace.Wrap(cause, "test interface to render", "check the application logs")

	require.Equal(t, "test interface to render", err.WhatExpected())
	require.Equal(t, "timeout 10000ms exceeded", err.WhatHappened())
	require.Equal(t, "check the application logs", err.WhatToDo())
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), cause.Error())

	wrapped := fmt.Errorf("step failed: %w", err)
	found, ok := grace.AsActionable(wrapped)
	require.True(t, ok)
	require.Equal(t, err, found)

	_, ok = grace.AsActionable(cause)
	require.False(t, ok)
}

func TestRaiseError(t *testing.T) {
	err := grace.RaiseError("a", "b", "c")
	require.Equal(t, "expected: a, got: b; What to do: c", err.Error())
	require.Nil(t, errors.Unwrap(err))
}
