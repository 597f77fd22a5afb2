package engine_test

import (
	"testing"

	"github.com/sre-norns/uiprobe/pkg/engine"
	"github.com/sre-norns/uiprobe/pkg/engine/enginetest"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	require.ErrorIs(t, engine.Register("broken", engine.Registration{}), engine.ErrNilFactory)

	_, err := engine.Lookup("nope")
	require.ErrorIs(t, err, engine.ErrUnknownEngine)

	fake := enginetest.New()
	require.NoError(t, engine.Register(enginetest.Name, engine.Registration{New: fake.Factory(), Version: "v1.0.0"}))
	defer engine.Unregister(enginetest.Name)

	got, err := engine.Lookup(enginetest.Name)
	require.NoError(t, err)
	require.Same(t, fake, got)

	require.Contains(t, engine.Names(), enginetest.Name)
	require.Equal(t, "v1.0.0", engine.List()[enginetest.Name].Version)
}
