package grace

import (
	"errors"
	"fmt"
)

type Error interface {
	error

	WhatExpected() string
	WhatHappened() string
	WhatToDo() string
}

type ActionableError struct {
	expected     string
	got          string
	callToAction string
	cause        error
}

func (e *ActionableError) WhatExpected() string {
	return e.expected
}

func (e *ActionableError) WhatHappened() string {
	return e.got
}

func (e *ActionableError) WhatToDo() string {
	return e.callToAction
}

func (e *ActionableError) Error() string {
	return fmt.Sprintf("expected: %s, got: %s; What to do: %s", e.expected, e.got, e.callToAction)
}

func (e *ActionableError) Unwrap() error {
	return e.cause
}

func RaiseError(
	expected, got, cta string,
) Error {
	return &ActionableError{
		expected:     expected,
		got:          got,
		callToAction: cta,
	}
}

// Wrap raises an actionable error whose 'got' part is the text of cause.
func Wrap(cause error, expected, cta string) Error {
	return &ActionableError{
		expected:     expected,
		got:          cause.Error(),
		callToAction: cta,
		cause:        cause,
	}
}

// AsActionable finds the first actionable error in err's chain.
func AsActionable(err error) (Error, bool) {
	var target *ActionableError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}
