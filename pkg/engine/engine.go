package engine

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrTimeout is returned (wrapped) by a bounded wait that expired before its condition held.
	ErrTimeout = errors.New("timed out waiting for element")

	ErrUnknownEngine = errors.New("unknown browser engine")
	ErrNilFactory    = errors.New("engine factory is nil")
)

// SettledScript evaluates to true once the document is loaded and no animation is running.
// Drivers poll it to let the page settle after an interaction.
const SettledScript = `document.readyState === "complete" && document.getAnimations().every(a => a.playState !== "running")`

type LaunchOptions struct {
	Headless bool
	SlowMo   time.Duration
}

// Engine starts browser sessions.
type Engine interface {
	Name() string
	Launch(ctx context.Context, options LaunchOptions) (Session, error)
}

// Session is a running browser process. Close must release it; a closed session is never reused.
type Session interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Page is a single browsing context of a session.
type Page interface {
	Goto(ctx context.Context, url string) error

	// WaitFor blocks until the element matched by query is visible or timeout elapses.
	// On expiry the returned error wraps ErrTimeout.
	WaitFor(ctx context.Context, query Query, timeout time.Duration) error

	Click(ctx context.Context, query Query) error
	IsVisible(ctx context.Context, query Query) (bool, error)

	// WaitStable waits until the page is idle, at most for bound.
	WaitStable(ctx context.Context, bound time.Duration) error

	// Screenshot captures the current viewport as PNG.
	Screenshot(ctx context.Context) ([]byte, error)
}
