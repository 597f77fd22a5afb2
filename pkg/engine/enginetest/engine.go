// Package enginetest provides a scriptable in-memory browser engine that records every call made to it.
package enginetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sre-norns/uiprobe/pkg/engine"
)

const Name = "fake"

// Operations recorded by the fake
const (
	OpLaunch     = "launch"
	OpNewPage    = "newPage"
	OpGoto       = "goto"
	OpWaitFor    = "waitFor"
	OpClick      = "click"
	OpIsVisible  = "isVisible"
	OpWaitStable = "waitStable"
	OpScreenshot = "screenshot"
	OpClose      = "close"
)

var ErrSessionClosed = errors.New("session is closed")

// PNG is the image returned by Screenshot unless Image is set.
var PNG = []byte("\x89PNG\r\n\x1a\nfake")

type Call struct {
	Op      string
	Arg     string
	Timeout time.Duration
}

func (c Call) String() string {
	if c.Arg == "" {
		return c.Op
	}
	return c.Op + "(" + c.Arg + ")"
}

// Engine is a fake engine.Engine. Errors keyed by query are matched against Query.String().
type Engine struct {
	LaunchErr     error
	NewPageErr    error
	GotoErr       error
	StableErr     error
	ScreenshotErr error
	CloseErr      error

	WaitErrs    map[string]error
	ClickErrs   map[string]error
	VisibleErrs map[string]error
	Visible     map[string]bool

	// BlockOn makes WaitFor on the given query block until the context is done.
	BlockOn string

	Image []byte

	mu       sync.Mutex
	calls    []Call
	sessions []*Session
}

var _ engine.Engine = (*Engine)(nil)

func New() *Engine {
	return &Engine{
		WaitErrs:    map[string]error{},
		ClickErrs:   map[string]error{},
		VisibleErrs: map[string]error{},
		Visible:     map[string]bool{},
	}
}

// Timeout returns an error like the one a real engine reports when a wait on query expires.
func Timeout(query engine.Query) error {
	return fmt.Errorf("%w: %s", engine.ErrTimeout, query)
}

// Factory returns a factory that always hands out this instance, so tests can inspect it afterwards.
func (e *Engine) Factory() engine.Factory {
	return func() engine.Engine { return e }
}

func (e *Engine) Name() string { return Name }

func (e *Engine) Launch(ctx context.Context, options engine.LaunchOptions) (engine.Session, error) {
	e.record(Call{Op: OpLaunch, Arg: fmt.Sprintf("headless=%t", options.Headless)})
	if e.LaunchErr != nil {
		return nil, e.LaunchErr
	}

	s := &Session{engine: e}
	e.mu.Lock()
	e.sessions = append(e.sessions, s)
	e.mu.Unlock()

	return s, nil
}

func (e *Engine) record(c Call) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, c)
}

// Calls returns a copy of all recorded calls in order.
func (e *Engine) Calls() []Call {
	e.mu.Lock()
	defer e.mu.Unlock()

	result := make([]Call, len(e.calls))
	copy(result, e.calls)
	return result
}

// Trace returns recorded calls rendered as strings, handy for order assertions.
func (e *Engine) Trace() []string {
	calls := e.Calls()
	result := make([]string, 0, len(calls))
	for _, c := range calls {
		result = append(result, c.String())
	}
	return result
}

// Count returns how many times op was invoked with arg. Empty arg matches any.
func (e *Engine) Count(op, arg string) int {
	n := 0
	for _, c := range e.Calls() {
		if c.Op == op && (arg == "" || c.Arg == arg) {
			n++
		}
	}
	return n
}

// CloseCount is the total number of Close calls over all sessions.
func (e *Engine) CloseCount() int {
	return e.Count(OpClose, "")
}

// LiveSessions counts sessions that were launched but never closed.
func (e *Engine) LiveSessions() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := 0
	for _, s := range e.sessions {
		if !s.closed {
			n++
		}
	}
	return n
}

type Session struct {
	engine *Engine
	closed bool
}

func (s *Session) NewPage(ctx context.Context) (engine.Page, error) {
	s.engine.record(Call{Op: OpNewPage})
	if err := s.check(); err != nil {
		return nil, err
	}
	if s.engine.NewPageErr != nil {
		return nil, s.engine.NewPageErr
	}

	return &Page{session: s}, nil
}

func (s *Session) Close() error {
	s.engine.record(Call{Op: OpClose})

	s.engine.mu.Lock()
	defer s.engine.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.closed = true

	return s.engine.CloseErr
}

func (s *Session) check() error {
	s.engine.mu.Lock()
	defer s.engine.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	return nil
}

type Page struct {
	session *Session
}

func (p *Page) fake() *Engine { return p.session.engine }

func (p *Page) Goto(ctx context.Context, url string) error {
	p.fake().record(Call{Op: OpGoto, Arg: url})
	if err := p.session.check(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.fake().GotoErr
}

func (p *Page) WaitFor(ctx context.Context, query engine.Query, timeout time.Duration) error {
	p.fake().record(Call{Op: OpWaitFor, Arg: query.String(), Timeout: timeout})
	if err := p.session.check(); err != nil {
		return err
	}

	if p.fake().BlockOn == query.String() {
		<-ctx.Done()
		return ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	return p.fake().WaitErrs[query.String()]
}

func (p *Page) Click(ctx context.Context, query engine.Query) error {
	p.fake().record(Call{Op: OpClick, Arg: query.String()})
	if err := p.session.check(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.fake().ClickErrs[query.String()]
}

func (p *Page) IsVisible(ctx context.Context, query engine.Query) (bool, error) {
	p.fake().record(Call{Op: OpIsVisible, Arg: query.String()})
	if err := p.session.check(); err != nil {
		return false, err
	}
	if err := p.fake().VisibleErrs[query.String()]; err != nil {
		return false, err
	}
	return p.fake().Visible[query.String()], nil
}

func (p *Page) WaitStable(ctx context.Context, bound time.Duration) error {
	p.fake().record(Call{Op: OpWaitStable, Timeout: bound})
	if err := p.session.check(); err != nil {
		return err
	}
	return p.fake().StableErr
}

func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	p.fake().record(Call{Op: OpScreenshot})
	if err := p.session.check(); err != nil {
		return nil, err
	}
	if p.fake().ScreenshotErr != nil {
		return nil, p.fake().ScreenshotErr
	}
	if p.fake().Image != nil {
		return p.fake().Image, nil
	}
	return PNG, nil
}
