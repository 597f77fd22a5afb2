// Package rodengine drives Chromium with go-rod.
package rodengine

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/sre-norns/uiprobe/pkg/engine"
)

const (
	Name       = "rod"
	modulePath = "github.com/go-rod/rod"

	actionTimeout = 30 * time.Second
)

var ErrSessionClosed = errors.New("browser session is closed")

// Binaries looked up on PATH before letting rod download its own chromium.
var knownBinaries = []string{"chromium", "chromium-browser", "google-chrome", "google-chrome-stable"}

func init() {
	// Ignore double registration error
	_ = engine.Register(Name, engine.Registration{
		New:     func() engine.Engine { return New(Options{}) },
		Version: engine.ModuleVersion(modulePath),
		Library: modulePath,
	})
}

type Options struct {
	// Bin is the browser executable. Looked up on PATH when empty.
	Bin string
	// NoSandbox is required when running as root inside containers.
	NoSandbox bool
}

type Engine struct {
	options Options
}

func New(options Options) *Engine {
	return &Engine{options: options}
}

func (e *Engine) Name() string { return Name }

func (e *Engine) bin() string {
	if e.options.Bin != "" {
		return e.options.Bin
	}
	for _, name := range knownBinaries {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	return ""
}

func (e *Engine) Launch(ctx context.Context, options engine.LaunchOptions) (engine.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l := launcher.New().
		Headless(options.Headless).
		NoSandbox(e.options.NoSandbox)
	if bin := e.bin(); bin != "" {
		l = l.Bin(bin)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("could not launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if options.SlowMo > 0 {
		browser = browser.SlowMotion(options.SlowMo)
	}
	if err := browser.Connect(); err != nil {
		l.Kill()
		l.Cleanup()
		return nil, fmt.Errorf("could not connect to browser: %w", err)
	}

	return &session{launcher: l, browser: browser}, nil
}

type session struct {
	launcher *launcher.Launcher
	browser  *rod.Browser

	mu     sync.Mutex
	closed bool
}

func (s *session) NewPage(ctx context.Context) (engine.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}

	p, err := s.browser.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("could not open page: %w", err)
	}

	// Operations take their own context, detach the page from the one it was opened with
	return &page{page: p.Context(context.Background())}, nil
}

func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.closed = true

	err := s.browser.Close()
	s.launcher.Kill()
	s.launcher.Cleanup()

	return err
}

type page struct {
	page *rod.Page
}

// bind bounds page operations by ctx and timeout. release stops the timeout timer and must be called once the
// operation, including elements it found, is done.
func bind(ctx context.Context, pg *rod.Page, timeout time.Duration) (bound *rod.Page, release func()) {
	bound = pg.Context(ctx).Timeout(timeout)
	return bound, func() { bound.CancelTimeout() }
}

func wrapTimeout(ctx context.Context, timeout time.Duration, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w after %v: %w", engine.ErrTimeout, timeout, err)
	}
	return err
}

func (p *page) element(pg *rod.Page, q engine.Query) (*rod.Element, error) {
	switch q.Kind {
	case engine.QueryCSS:
		return pg.Element(q.Selector)
	case engine.QueryHasText:
		return pg.ElementR(q.Selector, regexp.QuoteMeta(q.Text))
	default:
		return pg.ElementX(q.XPath())
	}
}

func (p *page) has(pg *rod.Page, q engine.Query) (bool, *rod.Element, error) {
	switch q.Kind {
	case engine.QueryCSS:
		return pg.Has(q.Selector)
	case engine.QueryHasText:
		return pg.HasR(q.Selector, regexp.QuoteMeta(q.Text))
	default:
		return pg.HasX(q.XPath())
	}
}

func (p *page) Goto(ctx context.Context, url string) error {
	pg, release := bind(ctx, p.page, actionTimeout)
	defer release()

	if err := pg.Navigate(url); err != nil {
		return wrapTimeout(ctx, actionTimeout, err)
	}
	return wrapTimeout(ctx, actionTimeout, pg.WaitLoad())
}

func (p *page) WaitFor(ctx context.Context, q engine.Query, timeout time.Duration) error {
	pg, release := bind(ctx, p.page, timeout)
	defer release()

	el, err := p.element(pg, q)
	if err != nil {
		return wrapTimeout(ctx, timeout, err)
	}
	return wrapTimeout(ctx, timeout, el.WaitVisible())
}

func (p *page) Click(ctx context.Context, q engine.Query) error {
	pg, release := bind(ctx, p.page, actionTimeout)
	defer release()

	el, err := p.element(pg, q)
	if err != nil {
		return wrapTimeout(ctx, actionTimeout, err)
	}
	return wrapTimeout(ctx, actionTimeout, el.Click(proto.InputMouseButtonLeft, 1))
}

// IsVisible checks the first match without waiting for it to appear.
func (p *page) IsVisible(ctx context.Context, q engine.Query) (bool, error) {
	pg, release := bind(ctx, p.page, actionTimeout)
	defer release()

	found, el, err := p.has(pg, q)
	if err != nil || !found {
		return false, wrapTimeout(ctx, actionTimeout, err)
	}

	visible, err := el.Visible()
	return visible, wrapTimeout(ctx, actionTimeout, err)
}

func (p *page) WaitStable(ctx context.Context, bound time.Duration) error {
	return wrapTimeout(ctx, bound, p.page.Context(ctx).WaitIdle(bound))
}

func (p *page) Screenshot(ctx context.Context) ([]byte, error) {
	pg, release := bind(ctx, p.page, actionTimeout)
	defer release()

	buf, err := pg.Screenshot(false, nil)
	return buf, wrapTimeout(ctx, actionTimeout, err)
}
