// Package cdpengine drives Chrome over the DevTools protocol with chromedp.
package cdpengine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/chromedp"

	"github.com/sre-norns/uiprobe/pkg/engine"
)

const (
	Name       = "chromedp"
	modulePath = "github.com/chromedp/chromedp"

	// Bound of actions that have no explicit wait, same as playwright's default.
	actionTimeout = 30 * time.Second
)

var ErrSessionClosed = errors.New("browser session is closed")

func init() {
	// Ignore double registration error
	_ = engine.Register(Name, engine.Registration{
		New:     func() engine.Engine { return New(Options{}) },
		Version: engine.ModuleVersion(modulePath),
		Library: modulePath,
	})
}

type Options struct {
	UserAgent               string
	IgnoreCertificateErrors bool
	WindowWidth             int
	WindowHeight            int
}

type Engine struct {
	options Options
}

func New(options Options) *Engine {
	return &Engine{options: options}
}

func (e *Engine) Name() string { return Name }

// flags are the browser command line switches on top of chromedp's defaults.
func (e *Engine) flags(options engine.LaunchOptions) map[string]any {
	flags := map[string]any{
		"headless": options.Headless,
	}

	if e.options.UserAgent != "" {
		flags["user-agent"] = e.options.UserAgent
	}
	if e.options.IgnoreCertificateErrors {
		flags["ignore-certificate-errors"] = true
	}
	if e.options.WindowWidth > 0 && e.options.WindowHeight > 0 {
		flags["window-size"] = fmt.Sprintf("%d,%d", e.options.WindowWidth, e.options.WindowHeight)
	}

	return flags
}

func (e *Engine) allocatorOptions(options engine.LaunchOptions) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	for name, value := range e.flags(options) {
		opts = append(opts, chromedp.Flag(name, value))
	}

	return opts
}

// Launch starts a browser. The browser is bound to its own context, not to ctx: it lives until Close.
func (e *Engine) Launch(ctx context.Context, options engine.LaunchOptions) (engine.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), e.allocatorOptions(options)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// The first Run allocates the browser and opens its first tab
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("could not start chrome: %w", err)
	}

	return &session{
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
	}, nil
}

type session struct {
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc

	mu       sync.Mutex
	closed   bool
	pageOpen bool
}

// NewPage hands out the tab opened at launch.
func (s *session) NewPage(ctx context.Context) (engine.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	if s.pageOpen {
		return nil, fmt.Errorf("%s engine supports a single page per session", Name)
	}
	s.pageOpen = true

	return &page{tabCtx: s.browserCtx}, nil
}

func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.closed = true

	err := chromedp.Cancel(s.browserCtx)
	s.browserCancel()
	s.allocCancel()

	return err
}

type page struct {
	tabCtx context.Context
}

// run executes actions in the tab, bounded by timeout and cancelled together with ctx.
func (p *page) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	runCtx, cancel := context.WithTimeout(p.tabCtx, timeout)
	defer cancel()

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return runError(ctx, runCtx, timeout, chromedp.Run(runCtx, actions...))
}

// runError tells a wait that ran out of its own bound, reported as engine.ErrTimeout, from the caller giving up.
func runError(ctx, runCtx context.Context, timeout time.Duration, err error) error {
	if err == nil {
		return nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %w", ctxErr, err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %v: %w", engine.ErrTimeout, timeout, err)
	}

	return err
}

// selectorOf renders q for chromedp: css queries as is, everything else as XPath.
func selectorOf(q engine.Query) (selector string, css bool) {
	if q.Kind == engine.QueryCSS {
		return q.Selector, true
	}
	return q.XPath(), false
}

func selector(q engine.Query) (string, chromedp.QueryOption) {
	sel, css := selectorOf(q)
	if css {
		return sel, chromedp.ByQuery
	}
	return sel, chromedp.BySearch
}

func (p *page) Goto(ctx context.Context, url string) error {
	return p.run(ctx, actionTimeout, chromedp.Navigate(url))
}

func (p *page) WaitFor(ctx context.Context, q engine.Query, timeout time.Duration) error {
	sel, by := selector(q)
	return p.run(ctx, timeout, chromedp.WaitVisible(sel, by))
}

func (p *page) Click(ctx context.Context, q engine.Query) error {
	sel, by := selector(q)
	return p.run(ctx, actionTimeout, chromedp.Click(sel, by, chromedp.NodeVisible))
}

// IsVisible checks the first match without waiting for it to appear.
func (p *page) IsVisible(ctx context.Context, q engine.Query) (bool, error) {
	sel, by := selector(q)

	var nodes []*cdp.Node
	if err := p.run(ctx, actionTimeout, chromedp.Nodes(sel, &nodes, by, chromedp.AtLeast(0))); err != nil {
		return false, err
	}
	if len(nodes) == 0 {
		return false, nil
	}

	visible := false
	err := p.run(ctx, actionTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		// No box model means the node is not rendered
		model, err := dom.GetBoxModel().WithNodeID(nodes[0].NodeID).Do(ctx)
		visible = err == nil && model != nil && model.Width > 0 && model.Height > 0
		return nil
	}))

	return visible, err
}

func (p *page) WaitStable(ctx context.Context, bound time.Duration) error {
	var settled bool
	return p.run(ctx, bound, chromedp.Poll(engine.SettledScript, &settled, chromedp.WithPollingInterval(50*time.Millisecond)))
}

func (p *page) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := p.run(ctx, actionTimeout, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}
