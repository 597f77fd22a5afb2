// Package pwengine drives browsers through playwright-go. It is the default engine: its selector
// engines understand every engine.Query natively.
package pwengine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/sre-norns/uiprobe/pkg/engine"
)

const (
	Name       = "playwright"
	modulePath = "github.com/playwright-community/playwright-go"
)

func init() {
	// Ignore double registration error
	_ = engine.Register(Name, engine.Registration{
		New:     func() engine.Engine { return New(Options{}) },
		Version: engine.ModuleVersion(modulePath),
		Library: modulePath,
	})
}

type Options struct {
	// Install the playwright driver and browser before launching
	Install bool

	// chromium (default), firefox or webkit
	Browser string
}

type Engine struct {
	options Options
}

func New(options Options) *Engine {
	if options.Browser == "" {
		options.Browser = "chromium"
	}
	return &Engine{options: options}
}

func (e *Engine) Name() string { return Name }

func (e *Engine) Launch(ctx context.Context, options engine.LaunchOptions) (engine.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if e.options.Install {
		if err := playwright.Install(&playwright.RunOptions{Browsers: []string{e.options.Browser}}); err != nil {
			return nil, fmt.Errorf("could not install playwright browsers: %w", err)
		}
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("could not start playwright: %w", err)
	}

	var browserType playwright.BrowserType
	switch e.options.Browser {
	case "chromium":
		browserType = pw.Chromium
	case "firefox":
		browserType = pw.Firefox
	case "webkit":
		browserType = pw.WebKit
	default:
		_ = pw.Stop()
		return nil, fmt.Errorf("unsupported playwright browser: %q", e.options.Browser)
	}

	launchOptions := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(options.Headless),
	}
	if options.SlowMo > 0 {
		launchOptions.SlowMo = playwright.Float(float64(options.SlowMo.Milliseconds()))
	}

	browser, err := browserType.Launch(launchOptions)
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("could not launch %s: %w", e.options.Browser, err)
	}

	return &session{pw: pw, browser: browser}, nil
}

type session struct {
	pw      *playwright.Playwright
	browser playwright.Browser

	closeOnce sync.Once
	closeErr  error
}

func (s *session) NewPage(ctx context.Context) (engine.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p, err := s.browser.NewPage()
	if err != nil {
		return nil, err
	}

	return &page{page: p}, nil
}

// Close closes the browser and stops the playwright driver process.
func (s *session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = errors.Join(s.browser.Close(), s.pw.Stop())
	})
	return s.closeErr
}

type page struct {
	page playwright.Page
}

// timeout narrows bound to what is left of ctx, in the milliseconds playwright expects.
// A nil result leaves playwright's own default in place.
func timeout(ctx context.Context, bound time.Duration) *float64 {
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); bound == 0 || left < bound {
			bound = max(left, time.Millisecond)
		}
	}

	if bound == 0 {
		return nil
	}
	return playwright.Float(float64(bound.Milliseconds()))
}

func wrapTimeout(err error) error {
	if errors.Is(err, playwright.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", engine.ErrTimeout, err)
	}
	return err
}

// locator is strict: an action on a query matching several elements fails.
func (p *page) locator(q engine.Query) playwright.Locator {
	switch q.Kind {
	case engine.QueryText:
		return p.page.GetByText(q.Text)
	case engine.QueryRole:
		if q.Name == "" {
			return p.page.GetByRole(playwright.AriaRole(q.Role))
		}
		return p.page.GetByRole(playwright.AriaRole(q.Role), playwright.PageGetByRoleOptions{Name: q.Name})
	default:
		return p.page.Locator(q.String())
	}
}

func (p *page) Goto(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := p.page.Goto(url, playwright.PageGotoOptions{Timeout: timeout(ctx, 0)})
	return wrapTimeout(err)
}

func (p *page) WaitFor(ctx context.Context, q engine.Query, bound time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := p.page.WaitForSelector(q.String(), playwright.PageWaitForSelectorOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: timeout(ctx, bound),
	})
	return wrapTimeout(err)
}

func (p *page) Click(ctx context.Context, q engine.Query) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return wrapTimeout(p.locator(q).Click(playwright.LocatorClickOptions{Timeout: timeout(ctx, 0)}))
}

func (p *page) IsVisible(ctx context.Context, q engine.Query) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	// Any match being visible is enough
	return p.locator(q).First().IsVisible()
}

// WaitStable polls the page until it settles. Network idle alone resolves at once after client side updates.
func (p *page) WaitStable(ctx context.Context, bound time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := p.page.WaitForFunction(engine.SettledScript, nil, playwright.PageWaitForFunctionOptions{
		Timeout: timeout(ctx, bound),
	})
	return wrapTimeout(err)
}

func (p *page) Screenshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return p.page.Screenshot(playwright.PageScreenshotOptions{Timeout: timeout(ctx, 0)})
}
