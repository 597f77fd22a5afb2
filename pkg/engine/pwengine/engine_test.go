package pwengine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/require"

	"github.com/sre-norns/uiprobe/pkg/engine"
)

// pwLocator aliases playwright.Locator so the embedded field is not named
// Locator, which would shadow the interface's Locator method.
type pwLocator = playwright.Locator

type fakeLocator struct {
	pwLocator

	selector string
	first    bool
}

func (l *fakeLocator) First() playwright.Locator {
	return &fakeLocator{selector: l.selector, first: true}
}

type fakePage struct {
	playwright.Page

	expression string
	timeout    *float64
	waitErr    error
}

func (p *fakePage) GetByText(text interface{}, options ...playwright.PageGetByTextOptions) playwright.Locator {
	return &fakeLocator{selector: fmt.Sprintf("text=%v", text)}
}

func (p *fakePage) GetByRole(role playwright.AriaRole, options ...playwright.PageGetByRoleOptions) playwright.Locator {
	name := ""
	if len(options) > 0 {
		name = fmt.Sprintf("%v", options[0].Name)
	}
	return &fakeLocator{selector: fmt.Sprintf("role=%s:%s", role, name)}
}

func (p *fakePage) Locator(selector string, options ...playwright.PageLocatorOptions) playwright.Locator {
	return &fakeLocator{selector: selector}
}

func (p *fakePage) WaitForFunction(expression string, arg interface{}, options ...playwright.PageWaitForFunctionOptions) (playwright.JSHandle, error) {
	p.expression = expression
	if len(options) > 0 {
		p.timeout = options[0].Timeout
	}
	return nil, p.waitErr
}

func TestTimeout(t *testing.T) {
	testCases := map[string]struct {
		deadline time.Duration
		bound    time.Duration

		expectNil bool
		expectMin float64
		expectMax float64
	}{
		"no-deadline-no-bound": {
			expectNil: true,
		},
		"no-deadline": {
			bound:     5 * time.Second,
			expectMin: 5000,
			expectMax: 5000,
		},
		"bound-shorter-than-deadline": {
			deadline:  time.Minute,
			bound:     5 * time.Second,
			expectMin: 5000,
			expectMax: 5000,
		},
		"deadline-shorter-than-bound": {
			deadline:  2 * time.Second,
			bound:     10 * time.Second,
			expectMin: 1000,
			expectMax: 2000,
		},
		"deadline-no-bound": {
			deadline:  3 * time.Second,
			expectMin: 2000,
			expectMax: 3000,
		},
		"deadline-passed": {
			deadline:  -time.Second,
			bound:     5 * time.Second,
			expectMin: 1,
			expectMax: 1,
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if tc.deadline != 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithDeadline(ctx, time.Now().Add(tc.deadline))
				defer cancel()
			}

			got := timeout(ctx, tc.bound)
			if tc.expectNil {
				require.Nil(t, got)
				return
			}

			require.NotNil(t, got)
			require.GreaterOrEqual(t, *got, tc.expectMin)
			require.LessOrEqual(t, *got, tc.expectMax)
		})
	}
}

func TestWrapTimeout(t *testing.T) {
	testCases := map[string]struct {
		given         error
		expectTimeout bool
	}{
		"nil":               {},
		"playwright":        {given: fmt.Errorf("%w: waiting for locator", playwright.ErrTimeout), expectTimeout: true},
		"deadline-exceeded": {given: context.DeadlineExceeded, expectTimeout: true},
		"canceled":          {given: context.Canceled},
		"other":             {given: errors.New("target closed")},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			got := wrapTimeout(tc.given)
			if tc.given == nil {
				require.NoError(t, got)
				return
			}

			require.ErrorIs(t, got, tc.given)
			require.Equal(t, tc.expectTimeout, errors.Is(got, engine.ErrTimeout))
		})
	}
}

func TestLocator_Strict(t *testing.T) {
	p := &page{page: &fakePage{}}

	testCases := map[string]struct {
		given  engine.Query
		expect string
	}{
		"text":     {given: engine.Text("Yes"), expect: "text=Yes"},
		"role":     {given: engine.Role("button", "Next"), expect: "role=button:Next"},
		"has-text": {given: engine.HasText("button", "Start Test"), expect: "button:has-text('Start Test')"},
		"css":      {given: engine.CSS(".test-interface-theme"), expect: ".test-interface-theme"},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			got, ok := p.locator(tc.given).(*fakeLocator)
			require.True(t, ok)
			require.Equal(t, tc.expect, got.selector)
			require.False(t, got.first, "actions must not pick the first of several matches")
		})
	}
}

func TestWaitStable(t *testing.T) {
	fake := &fakePage{}
	p := &page{page: fake}

	require.NoError(t, p.WaitStable(context.Background(), time.Second))
	require.Equal(t, engine.SettledScript, fake.expression)
	require.NotNil(t, fake.timeout)
	require.Equal(t, float64(1000), *fake.timeout)

	fake.waitErr = fmt.Errorf("%w: page did not settle", playwright.ErrTimeout)
	require.ErrorIs(t, p.WaitStable(context.Background(), time.Second), engine.ErrTimeout)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, p.WaitStable(ctx, time.Second), context.Canceled)
}
