package probe

import (
	"fmt"
	"net/url"
	"time"

	"github.com/sre-norns/uiprobe/pkg/engine"
)

const (
	DefaultTarget = "http://localhost:3000"

	DefaultStartTimeout     = 5 * time.Second
	DefaultInterfaceTimeout = 10 * time.Second
	DefaultSettle           = 1 * time.Second

	DebugStartScreenshot = "debug_start.png"
	SuccessScreenshot    = "test_interface_success.png"
	ErrorScreenshot      = "error_home.png"
)

// Screenshots names the files written for each event of a run.
type Screenshots struct {
	StartMissing string `json:"startMissing,omitempty" yaml:"startMissing,omitempty"`
	Success      string `json:"success,omitempty" yaml:"success,omitempty"`
	Failure      string `json:"failure,omitempty" yaml:"failure,omitempty"`
}

// Flow describes the onboarding sequence a probe walks through.
type Flow struct {
	Target string `json:"target,omitempty" yaml:"target,omitempty"`

	Start        engine.Query  `json:"start" yaml:"start"`
	StartTimeout time.Duration `json:"startTimeout,omitempty" yaml:"startTimeout,omitempty"`

	Interface        engine.Query  `json:"interface" yaml:"interface"`
	InterfaceTimeout time.Duration `json:"interfaceTimeout,omitempty" yaml:"interfaceTimeout,omitempty"`

	// Labels any of which indicates a visible countdown. Checked in order.
	TimerLabels []string `json:"timerLabels,omitempty" yaml:"timerLabels,omitempty"`

	Answer engine.Query `json:"answer" yaml:"answer"`
	Next   engine.Query `json:"next" yaml:"next"`

	// Upper bound of the wait for the page to settle after each click
	Settle time.Duration `json:"settle,omitempty" yaml:"settle,omitempty"`

	Screenshots Screenshots `json:"screenshots,omitempty" yaml:"screenshots,omitempty"`
}

// DefaultFlow is the onboarding flow of the test interface application.
func DefaultFlow() Flow {
	return Flow{
		Target:           DefaultTarget,
		Start:            engine.HasText("button", "Start Test"),
		StartTimeout:     DefaultStartTimeout,
		Interface:        engine.CSS(".test-interface-theme"),
		InterfaceTimeout: DefaultInterfaceTimeout,
		TimerLabels:      []string{"Time Remaining", "Time"},
		Answer:           engine.Text("Yes"),
		Next:             engine.Role("button", "Next"),
		Settle:           DefaultSettle,
		Screenshots: Screenshots{
			StartMissing: DebugStartScreenshot,
			Success:      SuccessScreenshot,
			Failure:      ErrorScreenshot,
		},
	}
}

// WithDefaults fills every unset field of f from DefaultFlow.
func (f Flow) WithDefaults() Flow {
	d := DefaultFlow()

	if f.Target == "" {
		f.Target = d.Target
	}
	f.Start = queryOr(f.Start, d.Start)
	if f.StartTimeout <= 0 {
		f.StartTimeout = d.StartTimeout
	}
	f.Interface = queryOr(f.Interface, d.Interface)
	if f.InterfaceTimeout <= 0 {
		f.InterfaceTimeout = d.InterfaceTimeout
	}
	if f.TimerLabels == nil {
		f.TimerLabels = d.TimerLabels
	}
	f.Answer = queryOr(f.Answer, d.Answer)
	f.Next = queryOr(f.Next, d.Next)
	if f.Settle <= 0 {
		f.Settle = d.Settle
	}
	if f.Screenshots.StartMissing == "" {
		f.Screenshots.StartMissing = d.Screenshots.StartMissing
	}
	if f.Screenshots.Success == "" {
		f.Screenshots.Success = d.Screenshots.Success
	}
	if f.Screenshots.Failure == "" {
		f.Screenshots.Failure = d.Screenshots.Failure
	}

	return f
}

// queryOr completes q's kind, falling back to def only when q is not set at all.
func queryOr(q, def engine.Query) engine.Query {
	if q = q.WithKind(); q.Kind == "" {
		return def
	}
	return q
}

func (f Flow) Validate() error {
	u, err := url.Parse(f.Target)
	if err != nil {
		return fmt.Errorf("invalid target %q: %w", f.Target, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid target %q: absolute URL required", f.Target)
	}

	for name, q := range map[string]engine.Query{
		"start":     f.Start,
		"interface": f.Interface,
		"answer":    f.Answer,
		"next":      f.Next,
	} {
		if err := q.Validate(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	return nil
}
