package probe

import (
	"context"
	"time"
)

// Outcome tells the runner what to do after a step.
type Outcome string

const (
	// Continue to the next step
	Continue Outcome = "ok"
	// Skip: the step could not complete, the condition was logged and the run goes on
	Skip Outcome = "skipped"
	// Abort: the run fails, remaining steps are not executed
	Abort Outcome = "aborted"
	// NotRun marks steps that were never reached
	NotRun Outcome = "not-run"
)

type StepResult struct {
	Outcome Outcome
	Note    string
	Err     error
}

func ok(note string) StepResult {
	return StepResult{Outcome: Continue, Note: note}
}

func skip(note string, err error) StepResult {
	return StepResult{Outcome: Skip, Note: note, Err: err}
}

func abort(err error) StepResult {
	return StepResult{Outcome: Abort, Err: err}
}

// StepRecord is what the report keeps about a step.
type StepRecord struct {
	Name     string        `json:"name" yaml:"name"`
	Outcome  Outcome       `json:"outcome" yaml:"outcome"`
	Note     string        `json:"note,omitempty" yaml:"note,omitempty"`
	Error    string        `json:"error,omitempty" yaml:"error,omitempty"`
	Duration time.Duration `json:"duration" yaml:"duration"`
	Attempts int           `json:"attempts" yaml:"attempts"`
}

type step struct {
	name string
	do   func(ctx context.Context) StepResult
}

// Step names
const (
	StepNavigate  = "navigate"
	StepStart     = "start"
	StepInterface = "interface"
	StepTimer     = "timer"
	StepAnswer    = "answer"
	StepNext      = "next"
	StepCapture   = "capture"
)
