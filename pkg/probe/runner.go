package probe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sre-norns/uiprobe/pkg/engine"
	"github.com/sre-norns/uiprobe/pkg/grace"
	"github.com/sre-norns/uiprobe/pkg/prob"
)

const (
	ScreenshotRelType = "screenshot"

	// Evidence is still captured after the run context is done, within this bound.
	evidenceTimeout = 10 * time.Second
)

type Options struct {
	Launch engine.LaunchOptions

	// Directory screenshots are written into. Empty means the working directory.
	OutputDir string

	Logger log.Logger

	// Registry to record run metrics into. A private one is used when nil, and exported as an artifact.
	// Probe metrics are registered on every run, so a registry must not be shared between runs.
	Registry *prometheus.Registry
}

type run struct {
	flow    Flow
	page    engine.Page
	logger  log.Logger
	metrics *runMetrics
	outDir  string
	report  *Report
}

// Run drives a single probe of flow using eng. The browser session is closed before Run returns on every path
// once it was launched.
//
// A failed probe is not an error: the report carries RunFinishedFailed and an error screenshot.
// The returned error is only set when the probe could not be performed at all.
func Run(ctx context.Context, eng engine.Engine, flow Flow, options Options) (Report, error) {
	runLog := NewRunLog(options.Logger)
	flow = flow.WithDefaults()

	report := Report{
		Target: flow.Target,
		Engine: eng.Name(),
		Status: prob.RunNotFinished,
	}

	registry := options.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	metrics, err := newRunMetrics(registry)
	if err != nil {
		report.Status = prob.RunFinishedError
		return report, err
	}

	if err := flow.Validate(); err != nil {
		report.Status = prob.RunFinishedError
		return report, fmt.Errorf("invalid flow: %w", err)
	}

	started := time.Now()
	err = drive(ctx, eng, options.Launch, &run{
		flow:    flow,
		logger:  runLog,
		metrics: metrics,
		outDir:  options.OutputDir,
		report:  &report,
	})
	report.Duration = time.Since(started)
	metrics.duration.Set(report.Duration.Seconds())

	if err != nil {
		report.Status = prob.RunFinishedError
		report.Error = err.Error()
	}
	if report.Succeeded() {
		metrics.success.Set(1)
	}

	report.Artifacts = append(report.Artifacts, runLog.ToArtifact())
	if options.Registry == nil {
		if artifact, merr := MetricsArtifact(registry, RegistryOptions{}); merr == nil {
			report.Artifacts = append(report.Artifacts, artifact)
		} else {
			level.Warn(runLog).Log("msg", "failed to export run metrics", "err", merr)
		}
	}

	return report, err
}

// drive owns the browser session: acquired and released here.
func drive(ctx context.Context, eng engine.Engine, launch engine.LaunchOptions, r *run) error {
	level.Info(r.logger).Log("msg", "launching browser", "engine", eng.Name(), "headless", launch.Headless)
	session, err := eng.Launch(ctx, launch)
	if err != nil {
		return fmt.Errorf("failed to launch %s browser: %w", eng.Name(), err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			level.Warn(r.logger).Log("msg", "failed to close browser", "err", err)
			return
		}
		level.Info(r.logger).Log("msg", "browser closed")
	}()

	page, err := session.NewPage(ctx)
	if err != nil {
		return fmt.Errorf("failed to open a page: %w", err)
	}
	r.page = page

	r.walk(ctx)
	return nil
}

func (r *run) steps() []step {
	steps := []step{
		{StepNavigate, r.navigate},
		{StepStart, r.start},
		{StepInterface, r.waitInterface},
	}
	if len(r.flow.TimerLabels) > 0 {
		steps = append(steps, step{StepTimer, r.checkTimer})
	}

	return append(steps,
		step{StepAnswer, r.answer},
		step{StepNext, r.next},
		step{StepCapture, r.capture},
	)
}

func (r *run) walk(ctx context.Context) {
	steps := r.steps()

	for i, s := range steps {
		started := time.Now()
		res := s.do(ctx)
		took := time.Since(started)

		rec := StepRecord{
			Name:     s.name,
			Outcome:  res.Outcome,
			Note:     res.Note,
			Duration: took,
			Attempts: 1,
		}
		if res.Err != nil {
			rec.Error = res.Err.Error()
		}
		r.report.Steps = append(r.report.Steps, rec)
		r.metrics.observeStep(s.name, res.Outcome, took)

		switch res.Outcome {
		case Continue:
		case Skip:
			level.Debug(r.logger).Log("msg", "step skipped", "step", s.name, "note", res.Note)
		case Abort:
			r.fail(ctx, s.name, res.Err)
			for _, rest := range steps[i+1:] {
				r.report.Steps = append(r.report.Steps, StepRecord{Name: rest.name, Outcome: NotRun})
			}
			return
		}
	}

	r.report.Status = prob.RunFinishedSuccess
}

func (r *run) fail(ctx context.Context, stepName string, err error) {
	r.report.Status = prob.RunFinishedFailed
	r.report.Error = err.Error()

	keyvals := []any{"msg", "probe failed", "step", stepName, "err", err}
	if aerr, ok := grace.AsActionable(err); ok {
		keyvals = append(keyvals, "hint", aerr.WhatToDo())
	}
	level.Error(r.logger).Log(keyvals...)

	r.screenshot(ctx, r.flow.Screenshots.Failure)
}

func (r *run) navigate(ctx context.Context) StepResult {
	level.Info(r.logger).Log("msg", "navigating", "target", r.flow.Target)
	if err := r.page.Goto(ctx, r.flow.Target); err != nil {
		return abort(grace.Wrap(err, "the application to load", fmt.Sprintf("make sure the application is served at %s", r.flow.Target)))
	}

	return ok("")
}

// start clicks the start control when it shows up. Not finding it is expected when the flow is already past
// that screen, so it never fails the run.
func (r *run) start(ctx context.Context) StepResult {
	level.Info(r.logger).Log("msg", "waiting for start control", "query", r.flow.Start, "timeout", r.flow.StartTimeout)
	if err := r.page.WaitFor(ctx, r.flow.Start, r.flow.StartTimeout); err != nil {
		r.report.Start = StartAbsent
		note := "start control not found"
		if !IsTimeout(err) {
			note = "start control lookup failed"
		}
		level.Info(r.logger).Log("msg", note+", the flow might be already started", "err", err)
		r.screenshot(ctx, r.flow.Screenshots.StartMissing)
		return skip(note, err)
	}

	level.Info(r.logger).Log("msg", "start control found, clicking")
	if err := r.page.Click(ctx, r.flow.Start); err != nil {
		r.report.Start = StartClickFailed
		level.Info(r.logger).Log("msg", "start control could not be clicked", "err", err)
		r.screenshot(ctx, r.flow.Screenshots.StartMissing)
		return skip("start control click failed", err)
	}

	r.report.Start = StartClicked
	return ok("")
}

func (r *run) waitInterface(ctx context.Context) StepResult {
	if err := r.page.WaitFor(ctx, r.flow.Interface, r.flow.InterfaceTimeout); err != nil {
		return abort(grace.Wrap(err, fmt.Sprintf("%s to render", r.flow.Interface), "check the browser console of the application for crashes"))
	}

	level.Info(r.logger).Log("msg", "test interface loaded")
	return ok("")
}

// checkTimer is informational only: an indeterminate answer is not reported anywhere but the report.
func (r *run) checkTimer(ctx context.Context) StepResult {
	queries := make([]engine.Query, 0, len(r.flow.TimerLabels))
	for _, label := range r.flow.TimerLabels {
		queries = append(queries, engine.Text(label))
	}

	r.report.Timer = checkPresence(ctx, r.page, queries)
	switch r.report.Timer {
	case PresencePresent:
		level.Info(r.logger).Log("msg", "timer is visible")
	case PresenceAbsent:
		level.Info(r.logger).Log("msg", "timer not immediately visible")
	}

	return ok(string(r.report.Timer))
}

func (r *run) answer(ctx context.Context) StepResult {
	level.Info(r.logger).Log("msg", "clicking an option", "query", r.flow.Answer)
	if err := r.page.Click(ctx, r.flow.Answer); err != nil {
		return abort(grace.Wrap(err, fmt.Sprintf("answer %s to be clickable", r.flow.Answer), "check that the first question renders its options"))
	}

	r.settle(ctx)
	return ok("")
}

func (r *run) next(ctx context.Context) StepResult {
	level.Info(r.logger).Log("msg", "navigating to next question", "query", r.flow.Next)
	if err := r.page.Click(ctx, r.flow.Next); err != nil {
		return abort(grace.Wrap(err, fmt.Sprintf("%s to be clickable", r.flow.Next), "check that selecting an answer enables navigation"))
	}

	r.settle(ctx)
	return ok("")
}

func (r *run) capture(ctx context.Context) StepResult {
	if err := r.writeScreenshot(ctx, r.flow.Screenshots.Success); err != nil {
		return abort(fmt.Errorf("failed to take final screenshot: %w", err))
	}

	level.Info(r.logger).Log("msg", "final screenshot taken", "file", r.flow.Screenshots.Success)
	return ok("")
}

// settle waits for the page to become idle after an interaction. Hitting the bound is fine: the page is
// given as much time as a fixed pause would have given it.
func (r *run) settle(ctx context.Context) {
	if err := r.page.WaitStable(ctx, r.flow.Settle); err != nil {
		level.Debug(r.logger).Log("msg", "page did not settle", "bound", r.flow.Settle, "err", err)
	}
}

// screenshot captures evidence. Failures are logged, never propagated.
func (r *run) screenshot(ctx context.Context, name string) {
	if err := r.writeScreenshot(ctx, name); err != nil {
		level.Warn(r.logger).Log("msg", "failed to capture screenshot", "file", name, "err", err)
	}
}

func (r *run) writeScreenshot(ctx context.Context, name string) error {
	// Evidence matters most when the run was interrupted.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), evidenceTimeout)
	defer cancel()

	img, err := r.page.Screenshot(ctx)
	if err != nil {
		return err
	}

	path := name
	if r.outDir != "" {
		path = filepath.Join(r.outDir, name)
	}
	if err := os.WriteFile(path, img, 0o644); err != nil {
		return fmt.Errorf("failed to save screenshot: %w", err)
	}

	r.report.Artifacts = append(r.report.Artifacts, prob.Artifact{
		Rel:      ScreenshotRelType,
		Name:     name,
		MimeType: "image/png",
		Content:  img,
	})
	r.metrics.screenshots.WithLabelValues(eventOf(r.flow.Screenshots, name)).Inc()

	return nil
}

func eventOf(s Screenshots, name string) string {
	switch name {
	case s.StartMissing:
		return "start-missing"
	case s.Success:
		return "success"
	case s.Failure:
		return "failure"
	default:
		return "other"
	}
}

// IsTimeout reports whether err was caused by an expired wait.
func IsTimeout(err error) bool {
	return errors.Is(err, engine.ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}
