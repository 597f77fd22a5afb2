package onboarding

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"runtime/debug"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sre-norns/wyrd/pkg/manifest"

	"github.com/sre-norns/uiprobe/pkg/engine"
	"github.com/sre-norns/uiprobe/pkg/prob"
	"github.com/sre-norns/uiprobe/pkg/probe"
)

const (
	Kind           = prob.Kind("onboarding")
	ScriptMimeType = "application/yaml"

	// DefaultEngine is used when run options do not name one.
	DefaultEngine = "playwright"
)

// Spec of an onboarding probe: the flow to click through.
type Spec struct {
	probe.Flow `yaml:",inline"`
}

func NewSpec() *Spec {
	return &Spec{Flow: probe.DefaultFlow()}
}

func init() {
	moduleVersion := "devel"
	if bi, ok := debug.ReadBuildInfo(); ok {
		moduleVersion = strings.Trim(bi.Main.Version, "()")
	}

	// Ignore double registration error
	_ = prob.RegisterProbKind(
		Kind,
		&Spec{},
		prob.ProbRegistration{
			RunFunc:     RunScript,
			ContentType: ScriptMimeType,
			Version:     moduleVersion,
			Produce:     []string{probe.ScreenshotRelType, probe.LogRelType},
		},
	)
}

func RunScript(ctx context.Context, probSpec any, config prob.RunOptions, registry *prometheus.Registry, logger log.Logger) (prob.RunStatus, []prob.Artifact, error) {
	spec, ok := probSpec.(*Spec)
	if !ok {
		return prob.RunFinishedError, nil, fmt.Errorf("%w: got %q, expected %q", manifest.ErrUnexpectedSpecType, reflect.TypeOf(probSpec), reflect.TypeOf(&Spec{}))
	}

	report, err := Probe(ctx, spec, config, registry, logger)
	return report.Status, report.Artifacts, err
}

// Probe runs the onboarding flow of spec with the engine named in config and returns the full report.
func Probe(ctx context.Context, spec *Spec, config prob.RunOptions, registry *prometheus.Registry, logger log.Logger) (probe.Report, error) {
	if spec == nil {
		spec = NewSpec()
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}

	engineName := config.Browser.Engine
	if engineName == "" {
		engineName = DefaultEngine
	}
	info, ok := engine.List()[engineName]
	if !ok {
		_, err := engine.Lookup(engineName)
		return probe.Report{Target: spec.Target, Engine: engineName, Status: prob.RunFinishedError}, err
	}

	logger = log.With(logger, "engine", engineName)
	report, err := probe.Run(ctx, info.New(), spec.Flow, probe.Options{
		Launch: engine.LaunchOptions{
			Headless: config.Browser.Headless,
			SlowMo:   config.Browser.SlowMo,
		},
		OutputDir: config.Output.Directory,
		Logger:    logger,
		Registry:  registry,
	})
	report.Labels = manifest.MergeLabels(probe.RuntimeLabels(), probe.EngineLabels(engineName, info.Version))

	if report.Status == prob.RunFinishedFailed {
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			report.Status = prob.RunFinishedTimeout
		case errors.Is(ctx.Err(), context.Canceled):
			report.Status = prob.RunFinishedCanceled
		}
	}

	level.Debug(logger).Log("msg", "probe finished", "status", report.Status, "duration", report.Duration)
	return report, err
}
