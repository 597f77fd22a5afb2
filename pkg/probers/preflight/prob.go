// Package preflight checks that the target answers HTTP before a browser is spent on it.
package preflight

import (
	"context"
	"fmt"
	"reflect"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	bxconfig "github.com/prometheus/blackbox_exporter/config"
	"github.com/prometheus/blackbox_exporter/prober"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sre-norns/wyrd/pkg/manifest"

	"github.com/sre-norns/uiprobe/pkg/prob"
)

const (
	Kind           = prob.Kind("preflight")
	ScriptMimeType = "application/yaml"

	DefaultTimeout = 5 * time.Second
)

type Spec struct {
	Target string             `json:"target,omitempty" yaml:"target,omitempty"`
	HTTP   bxconfig.HTTPProbe `json:"http" yaml:"http"`
}

// NewSpec returns a spec expecting a 2xx answer from target.
func NewSpec(target string) *Spec {
	return &Spec{
		Target: target,
		HTTP:   bxconfig.DefaultHTTPProbe,
	}
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
		},
	)
}

func RunScript(ctx context.Context, probSpec any, config prob.RunOptions, registry *prometheus.Registry, logger log.Logger) (prob.RunStatus, []prob.Artifact, error) {
	spec, ok := probSpec.(*Spec)
	if !ok {
		return prob.RunFinishedError, nil, fmt.Errorf("%w: got %q, expected %q", manifest.ErrUnexpectedSpecType, reflect.TypeOf(probSpec), reflect.TypeOf(&Spec{}))
	}

	if spec.Target == "" {
		return prob.RunFinishedError, nil, prob.ErrNoTarget
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	timeout := config.Preflight.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	logger = log.With(logger, "probe", Kind)
	if success := prober.ProbeHTTP(ctx, spec.Target, bxconfig.Module{Prober: "http", Timeout: timeout, HTTP: spec.HTTP}, registry, logger); !success {
		level.Warn(logger).Log("msg", "target did not pass preflight check", "target", spec.Target)
		return prob.RunFinishedFailed, nil, nil
	}

	level.Info(logger).Log("msg", "target is reachable", "target", spec.Target)
	return prob.RunFinishedSuccess, nil, nil
}
