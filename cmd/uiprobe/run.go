package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sre-norns/wyrd/pkg/manifest"
	"gopkg.in/yaml.v3"

	"github.com/sre-norns/uiprobe/pkg/prob"
	"github.com/sre-norns/uiprobe/pkg/probe"
	"github.com/sre-norns/uiprobe/pkg/probers/onboarding"
	"github.com/sre-norns/uiprobe/pkg/probers/preflight"
)

var errProbeFailed = errors.New("probe did not succeed")

type RunCmd struct {
	File   string `name:"file" short:"f" help:"A probe manifest file, '-' to read from stdin"`
	Target string `help:"URL of the application under test, overrides the manifest" env:"UIPROBE_TARGET"`

	Engine  string        `help:"Browser engine to drive the probe with" default:"playwright" env:"UIPROBE_ENGINE"`
	Headful bool          `help:"Show the browser window instead of running headless"`
	SlowMo  time.Duration `help:"Slow down every browser operation by this much"`

	OutputDir          string            `help:"Directory screenshots are written into" default:"." type:"existingdir" env:"UIPROBE_OUTPUT_DIR"`
	MetricsFile        string            `help:"Write run metrics in text exposition format into this file" type:"path"`
	MetricsCompression probe.Compression `help:"Compression of the metrics file" enum:"identity,gzip,zstd" default:"identity"`

	Summary     bool `help:"Print a table of probe steps when done"`
	Report      bool `help:"Print the run report in the selected --format when done"`
	FailOnError bool `help:"Exit with non-zero code if the probe did not succeed" env:"UIPROBE_FAIL_ON_ERROR"`

	Preflight        bool          `help:"Check that the target answers HTTP before launching a browser"`
	PreflightTimeout time.Duration `help:"Maximum time alloted for the preflight check" default:"5s"`

	Timeout time.Duration `help:"Maximum duration of a whole run, 0 means no limit" default:"0s"`
}

func (c *RunCmd) Run(cfg *commandContext) error {
	report, _, err := c.probe(cfg.Context, cfg.Logger)
	if err != nil {
		return err
	}

	return c.finish(cfg, report)
}

func (c *RunCmd) runOptions() prob.RunOptions {
	return prob.RunOptions{
		Browser: prob.BrowserOptions{
			Engine:   c.Engine,
			Headless: !c.Headful,
			SlowMo:   c.SlowMo,
		},
		Output: prob.OutputOptions{
			Directory: c.OutputDir,
		},
		Preflight: prob.PreflightOptions{
			Enabled: c.Preflight,
			Timeout: c.PreflightTimeout,
		},
	}
}

func readContent(filename string) ([]byte, error) {
	if filename == "-" {
		content, err := io.ReadAll(os.Stdin)
		if err != nil {
			return content, fmt.Errorf("failed to read content from STDIN: %w", err)
		}
		return content, nil
	}

	return os.ReadFile(filename)
}

// loadManifest reads the probe manifest. Without a file the default onboarding probe is used.
func (c *RunCmd) loadManifest() (prob.Manifest, error) {
	if c.File == "" {
		return prob.Manifest{Kind: onboarding.Kind, Spec: onboarding.NewSpec()}, nil
	}

	content, err := readContent(c.File)
	if err != nil {
		return prob.Manifest{}, fmt.Errorf("failed to read manifest: %w", err)
	}

	// JSON manifests are valid YAML
	var result prob.Manifest
	if err := yaml.Unmarshal(content, &result); err != nil {
		return prob.Manifest{}, fmt.Errorf("failed to parse manifest %q: %w", c.File, err)
	}
	if result.Kind == "" {
		result.Kind = onboarding.Kind
		if result.Spec == nil {
			result.Spec = onboarding.NewSpec()
		}
	}

	if result.Spec == nil {
		instance, err := prob.InstanceOf(result.Kind)
		if err != nil {
			return prob.Manifest{}, err
		}
		result.Spec = instance.Spec
	}

	return result, nil
}

// applyTarget overrides the target of specs that have one.
func (c *RunCmd) applyTarget(m prob.Manifest) string {
	switch spec := m.Spec.(type) {
	case *onboarding.Spec:
		if c.Target != "" {
			spec.Target = c.Target
		}
		return spec.WithDefaults().Target
	case *preflight.Spec:
		if c.Target != "" {
			spec.Target = c.Target
		}
		return spec.Target
	}

	return c.Target
}

func (c *RunCmd) timeout(m prob.Manifest) time.Duration {
	timeout := c.Timeout
	if m.Timeout > 0 && (timeout == 0 || m.Timeout < timeout) {
		timeout = m.Timeout
	}
	return timeout
}

// probe performs a single run with a fresh metrics registry, returned along with the report.
func (c *RunCmd) probe(cmdCtx context.Context, logger log.Logger) (probe.Report, *prometheus.Registry, error) {
	m, err := c.loadManifest()
	if err != nil {
		return probe.Report{}, nil, err
	}
	target := c.applyTarget(m)

	ctx := cmdCtx
	if timeout := c.timeout(m); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(cmdCtx, timeout)
		defer cancel()
	}

	registry := prometheus.NewRegistry()
	options := c.runOptions()

	if c.Preflight && m.Kind != preflight.Kind {
		status, _, err := preflight.RunScript(ctx, preflight.NewSpec(target), options, registry, logger)
		if err != nil || status != prob.RunFinishedSuccess {
			// Informational only, the browser run tells what is actually broken
			level.Warn(logger).Log("msg", "preflight check failed, probing anyway", "target", target, "status", status, "err", err)
		}
	}

	var report probe.Report
	if spec, ok := m.Spec.(*onboarding.Spec); ok {
		report, err = onboarding.Probe(ctx, spec, options, registry, logger)
	} else {
		report, err = runKind(ctx, m, options, registry, logger)
		report.Target = target
	}

	if c.MetricsFile != "" {
		if werr := writeMetrics(c.MetricsFile, registry, c.MetricsCompression); werr != nil {
			level.Warn(logger).Log("msg", "failed to write metrics file", "file", c.MetricsFile, "err", werr)
		}
	}

	return report, registry, err
}

// runKind runs probes of kinds other than onboarding through the prob registry.
func runKind(ctx context.Context, m prob.Manifest, options prob.RunOptions, registry *prometheus.Registry, logger log.Logger) (probe.Report, error) {
	runFn, ok := prob.FindRunFunc(m.Kind)
	if !ok {
		return probe.Report{Status: prob.RunFinishedError}, fmt.Errorf("%w: %q", manifest.ErrUnknownKind, m.Kind)
	}

	runLog := probe.NewRunLog(logger)
	started := time.Now()
	status, artifacts, err := runFn(ctx, m.Spec, options, registry, runLog)

	report := probe.Report{
		Engine:    string(m.Kind),
		Labels:    probe.RuntimeLabels(),
		Status:    status,
		Duration:  time.Since(started),
		Artifacts: append(artifacts, runLog.ToArtifact()),
	}
	if err != nil {
		report.Error = err.Error()
	}

	return report, err
}

func writeMetrics(filename string, registry *prometheus.Registry, compression probe.Compression) error {
	artifact, err := probe.MetricsArtifact(registry, probe.RegistryOptions{Compression: compression})
	if err != nil {
		return err
	}

	return os.WriteFile(filename, artifact.Content, 0644)
}

func (c *RunCmd) finish(cfg *commandContext, report probe.Report) error {
	if c.Summary {
		report.WriteSummary(os.Stdout)
	}
	if c.Report {
		if err := cfg.OutputFormatter(report); err != nil {
			return err
		}
	}

	if c.FailOnError && !report.Succeeded() {
		return fmt.Errorf("%w: %s", errProbeFailed, report.Status)
	}

	return nil
}
