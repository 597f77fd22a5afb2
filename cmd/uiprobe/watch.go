package main

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sre-norns/uiprobe/pkg/probe"
)

type WatchCmd struct {
	RunCmd `embed:""`

	Schedule string `help:"Cron expression of when to run the probe" default:"*/5 * * * *" env:"UIPROBE_SCHEDULE"`
	MaxRuns  int    `help:"Stop after this many runs, 0 means run until interrupted" default:"0"`
	Listen   string `help:"Address to serve the last run's /metrics and /report on, e.g. ':9115'" env:"UIPROBE_LISTEN"`
}

func (c *WatchCmd) Validate() error {
	if !gronx.New().IsValid(c.Schedule) {
		return fmt.Errorf("invalid cron schedule %q", c.Schedule)
	}
	return nil
}

// Run probes on every tick of the schedule. A run that overlaps the next tick delays it: runs never overlap.
func (c *WatchCmd) Run(cfg *commandContext) error {
	logger := log.With(cfg.Logger, "schedule", c.Schedule)

	last := &lastRun{}
	if c.Listen != "" {
		stop := serveStatus(c.Listen, last, logger)
		defer stop()
	}

	for runs := 0; c.MaxRuns == 0 || runs < c.MaxRuns; runs++ {
		next, err := gronx.NextTick(c.Schedule, false)
		if err != nil {
			return err
		}

		level.Info(logger).Log("msg", "next run scheduled", "at", next.Format(time.RFC3339))
		if err := sleepUntil(cfg.Context, next); err != nil {
			level.Info(logger).Log("msg", "watch stopped", "runs", runs)
			return nil
		}

		report, registry, err := c.probe(cfg.Context, cfg.Logger)
		if registry != nil {
			c.record(last, report, registry, logger)
		}
		if err != nil {
			level.Error(logger).Log("msg", "probe could not run", "err", err)
			continue
		}
		if err := c.finish(cfg, report); err != nil {
			level.Warn(logger).Log("msg", "probe did not succeed", "status", report.Status, "err", err)
		}
	}

	return nil
}

// record publishes a finished run for the status server.
func (c *WatchCmd) record(last *lastRun, report probe.Report, registry *prometheus.Registry, logger log.Logger) {
	metrics, err := probe.MetricsArtifact(registry, probe.RegistryOptions{})
	if err != nil {
		level.Warn(logger).Log("msg", "failed to export run metrics", "err", err)
	}

	last.store(report, metrics)
}

func sleepUntil(ctx context.Context, t time.Time) error {
	timer := time.NewTimer(time.Until(t))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
