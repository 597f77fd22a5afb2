package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sre-norns/wyrd/pkg/manifest"
	"github.com/stretchr/testify/require"

	"github.com/sre-norns/uiprobe/pkg/engine"
	"github.com/sre-norns/uiprobe/pkg/engine/enginetest"
	"github.com/sre-norns/uiprobe/pkg/prob"
	"github.com/sre-norns/uiprobe/pkg/probe"
	"github.com/sre-norns/uiprobe/pkg/probers/onboarding"
	"github.com/sre-norns/uiprobe/pkg/probers/preflight"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	name := filepath.Join(t.TempDir(), "probe.yaml")
	require.NoError(t, os.WriteFile(name, []byte(content), 0644))
	return name
}

func TestLoadManifest(t *testing.T) {
	testCases := map[string]struct {
		given string

		expectKind   prob.Kind
		expectTarget string
		expectErr    error
	}{
		"no-file": {
			expectKind:   onboarding.Kind,
			expectTarget: probe.DefaultTarget,
		},
		"onboarding": {
			given: `
kind: onboarding
spec:
  target: http://app.local:3000
`,
			expectKind:   onboarding.Kind,
			expectTarget: "http://app.local:3000",
		},
		"kind-less": {
			given:        `timeout: 30s`,
			expectKind:   onboarding.Kind,
			expectTarget: probe.DefaultTarget,
		},
		"json": {
			given:        `{"kind": "onboarding", "spec": {"target": "http://json.local"}}`,
			expectKind:   onboarding.Kind,
			expectTarget: "http://json.local",
		},
		"unknown-kind": {
			given:     `kind: telnet`,
			expectErr: manifest.ErrUnknownKind,
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			cmd := RunCmd{}
			if tc.given != "" {
				cmd.File = writeFile(t, tc.given)
			}

			got, err := cmd.loadManifest()
			if tc.expectErr != nil {
				require.ErrorIs(t, err, tc.expectErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.expectKind, got.Kind)
			require.Equal(t, tc.expectTarget, cmd.applyTarget(got))
		})
	}
}

func TestApplyTarget(t *testing.T) {
	cmd := RunCmd{Target: "http://override.local"}

	spec := onboarding.NewSpec()
	require.Equal(t, "http://override.local", cmd.applyTarget(prob.Manifest{Kind: onboarding.Kind, Spec: spec}))
	require.Equal(t, "http://override.local", spec.Target)

	pre := preflight.NewSpec("http://other")
	require.Equal(t, "http://override.local", cmd.applyTarget(prob.Manifest{Kind: preflight.Kind, Spec: pre}))
}

func TestTimeout(t *testing.T) {
	testCases := map[string]struct {
		flag     time.Duration
		manifest time.Duration
		expect   time.Duration
	}{
		"none":          {},
		"flag-only":     {flag: time.Minute, expect: time.Minute},
		"manifest-only": {manifest: time.Second, expect: time.Second},
		"shorter-wins":  {flag: time.Minute, manifest: 2 * time.Minute, expect: time.Minute},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			cmd := RunCmd{Timeout: tc.flag}
			require.Equal(t, tc.expect, cmd.timeout(prob.Manifest{Timeout: tc.manifest}))
		})
	}
}

func TestRunCmd(t *testing.T) {
	testCases := map[string]struct {
		given       func(fake *enginetest.Engine)
		failOnError bool

		expectErr error
	}{
		"success": {},
		"absorbed-failure": {
			given: func(fake *enginetest.Engine) {
				q := engine.CSS(".test-interface-theme")
				fake.WaitErrs[q.String()] = enginetest.Timeout(q)
			},
		},
		"fail-on-error": {
			given: func(fake *enginetest.Engine) {
				q := engine.CSS(".test-interface-theme")
				fake.WaitErrs[q.String()] = enginetest.Timeout(q)
			},
			failOnError: true,
			expectErr:   errProbeFailed,
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			fake := enginetest.New()
			require.NoError(t, engine.Register(enginetest.Name, engine.Registration{New: fake.Factory()}))
			t.Cleanup(func() { engine.Unregister(enginetest.Name) })
			if tc.given != nil {
				tc.given(fake)
			}

			dir := t.TempDir()
			cmd := RunCmd{
				Engine:      enginetest.Name,
				OutputDir:   dir,
				MetricsFile: filepath.Join(dir, "metrics.prom"),
				FailOnError: tc.failOnError,
			}
			err := cmd.Run(&commandContext{
				Context:         context.Background(),
				Logger:          log.NewNopLogger(),
				OutputFormatter: yamlFormatter,
			})
			if tc.expectErr != nil {
				require.ErrorIs(t, err, tc.expectErr)
			} else {
				require.NoError(t, err)
			}

			require.Equal(t, 1, fake.CloseCount())
			metrics, err := os.ReadFile(cmd.MetricsFile)
			require.NoError(t, err)
			require.Contains(t, string(metrics), "uiprobe_success")
		})
	}
}

func TestRunKind_Unknown(t *testing.T) {
	report, err := runKind(context.Background(), prob.Manifest{Kind: "telnet"}, prob.RunOptions{}, prometheus.NewRegistry(), log.NewNopLogger())
	require.ErrorIs(t, err, manifest.ErrUnknownKind)
	require.Equal(t, prob.RunFinishedError, report.Status)
}

func TestGetFormatter(t *testing.T) {
	for _, name := range []outputFormat{"yaml", "yml", "json"} {
		f, err := getFormatter(name)
		require.NoError(t, err)
		require.NotNil(t, f)
	}

	_, err := getFormatter("xml")
	require.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "warn")

	level.Info(logger).Log("msg", "hidden")
	level.Warn(logger).Log("msg", "shown")

	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), "msg=shown")
}

func TestWatchCmd_Validate(t *testing.T) {
	require.NoError(t, (&WatchCmd{Schedule: "*/5 * * * *"}).Validate())
	require.Error(t, (&WatchCmd{Schedule: "every five minutes"}).Validate())
}

func TestSleepUntil_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, sleepUntil(ctx, time.Now().Add(time.Hour)), context.Canceled)
}

func TestLoadEnv(t *testing.T) {
	name := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(name, []byte("UIPROBE_TEST_VALUE=42\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("UIPROBE_TEST_VALUE") })

	require.NoError(t, loadEnv(name, filepath.Join(t.TempDir(), "missing.env")))
	require.Equal(t, "42", os.Getenv("UIPROBE_TEST_VALUE"))
}
