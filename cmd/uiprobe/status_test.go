package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/sre-norns/uiprobe/pkg/prob"
	"github.com/sre-norns/uiprobe/pkg/probe"
)

func get(t *testing.T, router http.Handler, path, accept string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	return rec
}

func TestStatusRouter_BeforeFirstRun(t *testing.T) {
	router := newStatusRouter(&lastRun{})

	for _, path := range []string{"/metrics", "/report"} {
		require.Equal(t, http.StatusServiceUnavailable, get(t, router, path, "").Code, path)
	}
}

func TestStatusRouter_LastRun(t *testing.T) {
	registry := prometheus.NewRegistry()
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "uiprobe_success", Help: "test"})
	registry.MustRegister(gauge)
	gauge.Set(1)

	last := &lastRun{}
	cmd := &WatchCmd{}
	cmd.record(last, probe.Report{Target: "http://localhost:3000", Engine: "fake", Status: prob.RunFinishedSuccess}, registry, log.NewNopLogger())

	router := newStatusRouter(last)

	metrics := get(t, router, "/metrics", "")
	require.Equal(t, http.StatusOK, metrics.Code)
	require.Contains(t, metrics.Body.String(), "uiprobe_success 1")
	require.Contains(t, metrics.Header().Get("Content-Type"), "text/plain")

	testCases := map[string]struct {
		accept string
		decode func([]byte, any) error
	}{
		"default": {decode: json.Unmarshal},
		"json":    {accept: "application/json", decode: json.Unmarshal},
		"yaml":    {accept: "application/x-yaml", decode: yaml.Unmarshal},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			rec := get(t, router, "/report", tc.accept)
			require.Equal(t, http.StatusOK, rec.Code)

			var got probe.Report
			require.NoError(t, tc.decode(rec.Body.Bytes(), &got))
			require.Equal(t, prob.RunFinishedSuccess, got.Status)
			require.Equal(t, "http://localhost:3000", got.Target)
		})
	}

	require.Equal(t, http.StatusNotAcceptable, get(t, router, "/report", "application/xml").Code)
}
