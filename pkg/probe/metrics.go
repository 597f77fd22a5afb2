package probe

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/sre-norns/uiprobe/pkg/prob"
)

const MetricsRelType = "metrics"

type Compression string

const (
	Identity Compression = "identity"
	Gzip     Compression = "gzip"
	Zstd     Compression = "zstd"
)

var compressionFormats = []Compression{Identity, Gzip, Zstd}

type RegistryOptions struct {
	EnableOpenMetrics bool
	Compression       Compression
}

type runMetrics struct {
	stepDuration *prometheus.GaugeVec
	stepOutcome  *prometheus.GaugeVec
	screenshots  *prometheus.CounterVec
	success      prometheus.Gauge
	duration     prometheus.Gauge
}

func newRunMetrics(registry *prometheus.Registry) (*runMetrics, error) {
	m := &runMetrics{
		stepDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "uiprobe_step_duration_seconds",
			Help: "Time spent in each step of the probe",
		}, []string{"step"}),
		stepOutcome: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "uiprobe_step_outcome",
			Help: "Outcome of each probe step, set to 1 for the outcome that happened",
		}, []string{"step", "outcome"}),
		screenshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "uiprobe_screenshots_total",
			Help: "Screenshots written by the probe",
		}, []string{"event"}),
		success: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "uiprobe_success",
			Help: "Whether the probe walked through the whole flow",
		}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "uiprobe_duration_seconds",
			Help: "Wall time of the probe run",
		}),
	}

	for _, c := range []prometheus.Collector{m.stepDuration, m.stepOutcome, m.screenshots, m.success, m.duration} {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register probe metrics: %w", err)
		}
	}

	return m, nil
}

func (m *runMetrics) observeStep(name string, outcome Outcome, took time.Duration) {
	m.stepDuration.WithLabelValues(name).Set(took.Seconds())
	m.stepOutcome.WithLabelValues(name, string(outcome)).Set(1)
}

func encodingWriter(w io.Writer, compression Compression) (_ io.Writer, closeWriter func() error, _ error) {
	switch compression {
	case "", Identity:
		return w, func() error { return nil }, nil
	case Gzip:
		gz := gzip.NewWriter(w)
		return gz, gz.Close, nil
	case Zstd:
		z, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedFastest), zstd.WithEncoderConcurrency(1))
		if err != nil {
			return nil, nil, err
		}
		return z, z.Close, nil
	default:
		return nil, nil, fmt.Errorf("content compression format not recognized: %s. Valid formats are: %s", compression, compressionFormats)
	}
}

// MetricsArtifact gathers everything in registry into a text exposition artifact.
func MetricsArtifact(registry *prometheus.Registry, opts RegistryOptions) (prob.Artifact, error) {
	gatherer := prometheus.ToTransactionalGatherer(registry)
	mfs, done, err := gatherer.Gather()
	if err != nil {
		return prob.Artifact{}, err
	}
	defer done()

	headers := http.Header{}
	var contentType expfmt.Format
	if opts.EnableOpenMetrics {
		headers.Set("Accept", "application/openmetrics-text; version=1.0.0")
		contentType = expfmt.NegotiateIncludingOpenMetrics(headers)
	} else {
		contentType = expfmt.Negotiate(headers)
	}

	var buf bytes.Buffer
	w, closeWriter, err := encodingWriter(&buf, opts.Compression)
	if err != nil {
		return prob.Artifact{}, err
	}

	enc := expfmt.NewEncoder(w, contentType)
	for _, mf := range mfs {
		if err := enc.Encode(mf); err != nil {
			return prob.Artifact{}, fmt.Errorf("failed to encode metrics family %q: %w", mf.GetName(), err)
		}
	}

	if closer, ok := enc.(expfmt.Closer); ok {
		if err := closer.Close(); err != nil {
			return prob.Artifact{}, err
		}
	}
	if err := closeWriter(); err != nil {
		return prob.Artifact{}, err
	}

	mimeType := string(contentType)
	if opts.Compression != "" && opts.Compression != Identity {
		mimeType = "application/" + string(opts.Compression)
	}

	return prob.Artifact{
		Rel:      MetricsRelType,
		MimeType: mimeType,
		Content:  buf.Bytes(),
	}, nil
}
