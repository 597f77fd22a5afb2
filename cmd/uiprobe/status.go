package main

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/sre-norns/uiprobe/pkg/prob"
	"github.com/sre-norns/uiprobe/pkg/probe"
)

var ErrUnsupportedMediaType = errors.New("unsupported media type")

// lastRun keeps the outcome of the most recent finished run.
type lastRun struct {
	mu      sync.RWMutex
	done    bool
	report  probe.Report
	metrics prob.Artifact
}

func (l *lastRun) store(report probe.Report, metrics prob.Artifact) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.done = true
	l.report = report
	l.metrics = metrics
}

func (l *lastRun) load() (probe.Report, prob.Artifact, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.report, l.metrics, l.done
}

func filterFlags(content string) string {
	for i, char := range content {
		if char == ' ' || char == ';' {
			return content[:i]
		}
	}
	return content
}

type responseHandler func(code int, obj any)

func replyWithAcceptedType(c *gin.Context) (responseHandler, error) {
	accepts := c.Request.Header.Values("Accept")
	if len(accepts) == 0 {
		return c.JSON, nil
	}

	for _, accept := range accepts {
		switch filterFlags(accept) {
		case "", "*/*", gin.MIMEJSON:
			return c.JSON, nil
		case gin.MIMEYAML, "text/yaml", "application/yaml", "text/x-yaml":
			return c.YAML, nil
		}
	}

	return nil, ErrUnsupportedMediaType
}

func notReady(ctx *gin.Context) {
	ctx.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "no run has finished yet"})
}

// newStatusRouter serves the last run: its metrics for scraping and its report.
func newStatusRouter(last *lastRun) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/metrics", func(ctx *gin.Context) {
		_, metrics, ok := last.load()
		if !ok {
			notReady(ctx)
			return
		}

		ctx.Data(http.StatusOK, metrics.MimeType, metrics.Content)
	})

	router.GET("/report", func(ctx *gin.Context) {
		reply, err := replyWithAcceptedType(ctx)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusNotAcceptable, gin.H{"error": err.Error()})
			return
		}

		report, _, ok := last.load()
		if !ok {
			notReady(ctx)
			return
		}

		reply(http.StatusOK, report)
	})

	return router
}

// serveStatus runs the status server until the returned stop function is called.
func serveStatus(addr string, last *lastRun, logger log.Logger) (stop func()) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           newStatusRouter(last),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		level.Info(logger).Log("msg", "serving last run status", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			level.Error(logger).Log("msg", "status server failed", "addr", addr, "err", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			level.Warn(logger).Log("msg", "status server did not shut down cleanly", "err", err)
		}
	}
}
