package probe

import (
	"bytes"
	"sync"

	"github.com/go-kit/log"
	"github.com/sre-norns/uiprobe/pkg/prob"
)

const LogRelType = "log"

// RunLog is a log.Logger that forwards records to the console logger and keeps a logfmt copy
// which is shipped as the run's log artifact.
type RunLog struct {
	mu      sync.Mutex
	content bytes.Buffer
	capture log.Logger
	next    log.Logger
}

var _ log.Logger = (*RunLog)(nil)

func NewRunLog(next log.Logger) *RunLog {
	if next == nil {
		next = log.NewNopLogger()
	}

	l := &RunLog{next: next}
	l.capture = log.NewLogfmtLogger(&l.content)
	return l
}

func (l *RunLog) Log(keyvals ...any) error {
	l.mu.Lock()
	_ = l.capture.Log(keyvals...)
	l.mu.Unlock()

	return l.next.Log(keyvals...)
}

func (l *RunLog) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.content.String()
}

func (l *RunLog) ToArtifact() prob.Artifact {
	return prob.Artifact{
		Rel:      LogRelType,
		MimeType: "text/plain",
		Content:  []byte(l.String()),
	}
}
