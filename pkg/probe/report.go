package probe

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/sre-norns/uiprobe/pkg/prob"
	"github.com/sre-norns/wyrd/pkg/manifest"
)

// Report is the outcome of a single probe run.
type Report struct {
	Target   string          `json:"target" yaml:"target"`
	Engine   string          `json:"engine" yaml:"engine"`
	Labels   manifest.Labels `json:"labels,omitempty" yaml:"labels,omitempty"`
	Status   prob.RunStatus  `json:"status" yaml:"status"`
	Error    string          `json:"error,omitempty" yaml:"error,omitempty"`
	Start    StartState      `json:"start,omitempty" yaml:"start,omitempty"`
	Timer    Presence        `json:"timer,omitempty" yaml:"timer,omitempty"`
	Steps    []StepRecord    `json:"steps" yaml:"steps"`
	Duration time.Duration   `json:"duration" yaml:"duration"`

	Artifacts []prob.Artifact `json:"-" yaml:"-"`
}

// Step returns the record of the named step.
func (r Report) Step(name string) (StepRecord, bool) {
	for _, s := range r.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return StepRecord{}, false
}

// Screenshots lists names of screenshots written during the run, in order.
func (r Report) Screenshots() []string {
	var names []string
	for _, a := range r.Artifacts {
		if a.Rel == ScreenshotRelType {
			names = append(names, a.Name)
		}
	}
	return names
}

func (r Report) Succeeded() bool {
	return r.Status == prob.RunFinishedSuccess
}

// WriteSummary renders the report as a table.
func (r Report) WriteSummary(w io.Writer) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(fmt.Sprintf("%s via %s: %s", r.Target, r.Engine, r.Status))
	t.AppendHeader(table.Row{"#", "Step", "Outcome", "Duration", "Note"})
	for i, s := range r.Steps {
		note := s.Note
		if s.Error != "" {
			if note != "" {
				note += ": "
			}
			note += s.Error
		}
		t.AppendRow(table.Row{i + 1, s.Name, s.Outcome, s.Duration.Round(time.Millisecond), note})
	}
	t.AppendFooter(table.Row{"", "", "total", r.Duration.Round(time.Millisecond), fmt.Sprintf("screenshots: %v", r.Screenshots())})
	t.SetStyle(table.StyleLight)
	t.Render()
}
