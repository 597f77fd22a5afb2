package prob

import (
	"context"
	"fmt"

	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ErrNilRunner = fmt.Errorf("prob run function is nil")
	ErrNoTarget  = fmt.Errorf("empty prob.target value")
)

// RunFn executes a single probe of a registered kind.
// A probe that ran and failed reports RunFinishedFailed with a nil error; the error is reserved for runs that could not be performed at all.
type RunFn func(ctx context.Context, spec any, config RunOptions, registry *prometheus.Registry, logger log.Logger) (RunStatus, []Artifact, error)

type ProbRegistration struct {
	RunFunc RunFn

	// Version of the module providing the kind
	Version string

	// Media type of manifest specs of this kind
	ContentType string

	// Artifact relations a run produces
	Produce []string
}

var kindRunnerMap = map[Kind]ProbRegistration{}

// RegisterProbKind makes kind runnable. Registering a kind again replaces the previous registration.
func RegisterProbKind(kind Kind, proto any, probInfo ProbRegistration) error {
	if probInfo.RunFunc == nil {
		return ErrNilRunner
	}

	if err := RegisterKind(kind, proto); err != nil {
		return err
	}

	kindRunnerMap[kind] = probInfo
	return nil
}

func UnregisterProbKind(kind Kind) error {
	UnregisterKind(kind)
	delete(kindRunnerMap, kind)

	return nil
}

// ListProbs returns a copy of the registrations by kind.
func ListProbs() map[Kind]ProbRegistration {
	result := make(map[Kind]ProbRegistration, len(kindRunnerMap))
	for kind, info := range kindRunnerMap {
		result[kind] = info
	}

	return result
}

func FindRunFunc(kind Kind) (RunFn, bool) {
	result, ok := kindRunnerMap[kind]
	return result.RunFunc, ok
}
