package grace

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// ExitOrLog terminates the process if err is set, unless the error is caused by cancellation.
func ExitOrLog(logger log.Logger, err error) {
	if err != nil && !errors.Is(err, context.Canceled) {
		level.Error(logger).Log("msg", "fatal", "err", err)
		os.Exit(1)
	}
}

// SetupSignalHandler returns a context cancelled on the first SIGINT or SIGTERM.
func SetupSignalHandler() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
