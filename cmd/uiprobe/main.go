package main

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"

	"github.com/alecthomas/kong"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/joho/godotenv"
	wyrdgrace "github.com/sre-norns/wyrd/pkg/grace"

	"github.com/sre-norns/uiprobe/pkg/grace"

	_ "github.com/sre-norns/uiprobe/pkg/engine/cdpengine"
	_ "github.com/sre-norns/uiprobe/pkg/engine/pwengine"
	_ "github.com/sre-norns/uiprobe/pkg/engine/rodengine"
	_ "github.com/sre-norns/uiprobe/pkg/probers/onboarding"
	_ "github.com/sre-norns/uiprobe/pkg/probers/preflight"
)

type commandContext struct {
	OutputFormatter formatter
	Logger          log.Logger
	Context         context.Context
}

type outputFormat string

func (f outputFormat) AfterApply(cfg *commandContext) (err error) {
	cfg.OutputFormatter, err = getFormatter(f)
	return err
}

type logLevel string

func (l logLevel) AfterApply(cfg *commandContext) error {
	cfg.Logger = newLogger(os.Stdout, l)
	return nil
}

var appCli struct {
	LogLevel logLevel     `enum:"debug,info,warn,error" help:"Minimal level of log records to print" default:"info" env:"UIPROBE_LOG_LEVEL"`
	Format   outputFormat `enum:"yaml,yml,json" help:"Report output format" default:"yml" env:"UIPROBE_FORMAT"`

	Run     RunCmd     `cmd:"" default:"withargs" help:"Run the onboarding probe once"`
	Watch   WatchCmd   `cmd:"" help:"Run the probe repeatedly on a cron schedule"`
	Engines EnginesCmd `cmd:"" help:"List browser engines available to drive the probe"`
}

// loadEnv reads .env style files into the environment. Missing files are not an error.
func loadEnv(files ...string) error {
	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

func newLogger(w io.Writer, l logLevel) log.Logger {
	logger := log.NewLogfmtLogger(log.NewSyncWriter(w))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC)

	var allow level.Option
	switch l {
	case "debug":
		allow = level.AllowDebug()
	case "warn":
		allow = level.AllowWarn()
	case "error":
		allow = level.AllowError()
	default:
		allow = level.AllowInfo()
	}

	return level.NewFilter(logger, allow)
}

func main() {
	wyrdgrace.SuccessRequired(loadEnv(".env"), "failed to load .env file")

	mainContext, stop := grace.SetupSignalHandler()
	defer stop()

	cfg := &commandContext{
		Context:         mainContext,
		OutputFormatter: yamlFormatter,
		Logger:          newLogger(os.Stdout, "info"),
	}
	appCtx := kong.Parse(&appCli,
		kong.Name("uiprobe"),
		kong.Description("Browser smoke probe of a web application onboarding flow"),
		kong.Bind(cfg),
	)

	grace.ExitOrLog(cfg.Logger, appCtx.Run(cfg))
}
