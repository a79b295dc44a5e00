// Package app wires the configuration, the model ensemble, the dispatcher
// and the optional HTTP surface into the hiersurr command.
package app

import (
	"context"
	"errors"
	"flag"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/agbru/hiersurr/internal/cli"
	"github.com/agbru/hiersurr/internal/config"
	apperrors "github.com/agbru/hiersurr/internal/errors"
	"github.com/agbru/hiersurr/internal/logging"
	"github.com/agbru/hiersurr/internal/ui"
)

// Application represents the hiersurr application instance.
type Application struct {
	Config    config.AppConfig
	ErrWriter io.Writer
}

// New creates a new Application instance by parsing command-line arguments.
// args[0] is the program name.
func New(args []string, errWriter io.Writer) (*Application, error) {
	programName := "hiersurr"
	var cmdArgs []string
	if len(args) > 0 {
		programName = args[0]
		cmdArgs = args[1:]
	}
	cfg, err := config.ParseConfig(programName, cmdArgs, errWriter)
	if err != nil {
		return nil, err
	}
	return &Application{Config: cfg, ErrWriter: errWriter}, nil
}

// Run executes a study, or a single evaluation when no samples are
// configured, and returns the process exit code.
func (a *Application) Run(ctx context.Context, out io.Writer) int {
	ui.InitTheme(a.Config.NoColor)
	logger := logging.NewConsoleLogger(a.ErrWriter, "hiersurr", a.Config.LogLevel)

	ctx, cancelTimeout := context.WithTimeout(ctx, a.Config.Timeout)
	defer cancelTimeout()
	ctx, stopSignals := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	start := time.Now()
	if err := a.run(ctx, out, logger); err != nil {
		logger.Error("run failed", err)
		return cli.CLIResultPresenter{}.HandleError(err, time.Since(start), a.ErrWriter)
	}
	return apperrors.ExitSuccess
}

// IsHelpError checks if the error is a help flag error (--help was used).
func IsHelpError(err error) bool {
	return errors.Is(err, flag.ErrHelp)
}
