// Package cli wires the engine's components into the reminder-engine binary:
// the long-running serve loop, a one-shot run-once scan, and a status view
// over persisted run states.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/nioasoft/reminder-engine/internal/config"
	"github.com/nioasoft/reminder-engine/internal/observability"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Version is set at build time via ldflags.
var Version = "dev"

const (
	exitOK             = 0
	exitPartialFailure = 1
	exitStartupFailure = 2
)

// exitError carries a process exit code through cobra's error path.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func startupError(err error) error {
	return &exitError{code: exitStartupFailure, err: err}
}

func partialFailureError(err error) error {
	return &exitError{code: exitPartialFailure, err: err}
}

var rootCmd = &cobra.Command{
	Use:          "reminder-engine",
	Short:        "Multi-tenant reminder dispatch engine",
	Long:         "reminder-engine scans tenant payment obligations on a schedule, evaluates first-match-wins reminder rules, and dispatches rate-limited reminders with an append-only audit trail.",
	Version:      Version,
	SilenceUsage: true,
}

// Execute runs the CLI and maps errors to process exit codes.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.code)
		}
		os.Exit(exitPartialFailure)
	}
	os.Exit(exitOK)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, startupError(fmt.Errorf("load config: %w", err))
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, startupError(fmt.Errorf("init logger: %w", err))
	}
	return logger, nil
}
