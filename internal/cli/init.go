// Package cli holds the startup steps shared by cmd/famfunds and
// cmd/famfunds-worker.
package cli

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"famfunds/internal/config"
	applog "famfunds/internal/log"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger builds a text logger at the configured level for the named
// binary and sets it as the default.
func SetupLogger(cfg *config.Config, component string) *applog.Logger {
	logger := newLogger(os.Stdout, cfg.LogLevel, component)
	applog.SetDefault(logger)
	return logger
}

func newLogger(w io.Writer, level, component string) *applog.Logger {
	return applog.New(applog.Config{
		Component: component,
		Handler: slog.NewTextHandler(w, &slog.HandlerOptions{
			Level: applog.ParseLevel(level),
		}),
	})
}

// Exit logs err and terminates the process.
func Exit(logger *applog.Logger, msg string, err error) {
	logger.Error(msg, applog.FieldError, err)
	os.Exit(1)
}

// SignalContext is cancelled on SIGINT or SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
