// Package cli holds the process bootstrap shared by the fynace binaries.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"fynace/internal/config"
	"fynace/internal/log"
)

// SetupLogger builds the application logger at the given level and installs it
// as the default. An unknown level falls back to info with a warning.
func SetupLogger(level string) *log.Logger {
	cfg := log.DefaultConfig()
	parsed, err := log.ParseLevel(level)
	cfg.Level = parsed
	logger := log.New(cfg)
	log.SetDefault(logger)
	if err != nil {
		logger.Warn("Unknown log level, using info", "level", level)
	}
	return logger
}

// LoadEnvFile reads .env (or the given files) into the environment without
// overriding variables that are already set. It reports whether anything was
// loaded; a missing file is normal outside local development.
func LoadEnvFile(files ...string) bool {
	return godotenv.Load(files...) == nil
}

// LoadAndValidateConfig reads the environment and exits the process when the
// configuration is unusable. The chosen backends are logged on success.
func LoadAndValidateConfig(logger *log.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err, log.FieldOperation, log.OpStartup)
		os.Exit(1)
	}
	logger.Info("Configuration loaded",
		"ledger_backend", cfg.LedgerBackend,
		"profile_backend", cfg.ProfileBackend,
		"payments", cfg.PaymentsEnabled(),
		"notifications", cfg.AMQPURL != "")
	return cfg
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// The returned context is cancelled on SIGINT or SIGTERM, after cleanup has
// run or timeout has elapsed, whichever comes first. done is closed afterwards.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func(context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String(), log.FieldOperation, log.OpShutdown)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		finished := make(chan struct{})
		go func() {
			if cleanup != nil {
				cleanup(shutdownCtx)
			}
			close(finished)
		}()

		select {
		case <-finished:
			logger.Info("Shutdown complete")
		case <-shutdownCtx.Done():
			logger.Warn("Shutdown timeout reached")
		}
		cancel()
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled and cleanup is over.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
