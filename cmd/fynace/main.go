package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"fynace/internal/auth"
	"fynace/internal/backend"
	"fynace/internal/cli"
	apphttp "fynace/internal/http"
	"fynace/internal/log"
	"fynace/internal/services"
)

const shutdownTimeout = 30 * time.Second

func main() {
	loadedEnv := cli.LoadEnvFile()

	// Bootstrap logger until the configured level is known.
	cfg := cli.LoadAndValidateConfig(log.New(log.DefaultConfig()))
	logger := cli.SetupLogger(cfg.LogLevel)
	if loadedEnv {
		logger.Debug("Loaded environment from .env")
	}

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}

	// The Sheets token source keeps this context for refreshes, so it must
	// outlive startup.
	res, err := backend.NewFactory(logger).CreateBackends(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backends", "error", err,
			"ledger_backend", cfg.LedgerBackend,
			"profile_backend", cfg.ProfileBackend)
		os.Exit(1)
	}

	finance := services.NewFinance(res.Ledgers, res.Profiles, res.Gateway, res.Publisher)
	srv := apphttp.NewServer(":"+cfg.Port, finance, auth.NewVerifier(cfg.JWTSecret, cfg.JWTAudience), apphttp.Options{
		Logger:               logger,
		RateLimitPerMinute:   cfg.RateLimitPerMinute,
		PaymentsEnabled:      res.Gateway != nil,
		NotificationsEnabled: res.Publisher != nil,
	})

	ctx, done := cli.GracefulShutdown(logger, shutdownTimeout, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", "error", err)
		}
	})

	go func() {
		logger.Info("Starting fynace server",
			"port", cfg.Port,
			"ledger_backend", cfg.LedgerBackend,
			"profile_backend", cfg.ProfileBackend,
			"payments", res.Gateway != nil,
			"notifications", res.Publisher != nil,
			log.FieldOperation, log.OpStartup)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", "error", err, "port", cfg.Port)
			os.Exit(1)
		}
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
