package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"famfunds/internal/backend"
	"famfunds/internal/cache"
	"famfunds/internal/cli"
	"famfunds/internal/config"
	apphttp "famfunds/internal/http"
	applog "famfunds/internal/log"
)

func main() {
	cli.LoadEnvFile()

	cfg := config.Load()
	logger := cli.SetupLogger(cfg, "famfunds")
	if err := cfg.Validate(); err != nil {
		cli.Exit(logger, "Configuration validation failed", err)
	}

	ctx, stop := cli.SignalContext()
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		cli.Exit(logger, "Server stopped with error", err)
	}
	logger.Info("Server stopped gracefully")
}

func run(ctx context.Context, cfg *config.Config, logger *applog.Logger) error {
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", applog.FieldError, err)
		}
	}()

	srv, err := apphttp.NewServer(":"+cfg.Port, res.Engine, apphttp.Options{
		Logger:             logger,
		Ready:              res.Ready,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		IdempotencyTTL:     cfg.IdempotencyTTL,
	})
	if err != nil {
		return err
	}
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	// The dispatcher outlives the HTTP server so decisions made during
	// shutdown still get published.
	dispatchCtx, stopDispatch := context.WithCancel(context.Background())
	dispatched := make(chan error, 1)
	go func() { dispatched <- res.Dispatcher.Run(dispatchCtx) }()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting famfunds server",
			"port", cfg.Port,
			"backend", backendCfg.Type,
			"timezone", cfg.LedgerTimezone)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return cache.NewJanitor(logger, srv.Caches()...).Run(gctx, time.Minute)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	stopDispatch()
	return errors.Join(err, <-dispatched)
}
