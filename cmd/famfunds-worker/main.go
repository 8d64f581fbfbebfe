package main

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"famfunds/internal/amqp"
	"famfunds/internal/backend"
	"famfunds/internal/cache"
	"famfunds/internal/cli"
	"famfunds/internal/config"
	applog "famfunds/internal/log"
	"famfunds/internal/sheets"
	gsheet "famfunds/internal/sheets/google"
	"famfunds/internal/sheets/memory"
	"famfunds/internal/storage"
	"famfunds/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	cfg := config.Load()
	logger := cli.SetupLogger(cfg, "famfunds-worker")
	if err := cfg.ValidateWorker(); err != nil {
		cli.Exit(logger, "Configuration validation failed", err)
	}

	ctx, stop := cli.SignalContext()
	defer stop()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		cli.Exit(logger, "Worker stopped with error", err)
	}
	logger.Info("Worker shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *applog.Logger) error {
	loc := cfg.Location()

	var exporter sheets.Exporter
	if cfg.GoogleSpreadsheetID != "" {
		client, err := gsheet.New(ctx, cfg.GoogleSpreadsheetID, cfg.GoogleSheetName, loc)
		if err != nil {
			return err
		}
		exporter = client
		logger.Info("Google Sheets exporter initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		exporter = memory.New(loc)
		logger.Info("Google Sheets disabled - exporting to memory")
	}

	w := worker.NewExportWorker(exporter, logger, loc)
	if err := w.Preload(ctx, time.Now().In(loc).Year()); err != nil {
		logger.Warn("Could not preload exported ids", applog.FieldError, err)
	}

	// Catch up on anything decided while the worker was down.
	if backend.BackendType(cfg.DataBackend) == backend.SQLiteBackend {
		repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
		if err != nil {
			return err
		}
		n, err := w.Backfill(ctx, repo)
		_ = repo.Close()
		if err != nil {
			logger.Error("Startup backfill failed", applog.FieldError, err)
		} else {
			logger.Info("Startup backfill complete", "exported", n)
		}
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		return err
	}
	defer client.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return client.Consume(gctx, func(ctx context.Context, msg *amqp.EventMessage) error {
			return w.HandleEvent(ctx, msg.Event())
		})
	})
	g.Go(func() error {
		return cache.NewJanitor(logger, w.Seen()).Run(gctx, time.Hour)
	})
	return g.Wait()
}
