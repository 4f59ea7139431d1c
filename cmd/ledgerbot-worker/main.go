package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"ledgerbot/internal/amqp"
	"ledgerbot/internal/config"
	"ledgerbot/internal/log"
	"ledgerbot/internal/sheets"
	gsheet "ledgerbot/internal/sheets/google"
	mem "ledgerbot/internal/sheets/memory"
	"ledgerbot/internal/storage"
	"ledgerbot/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := log.New(log.Config{Component: log.ComponentWorker})
	log.SetDefault(logger)

	logger.Info("Starting ledgerbot-worker")

	cfg := config.Load()
	if err := cfg.ValidateWorker(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err.Error())
		os.Exit(1)
	}

	repo, err := storage.NewRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize storage", log.FieldError, err.Error(), "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Without a spreadsheet the worker still drains the queue, appending to
	// an in-process sink. Useful for local development against a real broker.
	var appender sheets.ExpenseAppender
	if cfg.GoogleSpreadsheetID != "" {
		client, err := gsheet.New(ctx, cfg.GoogleSpreadsheetID, cfg.GoogleSheetName)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", log.FieldError, err.Error())
			os.Exit(1)
		}
		appender = client
		logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		appender = mem.New()
		logger.Warn("No GOOGLE_SPREADSHEET_ID provided - exporting to in-memory sink")
	}

	exportWorker := worker.NewExportWorker(repo, appender, cfg.ExportBatchSize)

	// Recover anything missed while the worker was down.
	if err := exportWorker.StartupCheck(ctx); err != nil && ctx.Err() == nil {
		logger.Error("Startup export check failed", log.FieldError, err.Error())
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return amqp.ConsumeWithReconnect(ctx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue,
			func(msg *amqp.ExpenseExportMessage) error {
				return exportWorker.HandleExportMessage(ctx, msg)
			})
	})

	// Periodic sweep for messages the broker lost.
	g.Go(func() error {
		ticker := time.NewTicker(cfg.ExportInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if err := exportWorker.ProcessPendingExpenses(ctx); err != nil && ctx.Err() == nil {
					logger.Error("Periodic export sweep failed", log.FieldError, err.Error())
				}
			}
		}
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Error("Worker stopped with error", log.FieldError, err.Error())
		os.Exit(1)
	}

	logger.Info("Shutdown complete")
}
