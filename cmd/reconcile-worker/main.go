package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"budgetu/internal/amqp"
	"budgetu/internal/config"
	"budgetu/internal/export"
	"budgetu/internal/export/sheets"
	"budgetu/internal/log"
	"budgetu/internal/services"
	"budgetu/internal/storage"
)

// The reconcile-worker repairs budget drift and mirrors the ledger to a
// spreadsheet. Rebuilds arrive two ways: queued requests from the API
// (CAS exhaustion) and a periodic sweep over every active budget.
func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := log.New(log.Config{Component: log.ComponentWorker})
	log.SetDefault(logger)

	logger.Info("Starting reconcile-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository",
			log.FieldError, err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	// The worker is the end of the repair pipeline, so it never re-enqueues.
	reconciler := services.NewReconciler(repo, repo, nil)

	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err)
			os.Exit(1)
		}
		defer amqpClient.Close()
	} else {
		logger.Info("AMQP disabled - rebuilds run on the periodic sweep only")
	}

	var exportWorker *export.Worker
	if cfg.GoogleSpreadsheetID != "" {
		sheetsClient, err := sheets.NewClient(context.Background(), sheets.Config{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			SheetName:       cfg.GoogleSheetName,
			CredentialsJSON: cfg.GoogleCredentialsJSON,
			CredentialsFile: cfg.GoogleCredentialsFile,
		})
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
			os.Exit(1)
		}
		exportWorker = export.NewWorker(repo, sheetsClient, cfg.ExportBatchSize, cfg.ExportInterval)
		logger.Info("Google Sheets export enabled",
			"spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		logger.Info("Google Sheets export disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	if amqpClient != nil {
		g.Go(func() error {
			err := amqpClient.ConsumeRebuildRequests(ctx, func(msg *amqp.RebuildRequest) error {
				_, err := reconciler.Rebuild(ctx, msg.UserID, msg.BudgetID)
				return err
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	g.Go(func() error {
		return runRebuildSweep(ctx, logger, repo, reconciler, cfg.RebuildInterval)
	})

	if exportWorker != nil {
		g.Go(func() error {
			err := exportWorker.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	logger.Info("Reconcile-worker running",
		"rebuild_interval", cfg.RebuildInterval,
		"sqlite_db", cfg.SQLiteDBPath)

	if err := g.Wait(); err != nil {
		logger.Error("Worker failed", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Reconcile-worker shutdown complete")
}

// runRebuildSweep recomputes every active budget on a fixed interval. The
// sweep catches drift the queue missed (lost messages, partial failures).
func runRebuildSweep(ctx context.Context, logger *log.Logger, budgets *storage.SQLiteRepository, reconciler *services.Reconciler, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			active, err := budgets.ListActiveBudgets(ctx, now)
			if err != nil {
				logger.ErrorContext(ctx, "Rebuild sweep failed to list budgets",
					log.FieldError, err)
				continue
			}
			rebuilt := 0
			for _, b := range active {
				if _, err := reconciler.Rebuild(ctx, b.UserID, b.ID); err != nil {
					logger.ErrorContext(ctx, "Rebuild sweep failed for budget",
						log.FieldError, err,
						log.FieldUserID, b.UserID,
						log.FieldBudgetID, b.ID)
					continue
				}
				rebuilt++
			}
			logger.InfoContext(ctx, "Rebuild sweep complete",
				"budgets", len(active), "rebuilt", rebuilt)
		}
	}
}
