package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"budgetu/internal/config"
	"budgetu/internal/log"
	"budgetu/internal/services"
	"budgetu/internal/storage"
)

// The recurring-worker rolls expired recurring budgets into their next
// period so a monthly budget keeps existing without the user recreating
// it.
func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := log.New(log.Config{Component: log.ComponentWorker})
	log.SetDefault(logger)

	logger.Info("Starting recurring-worker")

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

	processor := services.NewRolloverProcessor(repo)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Rollover shares the rebuild cadence: both are period-boundary work.
	interval := cfg.RebuildInterval
	logger.Info("Recurring budget processor configured",
		"interval", interval,
		"sqlite_db", cfg.SQLiteDBPath)

	// Run initial processing on startup
	if count, err := processor.ProcessEndedBudgets(ctx, time.Now().UTC()); err != nil {
		logger.Error("Initial processing failed", log.FieldError, err)
	} else {
		logger.Info("Initial processing complete", "budgets_rolled", count)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Recurring-worker shutdown complete")
			return
		case now := <-ticker.C:
			count, err := processor.ProcessEndedBudgets(ctx, now.UTC())
			if err != nil {
				logger.Error("Periodic processing failed", log.FieldError, err)
				continue
			}
			logger.Info("Periodic processing complete",
				"budgets_rolled", count,
				"next_check", now.Add(interval).Format("15:04:05"))
		}
	}
}
