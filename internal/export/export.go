// Package export mirrors the ledger into an external spreadsheet. The
// sheet is a convenience copy, never a source of truth: rows are appended
// after the fact and failures are retried on the next sweep.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"budgetu/internal/core"
	"budgetu/internal/store"
)

// RowAppender appends one transaction as a spreadsheet row and returns a
// reference to where it landed.
type RowAppender interface {
	Append(ctx context.Context, tx core.Transaction) (rowRef string, err error)
}

// Worker drains the unexported backlog in batches on a fixed interval.
type Worker struct {
	ledger    store.ExportLedger
	appender  RowAppender
	batchSize int
	interval  time.Duration
}

func NewWorker(ledger store.ExportLedger, appender RowAppender, batchSize int, interval time.Duration) *Worker {
	if batchSize < 1 {
		batchSize = 10
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Worker{
		ledger:    ledger,
		appender:  appender,
		batchSize: batchSize,
		interval:  interval,
	}
}

// Run processes the backlog until the context ends. A larger batch runs
// first so a restart catches up on whatever accumulated while down.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.StartupCheck(ctx); err != nil {
		slog.ErrorContext(ctx, "Startup export check failed", "error", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.ProcessPending(ctx); err != nil {
				slog.ErrorContext(ctx, "Export sweep failed", "error", err)
			}
		}
	}
}

// StartupCheck drains a larger batch at startup to recover from downtime.
func (w *Worker) StartupCheck(ctx context.Context) error {
	pending, err := w.ledger.ListUnexportedTransactions(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("list unexported transactions: %w", err)
	}
	if len(pending) == 0 {
		slog.InfoContext(ctx, "No unexported transactions found on startup")
		return nil
	}

	slog.InfoContext(ctx, "Found unexported transactions on startup, processing...",
		"count", len(pending))
	exported := w.exportBatch(ctx, pending)
	slog.InfoContext(ctx, "Startup export completed",
		"total", len(pending), "exported", exported)
	return nil
}

// ProcessPending exports one batch and returns how many rows were written.
func (w *Worker) ProcessPending(ctx context.Context) (int, error) {
	pending, err := w.ledger.ListUnexportedTransactions(ctx, w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list unexported transactions: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	slog.InfoContext(ctx, "Exporting transactions", "count", len(pending))
	return w.exportBatch(ctx, pending), nil
}

// exportBatch appends each transaction; a failed row stays unexported and
// is retried next sweep.
func (w *Worker) exportBatch(ctx context.Context, txs []core.Transaction) int {
	exported := 0
	for _, tx := range txs {
		ref, err := w.appender.Append(ctx, tx)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to export transaction",
				"transaction_id", tx.ID, "error", err)
			continue
		}
		if err := w.ledger.MarkTransactionExported(ctx, tx.ID); err != nil {
			// The row is in the sheet; the flag retry may duplicate it,
			// which beats losing it.
			slog.ErrorContext(ctx, "Failed to mark transaction exported",
				"transaction_id", tx.ID, "error", err)
			continue
		}
		exported++
		slog.DebugContext(ctx, "Transaction exported",
			"transaction_id", tx.ID, "row_ref", ref)
	}
	return exported
}
