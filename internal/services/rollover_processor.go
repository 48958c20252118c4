package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"budgetu/internal/store"
)

// RolloverProcessor advances recurring budgets whose period has ended:
// it creates the next instance and deactivates the source. Run
// periodically by the recurring worker; each pass is idempotent because
// a rolled-over source is no longer active.
type RolloverProcessor struct {
	budgets store.BudgetStore
}

func NewRolloverProcessor(budgets store.BudgetStore) *RolloverProcessor {
	return &RolloverProcessor{budgets: budgets}
}

// ProcessEndedBudgets rolls over every active recurring budget whose end
// date has passed. One failing budget never stops the sweep.
func (p *RolloverProcessor) ProcessEndedBudgets(ctx context.Context, now time.Time) (int, error) {
	if p.budgets == nil {
		return 0, fmt.Errorf("processor not properly initialized")
	}

	ended, err := p.budgets.ListRecurringEnded(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("list ended recurring budgets: %w", err)
	}

	slog.InfoContext(ctx, "Processing recurring budget rollover",
		"total_ended", len(ended),
		"processing_date", now.Format("2006-01-02"))

	processed := 0
	for _, b := range ended {
		next, err := NextRecurring(b, now)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to compute next budget period",
				"budget_id", b.ID, "period", b.Period, "error", err)
			continue
		}
		if err := p.budgets.CreateBudget(ctx, next); err != nil {
			slog.ErrorContext(ctx, "Failed to create next recurring budget",
				"budget_id", b.ID, "error", err)
			continue
		}
		if err := deactivateBudget(ctx, p.budgets, b.UserID, b.ID); err != nil {
			slog.ErrorContext(ctx, "Failed to deactivate rolled-over budget",
				"budget_id", b.ID, "error", err)
			// Continue anyway - the next instance exists and the source
			// will be retried on the following sweep.
		}
		processed++
		slog.InfoContext(ctx, "Rolled recurring budget into next period",
			"budget_id", b.ID,
			"next_id", next.ID,
			"next_start", next.StartDate.Format("2006-01-02"),
			"next_end", next.EndDate.Format("2006-01-02"))
	}

	slog.InfoContext(ctx, "Recurring budget rollover complete",
		"processed", processed, "total_checked", len(ended))
	return processed, nil
}
