package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"budgetu/internal/core"
	"budgetu/internal/store"
)

// RebuildEnqueuer hands a drifted budget to the repair worker. Typically
// backed by the AMQP client; nil disables enqueueing.
type RebuildEnqueuer interface {
	PublishRebuildRequest(ctx context.Context, userID, budgetID, reason string) error
}

// casAttempts bounds the re-read/retry loop on stale budget revisions
// before falling back to a queued full rebuild.
const casAttempts = 3

// Reconciler keeps Budget.Categories[*].Spent aligned with the ledger by
// incremental adjustment. Every path is best-effort: a missing budget or
// category is a valid silent state (weak links survive budget deletion)
// and must never fail the ledger mutation that triggered it.
type Reconciler struct {
	budgets store.BudgetStore
	ledger  store.LedgerStore
	queue   RebuildEnqueuer
}

func NewReconciler(budgets store.BudgetStore, ledger store.LedgerStore, queue RebuildEnqueuer) *Reconciler {
	return &Reconciler{budgets: budgets, ledger: ledger, queue: queue}
}

// ApplyCreate adds a new transaction's amount to its linked category.
func (r *Reconciler) ApplyCreate(ctx context.Context, tx core.Transaction) {
	if !tx.Reconciles() {
		return
	}
	r.adjust(ctx, tx.UserID, tx.BudgetID, tx.Category, tx.Amount.Paise)
}

// ApplyUpdate reverses the pre-image and then applies the post-image.
// Reversal must come first so an amount-only edit against the same
// category nets to (new - old) instead of double-counting. The two steps
// may touch different budgets and both run even when one of them no-ops
// against a deleted budget.
func (r *Reconciler) ApplyUpdate(ctx context.Context, old, updated core.Transaction) {
	if old.Reconciles() {
		r.adjust(ctx, old.UserID, old.BudgetID, old.Category, -old.Amount.Paise)
	}
	if updated.Reconciles() {
		r.adjust(ctx, updated.UserID, updated.BudgetID, updated.Category, updated.Amount.Paise)
	}
}

// ApplyDelete subtracts a deleted transaction's amount, floored at zero.
func (r *Reconciler) ApplyDelete(ctx context.Context, tx core.Transaction) {
	if !tx.Reconciles() {
		return
	}
	r.adjust(ctx, tx.UserID, tx.BudgetID, tx.Category, -tx.Amount.Paise)
}

// adjust applies a signed delta to the first category matching the label,
// retrying on revision conflicts. Exhausted retries degrade to a queued
// full rebuild rather than a lost update.
func (r *Reconciler) adjust(ctx context.Context, userID, budgetID, category string, delta int64) {
	for attempt := 0; attempt < casAttempts; attempt++ {
		b, err := r.budgets.GetBudget(ctx, userID, budgetID)
		if errors.Is(err, store.ErrNotFound) {
			slog.DebugContext(ctx, "Reconciliation skipped, budget missing",
				"budget_id", budgetID, "user_id", userID)
			return
		}
		if err != nil {
			slog.ErrorContext(ctx, "Reconciliation read failed",
				"budget_id", budgetID, "error", err)
			return
		}

		i := b.CategoryIndex(category)
		if i < 0 {
			slog.DebugContext(ctx, "Reconciliation skipped, no matching category",
				"budget_id", budgetID, "category", category)
			return
		}

		spent := b.Categories[i].Spent.Paise + delta
		if spent < 0 {
			// Deliberate floor: the cache never goes negative even when
			// the raw arithmetic would.
			spent = 0
		}
		b.Categories[i].Spent = core.Money{Paise: spent}
		b.UpdatedAt = time.Now().UTC()

		err = r.budgets.UpdateBudget(ctx, b)
		if err == nil {
			return
		}
		if !errors.Is(err, store.ErrConflict) {
			slog.ErrorContext(ctx, "Reconciliation write failed",
				"budget_id", budgetID, "error", err)
			return
		}
		slog.DebugContext(ctx, "Reconciliation retry on stale revision",
			"budget_id", budgetID, "attempt", attempt+1)
	}

	slog.WarnContext(ctx, "Reconciliation gave up after conflicts, requesting rebuild",
		"budget_id", budgetID, "category", category, "attempts", casAttempts)
	r.requestRebuild(ctx, userID, budgetID, "cas_exhausted")
}

// Rebuild recomputes every category's spend for a budget from the ledger.
// This is the authoritative drift repair: unlike the incremental path it
// surfaces errors, since callers invoke it deliberately.
func (r *Reconciler) Rebuild(ctx context.Context, userID, budgetID string) (core.Budget, error) {
	var lastErr error
	for attempt := 0; attempt < casAttempts; attempt++ {
		b, err := r.budgets.GetBudget(ctx, userID, budgetID)
		if err != nil {
			return core.Budget{}, fmt.Errorf("load budget: %w", err)
		}
		txs, err := r.ledger.ListTransactions(ctx, store.TransactionFilter{
			UserID:   userID,
			BudgetID: budgetID,
		})
		if err != nil {
			return core.Budget{}, fmt.Errorf("list linked transactions: %w", err)
		}

		rebuilt := core.RecomputeSpent(b, txs)
		rebuilt.UpdatedAt = time.Now().UTC()
		if err := r.budgets.UpdateBudget(ctx, rebuilt); err == nil {
			slog.InfoContext(ctx, "Budget spend rebuilt from ledger",
				"budget_id", budgetID, "transactions", len(txs))
			rebuilt.Revision++
			return rebuilt, nil
		} else if errors.Is(err, store.ErrConflict) {
			lastErr = err
			continue
		} else {
			return core.Budget{}, fmt.Errorf("persist rebuilt budget: %w", err)
		}
	}
	return core.Budget{}, fmt.Errorf("rebuild budget %s: %w", budgetID, lastErr)
}

func (r *Reconciler) requestRebuild(ctx context.Context, userID, budgetID, reason string) {
	if r.queue == nil {
		slog.WarnContext(ctx, "No rebuild queue configured, drift repair deferred to next sweep",
			"budget_id", budgetID)
		return
	}
	if err := r.queue.PublishRebuildRequest(ctx, userID, budgetID, reason); err != nil {
		slog.ErrorContext(ctx, "Failed to publish rebuild request",
			"budget_id", budgetID, "error", err)
	}
}
