package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"budgetu/internal/core"
	"budgetu/internal/store"

	"github.com/google/uuid"
)

// BudgetService owns the budget lifecycle: CRUD, the period summary view,
// recurrence rollover, and drift repair.
type BudgetService struct {
	budgets    store.BudgetStore
	ledger     store.LedgerStore
	reconciler *Reconciler
}

func NewBudgetService(budgets store.BudgetStore, ledger store.LedgerStore, reconciler *Reconciler) *BudgetService {
	return &BudgetService{budgets: budgets, ledger: ledger, reconciler: reconciler}
}

// Create assigns ids, zeroes every category's spend (a new budget has no
// ledger history) and persists.
func (s *BudgetService) Create(ctx context.Context, b core.Budget) (core.Budget, error) {
	now := time.Now().UTC()
	b.ID = uuid.NewString()
	b.Revision = 0
	b.CreatedAt = now
	b.UpdatedAt = now
	for i := range b.Categories {
		b.Categories[i].ID = uuid.NewString()
		b.Categories[i].Spent = core.Money{}
	}
	if err := b.Validate(); err != nil {
		return core.Budget{}, err
	}
	if err := s.budgets.CreateBudget(ctx, b); err != nil {
		return core.Budget{}, fmt.Errorf("create budget: %w", err)
	}
	return b, nil
}

func (s *BudgetService) Get(ctx context.Context, userID, id string) (core.Budget, error) {
	return s.budgets.GetBudget(ctx, userID, id)
}

func (s *BudgetService) List(ctx context.Context, userID string) ([]core.Budget, error) {
	return s.budgets.ListBudgets(ctx, userID)
}

// Active returns the current active budget covering the given instant.
func (s *BudgetService) Active(ctx context.Context, userID string, at time.Time) (core.Budget, error) {
	return s.budgets.ActiveBudget(ctx, userID, at)
}

// Update persists a user edit. The caller carries the revision it read;
// a stale one surfaces as store.ErrConflict so the client can re-fetch
// instead of silently overwriting a concurrent reconciliation.
//
// Cached spends are never taken from the payload: only reconciliation
// and full recompute mutate them. Each submitted category is matched
// against the stored budget (by id when the client echoes one, by name
// otherwise) and keeps that category's id and spend; anything unmatched
// is a new category with zero spend.
func (s *BudgetService) Update(ctx context.Context, b core.Budget) (core.Budget, error) {
	stored, err := s.budgets.GetBudget(ctx, b.UserID, b.ID)
	if err != nil {
		return core.Budget{}, err
	}
	carryCategoryState(&b, stored)
	if err := b.Validate(); err != nil {
		return core.Budget{}, err
	}
	b.UpdatedAt = time.Now().UTC()
	if err := s.budgets.UpdateBudget(ctx, b); err != nil {
		return core.Budget{}, err
	}
	b.Revision++
	return b, nil
}

// carryCategoryState pins each edited category to its stored
// counterpart, keeping ids stable across edits and spends out of the
// client's hands. A stored category is claimed at most once so
// duplicate names cannot share an identity.
func carryCategoryState(b *core.Budget, stored core.Budget) {
	claimed := make(map[int]bool, len(stored.Categories))
	match := func(c core.Category) int {
		for j, sc := range stored.Categories {
			if claimed[j] {
				continue
			}
			if c.ID != "" && sc.ID == c.ID {
				return j
			}
			if c.ID == "" && sc.Name == c.Name {
				return j
			}
		}
		return -1
	}
	for i := range b.Categories {
		c := &b.Categories[i]
		if j := match(*c); j >= 0 {
			claimed[j] = true
			c.ID = stored.Categories[j].ID
			c.Spent = stored.Categories[j].Spent
		} else {
			c.ID = uuid.NewString()
			c.Spent = core.Money{}
		}
	}
}

// Delete removes the budget. There is no cascade: transactions keep their
// budget id as a dangling link and every later lookup tolerates it.
func (s *BudgetService) Delete(ctx context.Context, userID, id string) error {
	return s.budgets.DeleteBudget(ctx, userID, id)
}

// AddCategory appends a category to an existing budget, retrying on
// concurrent revision bumps.
func (s *BudgetService) AddCategory(ctx context.Context, userID, budgetID string, c core.Category) (core.Budget, error) {
	c.ID = uuid.NewString()
	c.Spent = core.Money{}
	if err := c.Validate(); err != nil {
		return core.Budget{}, err
	}
	var lastErr error
	for attempt := 0; attempt < casAttempts; attempt++ {
		b, err := s.budgets.GetBudget(ctx, userID, budgetID)
		if err != nil {
			return core.Budget{}, err
		}
		b.Categories = append(b.Categories, c)
		b.UpdatedAt = time.Now().UTC()
		if err := s.budgets.UpdateBudget(ctx, b); err == nil {
			b.Revision++
			return b, nil
		} else if errors.Is(err, store.ErrConflict) {
			lastErr = err
			continue
		} else {
			return core.Budget{}, err
		}
	}
	return core.Budget{}, fmt.Errorf("add category to budget %s: %w", budgetID, lastErr)
}

// PeriodSummary is the date-range view of a budget: every expense of the
// owner inside the period, matched by category name with an "Other"
// bucket for the rest.
func (s *BudgetService) PeriodSummary(ctx context.Context, userID, budgetID string) (core.SpendReport, error) {
	b, err := s.budgets.GetBudget(ctx, userID, budgetID)
	if err != nil {
		return core.SpendReport{}, err
	}
	txs, err := s.ledger.ListTransactions(ctx, store.TransactionFilter{
		UserID: userID,
		From:   b.StartDate,
		To:     b.EndDate,
	})
	if err != nil {
		return core.SpendReport{}, fmt.Errorf("list period transactions: %w", err)
	}
	return core.SpendByPeriod(b, txs), nil
}

// Recur creates the next period's budget from a recurring one and then
// deactivates the source. The two writes are deliberately not atomic; a
// crash in between leaves both active until the next rollover pass.
func (s *BudgetService) Recur(ctx context.Context, userID, budgetID string, now time.Time) (core.Budget, error) {
	b, err := s.budgets.GetBudget(ctx, userID, budgetID)
	if err != nil {
		return core.Budget{}, err
	}
	next, err := NextRecurring(b, now)
	if err != nil {
		return core.Budget{}, err
	}
	if err := s.budgets.CreateBudget(ctx, next); err != nil {
		return core.Budget{}, fmt.Errorf("create next budget: %w", err)
	}
	if err := deactivateBudget(ctx, s.budgets, userID, budgetID); err != nil {
		slog.WarnContext(ctx, "Next budget created but source still active",
			"budget_id", budgetID, "next_id", next.ID, "error", err)
	}
	return next, nil
}

// Rebuild recomputes the budget's cached spends from the ledger.
func (s *BudgetService) Rebuild(ctx context.Context, userID, budgetID string) (core.Budget, error) {
	return s.reconciler.Rebuild(ctx, userID, budgetID)
}

// deactivateBudget clears IsActive with the usual re-read loop on
// revision conflicts. Shared with the rollover processor.
func deactivateBudget(ctx context.Context, budgets store.BudgetStore, userID, budgetID string) error {
	var lastErr error
	for attempt := 0; attempt < casAttempts; attempt++ {
		b, err := budgets.GetBudget(ctx, userID, budgetID)
		if err != nil {
			return err
		}
		if !b.IsActive {
			return nil
		}
		b.IsActive = false
		b.UpdatedAt = time.Now().UTC()
		if err := budgets.UpdateBudget(ctx, b); err == nil {
			return nil
		} else if errors.Is(err, store.ErrConflict) {
			lastErr = err
			continue
		} else {
			return err
		}
	}
	return fmt.Errorf("deactivate budget %s: %w", budgetID, lastErr)
}
