package services

import (
	"context"
	"testing"

	"budgetu/internal/core"
	"budgetu/internal/store"
	"budgetu/internal/store/memory"
)

func seedBudget(t *testing.T, s *memory.Store) core.Budget {
	t.Helper()
	b := core.Budget{
		ID:          "b1",
		UserID:      "u1",
		Name:        "March",
		TotalAmount: core.Money{Paise: 1000000},
		StartDate:   date(2024, 3, 1),
		EndDate:     date(2024, 3, 31),
		IsActive:    true,
		Categories: []core.Category{
			{ID: "c1", Name: "Food", Amount: core.Money{Paise: 300000}},
			{ID: "c2", Name: "Books", Amount: core.Money{Paise: 100000}},
		},
	}
	if err := s.CreateBudget(context.Background(), b); err != nil {
		t.Fatalf("seed budget: %v", err)
	}
	return b
}

func foodSpent(t *testing.T, s *memory.Store) int64 {
	t.Helper()
	b, err := s.GetBudget(context.Background(), "u1", "b1")
	if err != nil {
		t.Fatalf("get budget: %v", err)
	}
	return b.Categories[0].Spent.Paise
}

// The full lifecycle from the product scenario: a 500 expense lands, is
// edited to 700, then removed, and the category tracks 500 -> 700 -> 0.
func TestReconcilerLifecycle(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	seedBudget(t, s)
	r := NewReconciler(s, s, nil)

	tx := core.Transaction{
		ID: "t1", UserID: "u1", BudgetID: "b1",
		Category: "Food", Amount: core.Money{Paise: 50000}, Date: date(2024, 3, 5),
	}
	r.ApplyCreate(ctx, tx)
	if got := foodSpent(t, s); got != 50000 {
		t.Fatalf("after create: expected 50000, got %d", got)
	}

	updated := tx
	updated.Amount = core.Money{Paise: 70000}
	r.ApplyUpdate(ctx, tx, updated)
	if got := foodSpent(t, s); got != 70000 {
		t.Fatalf("after update: expected 70000, got %d", got)
	}

	r.ApplyDelete(ctx, updated)
	if got := foodSpent(t, s); got != 0 {
		t.Fatalf("after delete: expected 0, got %d", got)
	}
}

func TestReconcilerIncomeNeverCounts(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	seedBudget(t, s)
	r := NewReconciler(s, s, nil)

	income := core.Transaction{
		ID: "t1", UserID: "u1", BudgetID: "b1",
		Category: "Food", Amount: core.Money{Paise: 99999}, Date: date(2024, 3, 5),
		IsIncome: true,
	}
	r.ApplyCreate(ctx, income)
	r.ApplyUpdate(ctx, income, income)
	r.ApplyDelete(ctx, income)
	if got := foodSpent(t, s); got != 0 {
		t.Fatalf("income leaked into spend: %d", got)
	}
}

func TestReconcilerDanglingLinkIsSilent(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	r := NewReconciler(s, s, nil)

	// No budget exists at all; every path must no-op without panicking.
	tx := core.Transaction{
		ID: "t1", UserID: "u1", BudgetID: "gone",
		Category: "Food", Amount: core.Money{Paise: 100}, Date: date(2024, 3, 5),
	}
	r.ApplyCreate(ctx, tx)
	r.ApplyUpdate(ctx, tx, tx)
	r.ApplyDelete(ctx, tx)
}

func TestReconcilerUnknownCategoryIsSilent(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	seedBudget(t, s)
	r := NewReconciler(s, s, nil)

	tx := core.Transaction{
		ID: "t1", UserID: "u1", BudgetID: "b1",
		Category: "Cinema", Amount: core.Money{Paise: 100}, Date: date(2024, 3, 5),
	}
	r.ApplyCreate(ctx, tx)
	b, _ := s.GetBudget(ctx, "u1", "b1")
	if b.TotalSpent().Paise != 0 {
		t.Fatalf("unmatched category changed spend")
	}
}

func TestReconcilerNonNegativity(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	seedBudget(t, s)
	r := NewReconciler(s, s, nil)

	// Delete more than was ever added: the floor holds at zero.
	tx := core.Transaction{
		ID: "t1", UserID: "u1", BudgetID: "b1",
		Category: "Food", Amount: core.Money{Paise: 500000}, Date: date(2024, 3, 5),
	}
	r.ApplyDelete(ctx, tx)
	if got := foodSpent(t, s); got != 0 {
		t.Fatalf("expected floor at 0, got %d", got)
	}
}

func TestReconcilerDeleteThenRecreateNetsToZero(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	seedBudget(t, s)
	r := NewReconciler(s, s, nil)

	tx := core.Transaction{
		ID: "t1", UserID: "u1", BudgetID: "b1",
		Category: "Food", Amount: core.Money{Paise: 25000}, Date: date(2024, 3, 5),
	}
	r.ApplyCreate(ctx, tx)
	before := foodSpent(t, s)
	r.ApplyDelete(ctx, tx)
	tx.ID = "t2"
	r.ApplyCreate(ctx, tx)
	if got := foodSpent(t, s); got != before {
		t.Fatalf("expected %d after recreate, got %d", before, got)
	}
}

func TestReconcilerRelinkMovesSpendAcrossBudgets(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	seedBudget(t, s)
	other := core.Budget{
		ID: "b2", UserID: "u1", Name: "April",
		StartDate: date(2024, 4, 1), EndDate: date(2024, 4, 30),
		Categories: []core.Category{{ID: "c1", Name: "Food", Amount: core.Money{Paise: 100000}}},
	}
	if err := s.CreateBudget(ctx, other); err != nil {
		t.Fatalf("seed other: %v", err)
	}
	r := NewReconciler(s, s, nil)

	old := core.Transaction{
		ID: "t1", UserID: "u1", BudgetID: "b1",
		Category: "Food", Amount: core.Money{Paise: 30000}, Date: date(2024, 3, 5),
	}
	r.ApplyCreate(ctx, old)

	moved := old
	moved.BudgetID = "b2"
	r.ApplyUpdate(ctx, old, moved)

	if got := foodSpent(t, s); got != 0 {
		t.Fatalf("source budget still holds %d", got)
	}
	b2, _ := s.GetBudget(ctx, "u1", "b2")
	if got := b2.Categories[0].Spent.Paise; got != 30000 {
		t.Fatalf("target budget expected 30000, got %d", got)
	}
}

func TestRebuildRepairsDrift(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	b := seedBudget(t, s)
	r := NewReconciler(s, s, nil)

	for _, tx := range []core.Transaction{
		{ID: "t1", UserID: "u1", BudgetID: "b1", Category: "Food", Amount: core.Money{Paise: 20000}, Date: date(2024, 3, 2)},
		{ID: "t2", UserID: "u1", BudgetID: "b1", Category: "Books", Amount: core.Money{Paise: 15000}, Date: date(2024, 3, 3)},
		{ID: "t3", UserID: "u1", BudgetID: "b1", Category: "Renamed", Amount: core.Money{Paise: 999}, Date: date(2024, 3, 4)},
	} {
		if err := s.CreateTransaction(ctx, tx); err != nil {
			t.Fatalf("seed tx: %v", err)
		}
	}

	// Poison the cache to simulate drift.
	b, _ = s.GetBudget(ctx, "u1", "b1")
	b.Categories[0].Spent = core.Money{Paise: 777777}
	if err := s.UpdateBudget(ctx, b); err != nil {
		t.Fatalf("poison: %v", err)
	}

	rebuilt, err := r.Rebuild(ctx, "u1", "b1")
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if rebuilt.Categories[0].Spent.Paise != 20000 {
		t.Fatalf("Food: expected 20000, got %d", rebuilt.Categories[0].Spent.Paise)
	}
	if rebuilt.Categories[1].Spent.Paise != 15000 {
		t.Fatalf("Books: expected 15000, got %d", rebuilt.Categories[1].Spent.Paise)
	}

	// Idempotence: a second rebuild changes nothing.
	again, err := r.Rebuild(ctx, "u1", "b1")
	if err != nil {
		t.Fatalf("second rebuild: %v", err)
	}
	for i := range rebuilt.Categories {
		if rebuilt.Categories[i].Spent != again.Categories[i].Spent {
			t.Fatalf("rebuild not idempotent for %s", rebuilt.Categories[i].Name)
		}
	}
}

// conflictingBudgets rejects the first N updates with ErrConflict to
// exercise the retry and give-up paths.
type conflictingBudgets struct {
	store.BudgetStore
	rejections int
	updates    int
}

func (c *conflictingBudgets) UpdateBudget(ctx context.Context, b core.Budget) error {
	c.updates++
	if c.rejections > 0 {
		c.rejections--
		return store.ErrConflict
	}
	return c.BudgetStore.UpdateBudget(ctx, b)
}

type capturedRebuild struct {
	userID, budgetID, reason string
}

type captureQueue struct {
	published []capturedRebuild
}

func (q *captureQueue) PublishRebuildRequest(_ context.Context, userID, budgetID, reason string) error {
	q.published = append(q.published, capturedRebuild{userID, budgetID, reason})
	return nil
}

func TestReconcilerRetriesOnStaleRevision(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	seedBudget(t, s)
	wrapped := &conflictingBudgets{BudgetStore: s, rejections: 2}
	r := NewReconciler(wrapped, s, nil)

	tx := core.Transaction{
		ID: "t1", UserID: "u1", BudgetID: "b1",
		Category: "Food", Amount: core.Money{Paise: 100}, Date: date(2024, 3, 5),
	}
	r.ApplyCreate(ctx, tx)
	if got := foodSpent(t, s); got != 100 {
		t.Fatalf("expected retry to land the write, got %d", got)
	}
	if wrapped.updates != 3 {
		t.Fatalf("expected 3 update attempts, got %d", wrapped.updates)
	}
}

func TestReconcilerEnqueuesRebuildWhenRetriesExhausted(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	seedBudget(t, s)
	wrapped := &conflictingBudgets{BudgetStore: s, rejections: casAttempts}
	queue := &captureQueue{}
	r := NewReconciler(wrapped, s, queue)

	tx := core.Transaction{
		ID: "t1", UserID: "u1", BudgetID: "b1",
		Category: "Food", Amount: core.Money{Paise: 100}, Date: date(2024, 3, 5),
	}
	r.ApplyCreate(ctx, tx)

	if len(queue.published) != 1 {
		t.Fatalf("expected one rebuild request, got %d", len(queue.published))
	}
	got := queue.published[0]
	if got.userID != "u1" || got.budgetID != "b1" || got.reason != "cas_exhausted" {
		t.Fatalf("unexpected rebuild request: %+v", got)
	}
}
