package core

import (
	"testing"
	"time"
)

func date(y, m, d int) time.Time {
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
}

func TestTransactionValidate(t *testing.T) {
	good := Transaction{
		UserID:   "u1",
		Amount:   Money{Paise: 50000},
		Category: "Food",
		Date:     date(2024, 3, 1),
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []Transaction{
		{UserID: "", Amount: Money{Paise: 1}, Category: "c", Date: date(2024, 1, 1)},
		{UserID: "u1", Amount: Money{Paise: 1}, Category: "c"}, // zero date
		{UserID: "u1", Amount: Money{Paise: -1}, Category: "c", Date: date(2024, 1, 1)},
		{UserID: "u1", Amount: Money{Paise: 1}, Category: "", Date: date(2024, 1, 1)},
	}
	for i, tx := range bads {
		if err := tx.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}

	// Zero amount is legal: a free transaction still belongs in the ledger.
	free := good
	free.Amount = Money{}
	if err := free.Validate(); err != nil {
		t.Fatalf("zero amount should validate, got %v", err)
	}
}

func TestTransactionReconciles(t *testing.T) {
	cases := []struct {
		isIncome bool
		budgetID string
		want     bool
	}{
		{false, "b1", true},
		{false, "", false},
		{true, "b1", false},
		{true, "", false},
	}
	for i, tc := range cases {
		tx := Transaction{IsIncome: tc.isIncome, BudgetID: tc.budgetID}
		if got := tx.Reconciles(); got != tc.want {
			t.Fatalf("case %d expected %v, got %v", i, tc.want, got)
		}
	}
}

func TestBudgetValidate(t *testing.T) {
	good := Budget{
		UserID:      "u1",
		Name:        "Semester budget",
		TotalAmount: Money{Paise: 1000000},
		StartDate:   date(2024, 1, 1),
		EndDate:     date(2024, 1, 31),
		Categories: []Category{
			{ID: "c1", Name: "Food", Amount: Money{Paise: 300000}},
		},
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	inverted := good
	inverted.StartDate, inverted.EndDate = inverted.EndDate, inverted.StartDate
	if err := inverted.Validate(); err == nil {
		t.Fatalf("expected error for inverted period")
	}

	recurring := good
	recurring.IsRecurring = true
	if err := recurring.Validate(); err == nil {
		t.Fatalf("expected error for recurring budget without period")
	}
	recurring.Period = Monthly
	if err := recurring.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	dup := good
	dup.Categories = []Category{
		{ID: "c1", Name: "Food", Amount: Money{Paise: 1}},
		{ID: "c1", Name: "Books", Amount: Money{Paise: 1}},
	}
	if err := dup.Validate(); err == nil {
		t.Fatalf("expected error for duplicate category ids")
	}
}

func TestBudgetCovers(t *testing.T) {
	b := Budget{StartDate: date(2024, 1, 1), EndDate: date(2024, 1, 31)}
	cases := []struct {
		at   time.Time
		want bool
	}{
		{date(2024, 1, 1), true},
		{date(2024, 1, 31), true}, // inclusive end
		{time.Date(2024, 1, 31, 23, 59, 0, 0, time.UTC), true},
		{date(2023, 12, 31), false},
		{date(2024, 2, 1), false},
	}
	for i, tc := range cases {
		if got := b.Covers(tc.at); got != tc.want {
			t.Fatalf("case %d (%s) expected %v", i, tc.at, tc.want)
		}
	}
}

func TestBudgetAllocation(t *testing.T) {
	b := Budget{
		TotalAmount: Money{Paise: 1000},
		Categories: []Category{
			{Name: "a", Amount: Money{Paise: 600}},
			{Name: "b", Amount: Money{Paise: 700}},
		},
	}
	if got := b.Allocated().Paise; got != 1300 {
		t.Fatalf("expected 1300 allocated, got %d", got)
	}
	// Over-allocation is reported negative, never rejected.
	if got := b.Unallocated(); got != -300 {
		t.Fatalf("expected -300 unallocated, got %d", got)
	}
}

func TestCategoryIndexFirstMatchWins(t *testing.T) {
	b := Budget{Categories: []Category{
		{ID: "c1", Name: "Food"},
		{ID: "c2", Name: "Food"},
		{ID: "c3", Name: "Books"},
	}}
	if i := b.CategoryIndex("Food"); i != 0 {
		t.Fatalf("expected first match at 0, got %d", i)
	}
	if i := b.CategoryIndex("Rent"); i != -1 {
		t.Fatalf("expected -1 for missing name, got %d", i)
	}
}
