// Package store defines the persistence ports the services are written
// against. Implementations live in store/memory (dev + tests) and storage
// (SQLite).
package store

import (
	"context"
	"errors"
	"time"

	"budgetu/internal/core"
)

var (
	// ErrNotFound is returned when a record does not exist for the given
	// owner. Reconciliation treats it as a valid silent state.
	ErrNotFound = errors.New("record not found")

	// ErrConflict is returned by UpdateBudget when the caller's revision
	// is stale. The caller re-reads and retries.
	ErrConflict = errors.New("stale budget revision")
)

// TransactionFilter narrows ledger queries. Zero values mean "no
// constraint"; UserID is the ownership boundary and is always required.
type TransactionFilter struct {
	UserID   string
	From     time.Time
	To       time.Time // inclusive, end of calendar day
	Category string
	BudgetID string
	IsIncome *bool
	Limit    int
	Offset   int
}

// LedgerStore is the transaction ledger, the authoritative record of all
// income and spending.
type LedgerStore interface {
	CreateTransaction(ctx context.Context, tx core.Transaction) error
	// GetTransaction returns ErrNotFound when no transaction with that id
	// belongs to the user.
	GetTransaction(ctx context.Context, userID, id string) (core.Transaction, error)
	UpdateTransaction(ctx context.Context, tx core.Transaction) error
	DeleteTransaction(ctx context.Context, userID, id string) error
	// ListTransactions returns matches newest-first.
	ListTransactions(ctx context.Context, f TransactionFilter) ([]core.Transaction, error)
	CountTransactions(ctx context.Context, f TransactionFilter) (int64, error)
}

// BudgetStore persists budgets with their embedded categories. Category
// writes always go through the whole budget so a budget-level write stays
// atomic.
type BudgetStore interface {
	CreateBudget(ctx context.Context, b core.Budget) error
	GetBudget(ctx context.Context, userID, id string) (core.Budget, error)
	// UpdateBudget is compare-and-swap on Revision: it persists the budget
	// with Revision+1 only when the stored revision still equals
	// b.Revision, and returns ErrConflict otherwise.
	UpdateBudget(ctx context.Context, b core.Budget) error
	DeleteBudget(ctx context.Context, userID, id string) error
	// ListBudgets returns the user's budgets newest-first.
	ListBudgets(ctx context.Context, userID string) ([]core.Budget, error)
	// ActiveBudget returns the most recently created active budget whose
	// period covers the given instant, or ErrNotFound.
	ActiveBudget(ctx context.Context, userID string, at time.Time) (core.Budget, error)
	// ListRecurringEnded returns, across all users, active recurring
	// budgets whose period ended strictly before the given instant.
	ListRecurringEnded(ctx context.Context, before time.Time) ([]core.Budget, error)
	// ListActiveBudgets returns, across all users, active budgets whose
	// period covers the given instant. The drift-repair sweep walks this.
	ListActiveBudgets(ctx context.Context, at time.Time) ([]core.Budget, error)
}

// ExportLedger is the slice of the ledger the spreadsheet mirror needs.
type ExportLedger interface {
	ListUnexportedTransactions(ctx context.Context, limit int) ([]core.Transaction, error)
	MarkTransactionExported(ctx context.Context, id string) error
}
