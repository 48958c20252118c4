package services

import (
	"context"
	"fmt"
	"time"

	"budgetu/internal/core"
	"budgetu/internal/store"

	"github.com/google/uuid"
)

// TransactionService orchestrates ledger mutations. The ledger write is
// the authoritative part of each operation; reconciliation runs after it,
// best-effort, and never fails the request.
type TransactionService struct {
	ledger     store.LedgerStore
	reconciler *Reconciler
}

func NewTransactionService(ledger store.LedgerStore, reconciler *Reconciler) *TransactionService {
	return &TransactionService{ledger: ledger, reconciler: reconciler}
}

// Create validates and appends a transaction, then adjusts the linked
// budget's spend.
func (s *TransactionService) Create(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	now := time.Now().UTC()
	tx.ID = uuid.NewString()
	tx.CreatedAt = now
	tx.UpdatedAt = now

	if err := s.ledger.CreateTransaction(ctx, tx); err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}
	s.reconciler.ApplyCreate(ctx, tx)
	return tx, nil
}

func (s *TransactionService) Get(ctx context.Context, userID, id string) (core.Transaction, error) {
	return s.ledger.GetTransaction(ctx, userID, id)
}

// List returns matching transactions newest-first plus the unpaginated
// total for the same filter.
func (s *TransactionService) List(ctx context.Context, f store.TransactionFilter) ([]core.Transaction, int64, error) {
	txs, err := s.ledger.ListTransactions(ctx, f)
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	unpaged := f
	unpaged.Limit = 0
	unpaged.Offset = 0
	total, err := s.ledger.CountTransactions(ctx, unpaged)
	if err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}
	return txs, total, nil
}

// Update replaces a transaction in place. The pre-image is read first so
// reconciliation can reverse it before applying the new values; the two
// adjustments may target different budgets when the user re-links.
func (s *TransactionService) Update(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	old, err := s.ledger.GetTransaction(ctx, tx.UserID, tx.ID)
	if err != nil {
		return core.Transaction{}, err
	}
	tx.CreatedAt = old.CreatedAt
	tx.UpdatedAt = time.Now().UTC()

	if err := s.ledger.UpdateTransaction(ctx, tx); err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}
	s.reconciler.ApplyUpdate(ctx, old, tx)
	return tx, nil
}

// Delete removes a transaction and reverses its spend contribution. A
// dangling budget link makes the reversal a silent no-op, never an error.
func (s *TransactionService) Delete(ctx context.Context, userID, id string) error {
	tx, err := s.ledger.GetTransaction(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.ledger.DeleteTransaction(ctx, userID, id); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	s.reconciler.ApplyDelete(ctx, tx)
	return nil
}

// Summary aggregates the user's ledger over an optional date range into
// income/expense totals and a per-category expense breakdown.
func (s *TransactionService) Summary(ctx context.Context, userID string, from, to time.Time) (SpendingSummary, error) {
	txs, err := s.ledger.ListTransactions(ctx, store.TransactionFilter{
		UserID: userID,
		From:   from,
		To:     to,
	})
	if err != nil {
		return SpendingSummary{}, fmt.Errorf("list transactions: %w", err)
	}
	return BuildSpendingSummary(txs), nil
}
