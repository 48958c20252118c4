// Package memory is an in-process RowAppender for development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"budgetu/internal/core"
	"budgetu/internal/export"
)

type Appender struct {
	mu   sync.Mutex
	rows []core.Transaction

	// FailWith makes every Append return this error, for failure-path tests.
	FailWith error
}

var _ export.RowAppender = (*Appender)(nil)

func New() *Appender {
	return &Appender{}
}

func (a *Appender) Append(ctx context.Context, tx core.Transaction) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.FailWith != nil {
		return "", a.FailWith
	}
	a.rows = append(a.rows, tx)
	return fmt.Sprintf("memory!A%d", len(a.rows)), nil
}

// Rows returns a copy of everything appended so far.
func (a *Appender) Rows() []core.Transaction {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]core.Transaction, len(a.rows))
	copy(out, a.rows)
	return out
}
