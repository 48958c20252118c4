package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Weekly    RecurringPeriod = "weekly"
	Monthly   RecurringPeriod = "monthly"
	Quarterly RecurringPeriod = "quarterly"
	Yearly    RecurringPeriod = "yearly"
)

type (
	RecurringPeriod string

	// Money is an amount in paise (1/100 rupee). Sign is carried by the
	// owning record (Transaction.IsIncome), not by the number itself.
	Money struct {
		Paise int64
	}

	Transaction struct {
		ID       string
		UserID   string
		Amount   Money
		Category string
		Date     time.Time
		IsIncome bool

		// BudgetID is a weak reference: it may point at a budget that no
		// longer exists, and every consumer must treat that as a no-op link.
		BudgetID string

		PaymentMethod string
		Location      string
		ReceiptImage  string
		Notes         string
		ExternalID    string

		CreatedAt time.Time
		UpdatedAt time.Time
	}

	// Category is owned by its budget and addressed by (budget id, local id).
	// Spent is a cache over the ledger, never the source of truth.
	Category struct {
		ID          string
		Name        string
		Amount      Money
		Spent       Money
		Color       string
		Icon        string
		IsEssential bool
	}

	Budget struct {
		ID          string
		UserID      string
		Name        string
		TotalAmount Money
		StartDate   time.Time
		EndDate     time.Time
		Categories  []Category
		IsActive    bool
		IsRecurring bool
		Period      RecurringPeriod

		// Revision guards budget writes: stores compare it on update and
		// reject stale writers, so two concurrent reconciliations cannot
		// silently drop each other's spent adjustments.
		Revision int64

		CreatedAt time.Time
		UpdatedAt time.Time
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrNegativeAmount   = errors.New("amount cannot be negative")
	ErrEmptyUser        = errors.New("empty user id")
	ErrEmptyCategory    = errors.New("empty category")
	ErrEmptyName        = errors.New("empty name")
	ErrZeroDate         = errors.New("date cannot be zero")
	ErrInvalidPeriod    = errors.New("invalid recurring period")
	ErrInvertedPeriod   = errors.New("end date before start date")
	ErrNotRecurring     = errors.New("budget is not recurring")
	ErrDuplicateCatID   = errors.New("duplicate category id")
)

func (p RecurringPeriod) Valid() bool {
	switch p {
	case Weekly, Monthly, Quarterly, Yearly:
		return true
	}
	return false
}

func (m Money) Validate() error {
	if m.Paise < 0 {
		return ErrNegativeAmount
	}
	return nil
}

func (m Money) IsZero() bool {
	return m.Paise == 0
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.UserID) == "" {
		return ErrEmptyUser
	}
	if t.Date.IsZero() {
		return ErrZeroDate
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(t.Category) == "" {
		return ErrEmptyCategory
	}
	if len(t.Category) > 100 {
		return errors.New("category too long (max 100 characters)")
	}
	if len(t.Notes) > 500 {
		return errors.New("notes too long (max 500 characters)")
	}
	return nil
}

// Reconciles reports whether a ledger mutation on this transaction must
// adjust a budget's cached spend: only non-income transactions explicitly
// linked to a budget do.
func (t Transaction) Reconciles() bool {
	return !t.IsIncome && t.BudgetID != ""
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	if err := c.Amount.Validate(); err != nil {
		return err
	}
	return c.Spent.Validate()
}

func (b Budget) Validate() error {
	if strings.TrimSpace(b.UserID) == "" {
		return ErrEmptyUser
	}
	if strings.TrimSpace(b.Name) == "" {
		return ErrEmptyName
	}
	if len(b.Name) > 100 {
		return errors.New("name too long (max 100 characters)")
	}
	if err := b.TotalAmount.Validate(); err != nil {
		return err
	}
	if b.StartDate.IsZero() || b.EndDate.IsZero() {
		return ErrZeroDate
	}
	if b.EndDate.Before(b.StartDate) {
		return ErrInvertedPeriod
	}
	if b.IsRecurring && !b.Period.Valid() {
		return ErrInvalidPeriod
	}
	seen := make(map[string]struct{}, len(b.Categories))
	for _, c := range b.Categories {
		if err := c.Validate(); err != nil {
			return err
		}
		if c.ID != "" {
			if _, dup := seen[c.ID]; dup {
				return ErrDuplicateCatID
			}
			seen[c.ID] = struct{}{}
		}
	}
	return nil
}

// Covers reports whether the given instant falls inside the budget period.
// Both boundaries are inclusive; the end date covers its whole calendar day.
func (b Budget) Covers(at time.Time) bool {
	if at.Before(b.StartDate) {
		return false
	}
	return at.Before(b.EndDate.AddDate(0, 0, 1))
}

// CategoryIndex returns the position of the first category whose name
// equals the given label, or -1. First match wins on duplicate names so
// that incremental adjustment and full recompute agree.
func (b Budget) CategoryIndex(name string) int {
	for i, c := range b.Categories {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Allocated is the sum of category ceilings.
func (b Budget) Allocated() Money {
	var total int64
	for _, c := range b.Categories {
		total += c.Amount.Paise
	}
	return Money{Paise: total}
}

// Unallocated may be negative when categories over-allocate the total.
// Overflow is reported, never rejected.
func (b Budget) Unallocated() int64 {
	return b.TotalAmount.Paise - b.Allocated().Paise
}

// TotalSpent sums the cached per-category spends.
func (b Budget) TotalSpent() Money {
	var total int64
	for _, c := range b.Categories {
		total += c.Spent.Paise
	}
	return Money{Paise: total}
}

// Clone returns a deep copy so callers can mutate categories without
// aliasing the original slice.
func (b Budget) Clone() Budget {
	out := b
	out.Categories = make([]Category, len(b.Categories))
	copy(out.Categories, b.Categories)
	return out
}
