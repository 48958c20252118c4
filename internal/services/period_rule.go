// Package services provides business logic and orchestration on top of
// the stores: reconciliation, recurrence, summaries, and the transaction
// and budget operations the API exposes.
//
// This file implements the Strategy Pattern for recurring-budget period
// math. Each period type (weekly, monthly, quarterly, yearly) has its own
// rule that computes a period's end date from its start date.
package services

import (
	"fmt"
	"strings"
	"time"

	"budgetu/internal/core"

	"github.com/google/uuid"
)

// PeriodRule is the strategy interface for period end computation.
type PeriodRule interface {
	// End returns the inclusive last day of the period beginning at start.
	End(start time.Time) time.Time
}

// WeeklyRule implements PeriodRule for 7-day periods.
type WeeklyRule struct{}

func (WeeklyRule) End(start time.Time) time.Time {
	return start.AddDate(0, 0, 6)
}

// MonthlyRule implements PeriodRule for calendar months: the period ends
// on the last day of the start date's month, whatever its length.
type MonthlyRule struct{}

func (MonthlyRule) End(start time.Time) time.Time {
	// Day zero of the next month is the last day of this one.
	return time.Date(start.Year(), start.Month()+1, 0, 0, 0, 0, 0, start.Location())
}

// QuarterlyRule implements PeriodRule for three-month periods.
type QuarterlyRule struct{}

func (QuarterlyRule) End(start time.Time) time.Time {
	return start.AddDate(0, 3, 0).AddDate(0, 0, -1)
}

// YearlyRule implements PeriodRule for one-year periods.
type YearlyRule struct{}

func (YearlyRule) End(start time.Time) time.Time {
	return start.AddDate(1, 0, 0).AddDate(0, 0, -1)
}

// periodRules maps period types to their rules.
var periodRules = map[core.RecurringPeriod]PeriodRule{
	core.Weekly:    WeeklyRule{},
	core.Monthly:   MonthlyRule{},
	core.Quarterly: QuarterlyRule{},
	core.Yearly:    YearlyRule{},
}

// GetPeriodRule returns the rule for a period type, or an error for an
// unknown one.
func GetPeriodRule(period core.RecurringPeriod) (PeriodRule, error) {
	rule, ok := periodRules[period]
	if !ok {
		return nil, fmt.Errorf("unknown recurring period: %s", period)
	}
	return rule, nil
}

// RegisterPeriodRule registers a rule for a new period type.
func RegisterPeriodRule(period core.RecurringPeriod, rule PeriodRule) {
	periodRules[period] = rule
}

// NextPeriod computes the next instance's boundaries for a recurring
// budget: the day after the current end date, through the period rule's
// end. Returns core.ErrNotRecurring for non-recurring budgets.
func NextPeriod(b core.Budget) (start, end time.Time, err error) {
	if !b.IsRecurring {
		return time.Time{}, time.Time{}, core.ErrNotRecurring
	}
	rule, err := GetPeriodRule(b.Period)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start = b.EndDate.AddDate(0, 0, 1)
	return start, rule.End(start), nil
}

// NextRecurring builds the next period's budget from a recurring source:
// same owner, ceiling and cadence, fresh ids, every category cloned with
// its spend reset to zero. Deactivating the source is the caller's job;
// the two writes are not atomic and a crash between them leaves two
// active budgets until the next rollover pass.
func NextRecurring(b core.Budget, now time.Time) (core.Budget, error) {
	start, end, err := NextPeriod(b)
	if err != nil {
		return core.Budget{}, err
	}
	next := core.Budget{
		ID:          uuid.NewString(),
		UserID:      b.UserID,
		Name:        nextBudgetName(b.Name, start),
		TotalAmount: b.TotalAmount,
		StartDate:   start,
		EndDate:     end,
		IsActive:    true,
		IsRecurring: true,
		Period:      b.Period,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	next.Categories = make([]core.Category, len(b.Categories))
	for i, c := range b.Categories {
		next.Categories[i] = core.Category{
			ID:          uuid.NewString(),
			Name:        c.Name,
			Amount:      c.Amount,
			Color:       c.Color,
			Icon:        c.Icon,
			IsEssential: c.IsEssential,
		}
	}
	return next, nil
}

// nextBudgetName keeps the first word of the old name and appends the new
// period's month and year. The convention reads naturally for monthly
// budgets and degrades to a usable, if odd, name for other cadences.
func nextBudgetName(old string, start time.Time) string {
	base := old
	if fields := strings.Fields(old); len(fields) > 0 {
		base = fields[0]
	}
	return base + " " + start.Format("January 2006")
}
