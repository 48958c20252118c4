package core

// OtherBucket is the synthetic category label the period view uses for
// transactions whose category string matches none of the budget's
// categories.
const OtherBucket = "Other"

// CategorySpend is one row of an aggregation result.
type CategorySpend struct {
	CategoryID string
	Name       string
	Allocated  Money
	Spent      Money
}

// SpendReport is the result of aggregating a transaction set against a
// budget's category list.
type SpendReport struct {
	BudgetID   string
	Categories []CategorySpend
	TotalSpent Money
}

// SpendByLink aggregates by explicit budget linkage: only non-income
// transactions whose BudgetID equals the budget's id count, regardless of
// date. This is the view that feeds Category.Spent. Transactions whose
// category label matches no budget category are dropped, mirroring the
// incremental path which has no category to adjust for them.
func SpendByLink(b Budget, txs []Transaction) SpendReport {
	report := emptyReport(b)
	for _, tx := range txs {
		if tx.UserID != b.UserID || tx.IsIncome || tx.BudgetID != b.ID {
			continue
		}
		if i := b.CategoryIndex(tx.Category); i >= 0 {
			report.Categories[i].Spent.Paise += tx.Amount.Paise
			report.TotalSpent.Paise += tx.Amount.Paise
		}
	}
	return report
}

// SpendByPeriod aggregates by period membership: every non-income
// transaction of the owner dated inside [StartDate, EndDate] counts,
// linked or not. Unmatched category labels are collected into a synthetic
// "Other" row appended after the budget's own categories.
//
// The two views use deliberately different predicates and are not
// guaranteed to agree; callers must never substitute one for the other.
func SpendByPeriod(b Budget, txs []Transaction) SpendReport {
	report := emptyReport(b)
	var other int64
	for _, tx := range txs {
		if tx.UserID != b.UserID || tx.IsIncome || !b.Covers(tx.Date) {
			continue
		}
		if i := b.CategoryIndex(tx.Category); i >= 0 {
			report.Categories[i].Spent.Paise += tx.Amount.Paise
		} else {
			other += tx.Amount.Paise
		}
		report.TotalSpent.Paise += tx.Amount.Paise
	}
	if other > 0 {
		report.Categories = append(report.Categories, CategorySpend{
			Name:  OtherBucket,
			Spent: Money{Paise: other},
		})
	}
	return report
}

// RecomputeSpent returns a copy of the budget with every category's Spent
// replaced by the link-view sum over the given transactions. Running it
// twice over the same inputs yields identical results; it is the
// authoritative repair for drifted caches.
func RecomputeSpent(b Budget, txs []Transaction) Budget {
	out := b.Clone()
	report := SpendByLink(b, txs)
	for i := range out.Categories {
		out.Categories[i].Spent = report.Categories[i].Spent
	}
	return out
}

// PercentSpent is spent/ceiling*100, with 0 for a zero ceiling so callers
// never divide by zero.
func PercentSpent(spent, ceiling Money) float64 {
	if ceiling.Paise == 0 {
		return 0
	}
	return float64(spent.Paise) / float64(ceiling.Paise) * 100
}

func emptyReport(b Budget) SpendReport {
	report := SpendReport{
		BudgetID:   b.ID,
		Categories: make([]CategorySpend, len(b.Categories)),
	}
	for i, c := range b.Categories {
		report.Categories[i] = CategorySpend{
			CategoryID: c.ID,
			Name:       c.Name,
			Allocated:  c.Amount,
		}
	}
	return report
}
