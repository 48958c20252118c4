package services

import (
	"fmt"
	"hash/fnv"
	"sort"

	"budgetu/internal/core"
)

// CategoryBreakdown is one row of the spending summary: an expense
// category's total, its share of all expenses, and a display color.
type CategoryBreakdown struct {
	Category   string
	Amount     core.Money
	Count      int
	Percentage float64
	Color      string
}

// SpendingSummary is the read-side aggregate over a date-filtered slice
// of the ledger. Balance may be negative.
type SpendingSummary struct {
	Income    core.Money
	Expenses  core.Money
	Balance   core.Money
	Breakdown []CategoryBreakdown
}

// BuildSpendingSummary totals income and expenses and breaks expenses
// down by category label, largest first. Categories tie-break
// alphabetically so the ordering is stable.
func BuildSpendingSummary(txs []core.Transaction) SpendingSummary {
	var summary SpendingSummary
	byCategory := make(map[string]*CategoryBreakdown)

	for _, tx := range txs {
		if tx.IsIncome {
			summary.Income.Paise += tx.Amount.Paise
			continue
		}
		summary.Expenses.Paise += tx.Amount.Paise
		row, ok := byCategory[tx.Category]
		if !ok {
			row = &CategoryBreakdown{Category: tx.Category}
			byCategory[tx.Category] = row
		}
		row.Amount.Paise += tx.Amount.Paise
		row.Count++
	}
	summary.Balance.Paise = summary.Income.Paise - summary.Expenses.Paise

	summary.Breakdown = make([]CategoryBreakdown, 0, len(byCategory))
	for _, row := range byCategory {
		if summary.Expenses.Paise > 0 {
			row.Percentage = float64(row.Amount.Paise) / float64(summary.Expenses.Paise) * 100
		}
		row.Color = CategoryColor(row.Category)
		summary.Breakdown = append(summary.Breakdown, *row)
	}
	sort.Slice(summary.Breakdown, func(i, j int) bool {
		a, b := summary.Breakdown[i], summary.Breakdown[j]
		if a.Amount.Paise != b.Amount.Paise {
			return a.Amount.Paise > b.Amount.Paise
		}
		return a.Category < b.Category
	})
	return summary
}

// categoryColors is the fixed palette for well-known category labels.
var categoryColors = map[string]string{
	"Housing":        "#8b5cf6",
	"Food":           "#ec4899",
	"Shopping":       "#14b8a6",
	"Entertainment":  "#f59e0b",
	"Education":      "#3b82f6",
	"Transportation": "#06b6d4",
	"Utilities":      "#10b981",
	"Healthcare":     "#ef4444",
	"Groceries":      "#84cc16",
	"Rent":           "#9333ea",
	"Other":          "#6b7280",
}

// CategoryColor returns the palette color for known labels and a stable
// hash-derived color otherwise, so the same label always renders the
// same across requests.
func CategoryColor(category string) string {
	if color, ok := categoryColors[category]; ok {
		return color
	}
	h := fnv.New32a()
	h.Write([]byte(category))
	return fmt.Sprintf("#%06x", h.Sum32()&0xffffff)
}
