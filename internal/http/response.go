package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"budgetu/internal/core"
	"budgetu/internal/services"
	"budgetu/internal/store"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeStoreError maps the store sentinels onto HTTP statuses; anything
// unexpected is a 500 with the detail kept in the log, not the body.
func writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, "budget was modified concurrently, re-fetch and retry")
	default:
		slog.ErrorContext(r.Context(), "Request failed", "error", err, "path", r.URL.Path)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

type transactionView struct {
	ID            string     `json:"id"`
	Amount        core.Money `json:"amount"`
	Category      string     `json:"category"`
	Date          string     `json:"date"`
	IsIncome      bool       `json:"is_income"`
	BudgetID      string     `json:"budget_id,omitempty"`
	PaymentMethod string     `json:"payment_method,omitempty"`
	Location      string     `json:"location,omitempty"`
	ReceiptImage  string     `json:"receipt_image,omitempty"`
	Notes         string     `json:"notes,omitempty"`
	ExternalID    string     `json:"external_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func viewTransaction(tx core.Transaction) transactionView {
	return transactionView{
		ID:            tx.ID,
		Amount:        tx.Amount,
		Category:      tx.Category,
		Date:          tx.Date.Format(dateLayout),
		IsIncome:      tx.IsIncome,
		BudgetID:      tx.BudgetID,
		PaymentMethod: tx.PaymentMethod,
		Location:      tx.Location,
		ReceiptImage:  tx.ReceiptImage,
		Notes:         tx.Notes,
		ExternalID:    tx.ExternalID,
		CreatedAt:     tx.CreatedAt,
		UpdatedAt:     tx.UpdatedAt,
	}
}

type transactionListView struct {
	Transactions []transactionView `json:"transactions"`
	Total        int64             `json:"total"`
	Limit        int               `json:"limit"`
	Offset       int               `json:"offset"`
}

type categoryView struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Amount      core.Money `json:"amount"`
	Spent       core.Money `json:"spent"`
	Color       string     `json:"color,omitempty"`
	Icon        string     `json:"icon,omitempty"`
	IsEssential bool       `json:"is_essential"`
}

type budgetView struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	TotalAmount core.Money     `json:"total_amount"`
	StartDate   string         `json:"start_date"`
	EndDate     string         `json:"end_date"`
	Categories  []categoryView `json:"categories"`
	IsActive    bool           `json:"is_active"`
	IsRecurring bool           `json:"is_recurring"`
	Period      string         `json:"period,omitempty"`
	Revision    int64          `json:"revision"`
	TotalSpent  core.Money     `json:"total_spent"`
	Allocated   core.Money     `json:"allocated"`
	Unallocated core.Money     `json:"unallocated"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func viewBudget(b core.Budget) budgetView {
	v := budgetView{
		ID:          b.ID,
		Name:        b.Name,
		TotalAmount: b.TotalAmount,
		StartDate:   b.StartDate.Format(dateLayout),
		EndDate:     b.EndDate.Format(dateLayout),
		Categories:  make([]categoryView, 0, len(b.Categories)),
		IsActive:    b.IsActive,
		IsRecurring: b.IsRecurring,
		Period:      string(b.Period),
		Revision:    b.Revision,
		TotalSpent:  b.TotalSpent(),
		Allocated:   b.Allocated(),
		Unallocated: core.Money{Paise: b.Unallocated()},
		CreatedAt:   b.CreatedAt,
		UpdatedAt:   b.UpdatedAt,
	}
	for _, c := range b.Categories {
		v.Categories = append(v.Categories, categoryView{
			ID:          c.ID,
			Name:        c.Name,
			Amount:      c.Amount,
			Spent:       c.Spent,
			Color:       c.Color,
			Icon:        c.Icon,
			IsEssential: c.IsEssential,
		})
	}
	return v
}

func viewBudgets(budgets []core.Budget) []budgetView {
	out := make([]budgetView, 0, len(budgets))
	for _, b := range budgets {
		out = append(out, viewBudget(b))
	}
	return out
}

type breakdownView struct {
	Category   string     `json:"category"`
	Amount     core.Money `json:"amount"`
	Count      int        `json:"count"`
	Percentage float64    `json:"percentage"`
	Color      string     `json:"color"`
}

type summaryView struct {
	Income    core.Money      `json:"income"`
	Expenses  core.Money      `json:"expenses"`
	Balance   core.Money      `json:"balance"`
	Breakdown []breakdownView `json:"breakdown"`
}

func viewSummary(s services.SpendingSummary) summaryView {
	v := summaryView{
		Income:    s.Income,
		Expenses:  s.Expenses,
		Balance:   s.Balance,
		Breakdown: make([]breakdownView, 0, len(s.Breakdown)),
	}
	for _, row := range s.Breakdown {
		v.Breakdown = append(v.Breakdown, breakdownView{
			Category:   row.Category,
			Amount:     row.Amount,
			Count:      row.Count,
			Percentage: row.Percentage,
			Color:      row.Color,
		})
	}
	return v
}

type categorySpendView struct {
	CategoryID string     `json:"category_id,omitempty"`
	Name       string     `json:"name"`
	Allocated  core.Money `json:"allocated"`
	Spent      core.Money `json:"spent"`
}

type spendReportView struct {
	BudgetID   string              `json:"budget_id"`
	Categories []categorySpendView `json:"categories"`
	TotalSpent core.Money          `json:"total_spent"`
}

func viewSpendReport(r core.SpendReport) spendReportView {
	v := spendReportView{
		BudgetID:   r.BudgetID,
		Categories: make([]categorySpendView, 0, len(r.Categories)),
		TotalSpent: r.TotalSpent,
	}
	for _, c := range r.Categories {
		v.Categories = append(v.Categories, categorySpendView{
			CategoryID: c.CategoryID,
			Name:       c.Name,
			Allocated:  c.Allocated,
			Spent:      c.Spent,
		})
	}
	return v
}
