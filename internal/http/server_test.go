package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"budgetu/internal/services"
	"budgetu/internal/store/memory"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	mem := memory.New()
	reconciler := services.NewReconciler(mem, mem, nil)

	s := NewServer(Config{
		Addr:               ":0",
		Transactions:       services.NewTransactionService(mem, reconciler),
		Budgets:            services.NewBudgetService(mem, mem, reconciler),
		RateLimitPerMinute: 10000,
	})
	t.Cleanup(func() {
		s.limiter.Stop()
		s.cacheManager.Stop()
	})
	return s
}

func doRequest(t *testing.T, s *Server, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	r := httptest.NewRequest(method, path, &buf)
	if userID != "" {
		r.Header.Set("X-User-ID", userID)
	}
	w := httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(w, r)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(dst); err != nil {
		t.Fatalf("decode response: %v (body: %s)", err, w.Body.String())
	}
}

func createBudget(t *testing.T, s *Server, userID string) budgetView {
	t.Helper()

	w := doRequest(t, s, http.MethodPost, "/api/budgets", userID, map[string]any{
		"name":         "March",
		"total_amount": "10000",
		"start_date":   "2024-03-01",
		"end_date":     "2024-03-31",
		"categories": []map[string]any{
			{"name": "Food", "amount": "3000"},
			{"name": "Books", "amount": "2000"},
		},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create budget status = %d, body: %s", w.Code, w.Body.String())
	}
	var b budgetView
	decodeBody(t, w, &b)
	return b
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		w := doRequest(t, s, http.MethodGet, path, "", nil)
		if w.Code != http.StatusOK {
			t.Errorf("GET %s status = %d, want 200", path, w.Code)
		}
	}

	w := doRequest(t, s, http.MethodGet, "/metrics", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /metrics status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "http_requests_total") {
		t.Errorf("metrics output missing counters: %s", w.Body.String())
	}
}

func TestAPIRequiresIdentity(t *testing.T) {
	s := newTestServer(t)

	w := doRequest(t, s, http.MethodGet, "/api/transactions", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestTransactionLifecycle(t *testing.T) {
	s := newTestServer(t)
	budget := createBudget(t, s, "u1")
	if budget.Allocated.Paise != 500000 {
		t.Errorf("Allocated = %d paise, want 500000", budget.Allocated.Paise)
	}
	if budget.Unallocated.Paise != 500000 {
		t.Errorf("Unallocated = %d paise, want 500000", budget.Unallocated.Paise)
	}

	w := doRequest(t, s, http.MethodPost, "/api/transactions", "u1", map[string]any{
		"amount":    "500",
		"category":  "Food",
		"date":      "2024-03-05",
		"budget_id": budget.ID,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body: %s", w.Code, w.Body.String())
	}
	var created transactionView
	decodeBody(t, w, &created)
	if created.ID == "" {
		t.Fatal("created transaction has no id")
	}
	if created.Amount.Paise != 50000 {
		t.Errorf("Amount = %d paise, want 50000", created.Amount.Paise)
	}

	t.Run("reconciliation reached the linked budget", func(t *testing.T) {
		w := doRequest(t, s, http.MethodGet, "/api/budgets/"+budget.ID, "u1", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("get budget status = %d", w.Code)
		}
		var b budgetView
		decodeBody(t, w, &b)
		if b.Categories[0].Spent.Paise != 50000 {
			t.Errorf("Food spent = %d, want 50000", b.Categories[0].Spent.Paise)
		}
		if b.Revision != 1 {
			t.Errorf("Revision = %d, want 1 after one reconciliation", b.Revision)
		}
	})

	t.Run("update changes amount and budget spend", func(t *testing.T) {
		w := doRequest(t, s, http.MethodPut, "/api/transactions/"+created.ID, "u1", map[string]any{
			"amount":    "700",
			"category":  "Food",
			"date":      "2024-03-05",
			"budget_id": budget.ID,
		})
		if w.Code != http.StatusOK {
			t.Fatalf("update status = %d, body: %s", w.Code, w.Body.String())
		}

		bw := doRequest(t, s, http.MethodGet, "/api/budgets/"+budget.ID, "u1", nil)
		var b budgetView
		decodeBody(t, bw, &b)
		if b.Categories[0].Spent.Paise != 70000 {
			t.Errorf("Food spent = %d after update, want 70000", b.Categories[0].Spent.Paise)
		}
	})

	t.Run("list returns the transaction", func(t *testing.T) {
		w := doRequest(t, s, http.MethodGet, "/api/transactions", "u1", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("list status = %d", w.Code)
		}
		var list transactionListView
		decodeBody(t, w, &list)
		if list.Total != 1 || len(list.Transactions) != 1 {
			t.Errorf("list = %d items, total %d; want 1/1", len(list.Transactions), list.Total)
		}
	})

	t.Run("delete reverses the spend", func(t *testing.T) {
		w := doRequest(t, s, http.MethodDelete, "/api/transactions/"+created.ID, "u1", nil)
		if w.Code != http.StatusNoContent {
			t.Fatalf("delete status = %d", w.Code)
		}

		bw := doRequest(t, s, http.MethodGet, "/api/budgets/"+budget.ID, "u1", nil)
		var b budgetView
		decodeBody(t, bw, &b)
		if b.Categories[0].Spent.Paise != 0 {
			t.Errorf("Food spent = %d after delete, want 0", b.Categories[0].Spent.Paise)
		}
	})

	t.Run("get after delete is 404", func(t *testing.T) {
		w := doRequest(t, s, http.MethodGet, "/api/transactions/"+created.ID, "u1", nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", w.Code)
		}
	})
}

func TestTransactionValidation(t *testing.T) {
	s := newTestServer(t)

	t.Run("missing category", func(t *testing.T) {
		w := doRequest(t, s, http.MethodPost, "/api/transactions", "u1", map[string]any{
			"amount": "10",
			"date":   "2024-03-05",
		})
		if w.Code != http.StatusUnprocessableEntity {
			t.Errorf("status = %d, want 422 (body: %s)", w.Code, w.Body.String())
		}
	})

	t.Run("negative amount rejected at decode", func(t *testing.T) {
		w := doRequest(t, s, http.MethodPost, "/api/transactions", "u1", map[string]any{
			"amount":   "-10",
			"category": "Food",
			"date":     "2024-03-05",
		})
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400 (body: %s)", w.Code, w.Body.String())
		}
	})

	t.Run("malformed date", func(t *testing.T) {
		w := doRequest(t, s, http.MethodPost, "/api/transactions", "u1", map[string]any{
			"amount":   "10",
			"category": "Food",
			"date":     "05/03/2024",
		})
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})

	t.Run("unknown field rejected", func(t *testing.T) {
		w := doRequest(t, s, http.MethodPost, "/api/transactions", "u1", map[string]any{
			"amount":   "10",
			"category": "Food",
			"date":     "2024-03-05",
			"amout":    "10",
		})
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})
}

func TestUserIsolation(t *testing.T) {
	s := newTestServer(t)
	budget := createBudget(t, s, "u1")

	w := doRequest(t, s, http.MethodGet, "/api/budgets/"+budget.ID, "u2", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("cross-user get status = %d, want 404", w.Code)
	}
}

func TestBudgetUpdateConflict(t *testing.T) {
	s := newTestServer(t)
	budget := createBudget(t, s, "u1")

	update := map[string]any{
		"name":         "March v2",
		"total_amount": "12000",
		"start_date":   "2024-03-01",
		"end_date":     "2024-03-31",
		"revision":     budget.Revision,
	}

	w := doRequest(t, s, http.MethodPut, "/api/budgets/"+budget.ID, "u1", update)
	if w.Code != http.StatusOK {
		t.Fatalf("first update status = %d, body: %s", w.Code, w.Body.String())
	}

	// Same revision again: the first update bumped it, so this is stale.
	w = doRequest(t, s, http.MethodPut, "/api/budgets/"+budget.ID, "u1", update)
	if w.Code != http.StatusConflict {
		t.Errorf("stale update status = %d, want 409", w.Code)
	}
}

func TestBudgetRenamePreservesSpent(t *testing.T) {
	s := newTestServer(t)
	budget := createBudget(t, s, "u1")

	w := doRequest(t, s, http.MethodPost, "/api/transactions", "u1", map[string]any{
		"amount":    "500",
		"category":  "Food",
		"date":      "2024-03-05",
		"budget_id": budget.ID,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create transaction status = %d, body: %s", w.Code, w.Body.String())
	}

	w = doRequest(t, s, http.MethodGet, "/api/budgets/"+budget.ID, "u1", nil)
	var before budgetView
	decodeBody(t, w, &before)
	if before.Categories[0].Spent.Paise != 50000 {
		t.Fatalf("Food spent = %d before rename, want 50000", before.Categories[0].Spent.Paise)
	}

	// A rename submits categories without spends; the cached spend and
	// the category ids must survive the round trip.
	w = doRequest(t, s, http.MethodPut, "/api/budgets/"+budget.ID, "u1", map[string]any{
		"name":         "March (groceries heavy)",
		"total_amount": "10000",
		"start_date":   "2024-03-01",
		"end_date":     "2024-03-31",
		"revision":     before.Revision,
		"categories": []map[string]any{
			{"name": "Food", "amount": "3000"},
			{"name": "Books", "amount": "2000"},
		},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("rename status = %d, body: %s", w.Code, w.Body.String())
	}

	w = doRequest(t, s, http.MethodGet, "/api/budgets/"+budget.ID, "u1", nil)
	var after budgetView
	decodeBody(t, w, &after)
	if after.Name != "March (groceries heavy)" {
		t.Errorf("Name = %q, rename not applied", after.Name)
	}
	if after.Categories[0].Spent.Paise != 50000 {
		t.Errorf("Food spent = %d after rename, want 50000", after.Categories[0].Spent.Paise)
	}
	if after.Categories[0].ID != before.Categories[0].ID {
		t.Errorf("Food id changed across edit: %q -> %q",
			before.Categories[0].ID, after.Categories[0].ID)
	}

	t.Run("rename a category by echoing its id", func(t *testing.T) {
		w := doRequest(t, s, http.MethodPut, "/api/budgets/"+budget.ID, "u1", map[string]any{
			"name":         "March (groceries heavy)",
			"total_amount": "10000",
			"start_date":   "2024-03-01",
			"end_date":     "2024-03-31",
			"revision":     after.Revision,
			"categories": []map[string]any{
				{"id": after.Categories[0].ID, "name": "Groceries", "amount": "3000"},
				{"name": "Books", "amount": "2000"},
			},
		})
		if w.Code != http.StatusOK {
			t.Fatalf("category rename status = %d, body: %s", w.Code, w.Body.String())
		}
		var renamed budgetView
		decodeBody(t, w, &renamed)
		if renamed.Categories[0].Name != "Groceries" ||
			renamed.Categories[0].ID != after.Categories[0].ID ||
			renamed.Categories[0].Spent.Paise != 50000 {
			t.Errorf("category rename lost state: %+v", renamed.Categories[0])
		}
	})
}

func TestActiveBudget(t *testing.T) {
	s := newTestServer(t)

	w := doRequest(t, s, http.MethodGet, "/api/budgets/active", "u1", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("no budgets: status = %d, want 404", w.Code)
	}

	// A budget covering today.
	wCreate := doRequest(t, s, http.MethodPost, "/api/budgets", "u1", map[string]any{
		"name":         "Current",
		"total_amount": "10000",
		"start_date":   "2020-01-01",
		"end_date":     "2099-12-31",
	})
	if wCreate.Code != http.StatusCreated {
		t.Fatalf("create status = %d", wCreate.Code)
	}

	w = doRequest(t, s, http.MethodGet, "/api/budgets/active", "u1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("active status = %d, want 200", w.Code)
	}
	var b budgetView
	decodeBody(t, w, &b)
	if b.Name != "Current" {
		t.Errorf("active budget = %q, want Current", b.Name)
	}
}

func TestAddCategoryEndpoint(t *testing.T) {
	s := newTestServer(t)
	budget := createBudget(t, s, "u1")

	w := doRequest(t, s, http.MethodPost, "/api/budgets/"+budget.ID+"/categories", "u1", map[string]any{
		"name":   "Travel",
		"amount": "1500",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("add category status = %d, body: %s", w.Code, w.Body.String())
	}
	var b budgetView
	decodeBody(t, w, &b)
	if len(b.Categories) != 3 {
		t.Fatalf("categories = %d, want 3", len(b.Categories))
	}
	last := b.Categories[2]
	if last.Name != "Travel" || last.Amount.Paise != 150000 || last.ID == "" {
		t.Errorf("unexpected appended category: %+v", last)
	}
}

func TestBudgetPeriodSummary(t *testing.T) {
	s := newTestServer(t)
	budget := createBudget(t, s, "u1")

	// In period, matching category; unlinked on purpose.
	doRequest(t, s, http.MethodPost, "/api/transactions", "u1", map[string]any{
		"amount":   "100",
		"category": "Food",
		"date":     "2024-03-10",
	})
	// In period, category not in the budget: lands in Other.
	doRequest(t, s, http.MethodPost, "/api/transactions", "u1", map[string]any{
		"amount":   "50",
		"category": "Gifts",
		"date":     "2024-03-12",
	})
	// Outside the period: ignored.
	doRequest(t, s, http.MethodPost, "/api/transactions", "u1", map[string]any{
		"amount":   "999",
		"category": "Food",
		"date":     "2024-04-01",
	})

	w := doRequest(t, s, http.MethodGet, "/api/budgets/"+budget.ID+"/summary", "u1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("summary status = %d, body: %s", w.Code, w.Body.String())
	}
	var report spendReportView
	decodeBody(t, w, &report)

	if len(report.Categories) != 3 {
		t.Fatalf("categories = %d, want Food, Books and Other", len(report.Categories))
	}
	if report.Categories[0].Spent.Paise != 10000 {
		t.Errorf("Food spent = %d, want 10000", report.Categories[0].Spent.Paise)
	}
	other := report.Categories[2]
	if other.Name != "Other" || other.Spent.Paise != 5000 {
		t.Errorf("Other bucket = %+v, want 5000 paise", other)
	}
	if report.TotalSpent.Paise != 15000 {
		t.Errorf("TotalSpent = %d, want 15000", report.TotalSpent.Paise)
	}
}

func TestRecurEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := doRequest(t, s, http.MethodPost, "/api/budgets", "u1", map[string]any{
		"name":         "Budget March 2024",
		"total_amount": "10000",
		"start_date":   "2024-03-01",
		"end_date":     "2024-03-31",
		"is_recurring": true,
		"period":       "monthly",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body: %s", w.Code, w.Body.String())
	}
	var b budgetView
	decodeBody(t, w, &b)

	w = doRequest(t, s, http.MethodPost, "/api/budgets/"+b.ID+"/recur", "u1", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("recur status = %d, body: %s", w.Code, w.Body.String())
	}
	var next budgetView
	decodeBody(t, w, &next)
	if next.StartDate != "2024-04-01" || next.EndDate != "2024-04-30" {
		t.Errorf("next period = %s..%s, want 2024-04-01..2024-04-30", next.StartDate, next.EndDate)
	}
	if next.Name != "Budget April 2024" {
		t.Errorf("next name = %q, want %q", next.Name, "Budget April 2024")
	}

	t.Run("source is deactivated", func(t *testing.T) {
		w := doRequest(t, s, http.MethodGet, "/api/budgets/"+b.ID, "u1", nil)
		var src budgetView
		decodeBody(t, w, &src)
		if src.IsActive {
			t.Error("source budget should be inactive after rollover")
		}
	})

	t.Run("non-recurring budget is rejected", func(t *testing.T) {
		plain := createBudget(t, s, "u1")
		w := doRequest(t, s, http.MethodPost, "/api/budgets/"+plain.ID+"/recur", "u1", nil)
		if w.Code != http.StatusUnprocessableEntity {
			t.Errorf("status = %d, want 422", w.Code)
		}
	})
}

func TestRebuildEndpoint(t *testing.T) {
	s := newTestServer(t)
	budget := createBudget(t, s, "u1")

	doRequest(t, s, http.MethodPost, "/api/transactions", "u1", map[string]any{
		"amount":    "250",
		"category":  "Food",
		"date":      "2024-03-10",
		"budget_id": budget.ID,
	})

	w := doRequest(t, s, http.MethodPost, "/api/budgets/"+budget.ID+"/rebuild", "u1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("rebuild status = %d, body: %s", w.Code, w.Body.String())
	}
	var b budgetView
	decodeBody(t, w, &b)
	if b.Categories[0].Spent.Paise != 25000 {
		t.Errorf("Food spent = %d after rebuild, want 25000", b.Categories[0].Spent.Paise)
	}
}

func TestSpendingSummaryEndpoint(t *testing.T) {
	s := newTestServer(t)

	doRequest(t, s, http.MethodPost, "/api/transactions", "u1", map[string]any{
		"amount":    "1000",
		"category":  "Salary",
		"date":      "2024-03-01",
		"is_income": true,
	})
	doRequest(t, s, http.MethodPost, "/api/transactions", "u1", map[string]any{
		"amount":   "300",
		"category": "Food",
		"date":     "2024-03-05",
	})

	w := doRequest(t, s, http.MethodGet, "/api/transactions/summary", "u1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("summary status = %d, body: %s", w.Code, w.Body.String())
	}
	var summary summaryView
	decodeBody(t, w, &summary)

	if summary.Income.Paise != 100000 {
		t.Errorf("Income = %d, want 100000", summary.Income.Paise)
	}
	if summary.Expenses.Paise != 30000 {
		t.Errorf("Expenses = %d, want 30000", summary.Expenses.Paise)
	}
	if summary.Balance.Paise != 70000 {
		t.Errorf("Balance = %d, want 70000", summary.Balance.Paise)
	}
	if len(summary.Breakdown) != 1 || summary.Breakdown[0].Category != "Food" {
		t.Fatalf("unexpected breakdown: %+v", summary.Breakdown)
	}
	if summary.Breakdown[0].Color != "#ec4899" {
		t.Errorf("Food color = %q, want palette color", summary.Breakdown[0].Color)
	}

	t.Run("mutation invalidates the cached summary", func(t *testing.T) {
		doRequest(t, s, http.MethodPost, "/api/transactions", "u1", map[string]any{
			"amount":   "200",
			"category": "Books",
			"date":     "2024-03-06",
		})

		w := doRequest(t, s, http.MethodGet, "/api/transactions/summary", "u1", nil)
		var fresh summaryView
		decodeBody(t, w, &fresh)
		if fresh.Expenses.Paise != 50000 {
			t.Errorf("Expenses = %d after new transaction, want 50000", fresh.Expenses.Paise)
		}
	})
}

func TestListFilterValidation(t *testing.T) {
	s := newTestServer(t)

	cases := []string{
		"/api/transactions?from=bad-date",
		"/api/transactions?is_income=maybe",
		"/api/transactions?limit=0",
		"/api/transactions?offset=-1",
	}
	for _, path := range cases {
		w := doRequest(t, s, http.MethodGet, path, "u1", nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("GET %s status = %d, want 400", path, w.Code)
		}
	}
}

func TestListPagination(t *testing.T) {
	s := newTestServer(t)

	for i := 0; i < 5; i++ {
		doRequest(t, s, http.MethodPost, "/api/transactions", "u1", map[string]any{
			"amount":   "10",
			"category": "Food",
			"date":     fmt.Sprintf("2024-03-%02d", i+1),
		})
	}

	w := doRequest(t, s, http.MethodGet, "/api/transactions?limit=2&offset=2", "u1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var list transactionListView
	decodeBody(t, w, &list)
	if len(list.Transactions) != 2 {
		t.Errorf("page size = %d, want 2", len(list.Transactions))
	}
	if list.Total != 5 {
		t.Errorf("total = %d, want 5 (unpaginated)", list.Total)
	}
}
