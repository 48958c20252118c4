package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"budgetu/internal/core"
	"budgetu/internal/store"
)

// maxBodyBytes caps request bodies; nothing in this API needs more.
const maxBodyBytes = 1 << 20

const dateLayout = "2006-01-02"

var errEmptyBody = errors.New("empty request body")

// decodeJSON reads and unmarshals a request body, rejecting unknown
// fields so typos fail loudly instead of silently dropping data.
func decodeJSON(r *http.Request, dst any) error {
	body := http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

// parseDate parses a YYYY-MM-DD date into a UTC midnight instant.
func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return t.UTC(), nil
}

type transactionRequest struct {
	Amount        core.Money `json:"amount"`
	Category      string     `json:"category"`
	Date          string     `json:"date"`
	IsIncome      bool       `json:"is_income"`
	BudgetID      string     `json:"budget_id"`
	PaymentMethod string     `json:"payment_method"`
	Location      string     `json:"location"`
	ReceiptImage  string     `json:"receipt_image"`
	Notes         string     `json:"notes"`
	ExternalID    string     `json:"external_id"`
}

func (req transactionRequest) toDomain(userID string) (core.Transaction, error) {
	date, err := parseDate(req.Date)
	if err != nil {
		return core.Transaction{}, err
	}
	return core.Transaction{
		UserID:        userID,
		Amount:        req.Amount,
		Category:      strings.TrimSpace(req.Category),
		Date:          date,
		IsIncome:      req.IsIncome,
		BudgetID:      strings.TrimSpace(req.BudgetID),
		PaymentMethod: strings.TrimSpace(req.PaymentMethod),
		Location:      strings.TrimSpace(req.Location),
		ReceiptImage:  strings.TrimSpace(req.ReceiptImage),
		Notes:         strings.TrimSpace(req.Notes),
		ExternalID:    strings.TrimSpace(req.ExternalID),
	}, nil
}

// categoryRequest optionally echoes the id a client fetched; budget
// updates use it to keep category identity stable across edits. There
// is deliberately no spent field: spends belong to reconciliation.
type categoryRequest struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Amount      core.Money `json:"amount"`
	Color       string     `json:"color"`
	Icon        string     `json:"icon"`
	IsEssential bool       `json:"is_essential"`
}

func (req categoryRequest) toDomain() core.Category {
	return core.Category{
		ID:          strings.TrimSpace(req.ID),
		Name:        strings.TrimSpace(req.Name),
		Amount:      req.Amount,
		Color:       strings.TrimSpace(req.Color),
		Icon:        strings.TrimSpace(req.Icon),
		IsEssential: req.IsEssential,
	}
}

type budgetRequest struct {
	Name        string            `json:"name"`
	TotalAmount core.Money        `json:"total_amount"`
	StartDate   string            `json:"start_date"`
	EndDate     string            `json:"end_date"`
	Categories  []categoryRequest `json:"categories"`
	IsActive    *bool             `json:"is_active"`
	IsRecurring bool              `json:"is_recurring"`
	Period      string            `json:"period"`
	Revision    int64             `json:"revision"`
}

func (req budgetRequest) toDomain(userID string) (core.Budget, error) {
	start, err := parseDate(req.StartDate)
	if err != nil {
		return core.Budget{}, err
	}
	end, err := parseDate(req.EndDate)
	if err != nil {
		return core.Budget{}, err
	}

	b := core.Budget{
		UserID:      userID,
		Name:        strings.TrimSpace(req.Name),
		TotalAmount: req.TotalAmount,
		StartDate:   start,
		EndDate:     end,
		IsActive:    true,
		IsRecurring: req.IsRecurring,
		Period:      core.RecurringPeriod(strings.ToLower(strings.TrimSpace(req.Period))),
		Revision:    req.Revision,
	}
	if req.IsActive != nil {
		b.IsActive = *req.IsActive
	}
	b.Categories = make([]core.Category, 0, len(req.Categories))
	for _, c := range req.Categories {
		b.Categories = append(b.Categories, c.toDomain())
	}
	return b, nil
}

// parseTransactionFilter reads the list query parameters. Unparseable
// values are rejected rather than ignored.
func parseTransactionFilter(r *http.Request, userID string) (store.TransactionFilter, error) {
	f := store.TransactionFilter{
		UserID: userID,
		Limit:  50,
	}
	q := r.URL.Query()

	if v := strings.TrimSpace(q.Get("from")); v != "" {
		from, err := parseDate(v)
		if err != nil {
			return f, err
		}
		f.From = from
	}
	if v := strings.TrimSpace(q.Get("to")); v != "" {
		to, err := parseDate(v)
		if err != nil {
			return f, err
		}
		f.To = to
	}
	f.Category = strings.TrimSpace(q.Get("category"))
	f.BudgetID = strings.TrimSpace(q.Get("budget_id"))

	if v := strings.TrimSpace(q.Get("is_income")); v != "" {
		isIncome, err := strconv.ParseBool(v)
		if err != nil {
			return f, fmt.Errorf("invalid is_income %q: expected true or false", v)
		}
		f.IsIncome = &isIncome
	}
	if v := strings.TrimSpace(q.Get("limit")); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			return f, fmt.Errorf("invalid limit %q", v)
		}
		if limit > 200 {
			limit = 200
		}
		f.Limit = limit
	}
	if v := strings.TrimSpace(q.Get("offset")); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			return f, fmt.Errorf("invalid offset %q", v)
		}
		f.Offset = offset
	}

	return f, nil
}

// parseDateRange reads optional from/to query parameters for summaries.
func parseDateRange(r *http.Request) (from, to time.Time, err error) {
	q := r.URL.Query()
	if v := strings.TrimSpace(q.Get("from")); v != "" {
		if from, err = parseDate(v); err != nil {
			return
		}
	}
	if v := strings.TrimSpace(q.Get("to")); v != "" {
		if to, err = parseDate(v); err != nil {
			return
		}
	}
	return
}
