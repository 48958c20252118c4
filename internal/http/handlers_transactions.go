package http

import (
	"log/slog"
	"net/http"

	"budgetu/internal/middleware/auth"
)

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())

	var req transactionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tx, err := req.toDomain(userID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := tx.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	created, err := s.transactions.Create(r.Context(), tx)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	s.invalidateSummaries(userID)
	slog.InfoContext(r.Context(), "Transaction created",
		"transaction_id", created.ID,
		"category", created.Category,
		"amount_paise", created.Amount.Paise,
		"is_income", created.IsIncome)
	writeJSON(w, http.StatusCreated, viewTransaction(created))
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())

	filter, err := parseTransactionFilter(r, userID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	txs, total, err := s.transactions.List(r.Context(), filter)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	view := transactionListView{
		Transactions: make([]transactionView, 0, len(txs)),
		Total:        total,
		Limit:        filter.Limit,
		Offset:       filter.Offset,
	}
	for _, tx := range txs {
		view.Transactions = append(view.Transactions, viewTransaction(tx))
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())

	tx, err := s.transactions.Get(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewTransaction(tx))
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())

	var req transactionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tx, err := req.toDomain(userID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tx.ID = r.PathValue("id")
	if err := tx.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	updated, err := s.transactions.Update(r.Context(), tx)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	s.invalidateSummaries(userID)
	writeJSON(w, http.StatusOK, viewTransaction(updated))
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())

	if err := s.transactions.Delete(r.Context(), userID, r.PathValue("id")); err != nil {
		writeStoreError(w, r, err)
		return
	}

	s.invalidateSummaries(userID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSpendingSummary(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())

	from, to, err := parseDateRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	key := summaryCacheKey(userID, from, to)
	if cached, found := s.summaryCache.Get(key); found {
		slog.DebugContext(r.Context(), "Summary cache hit", "user_id", userID)
		writeJSON(w, http.StatusOK, viewSummary(cached))
		return
	}

	summary, err := s.transactions.Summary(r.Context(), userID, from, to)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	s.summaryCache.Set(key, summary)
	writeJSON(w, http.StatusOK, viewSummary(summary))
}
