package http

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"budgetu/internal/core"
	"budgetu/internal/middleware/auth"
)

func (s *Server) handleCreateBudget(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())

	var req budgetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	b, err := req.toDomain(userID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := b.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	created, err := s.budgets.Create(r.Context(), b)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	slog.InfoContext(r.Context(), "Budget created",
		"budget_id", created.ID,
		"name", created.Name,
		"categories", len(created.Categories),
		"recurring", created.IsRecurring)
	writeJSON(w, http.StatusCreated, viewBudget(created))
}

func (s *Server) handleListBudgets(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())

	budgets, err := s.budgets.List(r.Context(), userID)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewBudgets(budgets))
}

func (s *Server) handleActiveBudget(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())

	b, err := s.budgets.Active(r.Context(), userID, time.Now().UTC())
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewBudget(b))
}

func (s *Server) handleGetBudget(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())

	b, err := s.budgets.Get(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewBudget(b))
}

// handleUpdateBudget carries the client's revision through to the store;
// a concurrent reconciliation bump turns into a 409 rather than a lost
// update.
func (s *Server) handleUpdateBudget(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())

	var req budgetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	b, err := req.toDomain(userID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	b.ID = r.PathValue("id")
	if err := b.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	updated, err := s.budgets.Update(r.Context(), b)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewBudget(updated))
}

func (s *Server) handleDeleteBudget(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())

	if err := s.budgets.Delete(r.Context(), userID, r.PathValue("id")); err != nil {
		writeStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddCategory(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())

	var req categoryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	c := req.toDomain()
	if err := c.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	b, err := s.budgets.AddCategory(r.Context(), userID, r.PathValue("id"), c)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewBudget(b))
}

func (s *Server) handleBudgetSummary(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())

	report, err := s.budgets.PeriodSummary(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewSpendReport(report))
}

func (s *Server) handleRecurBudget(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())
	budgetID := r.PathValue("id")

	next, err := s.budgets.Recur(r.Context(), userID, budgetID, time.Now().UTC())
	if err != nil {
		if errors.Is(err, core.ErrNotRecurring) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeStoreError(w, r, err)
		return
	}

	slog.InfoContext(r.Context(), "Budget rolled over",
		"budget_id", budgetID, "next_id", next.ID)
	writeJSON(w, http.StatusCreated, viewBudget(next))
}

func (s *Server) handleRebuildBudget(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())
	budgetID := r.PathValue("id")

	b, err := s.budgets.Rebuild(r.Context(), userID, budgetID)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	slog.InfoContext(r.Context(), "Budget rebuilt", "budget_id", budgetID)
	writeJSON(w, http.StatusOK, viewBudget(b))
}
