package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

var errMissingIdentifiers = errors.New("rebuild request missing user or budget id")

// RebuildRequest asks the reconcile worker to recompute one budget's
// cached spends from the ledger. It carries only identifiers; the worker
// loads everything else from the store.
type RebuildRequest struct {
	UserID    string    `json:"user_id"`
	BudgetID  string    `json:"budget_id"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

func NewRebuildRequest(userID, budgetID, reason string) *RebuildRequest {
	return &RebuildRequest{
		UserID:    userID,
		BudgetID:  budgetID,
		Reason:    reason,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *RebuildRequest) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// RebuildRequestFromJSON creates a message from JSON bytes
func RebuildRequestFromJSON(data []byte) (*RebuildRequest, error) {
	var msg RebuildRequest
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.UserID == "" || msg.BudgetID == "" {
		return nil, errMissingIdentifiers
	}
	return &msg, nil
}
