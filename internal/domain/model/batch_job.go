package model

import (
	"encoding/json"
	"time"
)

type BatchJobState string

const (
	BatchStateQueued     BatchJobState = "Queued" // waiting in the async queue
	BatchStateBuilding   BatchJobState = "Building"
	BatchStateSubmitted  BatchJobState = "Submitted"
	BatchStatePolling    BatchJobState = "Polling"
	BatchStateReconciled BatchJobState = "Reconciled"
	BatchStateReported   BatchJobState = "Reported"
	BatchStateErrored    BatchJobState = "Errored"
)

// IsFinal reports whether no further transition is expected.
func (s BatchJobState) IsFinal() bool {
	return s == BatchStateReported || s == BatchStateErrored
}

// BatchJob is the ledger entry for one batch evaluation.
type BatchJob struct {
	ID           string            `json:"id"`
	EvaluationID string            `json:"evaluation_id"`
	UserID       string            `json:"user_id,omitempty"`
	State        BatchJobState     `json:"state"`
	Tokens       []string          `json:"tokens,omitempty"`
	TokenMap     map[string]string `json:"token_map,omitempty"`
	Request      json.RawMessage   `json:"-"`
	Outcome      json.RawMessage   `json:"outcome,omitempty"`
	LastError    *string           `json:"last_error,omitempty"`
	Attempts     int               `json:"attempts"`
	TimeoutMs    int64             `json:"timeout_ms"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}
