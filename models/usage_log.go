package models

import (
	"time"

	"github.com/google/uuid"
)

// UsageLogEntry records one physical provider invocation attempt,
// successful or not. Entries are append-only: the routing manager creates
// one immediately after each adapter call resolves, and nothing mutates
// them afterwards. Failed attempts are recorded too, since they may have
// incurred partial cost and feed provider health reporting.
type UsageLogEntry struct {
	ID            uuid.UUID `json:"id" db:"id"`
	OrgID         uuid.UUID `json:"org_id" db:"org_id"`
	ModelConfigID uuid.UUID `json:"model_config_id" db:"model_config_id"`

	// UserID is nil for system-initiated calls (diagnostics, health checks).
	UserID *uuid.UUID `json:"user_id,omitempty" db:"user_id"`

	TaskType string `json:"task_type,omitempty" db:"task_type"`

	PromptTokens     int     `json:"prompt_tokens" db:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens" db:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens" db:"total_tokens"`
	Cost             float64 `json:"cost" db:"cost"`
	LatencyMs        int     `json:"latency_ms" db:"latency_ms"`

	Success      bool    `json:"success" db:"success"`
	ErrorMessage *string `json:"error_message,omitempty" db:"error_message"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the UsageLogEntry model
func (UsageLogEntry) TableName() string {
	return "usage_logs"
}

// NewUsageLogEntry creates a usage log entry for one provider attempt.
func NewUsageLogEntry(orgID, modelConfigID uuid.UUID, taskType string) *UsageLogEntry {
	return &UsageLogEntry{
		ID:            uuid.New(),
		OrgID:         orgID,
		ModelConfigID: modelConfigID,
		TaskType:      taskType,
		CreatedAt:     time.Now(),
	}
}

// MarkSuccess fills in the entry for a successful attempt.
func (e *UsageLogEntry) MarkSuccess(promptTokens, completionTokens int, cost float64, latency time.Duration) {
	e.Success = true
	e.PromptTokens = promptTokens
	e.CompletionTokens = completionTokens
	e.TotalTokens = promptTokens + completionTokens
	e.Cost = cost
	e.LatencyMs = int(latency.Milliseconds())
}

// MarkFailure fills in the entry for a failed attempt. Token counts stay
// zero unless the provider reported partial usage before failing.
func (e *UsageLogEntry) MarkFailure(errMsg string, latency time.Duration) {
	e.Success = false
	e.ErrorMessage = &errMsg
	e.LatencyMs = int(latency.Milliseconds())
}

// SetUser attributes the attempt to a user.
func (e *UsageLogEntry) SetUser(userID uuid.UUID) {
	e.UserID = &userID
}
