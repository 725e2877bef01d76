package activity

import "time"

// ActivityType represents the type of activity event
type ActivityType string

const (
	TypeRequestCompleted   ActivityType = "request_completed"
	TypeRequestFailed      ActivityType = "request_failed"
	TypeConcurrencyChanged ActivityType = "concurrency_changed"
	TypeBudgetAlert        ActivityType = "budget_alert"
	TypeCostReport         ActivityType = "cost_report"
	TypeBatchCompleted     ActivityType = "batch_completed"
)

// SystemUser owns entries that belong to no single user.
const SystemUser = "system"

// ActivityEntry represents an event in the activity log
type ActivityEntry struct {
	ID           int64        `json:"id"`
	UserID     string       `json:"user_id"`
	ActivityType ActivityType `json:"type"`
	Model        string       `json:"model,omitempty"`
	Operation    string       `json:"operation,omitempty"`
	Summary      string       `json:"summary"`
	Details      string       `json:"details,omitempty"` // JSON string
	CreatedAt    time.Time    `json:"created_at"`
}
