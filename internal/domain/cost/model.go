package cost

import "time"

// Period selects the rolling window for statistics
type Period string

const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

// Duration returns the length of the rolling window.
func (p Period) Duration() (time.Duration, bool) {
	switch p {
	case PeriodDay:
		return 24 * time.Hour, true
	case PeriodWeek:
		return 7 * 24 * time.Hour, true
	case PeriodMonth:
		return 30 * 24 * time.Hour, true
	default:
		return 0, false
	}
}

// UsageRecord is one row of the per-user usage ledger.
type UsageRecord struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Model        string    `json:"model"`
	Operation    string    `json:"operation"`
	ReferenceID  string    `json:"reference_id,omitempty"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	Cost         float64   `json:"cost"`
	CreatedAt    time.Time `json:"created_at"`
}

// Totals aggregates ledger rows.
type Totals struct {
	Cost         float64 `json:"cost"`
	Tokens       int     `json:"tokens"`
	RequestCount int     `json:"request_count"`
}

func (t *Totals) add(rec UsageRecord) {
	t.Cost += rec.Cost
	t.Tokens += rec.InputTokens + rec.OutputTokens
	t.RequestCount++
}

// BudgetLimits are a user's spend ceilings in USD. Zero disables a ceiling.
type BudgetLimits struct {
	DailyLimit   float64   `json:"daily_limit"`
	MonthlyLimit float64   `json:"monthly_limit"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

// AlertScope names the budget an alert refers to
type AlertScope string

const (
	ScopeDaily   AlertScope = "daily"
	ScopeMonthly AlertScope = "monthly"
)

// AlertLevel is the severity of a budget alert
type AlertLevel string

const (
	LevelWarning  AlertLevel = "warning"
	LevelExceeded AlertLevel = "exceeded"
)

// Alert reports spend at or past a threshold of a ceiling.
type Alert struct {
	Scope       AlertScope `json:"scope"`
	Level       AlertLevel `json:"level"`
	Spent       float64    `json:"spent"`
	Limit       float64    `json:"limit"`
	Utilization float64    `json:"utilization"`
}

// TrackResult is returned by TrackUsage.
type TrackResult struct {
	Cost         float64 `json:"cost"`
	WithinBudget bool    `json:"within_budget"`
	Alerts       []Alert `json:"alerts,omitempty"`
}

// CostStats summarizes spend over a period.
type CostStats struct {
	Period            Period            `json:"period"`
	TotalCost         float64           `json:"total_cost"`
	TotalTokens       int               `json:"total_tokens"`
	RequestCount      int               `json:"request_count"`
	PerOperation      map[string]Totals `json:"per_operation"`
	PerModel          map[string]Totals `json:"per_model"`
	BudgetUtilization float64           `json:"budget_utilization"`
}

// Recommendation is the model advised for an upcoming call.
type Recommendation struct {
	Model         string  `json:"model"`
	EstimatedCost float64 `json:"estimated_cost"`
	Reason        string  `json:"reason"`
}
