package mcp

import (
	"time"

	"github.com/PBLIZZ/MindfulCRM-sub000/internal/concurrency"
	"github.com/PBLIZZ/MindfulCRM-sub000/internal/domain/cost"
	"github.com/PBLIZZ/MindfulCRM-sub000/internal/domain/event"
	"github.com/PBLIZZ/MindfulCRM-sub000/internal/ratelimit"
)

// ToolDefinition describes one tool exposed to clients.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

type ProcessEventsParams struct {
	Events         []event.Event   `json:"events"`
	Contacts       []event.Contact `json:"contacts,omitempty"`
	PreferFreeTier bool            `json:"prefer_free_tier,omitempty"`
	Priority       string          `json:"priority,omitempty"`
	Concurrency    int             `json:"concurrency,omitempty"`
	BatchSize      int             `json:"batch_size,omitempty"`
	BatchDelayMS   int             `json:"batch_delay_ms,omitempty"`
	Historical     bool            `json:"historical,omitempty"`
	EnforceBudget  bool            `json:"enforce_budget,omitempty"`
}

type GetCostStatsParams struct {
	Period cost.Period `json:"period,omitempty"`
}

type SetBudgetLimitsParams struct {
	DailyLimit   float64 `json:"daily_limit"`
	MonthlyLimit float64 `json:"monthly_limit"`
}

type GetModelRecommendationParams struct {
	Operation       string `json:"operation"`
	EstimatedTokens int    `json:"estimated_tokens"`
}

type AdjustConcurrencyParams struct {
	Limit int `json:"limit"`
}

type GetProcessedEventParams struct {
	EventID string `json:"event_id"`
}

type CheckRateLimitParams struct {
	Model string `json:"model"`
}

type GetRecentActivityParams struct {
	ActivityType string `json:"activity_type,omitempty"`
	Model        string `json:"model,omitempty"`
	Since        string `json:"since,omitempty"`
	Limit        int    `json:"limit,omitempty"`
	Offset       int    `json:"offset,omitempty"`
}

// BudgetLimitsResponse pairs the stored ceilings with current utilization.
type BudgetLimitsResponse struct {
	cost.BudgetLimits
	Utilization float64 `json:"utilization"`
}

// ConcurrencyStatsResponse renders durations in milliseconds.
type ConcurrencyStatsResponse struct {
	Limit                   int     `json:"limit"`
	Active                  int     `json:"active"`
	Queued                  int     `json:"queued"`
	Completed               uint64  `json:"completed"`
	Failed                  uint64  `json:"failed"`
	AverageProcessingTimeMS float64 `json:"average_processing_time_ms"`
}

func newConcurrencyStatsResponse(s concurrency.Stats) ConcurrencyStatsResponse {
	return ConcurrencyStatsResponse{
		Limit:                   s.Limit,
		Active:                  s.Active,
		Queued:                  s.Queued,
		Completed:               s.Completed,
		Failed:                  s.Failed,
		AverageProcessingTimeMS: float64(s.AverageProcessingTime) / float64(time.Millisecond),
	}
}

// RateLimitResponse reports a bucket without consuming from it.
type RateLimitResponse struct {
	ratelimit.Usage
	Allowed bool `json:"allowed"`
}

func newRateLimitResponse(u ratelimit.Usage) RateLimitResponse {
	allowed := u.Available >= 1
	if u.RequestsPerDay > 0 && u.RequestsToday >= u.RequestsPerDay {
		allowed = false
	}
	return RateLimitResponse{Usage: u, Allowed: allowed}
}

type ActivityEntryResponse struct {
	ID           int64  `json:"id"`
	ActivityType string `json:"type"`
	Model        string `json:"model,omitempty"`
	Operation    string `json:"operation,omitempty"`
	Summary      string `json:"summary"`
	Details      string `json:"details,omitempty"`
	CreatedAt    string `json:"created_at"`
}
