package orchestrator

import (
	"time"

	"github.com/PBLIZZ/MindfulCRM-sub000/internal/concurrency"
	"github.com/PBLIZZ/MindfulCRM-sub000/internal/domain/cost"
	"github.com/PBLIZZ/MindfulCRM-sub000/internal/domain/event"
)

// Config holds run defaults. Options override them per run.
type Config struct {
	BatchSize  int
	BatchDelay time.Duration
	// MaxBatchDelay caps the delay reached by adaptive pacing.
	MaxBatchDelay time.Duration
}

// DefaultConfig runs batches of ten with a one-second pause.
func DefaultConfig() Config {
	return Config{
		BatchSize:     10,
		BatchDelay:    time.Second,
		MaxBatchDelay: 60 * time.Second,
	}
}

// Options tune a single run.
type Options struct {
	// PreferFreeTier routes every model call to the free-tier model.
	PreferFreeTier bool
	Priority       concurrency.Priority
	// Concurrency temporarily overrides the controller limit for the run.
	Concurrency int
	BatchSize   int
	BatchDelay  time.Duration
	// Historical marks a backfill, which biases model choice to the free tier.
	Historical bool
	// EnforceBudget forces over-budget users onto the free tier and fails
	// events when it has no capacity.
	EnforceBudget bool
}

// Outcome is the terminal state of one input event.
type Outcome struct {
	EventID  string                `json:"event_id"`
	State    event.State           `json:"state"`
	Hash     string                `json:"hash,omitempty"`
	Model    string                `json:"model,omitempty"`
	Reason   string                `json:"reason,omitempty"`
	Tokens   int                   `json:"tokens,omitempty"`
	Cost     float64               `json:"cost,omitempty"`
	Error    string                `json:"error,omitempty"`
	Analysis *event.AnalysisResult `json:"analysis,omitempty"`
}

// Usage lets the concurrency controller report tokens and cost per event.
func (o *Outcome) Usage() (int, float64) {
	if o == nil {
		return 0, 0
	}
	return o.Tokens, o.Cost
}

// Output aggregates a run. Results holds successful extractions and
// Outcomes one entry per input event, both in input order.
type Output struct {
	Results         []event.AnalysisResult `json:"results"`
	FailedEventIDs  []string               `json:"failed_event_ids"`
	SkippedEventIDs []string               `json:"skipped_event_ids"`
	Outcomes        []Outcome              `json:"outcomes"`
	TotalProcessed  int                    `json:"total_processed"`
	TotalCost       float64                `json:"total_cost"`
	Alerts          []cost.Alert           `json:"alerts,omitempty"`
}
