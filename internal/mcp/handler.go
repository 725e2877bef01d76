package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/PBLIZZ/MindfulCRM-sub000/internal/concurrency"
	"github.com/PBLIZZ/MindfulCRM-sub000/internal/domain/activity"
	"github.com/PBLIZZ/MindfulCRM-sub000/internal/domain/cost"
	"github.com/PBLIZZ/MindfulCRM-sub000/internal/domain/event"
	"github.com/PBLIZZ/MindfulCRM-sub000/internal/orchestrator"
	"github.com/PBLIZZ/MindfulCRM-sub000/internal/ratelimit"
)

// Processor runs the insight pipeline over a batch of events.
type Processor interface {
	Process(ctx context.Context, userID string, events []event.Event, contacts []event.Contact, opts orchestrator.Options) (*orchestrator.Output, error)
}

// CostService defines cost operations needed by MCP.
type CostService interface {
	GetCostStats(ctx context.Context, userID string, period cost.Period) (*cost.CostStats, error)
	SetBudgetLimits(ctx context.Context, userID string, limits cost.BudgetLimits) error
	GetBudgetLimits(ctx context.Context, userID string) (*cost.BudgetLimits, error)
	Utilization(ctx context.Context, userID string) (float64, error)
	GetModelRecommendation(ctx context.Context, userID, operation string, estimatedTokens int) (*cost.Recommendation, error)
}

// EventService reads processed-event records.
type EventService interface {
	Get(ctx context.Context, userID, eventID string) (*event.ProcessedEventRecord, error)
}

// ConcurrencyService exposes the admission controller.
type ConcurrencyService interface {
	Stats() concurrency.Stats
	AdjustConcurrency(n int) error
}

// RateLimitService reports rate-limit buckets.
type RateLimitService interface {
	Usage(userID, model string) ratelimit.Usage
}

// ActivityService defines activity operations needed by MCP.
type ActivityService interface {
	GetRecentActivity(ctx context.Context, userID string, opts activity.ListActivityOptions) ([]activity.ActivityEntry, error)
}

// Services contains all domain services needed by MCP.
type Services struct {
	Processor   Processor
	Costs       CostService
	Events      EventService
	Concurrency ConcurrencyService
	RateLimits  RateLimitService
	Activity    ActivityService
}

// Handler dispatches tool calls to domain services.
type Handler struct {
	svc Services
}

// NewHandler creates a new MCP handler.
func NewHandler(svc Services) *Handler {
	return &Handler{svc: svc}
}

// Handle runs the named tool for userID.
func (h *Handler) Handle(ctx context.Context, userID, method string, params json.RawMessage) (any, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: no user bound to request", ErrInvalidParams)
	}

	switch method {
	case "process_events":
		var req ProcessEventsParams
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		if len(req.Events) == 0 {
			return nil, fmt.Errorf("%w: events is required", ErrInvalidParams)
		}
		priority, err := concurrency.ParsePriority(req.Priority)
		if err != nil {
			return nil, mapError(err)
		}
		out, err := h.svc.Processor.Process(ctx, userID, req.Events, req.Contacts, orchestrator.Options{
			PreferFreeTier: req.PreferFreeTier,
			Priority:       priority,
			Concurrency:    req.Concurrency,
			BatchSize:      req.BatchSize,
			BatchDelay:     time.Duration(req.BatchDelayMS) * time.Millisecond,
			Historical:     req.Historical,
			EnforceBudget:  req.EnforceBudget,
		})
		if err != nil {
			return nil, mapError(err)
		}
		return out, nil

	case "get_cost_stats":
		var req GetCostStatsParams
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		if req.Period == "" {
			req.Period = cost.PeriodDay
		}
		stats, err := h.svc.Costs.GetCostStats(ctx, userID, req.Period)
		if err != nil {
			return nil, mapError(err)
		}
		return stats, nil

	case "set_budget_limits":
		var req SetBudgetLimitsParams
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		if err := h.svc.Costs.SetBudgetLimits(ctx, userID, cost.BudgetLimits{
			DailyLimit:   req.DailyLimit,
			MonthlyLimit: req.MonthlyLimit,
		}); err != nil {
			return nil, mapError(err)
		}
		return h.budgetLimits(ctx, userID)

	case "get_budget_limits":
		return h.budgetLimits(ctx, userID)

	case "get_model_recommendation":
		var req GetModelRecommendationParams
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		if req.Operation == "" {
			return nil, fmt.Errorf("%w: operation is required", ErrInvalidParams)
		}
		rec, err := h.svc.Costs.GetModelRecommendation(ctx, userID, req.Operation, req.EstimatedTokens)
		if err != nil {
			return nil, mapError(err)
		}
		return rec, nil

	case "get_concurrency_stats":
		return newConcurrencyStatsResponse(h.svc.Concurrency.Stats()), nil

	case "adjust_concurrency":
		var req AdjustConcurrencyParams
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		if err := h.svc.Concurrency.AdjustConcurrency(req.Limit); err != nil {
			return nil, mapError(err)
		}
		return newConcurrencyStatsResponse(h.svc.Concurrency.Stats()), nil

	case "get_processed_event":
		var req GetProcessedEventParams
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		if req.EventID == "" {
			return nil, fmt.Errorf("%w: event_id is required", ErrInvalidParams)
		}
		rec, err := h.svc.Events.Get(ctx, userID, req.EventID)
		if err != nil {
			return nil, mapError(err)
		}
		return rec, nil

	case "check_rate_limit":
		var req CheckRateLimitParams
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		if req.Model == "" {
			return nil, fmt.Errorf("%w: model is required", ErrInvalidParams)
		}
		return newRateLimitResponse(h.svc.RateLimits.Usage(userID, req.Model)), nil

	case "get_recent_activity":
		var req GetRecentActivityParams
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		opts := activity.ListActivityOptions{
			Model:  req.Model,
			Limit:  req.Limit,
			Offset: req.Offset,
		}
		if req.ActivityType != "" {
			typ := activity.ActivityType(req.ActivityType)
			opts.ActivityType = &typ
		}
		if req.Since != "" {
			since, err := time.Parse(time.RFC3339, req.Since)
			if err != nil {
				return nil, fmt.Errorf("%w: since must be RFC3339", ErrInvalidParams)
			}
			opts.Since = since.UTC()
		}
		if opts.Limit == 0 {
			opts.Limit = 50
		}
		entries, err := h.svc.Activity.GetRecentActivity(ctx, userID, opts)
		if err != nil {
			return nil, mapError(err)
		}
		resp := make([]ActivityEntryResponse, 0, len(entries))
		for _, e := range entries {
			resp = append(resp, ActivityEntryResponse{
				ID:           e.ID,
				ActivityType: string(e.ActivityType),
				Model:        e.Model,
				Operation:    e.Operation,
				Summary:      e.Summary,
				Details:      e.Details,
				CreatedAt:    e.CreatedAt.UTC().Format(time.RFC3339),
			})
		}
		return resp, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, method)
	}
}

func (h *Handler) budgetLimits(ctx context.Context, userID string) (*BudgetLimitsResponse, error) {
	limits, err := h.svc.Costs.GetBudgetLimits(ctx, userID)
	if err != nil {
		return nil, mapError(err)
	}
	util, err := h.svc.Costs.Utilization(ctx, userID)
	if err != nil {
		return nil, mapError(err)
	}
	return &BudgetLimitsResponse{BudgetLimits: *limits, Utilization: util}, nil
}

func decodeParams(params json.RawMessage, out any) error {
	if len(params) == 0 || string(params) == "null" {
		return nil
	}
	if err := json.Unmarshal(params, out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return nil
}

func mapError(err error) error {
	if apiErr := MapError(err); apiErr != nil {
		return apiErr
	}
	return err
}
