package mocks

import (
	"context"
	"time"

	"github.com/PBLIZZ/MindfulCRM-sub000/internal/domain/activity"
	"github.com/PBLIZZ/MindfulCRM-sub000/internal/domain/cost"
	"github.com/PBLIZZ/MindfulCRM-sub000/internal/domain/event"
	"github.com/PBLIZZ/MindfulCRM-sub000/internal/llm"
	"github.com/stretchr/testify/mock"
)

// EventStore is a mock for event.Store.
type EventStore struct {
	mock.Mock
}

func (m *EventStore) ShouldProcessEvent(ctx context.Context, userID, eventID, hash string) (bool, error) {
	args := m.Called(ctx, userID, eventID, hash)
	return args.Bool(0), args.Error(1)
}

func (m *EventStore) MarkEventProcessed(ctx context.Context, rec *event.ProcessedEventRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *EventStore) GetProcessedEvent(ctx context.Context, userID, eventID string) (*event.ProcessedEventRecord, error) {
	args := m.Called(ctx, userID, eventID)
	if rec, ok := args.Get(0).(*event.ProcessedEventRecord); ok {
		return rec, args.Error(1)
	}
	return nil, args.Error(1)
}

// CostRepository is a mock for cost.Repository.
type CostRepository struct {
	mock.Mock
}

func (m *CostRepository) RecordUsage(ctx context.Context, rec *cost.UsageRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *CostRepository) SumUsage(ctx context.Context, userID string, since time.Time) (cost.Totals, error) {
	args := m.Called(ctx, userID, since)
	if totals, ok := args.Get(0).(cost.Totals); ok {
		return totals, args.Error(1)
	}
	return cost.Totals{}, args.Error(1)
}

func (m *CostRepository) ListUsage(ctx context.Context, userID string, since time.Time) ([]cost.UsageRecord, error) {
	args := m.Called(ctx, userID, since)
	if list, ok := args.Get(0).([]cost.UsageRecord); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *CostRepository) GetBudgetLimits(ctx context.Context, userID string) (*cost.BudgetLimits, error) {
	args := m.Called(ctx, userID)
	if limits, ok := args.Get(0).(*cost.BudgetLimits); ok {
		return limits, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *CostRepository) SetBudgetLimits(ctx context.Context, userID string, limits cost.BudgetLimits) error {
	args := m.Called(ctx, userID, limits)
	return args.Error(0)
}

func (m *CostRepository) ListActiveUsers(ctx context.Context, since time.Time) ([]string, error) {
	args := m.Called(ctx, since)
	if users, ok := args.Get(0).([]string); ok {
		return users, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *CostRepository) PruneUsage(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

// ActivityRepository is a mock for activity.Repository.
type ActivityRepository struct {
	mock.Mock
}

func (m *ActivityRepository) Log(ctx context.Context, userID string, entry *activity.ActivityEntry) error {
	args := m.Called(ctx, userID, entry)
	return args.Error(0)
}

func (m *ActivityRepository) List(ctx context.Context, userID string, opts activity.ListActivityOptions) ([]activity.ActivityEntry, error) {
	args := m.Called(ctx, userID, opts)
	if list, ok := args.Get(0).([]activity.ActivityEntry); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *ActivityRepository) Prune(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

// ModelProvider is a mock for llm.ModelProvider.
type ModelProvider struct {
	mock.Mock
}

func (m *ModelProvider) GenerateCompletion(ctx context.Context, model string, messages []llm.Message, structured bool) (string, error) {
	args := m.Called(ctx, model, messages, structured)
	return args.String(0), args.Error(1)
}
