package activity_test

import (
	"context"
	"testing"

	"github.com/PBLIZZ/MindfulCRM-sub000/internal/domain/activity"
	"github.com/PBLIZZ/MindfulCRM-sub000/internal/repository/mocks"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestActivityService_LogAndList(t *testing.T) {
	ctx := context.Background()
	userID := "user1"

	repo := &mocks.ActivityRepository{}
	entry := &activity.ActivityEntry{
		ActivityType: activity.TypeRequestCompleted,
		Model:        "openai/gpt-4o-mini",
		Summary:      "extract completed",
	}
	opts := activity.ListActivityOptions{Model: "openai/gpt-4o-mini"}

	repo.On("Log", ctx, userID, entry).Return(nil)
	repo.On("List", ctx, userID, opts).Return([]activity.ActivityEntry{*entry}, nil)

	svc := activity.NewService(repo, nil)
	require.NoError(t, svc.LogActivity(ctx, userID, entry))
	require.False(t, entry.CreatedAt.IsZero())

	entries, err := svc.GetRecentActivity(ctx, userID, opts)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	repo.AssertExpectations(t)
}

func TestActivityService_SystemUserAndDetails(t *testing.T) {
	ctx := context.Background()
	repo := &mocks.ActivityRepository{}
	repo.On("Log", ctx, activity.SystemUser, mock.MatchedBy(func(e *activity.ActivityEntry) bool {
		return e.ActivityType == activity.TypeConcurrencyChanged && e.Details == `{"new_limit":3}`
	})).Return(nil)

	svc := activity.NewService(repo, nil)
	err := svc.LogDetails(ctx, "", activity.TypeConcurrencyChanged, "limit changed", map[string]int{"new_limit": 3})
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestActivityService_RejectsEmptyEntry(t *testing.T) {
	svc := activity.NewService(&mocks.ActivityRepository{}, nil)
	require.ErrorIs(t, svc.LogActivity(context.Background(), "u", nil), activity.ErrInvalidInput)
	require.ErrorIs(t, svc.LogActivity(context.Background(), "u", &activity.ActivityEntry{}), activity.ErrInvalidInput)
}
