package event_test

import (
	"context"
	"errors"
	"testing"

	"github.com/PBLIZZ/MindfulCRM-sub000/internal/domain/event"
	"github.com/PBLIZZ/MindfulCRM-sub000/internal/repository"
	"github.com/PBLIZZ/MindfulCRM-sub000/internal/repository/mocks"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestDetector_ShouldProcess(t *testing.T) {
	ctx := context.Background()
	ev := baseEvent()
	hash := event.ComputeHash(ev)

	store := &mocks.EventStore{}
	store.On("ShouldProcessEvent", ctx, "user1", ev.ID, hash).Return(true, nil)

	d := event.NewDetector(store, nil)
	ok, got, err := d.ShouldProcess(ctx, "user1", ev)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, hash, got)
	store.AssertExpectations(t)
}

func TestDetector_ShouldProcess_StoreError(t *testing.T) {
	ctx := context.Background()
	ev := baseEvent()

	store := &mocks.EventStore{}
	store.On("ShouldProcessEvent", ctx, "user1", ev.ID, mock.Anything).Return(false, errors.New("disk full"))

	d := event.NewDetector(store, nil)
	_, _, err := d.ShouldProcess(ctx, "user1", ev)
	require.ErrorIs(t, err, event.ErrStore)
}

func TestDetector_MarkProcessed(t *testing.T) {
	ctx := context.Background()
	rec := &event.ProcessedEventRecord{
		UserID:  "user1",
		EventID: "evt-1",
		Hash:    "abc",
		State:   event.StateFilteredIrrelevant,
	}

	store := &mocks.EventStore{}
	store.On("MarkEventProcessed", ctx, rec).Return(nil)

	d := event.NewDetector(store, nil)
	require.NoError(t, d.MarkProcessed(ctx, rec))
	require.False(t, rec.ProcessedAt.IsZero())
	store.AssertExpectations(t)
}

func TestDetector_MarkProcessed_Invalid(t *testing.T) {
	d := event.NewDetector(&mocks.EventStore{}, nil)

	cases := []*event.ProcessedEventRecord{
		nil,
		{EventID: "e", Hash: "h", State: event.StateExtracted},
		{UserID: "u", Hash: "h", State: event.StateExtracted},
		{UserID: "u", EventID: "e", State: event.StateExtracted},
		{UserID: "u", EventID: "e", Hash: "h", State: event.StateSkipped},
	}
	for _, rec := range cases {
		require.ErrorIs(t, d.MarkProcessed(context.Background(), rec), event.ErrInvalidInput)
	}
}

func TestDetector_Get_NotFound(t *testing.T) {
	ctx := context.Background()
	store := &mocks.EventStore{}
	store.On("GetProcessedEvent", ctx, "user1", "missing").Return(nil, repository.ErrNotFound)

	d := event.NewDetector(store, nil)
	_, err := d.Get(ctx, "user1", "missing")
	require.ErrorIs(t, err, event.ErrEventNotFound)
}
