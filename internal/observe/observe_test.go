package observe

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/PBLIZZ/MindfulCRM-sub000/internal/domain/activity"
	"github.com/stretchr/testify/require"
)

type recordingStore struct {
	mu      sync.Mutex
	entries map[string][]activity.ActivityEntry
}

func (s *recordingStore) LogActivity(ctx context.Context, userID string, entry *activity.ActivityEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries == nil {
		s.entries = make(map[string][]activity.ActivityEntry)
	}
	s.entries[userID] = append(s.entries[userID], *entry)
	return nil
}

func TestChannelObserver_DropsWhenFull(t *testing.T) {
	o := NewChannelObserver(1)

	o.RequestFailed(RequestFailed{UserID: "u1", Error: "boom"})
	o.RequestFailed(RequestFailed{UserID: "u1", Error: "boom again"})

	require.Equal(t, uint64(1), o.Sent())
	require.Equal(t, uint64(1), o.Dropped())

	o.Close()
	o.Close()
	o.ConcurrencyChanged(ConcurrencyChanged{NewLimit: 2})
	require.Equal(t, uint64(2), o.Dropped())
}

func TestReporter_PersistsSignals(t *testing.T) {
	o := NewChannelObserver(10)
	store := &recordingStore{}
	r := NewReporter(o.Signals(), store, nil)

	now := time.Now().UTC()
	o.RequestCompleted(RequestCompleted{UserID: "u1", Model: "m", Operation: "extract", Success: true, ProcessingTime: 120 * time.Millisecond, Timestamp: now})
	o.RequestFailed(RequestFailed{UserID: "u1", Model: "m", Operation: "filter", Error: "timeout", Timestamp: now})
	o.ConcurrencyChanged(ConcurrencyChanged{NewLimit: 3, PreviousLimit: 5, Timestamp: now})
	o.Close()

	require.NoError(t, r.Run(context.Background()))

	require.Len(t, store.entries["u1"], 2)
	require.Equal(t, activity.TypeRequestCompleted, store.entries["u1"][0].ActivityType)
	require.Equal(t, "extract completed in 120ms", store.entries["u1"][0].Summary)
	require.Equal(t, activity.TypeRequestFailed, store.entries["u1"][1].ActivityType)
	require.Contains(t, store.entries["u1"][1].Details, "timeout")

	require.Len(t, store.entries[activity.SystemUser], 1)
	require.Equal(t, "concurrency limit 5 -> 3", store.entries[activity.SystemUser][0].Summary)
}

func TestReporter_StopsOnCancel(t *testing.T) {
	o := NewChannelObserver(1)
	r := NewReporter(o.Signals(), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("reporter did not stop")
	}
}

func TestMulti(t *testing.T) {
	a, b := NewChannelObserver(4), NewChannelObserver(4)
	m := Multi{a, b, Nop{}}
	m.RequestCompleted(RequestCompleted{})
	m.RequestFailed(RequestFailed{})
	m.ConcurrencyChanged(ConcurrencyChanged{})
	require.Equal(t, uint64(3), a.Sent())
	require.Equal(t, uint64(3), b.Sent())
}
