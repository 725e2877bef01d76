package event_test

import (
	"testing"
	"time"

	"github.com/PBLIZZ/MindfulCRM-sub000/internal/domain/event"
	"github.com/stretchr/testify/require"
)

func baseEvent() event.Event {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	return event.Event{
		ID:          "evt-1",
		Title:       "Coaching session with Jane",
		Description: "Weekly session",
		Location:    "Studio A",
		Start:       start,
		End:         start.Add(time.Hour),
		Attendees: []event.Attendee{
			{Email: "jane@client.com", Name: "Jane", ResponseStatus: "accepted"},
			{Email: "me@practice.com", Name: "Me"},
		},
		Updated: start.Add(-24 * time.Hour),
	}
}

func TestComputeHash_Deterministic(t *testing.T) {
	ev := baseEvent()
	require.Equal(t, event.ComputeHash(ev), event.ComputeHash(ev))
	require.Len(t, event.ComputeHash(ev), 64)
}

func TestComputeHash_SensitiveToSalientFields(t *testing.T) {
	base := event.ComputeHash(baseEvent())

	mutations := map[string]func(*event.Event){
		"title":       func(e *event.Event) { e.Title = "Coaching session with John" },
		"description": func(e *event.Event) { e.Description = "Rescheduled" },
		"start":       func(e *event.Event) { e.Start = e.Start.Add(30 * time.Minute) },
		"end":         func(e *event.Event) { e.End = e.End.Add(30 * time.Minute) },
		"attendee added": func(e *event.Event) {
			e.Attendees = append(e.Attendees, event.Attendee{Email: "bob@client.com"})
		},
		"attendee removed": func(e *event.Event) { e.Attendees = e.Attendees[:1] },
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			ev := baseEvent()
			mutate(&ev)
			require.NotEqual(t, base, event.ComputeHash(ev))
		})
	}
}

func TestComputeHash_IgnoresNonSalientFields(t *testing.T) {
	base := event.ComputeHash(baseEvent())

	mutations := map[string]func(*event.Event){
		"location":         func(e *event.Event) { e.Location = "Zoom" },
		"updated marker":   func(e *event.Event) { e.Updated = time.Now() },
		"attendee name":    func(e *event.Event) { e.Attendees[0].Name = "Jane Doe" },
		"response status":  func(e *event.Event) { e.Attendees[0].ResponseStatus = "declined" },
		"attendee order":   func(e *event.Event) { e.Attendees[0], e.Attendees[1] = e.Attendees[1], e.Attendees[0] },
		"email case":       func(e *event.Event) { e.Attendees[0].Email = " Jane@Client.COM " },
		"duplicate email":  func(e *event.Event) { e.Attendees = append(e.Attendees, event.Attendee{Email: "jane@client.com"}) },
		"title whitespace": func(e *event.Event) { e.Title = "  " + e.Title + "\n" },
		"time zone": func(e *event.Event) {
			loc := time.FixedZone("UTC+2", 2*60*60)
			e.Start = e.Start.In(loc)
			e.End = e.End.In(loc)
		},
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			ev := baseEvent()
			mutate(&ev)
			require.Equal(t, base, event.ComputeHash(ev))
		})
	}
}

func TestNormalizers(t *testing.T) {
	require.Equal(t, event.TypeClientSession, event.NormalizeEventType(" Client Session "))
	require.Equal(t, event.TypeFollowUp, event.NormalizeEventType("follow-up"))
	require.Equal(t, event.TypeOther, event.NormalizeEventType("party"))

	st := event.NormalizeSessionType("In Person")
	require.NotNil(t, st)
	require.Equal(t, event.SessionInPerson, *st)
	require.Nil(t, event.NormalizeSessionType(""))
	require.Nil(t, event.NormalizeSessionType("telepathic"))

	require.Equal(t, event.ActionProcess, event.NormalizeSuggestedAction("PROCESS"))
	require.Equal(t, event.ActionReview, event.NormalizeSuggestedAction("maybe"))
}
