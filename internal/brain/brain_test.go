package brain_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/PBLIZZ/MindfulCRM-sub000/internal/brain"
	"github.com/PBLIZZ/MindfulCRM-sub000/internal/domain/event"
	"github.com/PBLIZZ/MindfulCRM-sub000/internal/repository/mocks"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var contacts = []event.Contact{
	{ID: "c1", Name: "Jane", Email: "Jane@Client.com"},
}

func at(hour int) time.Time {
	return time.Date(2026, 6, 1, hour, 0, 0, 0, time.UTC)
}

func failPicker(t *testing.T) brain.ModelPicker {
	return func(ctx context.Context) (string, error) {
		t.Fatal("model picker must not be called")
		return "", nil
	}
}

func fixedPicker(model string) brain.ModelPicker {
	return func(ctx context.Context) (string, error) { return model, nil }
}

func TestFilter_ScenarioA_PersonalEvent(t *testing.T) {
	provider := &mocks.ModelProvider{}
	f := brain.NewFilter(provider, nil)

	ev := event.Event{ID: "e1", Title: "Lunch with a friend", Start: at(12), End: at(13)}
	res, err := f.Filter(context.Background(), ev, contacts, failPicker(t))
	require.NoError(t, err)
	require.False(t, res.IsRelevant)
	require.Contains(t, res.RelevanceReason, "personal event pattern")
	require.False(t, res.ModelCalled())
	provider.AssertNotCalled(t, "GenerateCompletion", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestScenarioB_KnownClientSession(t *testing.T) {
	ctx := context.Background()
	provider := &mocks.ModelProvider{}
	f := brain.NewFilter(provider, nil)
	x := brain.NewExtractor(provider, nil)

	ev := event.Event{
		ID:          "e2",
		Title:       "Coaching session with Jane",
		Description: "Monthly session to review goals",
		Start:       at(9),
		End:         at(10),
		Attendees:   []event.Attendee{{Email: "jane@client.com", Name: "Jane"}},
	}

	res, err := f.Filter(ctx, ev, contacts, failPicker(t))
	require.NoError(t, err)
	require.True(t, res.IsRelevant)
	require.False(t, res.ModelCalled())
	provider.AssertNotCalled(t, "GenerateCompletion", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	provider.On("GenerateCompletion", ctx, "premium", mock.Anything, true).Return(
		"```json\n"+`{"eventType":"client_session","isClientRelated":true,"clientEmails":[],`+
			`"sessionType":"individual","topics":["goals"],"actionItems":["send recap"],`+
			`"notes":"steady progress","confidence":0.8,"suggestedAction":"process"}`+"\n```", nil).Once()

	out, err := x.Extract(ctx, ev, contacts, res, "premium")
	require.NoError(t, err)
	a := out.Analysis
	require.Equal(t, event.TypeClientSession, a.EventType)
	require.Equal(t, []string{"jane@client.com"}, a.ClientEmails)
	require.NotNil(t, a.SessionType)
	require.Equal(t, event.SessionIndividual, *a.SessionType)
	require.Equal(t, []string{"goals"}, a.Topics)
	require.Equal(t, event.ActionProcess, a.SuggestedAction)
	require.Equal(t, "premium", a.Model)
	require.True(t, a.IsRelevant)
	require.Greater(t, out.Usage.InputTokens, 0)
	require.Greater(t, out.Usage.OutputTokens, 0)
	provider.AssertExpectations(t)
}

func TestFilter_PreFilterRules(t *testing.T) {
	tests := []struct {
		name     string
		ev       event.Event
		relevant bool
		reason   string
	}{
		{
			name:   "spam",
			ev:     event.Event{Title: "Special offer: 50% off wellness retreat", Attendees: []event.Attendee{{Email: "jane@client.com"}}},
			reason: "spam",
		},
		{
			name:   "no-reply attendees",
			ev:     event.Event{Title: "Reminder", Attendees: []event.Attendee{{Email: "noreply@calendar.com"}, {Email: "notifications@app.io"}}},
			reason: "no-reply",
		},
		{
			name:   "no business signal",
			ev:     event.Event{Title: "Car service", Attendees: []event.Attendee{{Email: "garage@cars.com"}}},
			reason: "no business signal",
		},
		{
			name:     "personal with known contact falls through to business rule",
			ev:       event.Event{Title: "Lunch and check-in with client", Attendees: []event.Attendee{{Email: "jane@client.com"}}},
			relevant: true,
			reason:   "known contact",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, ok := brain.PreFilter(tt.ev, contacts)
			require.True(t, ok)
			require.Equal(t, tt.relevant, res.IsRelevant)
			require.Contains(t, res.RelevanceReason, tt.reason)
		})
	}
}

func TestFilter_ConservativeWithoutSignals(t *testing.T) {
	ctx := context.Background()
	provider := &mocks.ModelProvider{}
	f := brain.NewFilter(provider, nil)
	x := brain.NewExtractor(provider, nil)

	ev := event.Event{ID: "e3", Title: "Catch up", Attendees: []event.Attendee{{Email: "stranger@else.com"}}}
	res, err := f.Filter(ctx, ev, contacts, failPicker(t))
	require.NoError(t, err)
	require.False(t, res.IsRelevant)

	_, err = x.Extract(ctx, ev, contacts, res, "premium")
	require.ErrorIs(t, err, brain.ErrNotRelevant)
	provider.AssertNotCalled(t, "GenerateCompletion", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestFilter_ModelFallback(t *testing.T) {
	ctx := context.Background()
	ev := event.Event{ID: "e4", Title: "Yoga workshop planning", Attendees: []event.Attendee{{Email: "venue@hall.com"}}}

	tests := []struct {
		name       string
		response   string
		relevant   bool
		confidence float64
		action     event.SuggestedAction
	}{
		{
			name:       "clamped and defaulted",
			response:   "Sure!\n```json\n{\"isRelevant\": true, \"relevanceReason\": \"practice event\", \"confidence\": 1.7, \"suggestedAction\": \"later\"}\n```",
			relevant:   true,
			confidence: 1,
			action:     event.ActionReview,
		},
		{
			name:       "string booleans",
			response:   `{"isRelevant": "yes", "confidence": "0.4", "suggestedAction": "Process"}`,
			relevant:   true,
			confidence: 0.4,
			action:     event.ActionProcess,
		},
		{
			name:       "missing flag is not relevant",
			response:   `{"confidence": 0.7}`,
			relevant:   false,
			confidence: 0.7,
			action:     event.ActionReview,
		},
		{
			name:     "unparseable",
			response: `{"isRelevant": tru`,
			relevant: false,
			action:   event.ActionReview,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &mocks.ModelProvider{}
			provider.On("GenerateCompletion", ctx, "free", mock.Anything, true).Return(tt.response, nil).Once()

			res, err := brain.NewFilter(provider, nil).Filter(ctx, ev, contacts, fixedPicker("free"))
			require.NoError(t, err)
			require.Equal(t, tt.relevant, res.IsRelevant)
			require.Equal(t, tt.confidence, res.Confidence)
			require.Equal(t, tt.action, res.SuggestedAction)
			require.Equal(t, "free", res.UsedModel)
			require.NotEmpty(t, res.RelevanceReason)
			provider.AssertExpectations(t)
		})
	}
}

func TestFilter_Errors(t *testing.T) {
	ctx := context.Background()
	ev := event.Event{ID: "e5", Title: "Wellness program kickoff", Attendees: []event.Attendee{{Email: "someone@else.com"}}}

	provider := &mocks.ModelProvider{}
	f := brain.NewFilter(provider, nil)

	limited := errors.New("rate limited")
	_, err := f.Filter(ctx, ev, nil, func(context.Context) (string, error) { return "", limited })
	require.ErrorIs(t, err, limited)

	down := errors.New("connection refused")
	provider.On("GenerateCompletion", ctx, "free", mock.Anything, true).Return("", down).Once()
	_, err = f.Filter(ctx, ev, nil, fixedPicker("free"))
	require.ErrorIs(t, err, down)
}

func TestExtract_MalformedOutputUsesDefaults(t *testing.T) {
	ctx := context.Background()
	provider := &mocks.ModelProvider{}
	provider.On("GenerateCompletion", ctx, "premium", mock.Anything, true).Return("I cannot help with that.", nil).Once()

	ev := event.Event{ID: "e6", Title: "Session", Attendees: []event.Attendee{{Email: "JANE@client.com"}, {Email: "other@x.com"}}}
	filter := &brain.FilterResult{IsRelevant: true, RelevanceReason: "rule", Confidence: 0.9}

	out, err := brain.NewExtractor(provider, nil).Extract(ctx, ev, contacts, filter, "premium")
	require.NoError(t, err)
	a := out.Analysis
	require.Equal(t, event.TypeOther, a.EventType)
	require.Nil(t, a.SessionType)
	require.Equal(t, []string{"jane@client.com"}, a.ClientEmails)
	require.True(t, a.IsClientRelated)
	require.Empty(t, a.Topics)
	require.NotNil(t, a.Topics)
	require.Equal(t, event.ActionReview, a.SuggestedAction)
	require.Equal(t, 0.9, a.Confidence)
}

func TestExtract_NormalizesModelEmails(t *testing.T) {
	ctx := context.Background()
	provider := &mocks.ModelProvider{}
	provider.On("GenerateCompletion", ctx, "premium", mock.Anything, true).Return(
		`{"eventType":"Follow-Up","clientEmails":" A@B.com , a@b.com, not-an-email","sessionType":"telepathic","confidence":-3}`, nil).Once()

	ev := event.Event{ID: "e7", Title: "Follow up"}
	filter := &brain.FilterResult{IsRelevant: true, Confidence: 0.5}

	out, err := brain.NewExtractor(provider, nil).Extract(ctx, ev, nil, filter, "premium")
	require.NoError(t, err)
	require.Equal(t, event.TypeFollowUp, out.Analysis.EventType)
	require.Equal(t, []string{"a@b.com"}, out.Analysis.ClientEmails)
	require.Nil(t, out.Analysis.SessionType)
	require.Equal(t, 0.0, out.Analysis.Confidence)
	require.True(t, out.Analysis.IsClientRelated)
}
