package brain

import (
	"encoding/json"
	"time"

	"github.com/PBLIZZ/MindfulCRM-sub000/internal/domain/event"
	"github.com/PBLIZZ/MindfulCRM-sub000/internal/llm"
)

const filterSystemPrompt = `You classify calendar events for a solo wellness practitioner.
Decide whether the event relates to the practice: client sessions, consultations,
workshops, follow-ups or practice administration. Personal appointments and
promotional invitations are not relevant. When unsure, answer not relevant.

Reply with one JSON object:
{"isRelevant": boolean, "relevanceReason": string, "confidence": number between 0 and 1,
 "suggestedAction": "process" | "ignore" | "review"}`

const extractSystemPrompt = `You extract structured insight from a calendar event that a
wellness practitioner has with clients.

Reply with one JSON object:
{"eventType": "client_session" | "consultation" | "workshop" | "follow_up" | "administrative" | "personal" | "other",
 "isClientRelated": boolean,
 "clientEmails": [string],
 "sessionType": "individual" | "group" | "couples" | "online" | "in_person" | null,
 "topics": [string],
 "actionItems": [string],
 "notes": string,
 "confidence": number between 0 and 1,
 "suggestedAction": "process" | "ignore" | "review"}`

type promptAttendee struct {
	Email        string `json:"email"`
	Name         string `json:"name,omitempty"`
	KnownContact bool   `json:"knownContact"`
}

type promptEvent struct {
	Title       string           `json:"title"`
	Description string           `json:"description,omitempty"`
	Location    string           `json:"location,omitempty"`
	Start       string           `json:"start,omitempty"`
	End         string           `json:"end,omitempty"`
	Attendees   []promptAttendee `json:"attendees"`
}

func describeEvent(ev event.Event, idx contactIndex) string {
	doc := promptEvent{
		Title:       ev.Title,
		Description: ev.Description,
		Location:    ev.Location,
		Attendees:   make([]promptAttendee, 0, len(ev.Attendees)),
	}
	if !ev.Start.IsZero() {
		doc.Start = ev.Start.UTC().Format(time.RFC3339)
	}
	if !ev.End.IsZero() {
		doc.End = ev.End.UTC().Format(time.RFC3339)
	}
	for _, a := range ev.Attendees {
		email := event.NormalizeEmail(a.Email)
		_, known := idx[email]
		doc.Attendees = append(doc.Attendees, promptAttendee{Email: email, Name: a.Name, KnownContact: known})
	}
	data, _ := json.MarshalIndent(doc, "", "  ")
	return string(data)
}

func filterMessages(ev event.Event, idx contactIndex) []llm.Message {
	return []llm.Message{
		llm.System(filterSystemPrompt),
		llm.User("Event:\n" + describeEvent(ev, idx)),
	}
}

func extractMessages(ev event.Event, idx contactIndex, reason string) []llm.Message {
	user := "Event:\n" + describeEvent(ev, idx)
	if reason != "" {
		user += "\n\nMarked relevant because: " + reason
	}
	return []llm.Message{
		llm.System(extractSystemPrompt),
		llm.User(user),
	}
}
