package event

import "time"

// Attendee is a participant on a calendar event.
type Attendee struct {
	Email          string `json:"email"`
	Name           string `json:"name,omitempty"`
	ResponseStatus string `json:"response_status,omitempty"`
}

// Event is a calendar item from the external feed. It is never mutated here.
type Event struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Location    string     `json:"location,omitempty"`
	Start       time.Time  `json:"start"`
	End         time.Time  `json:"end"`
	Attendees   []Attendee `json:"attendees,omitempty"`
	Updated     time.Time  `json:"updated,omitempty"`
}

// Contact is an entry in the user's known-contact list.
type Contact struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// EventType classifies an analyzed event
type EventType string

const (
	TypeClientSession  EventType = "client_session"
	TypeConsultation   EventType = "consultation"
	TypeWorkshop       EventType = "workshop"
	TypeFollowUp       EventType = "follow_up"
	TypeAdministrative EventType = "administrative"
	TypePersonal       EventType = "personal"
	TypeOther          EventType = "other"
)

// SessionType describes the format of a client session
type SessionType string

const (
	SessionIndividual SessionType = "individual"
	SessionGroup      SessionType = "group"
	SessionCouples    SessionType = "couples"
	SessionOnline     SessionType = "online"
	SessionInPerson   SessionType = "in_person"
)

// SuggestedAction is the follow-up recommended for an event
type SuggestedAction string

const (
	ActionProcess SuggestedAction = "process"
	ActionIgnore  SuggestedAction = "ignore"
	ActionReview  SuggestedAction = "review"
)

// AnalysisResult is the structured insight derived from one event.
type AnalysisResult struct {
	IsRelevant      bool            `json:"isRelevant"`
	RelevanceReason string          `json:"relevanceReason"`
	EventType       EventType       `json:"eventType"`
	IsClientRelated bool            `json:"isClientRelated"`
	ClientEmails    []string        `json:"clientEmails"`
	SessionType     *SessionType    `json:"sessionType"`
	Topics          []string        `json:"topics"`
	ActionItems     []string        `json:"actionItems"`
	Notes           string          `json:"notes"`
	Confidence      float64         `json:"confidence"`
	SuggestedAction SuggestedAction `json:"suggestedAction"`
	Model           string          `json:"model"`
	Timestamp       time.Time       `json:"timestamp"`
}

// State is the terminal state of one event's pass through the pipeline
type State string

const (
	StateSkipped            State = "skipped"
	StateFilteredIrrelevant State = "filtered_irrelevant"
	StateExtracted          State = "extracted"
	StateExtractionFailed   State = "extraction_failed"
)

// ProcessedEventRecord is the persisted outcome for one (user, event) pair.
// Hash is always the fingerprint of the event version that was analyzed.
type ProcessedEventRecord struct {
	UserID      string          `json:"user_id"`
	EventID     string          `json:"event_id"`
	Hash        string          `json:"hash"`
	IsRelevant  bool            `json:"is_relevant"`
	State       State           `json:"state"`
	Analysis    *AnalysisResult `json:"analysis,omitempty"`
	Model       string          `json:"model,omitempty"`
	ProcessedAt time.Time       `json:"processed_at"`
}
