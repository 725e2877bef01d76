package event

import "strings"

// ValidateRecord checks the identity fields required to persist a record.
func ValidateRecord(rec *ProcessedEventRecord) error {
	if rec == nil {
		return ErrInvalidInput
	}
	if strings.TrimSpace(rec.UserID) == "" || strings.TrimSpace(rec.EventID) == "" {
		return ErrInvalidInput
	}
	if rec.Hash == "" {
		return ErrInvalidInput
	}
	switch rec.State {
	case StateFilteredIrrelevant, StateExtracted, StateExtractionFailed:
	default:
		return ErrInvalidInput
	}
	return nil
}

// NormalizeEventType maps free-form text onto EventType, defaulting to TypeOther.
func NormalizeEventType(raw string) EventType {
	switch v := EventType(normalizeEnum(raw)); v {
	case TypeClientSession, TypeConsultation, TypeWorkshop, TypeFollowUp,
		TypeAdministrative, TypePersonal, TypeOther:
		return v
	default:
		return TypeOther
	}
}

// NormalizeSessionType maps free-form text onto SessionType. Unknown or empty
// values yield nil.
func NormalizeSessionType(raw string) *SessionType {
	switch v := SessionType(normalizeEnum(raw)); v {
	case SessionIndividual, SessionGroup, SessionCouples, SessionOnline, SessionInPerson:
		return &v
	default:
		return nil
	}
}

// NormalizeSuggestedAction maps free-form text onto SuggestedAction,
// defaulting to ActionReview.
func NormalizeSuggestedAction(raw string) SuggestedAction {
	switch v := SuggestedAction(normalizeEnum(raw)); v {
	case ActionProcess, ActionIgnore, ActionReview:
		return v
	default:
		return ActionReview
	}
}

// NormalizeEmail lower-cases and trims an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func normalizeEnum(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, "-", "_")
	return strings.ReplaceAll(s, " ", "_")
}
