package event

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// fingerprint is the canonical document hashed by ComputeHash. Location,
// attendee names, response statuses and the updated marker are left out:
// edits to those do not invalidate a prior analysis.
type fingerprint struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Attendees   []string `json:"attendees"`
	Start       string   `json:"start"`
	End         string   `json:"end"`
}

// ComputeHash returns the hex SHA-256 fingerprint of the event's salient
// fields. Attendee order, case and duplicates do not affect the result.
func ComputeHash(ev Event) string {
	doc := fingerprint{
		Title:       strings.TrimSpace(ev.Title),
		Description: strings.TrimSpace(ev.Description),
		Attendees:   canonicalAttendees(ev.Attendees),
		Start:       canonicalTime(ev.Start),
		End:         canonicalTime(ev.End),
	}
	// Marshal of a struct of strings cannot fail.
	data, _ := json.Marshal(doc)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func canonicalAttendees(attendees []Attendee) []string {
	seen := make(map[string]struct{}, len(attendees))
	out := make([]string, 0, len(attendees))
	for _, a := range attendees {
		email := NormalizeEmail(a.Email)
		if email == "" {
			continue
		}
		if _, ok := seen[email]; ok {
			continue
		}
		seen[email] = struct{}{}
		out = append(out, email)
	}
	sort.Strings(out)
	return out
}

func canonicalTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
