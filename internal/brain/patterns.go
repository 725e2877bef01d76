package brain

import (
	"regexp"
	"strings"

	"github.com/PBLIZZ/MindfulCRM-sub000/internal/domain/event"
)

var (
	spamPattern = regexp.MustCompile(`(?i)(\bunsubscribe\b|\bfree trial\b|\blimited time\b|\bspecial offer\b|\bpromo(tion|tional)?\b|\bdiscount\b|\bsale\b|\bnewsletter\b|\bsponsored\b|\bwebinar invitation\b|\bclick here\b|\d+\s?% off\b)`)

	personalPattern = regexp.MustCompile(`(?i)\b(birthday|anniversary|dentist|doctor|vet|lunch|dinner|brunch|drinks|date night|gym|haircut|vacation|holiday|friends?|family|mom|dad|kids?|school pickup|personal|day off)\b`)

	businessPattern = regexp.MustCompile(`(?i)\b(sessions?|clients?|consult(ation)?s?|coaching|therapy|appointments?|workshops?|class(es)?|retreats?|follow[- ]?ups?|check[- ]?ins?|intake|assessments?|treatments?|massage|yoga|meditation|reiki|healing|wellness|programs?|packages?|discovery call)\b`)

	noReplyPattern = regexp.MustCompile(`(?i)^(no[-_.]?reply|do[-_.]?not[-_.]?reply|notifications?|mailer-daemon|bounces?)([+-].*)?$`)
)

func eventText(ev event.Event) string {
	return ev.Title + "\n" + ev.Description
}

func isNoReply(email string) bool {
	local, _, ok := strings.Cut(event.NormalizeEmail(email), "@")
	if !ok {
		return false
	}
	return noReplyPattern.MatchString(local)
}

func allNoReply(attendees []event.Attendee) bool {
	if len(attendees) == 0 {
		return false
	}
	for _, a := range attendees {
		if !isNoReply(a.Email) {
			return false
		}
	}
	return true
}

// contactIndex maps normalized email to contact.
type contactIndex map[string]event.Contact

func indexContacts(contacts []event.Contact) contactIndex {
	idx := make(contactIndex, len(contacts))
	for _, c := range contacts {
		if email := event.NormalizeEmail(c.Email); email != "" {
			idx[email] = c
		}
	}
	return idx
}

// knownAttendees returns the normalized, de-duplicated emails of attendees
// present in the contact index, in attendee order.
func (idx contactIndex) knownAttendees(attendees []event.Attendee) []string {
	var out []string
	seen := make(map[string]bool)
	for _, a := range attendees {
		email := event.NormalizeEmail(a.Email)
		if _, ok := idx[email]; ok && !seen[email] {
			seen[email] = true
			out = append(out, email)
		}
	}
	return out
}
