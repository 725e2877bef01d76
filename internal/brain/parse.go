package brain

import (
	"strconv"
	"strings"

	"github.com/PBLIZZ/MindfulCRM-sub000/internal/domain/event"
	"github.com/tidwall/gjson"
)

func boolField(r gjson.Result, path string) (bool, bool) {
	v := r.Get(path)
	switch v.Type {
	case gjson.True:
		return true, true
	case gjson.False:
		return false, true
	case gjson.String:
		switch strings.ToLower(strings.TrimSpace(v.Str)) {
		case "true", "yes":
			return true, true
		case "false", "no":
			return false, true
		}
	}
	return false, false
}

func stringField(r gjson.Result, paths ...string) string {
	for _, p := range paths {
		v := r.Get(p)
		if v.Type == gjson.String {
			if s := strings.TrimSpace(v.Str); s != "" {
				return s
			}
		}
	}
	return ""
}

// confidenceField reads a number or numeric string and clamps it to [0,1].
func confidenceField(r gjson.Result, path string, fallback float64) float64 {
	v := r.Get(path)
	var f float64
	switch v.Type {
	case gjson.Number:
		f = v.Num
	case gjson.String:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(v.Str, "%")), 64)
		if err != nil {
			return fallback
		}
		f = parsed
		if strings.HasSuffix(v.Str, "%") {
			f /= 100
		}
	default:
		return fallback
	}
	return clamp01(f)
}

func clamp01(f float64) float64 {
	switch {
	case f != f:
		return 0
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}

// stringSlice reads an array of strings, or a comma-separated string.
func stringSlice(r gjson.Result, path string) []string {
	v := r.Get(path)
	var raw []string
	switch {
	case v.IsArray():
		for _, item := range v.Array() {
			if item.Type == gjson.String || item.Type == gjson.Number {
				raw = append(raw, item.String())
			}
		}
	case v.Type == gjson.String:
		raw = strings.Split(v.Str, ",")
	}

	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func normalizeEmails(emails []string) []string {
	seen := make(map[string]bool, len(emails))
	out := make([]string, 0, len(emails))
	for _, e := range emails {
		e = event.NormalizeEmail(e)
		if e == "" || !strings.Contains(e, "@") || seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	return out
}
