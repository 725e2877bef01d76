package llm

import (
	"strings"

	"github.com/tidwall/gjson"
)

// ExtractJSON locates the JSON object in free-form model output. It strips
// markdown fences, takes the outermost brace pair and, when that span is not
// valid JSON (several objects, trailing prose with braces), falls back to the
// first balanced object. The result is always a JSON object or an error
// wrapping ErrMalformedOutput.
func ExtractJSON(text string) (gjson.Result, error) {
	body := stripFences(strings.TrimSpace(text))

	start := strings.IndexByte(body, '{')
	end := strings.LastIndexByte(body, '}')
	if start < 0 || end <= start {
		return gjson.Result{}, ErrMalformedOutput
	}

	candidate := body[start : end+1]
	if !gjson.Valid(candidate) {
		obj, ok := firstBalancedObject(body[start:])
		if !ok || !gjson.Valid(obj) {
			return gjson.Result{}, ErrMalformedOutput
		}
		candidate = obj
	}

	result := gjson.Parse(candidate)
	if !result.IsObject() {
		return gjson.Result{}, ErrMalformedOutput
	}
	return result, nil
}

func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

// firstBalancedObject returns the prefix of s (which starts with '{') up to
// the brace that closes it, skipping braces inside string literals.
func firstBalancedObject(s string) (string, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[:i+1], true
			}
		}
	}
	return "", false
}
