package llm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		key   string
		want  string
	}{
		{name: "plain", input: `{"isRelevant":true}`, key: "isRelevant", want: "true"},
		{name: "fenced", input: "```json\n{\"reason\":\"client\"}\n```", key: "reason", want: "client"},
		{name: "bare fence", input: "```\n{\"reason\":\"x\"}\n```", key: "reason", want: "x"},
		{name: "surrounding prose", input: `Sure! Here you go: {"a": 1} hope that helps`, key: "a", want: "1"},
		{name: "nested", input: `{"outer":{"inner":"v"}}`, key: "outer.inner", want: "v"},
		{name: "two objects", input: `{"a":"first"} and {"a":"second"}`, key: "a", want: "first"},
		{name: "brace in string", input: `{"notes":"use {curly} braces"} trailing }`, key: "notes", want: "use {curly} braces"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := ExtractJSON(tt.input)
			require.NoError(t, err)
			require.Equal(t, tt.want, res.Get(tt.key).String())
		})
	}
}

func TestExtractJSON_Malformed(t *testing.T) {
	inputs := []string{
		"",
		"no json here",
		`{"truncated": "value`,
		"}{",
		"```json\n```",
		`[1,2,3]`,
	}
	for _, input := range inputs {
		_, err := ExtractJSON(input)
		require.True(t, errors.Is(err, ErrMalformedOutput), "input %q", input)
	}
}

func FuzzExtractJSON(f *testing.F) {
	seeds := []string{
		`{"isRelevant":true,"confidence":0.9}`,
		"```json\n{\"a\":1}\n```",
		`{"a":1}{"b":2}`,
		`{"a":"unterminated`,
		`prefix {"a":{"b":[1,2,{"c":"}"}]}} suffix`,
		"{{{{",
	}
	for _, s := range seeds {
		f.Add(s)
	}
	f.Fuzz(func(t *testing.T, input string) {
		res, err := ExtractJSON(input)
		if err != nil {
			if !errors.Is(err, ErrMalformedOutput) {
				t.Fatalf("unexpected error type: %v", err)
			}
			return
		}
		if !res.IsObject() {
			t.Fatalf("result is not an object: %q", res.Raw)
		}
	})
}
