package llm

import "encoding/json"

// charsPerToken approximates tokenizer density for English prose.
const charsPerToken = 4

// EstimateTokens approximates the token count of text from its length.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + charsPerToken - 1) / charsPerToken
}

// EstimateMessageTokens approximates the prompt size of messages from their
// serialized length.
func EstimateMessageTokens(messages []Message) int {
	data, err := json.Marshal(messages)
	if err != nil {
		total := 0
		for _, m := range messages {
			total += EstimateTokens(m.Content)
		}
		return total
	}
	return EstimateTokens(string(data))
}
