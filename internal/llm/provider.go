// Package llm defines the model provider contract used by the analysis
// pipeline, the model catalog with its pricing, and the boundary that turns
// free-form model output into structured data.
package llm

import "context"

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single chat turn sent to a model.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ModelProvider generates a completion for the named model. When structured
// is true the provider asks the model for a single JSON object.
type ModelProvider interface {
	GenerateCompletion(ctx context.Context, model string, messages []Message, structured bool) (string, error)
}

// System returns a system message.
func System(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// User returns a user message.
func User(content string) Message {
	return Message{Role: RoleUser, Content: content}
}
