package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicConfig configures the Anthropic Messages API.
type AnthropicConfig struct {
	APIKey     string
	BaseURL    string
	MaxTokens  int
	HTTPClient *http.Client
}

type anthropicMessages interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// AnthropicProvider implements ModelProvider with anthropic-sdk-go.
type AnthropicProvider struct {
	msgs      anthropicMessages
	maxTokens int
}

// structuredSuffix is appended to the system prompt in structured mode, the
// Messages API having no JSON response format switch.
const structuredSuffix = "Respond with a single JSON object and nothing else."

// NewAnthropicProvider builds a provider with SDK-level retries disabled.
func NewAnthropicProvider(cfg AnthropicConfig) (*AnthropicProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	client := anthropic.NewClient(opts...)
	return newAnthropicProvider(&client.Messages, cfg), nil
}

func newAnthropicProvider(msgs anthropicMessages, cfg AnthropicConfig) *AnthropicProvider {
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &AnthropicProvider{msgs: msgs, maxTokens: maxTokens}
}

func (p *AnthropicProvider) GenerateCompletion(ctx context.Context, model string, messages []Message, structured bool) (string, error) {
	var system []anthropic.TextBlockParam
	params := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		text := strings.TrimSpace(m.Content)
		if text == "" {
			continue
		}
		switch m.Role {
		case RoleSystem:
			system = append(system, anthropic.TextBlockParam{Text: text})
		case RoleAssistant:
			params = append(params, anthropic.NewAssistantMessage(anthropic.NewTextBlock(text)))
		default:
			params = append(params, anthropic.NewUserMessage(anthropic.NewTextBlock(text)))
		}
	}
	if structured {
		system = append(system, anthropic.TextBlockParam{Text: structuredSuffix})
	}

	resp, err := p.msgs.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(p.maxTokens),
		System:    system,
		Messages:  params,
	})
	if err != nil {
		return "", &ProviderError{Provider: "anthropic", Model: model, StatusCode: anthropicStatus(err), Err: err}
	}

	var sb strings.Builder
	if resp != nil {
		for _, block := range resp.Content {
			if block.Type == "text" {
				sb.WriteString(block.Text)
			}
		}
	}
	content := strings.TrimSpace(sb.String())
	if content == "" {
		return "", &ProviderError{Provider: "anthropic", Model: model, StatusCode: http.StatusBadGateway, Err: ErrEmptyResponse}
	}
	return content, nil
}

func anthropicStatus(err error) int {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
