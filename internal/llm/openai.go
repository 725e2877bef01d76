package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIConfig configures an OpenAI-compatible chat completions endpoint.
// BaseURL may point at OpenRouter or any other compatible gateway.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	MaxTokens   int
	Temperature float64
	HTTPClient  *http.Client
}

type chatCompletions interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// OpenAIProvider implements ModelProvider with openai-go.
type OpenAIProvider struct {
	completions chatCompletions
	maxTokens   int
	temperature float64
}

const defaultMaxTokens = 1024

// NewOpenAIProvider builds a provider. SDK-level retries are disabled;
// wrap the provider in a RetryProvider instead.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
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

	client := openai.NewClient(opts...)
	return newOpenAIProvider(&client.Chat.Completions, cfg), nil
}

func newOpenAIProvider(completions chatCompletions, cfg OpenAIConfig) *OpenAIProvider {
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &OpenAIProvider{
		completions: completions,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
	}
}

func (p *OpenAIProvider) GenerateCompletion(ctx context.Context, model string, messages []Message, structured bool) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:               model,
		Messages:            toOpenAIMessages(messages),
		MaxCompletionTokens: openai.Int(int64(p.maxTokens)),
		Temperature:         openai.Float(p.temperature),
	}
	if structured {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		}
	}

	resp, err := p.completions.New(ctx, params)
	if err != nil {
		return "", &ProviderError{Provider: "openai", Model: model, StatusCode: openAIStatus(err), Err: err}
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", &ProviderError{Provider: "openai", Model: model, StatusCode: http.StatusBadGateway, Err: ErrEmptyResponse}
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", &ProviderError{Provider: "openai", Model: model, StatusCode: http.StatusBadGateway, Err: ErrEmptyResponse}
	}
	return content, nil
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func openAIStatus(err error) int {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
