package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	ProviderAnthropic        = "anthropic"
	defaultAnthropicBaseURL  = "https://api.anthropic.com"
	defaultAnthropicModel    = "claude-sonnet-4-5-20250929"
	anthropicMaxTokens       = 4096
	anthropicJSONInstruction = "Reply with a single JSON object and nothing else."
)

type Anthropic struct {
	client anthropic.Client
	model  string
}

func NewAnthropic(cfg Config) (*Anthropic, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, &ConfigError{Provider: ProviderAnthropic, Err: ErrMissingCredential}
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultAnthropicBaseURL
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultAnthropicModel
	}
	opts := []option.RequestOption{
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	return &Anthropic{client: anthropic.NewClient(opts...), model: model}, nil
}

func (p *Anthropic) Info() Info {
	return Info{Provider: ProviderAnthropic, Model: p.model}
}

func (p *Anthropic) Complete(ctx context.Context, req Request) (Completion, error) {
	messages := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, msg := range req.Messages {
		if msg.Role == RoleModel {
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Text)))
			continue
		}
		messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Text)))
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		Messages:  messages,
		MaxTokens: anthropicMaxTokens,
	}
	if req.JSONOutput {
		params.System = []anthropic.TextBlockParam{{Text: anthropicJSONInstruction}}
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return Completion{}, mapAnthropicError(err)
	}
	var out strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	return Completion{Text: out.String(), Model: string(msg.Model)}, nil
}

func mapAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return NewStatusError(apiErr.StatusCode, http.StatusText(apiErr.StatusCode), []byte(apiErr.RawJSON()))
	}
	return &TransportError{Err: unwrapURLError(err)}
}
