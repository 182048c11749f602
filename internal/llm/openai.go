package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	ProviderOpenAI       = "openai"
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultOpenAIModel   = "gpt-4o-mini"
)

type OpenAI struct {
	client openai.Client
	model  string
}

func NewOpenAI(cfg Config) (*OpenAI, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, &ConfigError{Provider: ProviderOpenAI, Err: ErrMissingCredential}
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultOpenAIModel
	}
	opts := []option.RequestOption{
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	return &OpenAI{client: openai.NewClient(opts...), model: model}, nil
}

func (p *OpenAI) Info() Info {
	return Info{Provider: ProviderOpenAI, Model: p.model}
}

func (p *OpenAI) Complete(ctx context.Context, req Request) (Completion, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, msg := range req.Messages {
		if msg.Role == RoleModel {
			messages = append(messages, openai.AssistantMessage(msg.Text))
			continue
		}
		messages = append(messages, openai.UserMessage(msg.Text))
	}
	params := openai.ChatCompletionNewParams{
		Messages: messages,
		Model:    openai.ChatModel(p.model),
	}
	if req.JSONOutput {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		}
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return Completion{}, mapOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return Completion{}, ResponseParseError(errors.New("no choices in reply"))
	}
	return Completion{Text: resp.Choices[0].Message.Content, Model: resp.Model}, nil
}

func mapOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		statusErr := NewStatusError(apiErr.StatusCode, http.StatusText(apiErr.StatusCode), []byte(apiErr.RawJSON()))
		if apiErr.Message != "" {
			statusErr.Message = apiErr.Message
		}
		return statusErr
	}
	return &TransportError{Err: unwrapURLError(err)}
}
