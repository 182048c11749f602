package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
)

const (
	ProviderOllama       = "ollama"
	defaultOllamaBaseURL = "http://localhost:11434"
	defaultOllamaModel   = "llama3.1:latest"
)

type Ollama struct {
	client *api.Client
	model  string
}

func NewOllama(cfg Config) (*Ollama, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, &ConfigError{Provider: ProviderOllama, Err: fmt.Errorf("invalid base url %q: %w", baseURL, err)}
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultOllamaModel
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Ollama{client: api.NewClient(parsed, httpClient), model: model}, nil
}

func (p *Ollama) Info() Info {
	return Info{Provider: ProviderOllama, Model: p.model}
}

func (p *Ollama) Complete(ctx context.Context, req Request) (Completion, error) {
	messages := make([]api.Message, 0, len(req.Messages))
	for _, msg := range req.Messages {
		role := "user"
		if msg.Role == RoleModel {
			role = "assistant"
		}
		messages = append(messages, api.Message{Role: role, Content: msg.Text})
	}
	stream := false
	chatReq := &api.ChatRequest{
		Model:    p.model,
		Messages: messages,
		Stream:   &stream,
	}
	if req.JSONOutput {
		chatReq.Format = json.RawMessage(`"json"`)
	}

	var out strings.Builder
	err := p.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		out.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return Completion{}, mapOllamaError(err)
	}
	return Completion{Text: out.String(), Model: p.model}, nil
}

func mapOllamaError(err error) error {
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		return &StatusError{
			StatusCode: statusErr.StatusCode,
			Status:     reasonPhrase(statusErr.Status, statusErr.StatusCode),
			Message:    strings.TrimSpace(statusErr.ErrorMessage),
		}
	}
	return &TransportError{Err: unwrapURLError(err)}
}
