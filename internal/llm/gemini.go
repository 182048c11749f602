package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

const (
	ProviderGemini       = "gemini"
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com"
	defaultGeminiModel   = "gemini-1.5-flash"
	defaultMaxReplyBytes = 8 * 1024 * 1024
)

type Gemini struct {
	baseURL  string
	model    string
	apiKey   string
	maxBytes int64
	client   *http.Client
	logger   *slog.Logger
}

func NewGemini(cfg Config) (*Gemini, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, &ConfigError{Provider: ProviderGemini, Err: fmt.Errorf("invalid base url %q: %w", baseURL, err)}
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultGeminiModel
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, &ConfigError{Provider: ProviderGemini, Err: ErrMissingCredential}
	}
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gemini{
		baseURL:  baseURL,
		model:    model,
		apiKey:   apiKey,
		maxBytes: defaultMaxReplyBytes,
		client:   client,
		logger:   logger,
	}, nil
}

func (g *Gemini) Info() Info {
	return Info{Provider: ProviderGemini, Model: g.model}
}

func (g *Gemini) Complete(ctx context.Context, req Request) (Completion, error) {
	payload := geminiRequest{Contents: make([]geminiContent, 0, len(req.Messages))}
	for _, msg := range req.Messages {
		role := "user"
		if msg.Role == RoleModel {
			role = "model"
		}
		payload.Contents = append(payload.Contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: msg.Text}},
		})
	}
	if req.JSONOutput {
		payload.GenerationConfig = &geminiGenerationConfig{ResponseMimeType: "application/json"}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Completion{}, fmt.Errorf("marshal gemini request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", g.baseURL, url.PathEscape(g.model))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Completion{}, fmt.Errorf("create gemini request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return Completion{}, &TransportError{Err: unwrapURLError(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxHTTPErrorBodyReadSize))
		if readErr != nil {
			g.logger.Warn("read gemini error body failed", "status", resp.StatusCode, "err", readErr)
		}
		return Completion{}, NewStatusError(resp.StatusCode, resp.Status, errBody)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, g.maxBytes+1))
	if err != nil {
		return Completion{}, &TransportError{Err: err}
	}
	if int64(len(raw)) > g.maxBytes {
		return Completion{}, ResponseParseError(fmt.Errorf("reply exceeds %d bytes", g.maxBytes))
	}
	var decoded geminiResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return Completion{}, ResponseParseError(err)
	}
	text, err := decoded.text()
	if err != nil {
		return Completion{}, ResponseParseError(err)
	}
	return Completion{Text: text, Model: g.model}, nil
}

// unwrapURLError drops the "Post <url>:" prefix net/http adds so the
// underlying network message reaches the caller as is.
func unwrapURLError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		return urlErr.Err
	}
	return err
}

type geminiRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiGenerationConfig struct {
	ResponseMimeType string `json:"responseMimeType,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason,omitempty"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason,omitempty"`
	} `json:"promptFeedback,omitempty"`
}

func (r geminiResponse) text() (string, error) {
	if len(r.Candidates) == 0 {
		if r.PromptFeedback != nil && r.PromptFeedback.BlockReason != "" {
			return "", fmt.Errorf("prompt blocked: %s", r.PromptFeedback.BlockReason)
		}
		return "", errors.New("no candidates in reply")
	}
	var out strings.Builder
	for _, part := range r.Candidates[0].Content.Parts {
		out.WriteString(part.Text)
	}
	return out.String(), nil
}
