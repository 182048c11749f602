package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"agent_catalog/internal/domain"
	"agent_catalog/internal/llm"
)

type Options struct {
	// Structured asks the upstream for the JSON reply schema and decodes it.
	// When false the raw model text is returned as a plain reply.
	Structured bool
	Logger     *slog.Logger
}

func DefaultOptions() Options {
	return Options{Structured: true}
}

// Proxy turns a persona plus caller-owned history into exactly one upstream
// call. It holds no conversation state.
type Proxy struct {
	provider   llm.Provider
	structured bool
	logger     *slog.Logger
}

func New(provider llm.Provider, opts Options) *Proxy {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Proxy{provider: provider, structured: opts.Structured, logger: logger}
}

func (p *Proxy) Provider() llm.Info {
	return p.provider.Info()
}

func (p *Proxy) Converse(ctx context.Context, persona domain.Agent, history []domain.Turn) (domain.Reply, error) {
	req, err := p.BuildRequest(persona, history)
	if err != nil {
		return domain.Reply{}, err
	}

	start := time.Now()
	completion, err := p.provider.Complete(ctx, req)
	if err != nil {
		return domain.Reply{}, err
	}
	p.logger.Debug("upstream reply",
		"agent", persona.ID,
		"provider", p.provider.Info().Provider,
		"duration_ms", time.Since(start).Milliseconds(),
		"bytes", len(completion.Text),
	)

	if !p.structured {
		return domain.Reply{Kind: domain.ReplyKindPlain, Text: completion.Text}, nil
	}
	return ParseReply(completion.Text)
}

// BuildRequest assembles the priming turns, the prior history and the new
// message in upstream order.
func (p *Proxy) BuildRequest(persona domain.Agent, history []domain.Turn) (llm.Request, error) {
	if len(history) == 0 {
		return llm.Request{}, domain.NewValidationError("history", "must contain at least one turn")
	}
	prompt, err := SystemPrompt(persona)
	if err != nil {
		return llm.Request{}, err
	}

	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages,
		llm.Message{Role: llm.RoleUser, Text: primingPrefix + prompt},
		llm.Message{Role: llm.RoleModel, Text: acknowledgement(persona)},
	)
	for _, turn := range history[:len(history)-1] {
		role := llm.RoleModel
		if turn.Role == domain.TurnRoleUser {
			role = llm.RoleUser
		}
		messages = append(messages, llm.Message{Role: role, Text: turnText(turn)})
	}
	last := history[len(history)-1]
	messages = append(messages, llm.Message{Role: llm.RoleUser, Text: last.Text})

	return llm.Request{Messages: messages, JSONOutput: p.structured}, nil
}

// ParseReply decodes model text in the structured reply schema. Markdown
// code fences around the object are tolerated.
func ParseReply(raw string) (domain.Reply, error) {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var decoded struct {
		ThoughtProcess string            `json:"thought_process"`
		Actions        []domain.Action   `json:"actions"`
		ResponseText   *string           `json:"response_text"`
		Artifacts      []domain.Artifact `json:"artifacts"`
	}
	if !strings.HasPrefix(text, "{") {
		return domain.Reply{}, llm.ReplyParseError(errors.New("reply is not a JSON object"))
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	if err := dec.Decode(&decoded); err != nil {
		return domain.Reply{}, llm.ReplyParseError(err)
	}
	if dec.More() {
		return domain.Reply{}, llm.ReplyParseError(errors.New("trailing data after reply object"))
	}
	if decoded.ResponseText == nil {
		return domain.Reply{}, llm.ReplyParseError(errors.New("reply has no response_text"))
	}
	return domain.Reply{
		Kind:      domain.ReplyKindStructured,
		Text:      *decoded.ResponseText,
		Reasoning: decoded.ThoughtProcess,
		Actions:   decoded.Actions,
		Artifacts: decoded.Artifacts,
	}, nil
}
