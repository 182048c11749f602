package llm

import (
	"context"
	"log/slog"
	"net/http"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

type Message struct {
	Role Role
	Text string
}

type Request struct {
	Messages []Message
	// JSONOutput asks the upstream to constrain its reply to a JSON object.
	JSONOutput bool
}

type Completion struct {
	Text  string
	Model string
}

type Info struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// Provider sends one conversation to an upstream model and returns its
// reply. Implementations never retry and never stream.
type Provider interface {
	Complete(ctx context.Context, req Request) (Completion, error)
	Info() Info
}

type Config struct {
	Provider   string
	Model      string
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Logger     *slog.Logger
}
