package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// New builds the provider named by cfg.Provider (gemini when empty). A
// missing API key does not fail construction: the returned provider rejects
// every call with ErrMissingCredential, so catalog operations keep working.
func New(cfg Config) (Provider, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if name == "" {
		name = ProviderGemini
	}
	var (
		p   Provider
		err error
	)
	switch name {
	case ProviderGemini:
		p, err = NewGemini(cfg)
	case ProviderOpenAI:
		p, err = NewOpenAI(cfg)
	case ProviderAnthropic:
		p, err = NewAnthropic(cfg)
	case ProviderOllama:
		p, err = NewOllama(cfg)
	default:
		return nil, &ConfigError{Provider: name, Err: fmt.Errorf("unknown provider %q", name)}
	}
	if errors.Is(err, ErrMissingCredential) {
		return missingCredential{info: Info{Provider: name, Model: strings.TrimSpace(cfg.Model)}}, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

type missingCredential struct {
	info Info
}

func (m missingCredential) Info() Info { return m.info }

func (m missingCredential) Complete(context.Context, Request) (Completion, error) {
	return Completion{}, &ConfigError{Provider: m.info.Provider, Err: ErrMissingCredential}
}
