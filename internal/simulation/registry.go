package simulation

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"

	"agent_catalog/internal/domain"
)

//go:embed traces.yaml
var builtinTraces []byte

// Registry holds demo execution traces keyed by agent id.
type Registry struct {
	mu     sync.RWMutex
	traces map[string][]domain.TraceStep
}

func NewRegistry() *Registry {
	return &Registry{traces: make(map[string][]domain.TraceStep)}
}

// Builtin returns a registry preloaded with the bundled demo traces.
func Builtin() (*Registry, error) {
	var traces map[string][]domain.TraceStep
	if err := yaml.Unmarshal(builtinTraces, &traces); err != nil {
		return nil, fmt.Errorf("decode builtin traces: %w", err)
	}
	r := NewRegistry()
	r.Merge(traces)
	return r, nil
}

// Merge adds traces, replacing any existing trace for the same agent.
func (r *Registry) Merge(traces map[string][]domain.TraceStep) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, steps := range traces {
		r.traces[id] = append([]domain.TraceStep(nil), steps...)
	}
}

// Trace returns the steps for agentID, or an empty list.
func (r *Registry) Trace(agentID string) []domain.TraceStep {
	r.mu.RLock()
	defer r.mu.RUnlock()
	steps := r.traces[agentID]
	out := make([]domain.TraceStep, len(steps))
	copy(out, steps)
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.traces)
}
