package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"agent_catalog/internal/domain"
)

// Persister receives the whole collection after every mutation.
type Persister interface {
	SaveAgents(ctx context.Context, agents []domain.Agent) error
}

type Options struct {
	Persister Persister
	Logger    *slog.Logger
	NewID     func() string
}

// Store holds the catalog in memory. Mutations are written through to the
// persister (when set) before they become visible to readers.
type Store struct {
	mu        sync.RWMutex
	order     []string
	byID      map[string]domain.Agent
	persister Persister
	logger    *slog.Logger
	newID     func() string
}

func NewStore(opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	newID := opts.NewID
	if newID == nil {
		newID = func() string { return "agent-" + uuid.NewString() }
	}
	return &Store{
		byID:      make(map[string]domain.Agent),
		persister: opts.Persister,
		logger:    logger,
		newID:     newID,
	}
}

// Restore replaces the collection without writing it back. Used at startup
// with records read from the persister.
func (s *Store) Restore(agents []domain.Agent) {
	order, byID := index(agents)
	s.mu.Lock()
	s.order, s.byID = order, byID
	s.mu.Unlock()
}

// Load flattens an ecosystem's divisions into the store, replacing what was
// there before, and persists the result.
func (s *Store) Load(ctx context.Context, divisions Divisions) error {
	flat, err := Flatten(divisions)
	if err != nil {
		return err
	}
	order, byID := index(flat)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.persist(ctx, order, byID); err != nil {
		return err
	}
	s.order, s.byID = order, byID
	s.logger.Info("catalog loaded", "agents", len(order), "divisions", len(divisions))
	return nil
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// All returns a snapshot of the catalog in store order.
func (s *Store) All() []domain.Agent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot(s.order, s.byID)
}

// Divisions returns the distinct division labels in first-seen order.
func (s *Store) Divisions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, id := range s.order {
		div := s.byID[id].Division
		if _, ok := seen[div]; ok {
			continue
		}
		seen[div] = struct{}{}
		out = append(out, div)
	}
	return out
}

func (s *Store) Get(id string) (domain.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agent, ok := s.byID[id]
	if !ok {
		return domain.Agent{}, fmt.Errorf("agent %q: %w", id, domain.ErrNotFound)
	}
	return agent.Clone(), nil
}

func (s *Store) Create(ctx context.Context, patch domain.AgentPatch) (domain.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := ""
	if patch.ID != nil {
		id = strings.TrimSpace(*patch.ID)
	}
	if id == "" {
		id = s.newID()
	}
	if _, exists := s.byID[id]; exists {
		return domain.Agent{}, domain.NewValidationError("id", "agent %q already exists", id)
	}
	agent := patch.Apply(domain.Agent{ID: id})
	if strings.TrimSpace(agent.Name) == "" {
		return domain.Agent{}, domain.NewValidationError("name", "must not be empty")
	}
	if strings.TrimSpace(agent.Division) == "" {
		return domain.Agent{}, domain.NewValidationError("division", "must not be empty")
	}

	order := append(append([]string(nil), s.order...), id)
	byID := cloneIndex(s.byID)
	byID[id] = agent
	if err := s.persist(ctx, order, byID); err != nil {
		return domain.Agent{}, err
	}
	s.order, s.byID = order, byID
	return agent.Clone(), nil
}

// Update merges patch into the stored record. The id is never changed.
func (s *Store) Update(ctx context.Context, id string, patch domain.AgentPatch) (domain.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.byID[id]
	if !ok {
		return domain.Agent{}, fmt.Errorf("agent %q: %w", id, domain.ErrNotFound)
	}
	updated := patch.Apply(current)
	byID := cloneIndex(s.byID)
	byID[id] = updated
	if err := s.persist(ctx, s.order, byID); err != nil {
		return domain.Agent{}, err
	}
	s.byID = byID
	return updated.Clone(), nil
}

// Delete removes the record. A missing id is not an error; the boolean
// reports whether anything was removed.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[id]; !ok {
		return false, nil
	}
	order := make([]string, 0, len(s.order)-1)
	for _, existing := range s.order {
		if existing != id {
			order = append(order, existing)
		}
	}
	byID := cloneIndex(s.byID)
	delete(byID, id)
	if err := s.persist(ctx, order, byID); err != nil {
		return false, err
	}
	s.order, s.byID = order, byID
	return true, nil
}

func (s *Store) persist(ctx context.Context, order []string, byID map[string]domain.Agent) error {
	if s.persister == nil {
		return nil
	}
	if err := s.persister.SaveAgents(ctx, s.snapshot(order, byID)); err != nil {
		return fmt.Errorf("persist catalog: %w", err)
	}
	return nil
}

func (s *Store) snapshot(order []string, byID map[string]domain.Agent) []domain.Agent {
	out := make([]domain.Agent, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id].Clone())
	}
	return out
}

// index builds the ordered view of agents. On duplicate ids the later record
// wins but keeps the position of the first occurrence.
func index(agents []domain.Agent) ([]string, map[string]domain.Agent) {
	order := make([]string, 0, len(agents))
	byID := make(map[string]domain.Agent, len(agents))
	for _, agent := range agents {
		if _, seen := byID[agent.ID]; !seen {
			order = append(order, agent.ID)
		}
		byID[agent.ID] = agent.Clone()
	}
	return order, byID
}

func cloneIndex(in map[string]domain.Agent) map[string]domain.Agent {
	out := make(map[string]domain.Agent, len(in)+1)
	for k, v := range in {
		out[k] = v
	}
	return out
}
