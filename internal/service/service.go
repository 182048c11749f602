package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"agent_catalog/internal/catalog"
	"agent_catalog/internal/domain"
	"agent_catalog/internal/identity"
	"agent_catalog/internal/llm"
	"agent_catalog/internal/simulation"
	"agent_catalog/internal/telemetry"
)

// Dispatcher sends one conversation turn to the upstream model.
type Dispatcher interface {
	Converse(ctx context.Context, persona domain.Agent, history []domain.Turn) (domain.Reply, error)
	Provider() llm.Info
}

type Deps struct {
	Catalog    *catalog.Store
	Dispatcher Dispatcher
	Telemetry  *telemetry.Sink
	Identity   identity.Provider
	Traces     *simulation.Registry
	Logger     *slog.Logger
	Now        func() time.Time
}

// Service is the boundary every transport talks to. It owns no state of its
// own beyond references to its collaborators.
type Service struct {
	catalog    *catalog.Store
	dispatcher Dispatcher
	telemetry  *telemetry.Sink
	identity   identity.Provider
	traces     *simulation.Registry
	logger     *slog.Logger
	now        func() time.Time
}

func New(deps Deps) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Identity == nil {
		deps.Identity = identity.NewStub(domain.UserRoleAdmin)
	}
	if deps.Traces == nil {
		deps.Traces = simulation.NewRegistry()
	}
	return &Service{
		catalog:    deps.Catalog,
		dispatcher: deps.Dispatcher,
		telemetry:  deps.Telemetry,
		identity:   deps.Identity,
		traces:     deps.Traces,
		logger:     deps.Logger,
		now:        deps.Now,
	}
}

func (s *Service) ListDivisions() []string {
	return s.catalog.Divisions()
}

func (s *Service) ListAgents(filter domain.AgentFilter) (domain.AgentPage, error) {
	return catalog.Query(s.catalog, filter)
}

func (s *Service) GetAgent(id string) (domain.Agent, error) {
	return s.catalog.Get(id)
}

func (s *Service) CreateAgent(ctx context.Context, patch domain.AgentPatch) (domain.Agent, error) {
	agent, err := s.catalog.Create(ctx, patch)
	if err != nil {
		return domain.Agent{}, err
	}
	s.logger.Info("agent created", "id", agent.ID, "division", agent.Division)
	return agent, nil
}

func (s *Service) UpdateAgent(ctx context.Context, id string, patch domain.AgentPatch) (domain.Agent, error) {
	agent, err := s.catalog.Update(ctx, id, patch)
	if err != nil {
		return domain.Agent{}, err
	}
	s.logger.Info("agent updated", "id", agent.ID)
	return agent, nil
}

// DeleteAgent reports whether a record was removed. A missing id is not an
// error.
func (s *Service) DeleteAgent(ctx context.Context, id string) (bool, error) {
	removed, err := s.catalog.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	if removed {
		s.logger.Info("agent deleted", "id", id)
	}
	return removed, nil
}

type ChatRequest struct {
	AgentID string
	// Agent, when set, is used as the persona instead of the stored record.
	Agent   *domain.Agent
	History []domain.Turn
}

// Chat resolves the persona, runs one upstream call and records telemetry
// for successful calls only.
func (s *Service) Chat(ctx context.Context, req ChatRequest) (domain.Reply, error) {
	persona, err := s.resolvePersona(req)
	if err != nil {
		return domain.Reply{}, err
	}
	if len(req.History) == 0 {
		return domain.Reply{}, domain.NewValidationError("history", "must contain at least one turn")
	}

	start := s.now()
	reply, err := s.dispatcher.Converse(ctx, persona, req.History)
	if err != nil {
		s.logger.Error("chat failed",
			"agent", persona.ID,
			"provider", s.dispatcher.Provider().Provider,
			"kind", errorKind(err),
			"err", err,
		)
		return domain.Reply{}, err
	}
	finished := s.now()
	latency := finished.Sub(start).Milliseconds()
	if latency < 0 {
		latency = 0
	}

	// The reply already exists; a caller hanging up must not cancel the write.
	s.telemetry.Record(context.WithoutCancel(ctx), domain.LogEntry{
		Timestamp:   finished.UTC(),
		AgentID:     persona.ID,
		AgentName:   persona.Name,
		UserMessage: req.History[len(req.History)-1].Text,
		AIResponse:  reply.Text,
		LatencyMS:   latency,
	})
	s.logger.Info("chat completed", "agent", persona.ID, "kind", reply.Kind, "latency_ms", latency)
	return reply, nil
}

func (s *Service) resolvePersona(req ChatRequest) (domain.Agent, error) {
	if req.Agent != nil {
		persona := req.Agent.Clone()
		if strings.TrimSpace(persona.Name) == "" {
			return domain.Agent{}, domain.NewValidationError("agent.name", "is required")
		}
		return persona, nil
	}
	id := strings.TrimSpace(req.AgentID)
	if id == "" {
		return domain.Agent{}, domain.NewValidationError("agentId", "agent or agentId is required")
	}
	persona, err := s.catalog.Get(id)
	if err != nil {
		return domain.Agent{}, fmt.Errorf("resolve persona: %w", err)
	}
	return persona, nil
}

func (s *Service) ReadLogs() []domain.LogEntry {
	return s.telemetry.Logs()
}

func (s *Service) ReadStats() domain.Stats {
	return s.telemetry.Stats()
}

func (s *Service) Summary() domain.StatsSummary {
	return s.telemetry.Summary()
}

func (s *Service) Login(ctx context.Context, creds identity.Credentials) (domain.User, error) {
	return s.identity.Login(ctx, creds)
}

func (s *Service) Register(ctx context.Context, creds identity.Credentials) (domain.User, error) {
	return s.identity.Register(ctx, creds)
}

// Trace returns the recorded simulation for an agent, or an empty list.
func (s *Service) Trace(agentID string) []domain.TraceStep {
	return s.traces.Trace(agentID)
}

func (s *Service) Provider() llm.Info {
	return s.dispatcher.Provider()
}

func errorKind(err error) string {
	var (
		configErr    *llm.ConfigError
		transportErr *llm.TransportError
		statusErr    *llm.StatusError
		parseErr     *llm.ParseError
	)
	switch {
	case errors.As(err, &configErr):
		return "config"
	case errors.As(err, &transportErr):
		return "transport"
	case errors.As(err, &statusErr):
		return "status"
	case errors.As(err, &parseErr):
		return "parse"
	case domain.IsValidation(err):
		return "validation"
	default:
		return "unknown"
	}
}
