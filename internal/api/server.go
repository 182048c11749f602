package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzhttp"

	"agent_catalog/internal/catalog"
	"agent_catalog/internal/domain"
	"agent_catalog/internal/identity"
	"agent_catalog/internal/llm"
	"agent_catalog/internal/service"
)

const (
	maxBodyBytes  = 1 << 20
	agentNotFound = "Agent not found"
)

type Options struct {
	Logger *slog.Logger
	// ConfigPath and Config back GET /config. Config must already be redacted.
	ConfigPath string
	Config     map[string]any
	Now        func() time.Time
}

type Server struct {
	svc        *service.Service
	logger     *slog.Logger
	configPath string
	config     map[string]any
	now        func() time.Time
}

func New(svc *service.Service, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = map[string]any{}
	}
	return &Server{svc: svc, logger: logger, configPath: opts.ConfigPath, config: cfg, now: now}
}

// Handler returns the full middleware-wrapped route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /config", s.handleConfig)

	mux.HandleFunc("GET /api/divisions", s.handleDivisions)
	mux.HandleFunc("GET /api/agents", s.handleListAgents)
	mux.HandleFunc("POST /api/agents", s.handleCreateAgent)
	mux.HandleFunc("GET /api/agents/{id}", s.handleGetAgent)
	mux.HandleFunc("PUT /api/agents/{id}", s.handleUpdateAgent)
	mux.HandleFunc("DELETE /api/agents/{id}", s.handleDeleteAgent)
	mux.HandleFunc("GET /api/agents/{id}/trace", s.handleTrace)

	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("GET /api/logs", s.handleLogs)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/stats/summary", s.handleSummary)

	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("POST /api/auth/register", s.handleRegister)

	return s.loggingMiddleware(gzhttp.GzipHandler(mux))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	info := s.svc.Provider()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"time":     s.now().UTC().Format(time.RFC3339),
		"provider": info.Provider,
		"model":    info.Model,
	})
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"path": s.configPath,
		"raw":  s.config,
	})
}

func (s *Server) handleDivisions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.ListDivisions())
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	page, err := s.svc.ListAgents(filter)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := s.svc.GetAgent(r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var patch domain.AgentPatch
	if err := decodeBody(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	agent, err := s.svc.CreateAgent(r.Context(), patch)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, agent)
}

func (s *Server) handleUpdateAgent(w http.ResponseWriter, r *http.Request) {
	var patch domain.AgentPatch
	if err := decodeBody(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	agent, err := s.svc.UpdateAgent(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

func (s *Server) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	if _, err := s.svc.DeleteAgent(r.Context(), r.PathValue("id")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTrace(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Trace(r.PathValue("id")))
}

type chatRequest struct {
	Agent   *domain.Agent `json:"agent"`
	AgentID string        `json:"agentId"`
	History []domain.Turn `json:"history"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	reply, err := s.svc.Chat(r.Context(), service.ChatRequest{
		AgentID: req.AgentID,
		Agent:   req.Agent,
		History: req.History,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, replyBody(reply))
}

// replyBody spreads the structured fields next to the canonical text, the
// shape browser clients already consume.
func replyBody(reply domain.Reply) map[string]any {
	body := map[string]any{
		"kind": reply.Kind,
		"text": reply.Text,
	}
	if !reply.Structured() {
		return body
	}
	actions := reply.Actions
	if actions == nil {
		actions = []domain.Action{}
	}
	artifacts := reply.Artifacts
	if artifacts == nil {
		artifacts = []domain.Artifact{}
	}
	body["response_text"] = reply.Text
	body["thought_process"] = reply.Reasoning
	body["actions"] = actions
	body["artifacts"] = artifacts
	return body
}

func (s *Server) handleLogs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.ReadLogs())
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.ReadStats())
}

func (s *Server) handleSummary(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Summary())
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds identity.Credentials
	if err := decodeBody(r, &creds); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	user, err := s.svc.Login(r.Context(), creds)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var creds identity.Credentials
	if err := decodeBody(r, &creds); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	user, err := s.svc.Register(r.Context(), creds)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func parseFilter(r *http.Request) (domain.AgentFilter, error) {
	q := r.URL.Query()
	filter := domain.AgentFilter{
		Search:   strings.TrimSpace(q.Get("searchQuery")),
		Page:     1,
		PageSize: catalog.DefaultPageSize,
	}
	for _, raw := range q["divisions"] {
		if v := strings.TrimSpace(raw); v != "" {
			filter.Divisions = append(filter.Divisions, v)
		}
	}
	var err error
	if filter.Page, err = queryInt(q.Get("page"), 1); err != nil {
		return domain.AgentFilter{}, domain.NewValidationError("page", "%v", err)
	}
	if filter.PageSize, err = queryInt(q.Get("limit"), catalog.DefaultPageSize); err != nil {
		return domain.AgentFilter{}, domain.NewValidationError("limit", "%v", err)
	}
	return filter, nil
}

// queryInt returns def for an empty value. Range checks are left to the
// catalog so that out-of-range values are rejected, not replaced.
func queryInt(raw string, def int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("not an integer: %q", raw)
	}
	return v, nil
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return fmt.Errorf("invalid json body: %w", err)
	}
	return nil
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	var (
		configErr    *llm.ConfigError
		transportErr *llm.TransportError
		statusErr    *llm.StatusError
		parseErr     *llm.ParseError
	)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case domain.IsValidation(err):
		return http.StatusBadRequest
	case errors.As(err, &configErr):
		return http.StatusServiceUnavailable
	case errors.As(err, &transportErr), errors.As(err, &statusErr), errors.As(err, &parseErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code == http.StatusNotFound && r.PathValue("id") != "" {
		writeJSON(w, code, map[string]any{"error": agentNotFound})
		return
	}
	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "status", code, "err", err)
	}
	writeError(w, code, err)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]any{
		"error": err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
			"request_id", requestID,
		)
	})
}
