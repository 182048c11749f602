package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"agent_catalog/internal/domain"
	"agent_catalog/internal/llm"
)

const maxResponseBytes = 8 << 20

// Client talks to a catalogd instance. Failures come back as the same four
// error kinds the upstream clients use: *llm.TransportError, *llm.StatusError
// (with or without a server message) and *llm.ParseError.
type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

func (c *Client) BaseURL() string { return c.baseURL }

type Health struct {
	Status   string
	Provider string
	Model    string
}

func (c *Client) Health(ctx context.Context) (Health, error) {
	body, err := c.do(ctx, http.MethodGet, "/healthz", nil)
	if err != nil {
		return Health{}, err
	}
	if !gjson.ValidBytes(body) {
		return Health{}, llm.ResponseParseError(errors.New("invalid health payload"))
	}
	return Health{
		Status:   gjson.GetBytes(body, "status").String(),
		Provider: gjson.GetBytes(body, "provider").String(),
		Model:    gjson.GetBytes(body, "model").String(),
	}, nil
}

// WaitHealth polls /healthz until it answers or timeout elapses.
func (c *Client) WaitHealth(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(400 * time.Millisecond)
	defer ticker.Stop()
	for {
		if _, err := c.Health(ctx); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for /healthz")
		case <-ticker.C:
		}
	}
}

func (c *Client) Divisions(ctx context.Context) ([]string, error) {
	var out []string
	if err := c.getJSON(ctx, "/api/divisions", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListAgents(ctx context.Context, filter domain.AgentFilter) (domain.AgentPage, error) {
	q := url.Values{}
	if filter.Search != "" {
		q.Set("searchQuery", filter.Search)
	}
	for _, d := range filter.Divisions {
		q.Add("divisions", d)
	}
	if filter.Page != 0 {
		q.Set("page", strconv.Itoa(filter.Page))
	}
	if filter.PageSize != 0 {
		q.Set("limit", strconv.Itoa(filter.PageSize))
	}
	path := "/api/agents"
	if encoded := q.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var out domain.AgentPage
	if err := c.getJSON(ctx, path, &out); err != nil {
		return domain.AgentPage{}, err
	}
	return out, nil
}

func (c *Client) GetAgent(ctx context.Context, id string) (domain.Agent, error) {
	var out domain.Agent
	if err := c.getJSON(ctx, "/api/agents/"+url.PathEscape(id), &out); err != nil {
		return domain.Agent{}, err
	}
	return out, nil
}

func (c *Client) CreateAgent(ctx context.Context, patch domain.AgentPatch) (domain.Agent, error) {
	var out domain.Agent
	if err := c.sendJSON(ctx, http.MethodPost, "/api/agents", patch, &out); err != nil {
		return domain.Agent{}, err
	}
	return out, nil
}

func (c *Client) UpdateAgent(ctx context.Context, id string, patch domain.AgentPatch) (domain.Agent, error) {
	var out domain.Agent
	if err := c.sendJSON(ctx, http.MethodPut, "/api/agents/"+url.PathEscape(id), patch, &out); err != nil {
		return domain.Agent{}, err
	}
	return out, nil
}

func (c *Client) DeleteAgent(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/api/agents/"+url.PathEscape(id), nil)
	return err
}

func (c *Client) Trace(ctx context.Context, id string) ([]domain.TraceStep, error) {
	var out []domain.TraceStep
	if err := c.getJSON(ctx, "/api/agents/"+url.PathEscape(id)+"/trace", &out); err != nil {
		return nil, err
	}
	return out, nil
}

type ChatRequest struct {
	Agent   *domain.Agent `json:"agent,omitempty"`
	AgentID string        `json:"agentId,omitempty"`
	History []domain.Turn `json:"history"`
}

func (c *Client) Chat(ctx context.Context, req ChatRequest) (domain.Reply, error) {
	var out domain.Reply
	if err := c.sendJSON(ctx, http.MethodPost, "/api/chat", req, &out); err != nil {
		return domain.Reply{}, err
	}
	if out.Kind == "" {
		out.Kind = domain.ReplyKindPlain
	}
	return out, nil
}

func (c *Client) Logs(ctx context.Context) ([]domain.LogEntry, error) {
	var out []domain.LogEntry
	if err := c.getJSON(ctx, "/api/logs", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Stats(ctx context.Context) (domain.Stats, error) {
	var out domain.Stats
	if err := c.getJSON(ctx, "/api/stats", &out); err != nil {
		return domain.Stats{}, err
	}
	return out, nil
}

func (c *Client) Summary(ctx context.Context) (domain.StatsSummary, error) {
	var out domain.StatsSummary
	if err := c.getJSON(ctx, "/api/stats/summary", &out); err != nil {
		return domain.StatsSummary{}, err
	}
	return out, nil
}

func (c *Client) Login(ctx context.Context, email, password string) (domain.User, error) {
	var out domain.User
	in := map[string]string{"email": email, "password": password}
	if err := c.sendJSON(ctx, http.MethodPost, "/api/auth/login", in, &out); err != nil {
		return domain.User{}, err
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return decode(body, out)
}

func (c *Client) sendJSON(ctx context.Context, method, path string, in, out any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	body, err := c.do(ctx, method, path, raw)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	return decode(body, out)
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &llm.TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &llm.TransportError{Err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, llm.NewStatusError(resp.StatusCode, resp.Status, body)
	}
	return body, nil
}

func decode(body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return llm.ResponseParseError(err)
	}
	return nil
}
