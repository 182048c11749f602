package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agent_catalog/internal/domain"
	"agent_catalog/internal/llm"
)

type fakeProvider struct {
	requests []llm.Request
	text     string
	err      error
}

func (f *fakeProvider) Complete(_ context.Context, req llm.Request) (llm.Completion, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return llm.Completion{}, f.err
	}
	return llm.Completion{Text: f.text}, nil
}

func (f *fakeProvider) Info() llm.Info { return llm.Info{Provider: "fake", Model: "fake-1"} }

var persona = domain.Agent{
	ID:               "ecom-01",
	Name:             "Support Triage",
	Division:         "E-Commerce",
	Role:             "Classifies customer queries",
	Responsibilities: []string{"classify intent", "route tickets"},
	Inputs:           []string{"support emails"},
	Triggers:         []string{"new ticket"},
	RunbookSummary:   "Escalate refunds over $500.",
}

func TestConversePrimingSequence(t *testing.T) {
	fp := &fakeProvider{text: `{"thought_process":"t","actions":[],"response_text":"done","artifacts":[]}`}
	proxy := New(fp, DefaultOptions())

	history := []domain.Turn{
		{Role: domain.TurnRoleUser, Text: "first question"},
		{Role: domain.TurnRoleAgent, Text: "first answer", Reasoning: "because"},
		{Role: domain.TurnRoleUser, Text: "second question"},
	}
	_, err := proxy.Converse(context.Background(), persona, history)
	require.NoError(t, err)
	require.Len(t, fp.requests, 1)

	req := fp.requests[0]
	assert.True(t, req.JSONOutput)
	require.Len(t, req.Messages, 5)

	assert.Equal(t, llm.RoleUser, req.Messages[0].Role)
	assert.True(t, strings.HasPrefix(req.Messages[0].Text, "Initialize System with the following prompt: "))
	assert.Contains(t, req.Messages[0].Text, "named Support Triage")
	assert.Contains(t, req.Messages[0].Text, "RESPONSIBILITIES: classify intent, route tickets")
	assert.Contains(t, req.Messages[0].Text, "RUNBOOK: Escalate refunds over $500.")
	assert.NotContains(t, req.Messages[0].Text, "OUTPUTS:")

	assert.Equal(t, llm.RoleModel, req.Messages[1].Role)
	var ack map[string]any
	require.NoError(t, json.Unmarshal([]byte(req.Messages[1].Text), &ack))
	assert.Equal(t, "System initialized. Neural pathways active.", ack["thought_process"])
	assert.Equal(t, "Agent Support Triage is online and ready for deployment.", ack["response_text"])
	assert.Equal(t, []any{}, ack["actions"])
	assert.Equal(t, []any{}, ack["artifacts"])

	assert.Equal(t, llm.Message{Role: llm.RoleUser, Text: "first question"}, req.Messages[2])
	assert.Equal(t, llm.RoleModel, req.Messages[3].Role)
	assert.JSONEq(t, `{"thought_process":"because","actions":null,"response_text":"first answer","artifacts":null}`, req.Messages[3].Text)
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Text: "second question"}, req.Messages[4])
}

func TestConverseNormalizesForeignRoles(t *testing.T) {
	var history []domain.Turn
	require.NoError(t, json.Unmarshal([]byte(`[
		{"role":"user","text":"hi"},
		{"role":"model","text":"hello"},
		{"role":"assistant","text":{"response_text":"obj"}},
		{"role":"user","text":"again"}
	]`), &history))

	fp := &fakeProvider{text: "plain words"}
	proxy := New(fp, Options{Structured: false})
	reply, err := proxy.Converse(context.Background(), persona, history)
	require.NoError(t, err)
	assert.Equal(t, domain.Reply{Kind: domain.ReplyKindPlain, Text: "plain words"}, reply)

	msgs := fp.requests[0].Messages
	require.Len(t, msgs, 6)
	assert.Equal(t, llm.RoleModel, msgs[3].Role)
	assert.Equal(t, llm.RoleModel, msgs[4].Role)
	assert.JSONEq(t, `{"response_text":"obj"}`, msgs[4].Text)
	assert.False(t, fp.requests[0].JSONOutput)
}

func TestConverseStructuredReply(t *testing.T) {
	fp := &fakeProvider{text: "```json\n{\"thought_process\":\"SWOT\",\"actions\":[{\"tool\":\"web_search\",\"input\":\"refunds\",\"status\":\"Executing...\"}],\"response_text\":\"Routed.\",\"artifacts\":[{\"type\":\"plan\",\"title\":\"Plan\",\"content\":\"step 1\"}]}\n```"}
	reply, err := New(fp, DefaultOptions()).Converse(context.Background(), persona, []domain.Turn{{Role: domain.TurnRoleUser, Text: "go"}})
	require.NoError(t, err)

	assert.True(t, reply.Structured())
	assert.Equal(t, "Routed.", reply.Text)
	assert.Equal(t, "SWOT", reply.Reasoning)
	assert.Equal(t, []domain.Action{{Tool: "web_search", Input: "refunds", Status: "Executing..."}}, reply.Actions)
	assert.Equal(t, []domain.Artifact{{Type: "plan", Title: "Plan", Content: "step 1"}}, reply.Artifacts)
}

func TestConverseRejectsEmptyHistory(t *testing.T) {
	fp := &fakeProvider{}
	_, err := New(fp, DefaultOptions()).Converse(context.Background(), persona, nil)
	assert.True(t, domain.IsValidation(err))
	assert.Empty(t, fp.requests)
}

func TestConverseInvalidStructuredText(t *testing.T) {
	for _, text := range []string{"Sure! Here you go.", `{"response_text": 7}`, `{"thought_process":"x"}`, `{"response_text":"a"} trailing`} {
		fp := &fakeProvider{text: text}
		reply, err := New(fp, DefaultOptions()).Converse(context.Background(), persona, []domain.Turn{{Role: domain.TurnRoleUser, Text: "go"}})
		var parseErr *llm.ParseError
		require.ErrorAs(t, err, &parseErr, text)
		assert.EqualError(t, err, "failed to parse model reply")
		assert.Equal(t, domain.Reply{}, reply)
	}
}

func TestConversePassesUpstreamErrorsThrough(t *testing.T) {
	upstream := &llm.StatusError{StatusCode: 500, Message: "quota exceeded"}
	fp := &fakeProvider{err: upstream}
	_, err := New(fp, DefaultOptions()).Converse(context.Background(), persona, []domain.Turn{{Role: domain.TurnRoleUser, Text: "go"}})
	var statusErr *llm.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Same(t, upstream, statusErr)
	assert.EqualError(t, err, "quota exceeded")
}

func TestConverseAgainstGeminiScenarios(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
		check   func(t *testing.T, err error)
	}{
		{
			name:    "json error message",
			status:  http.StatusInternalServerError,
			body:    `{"error":"quota exceeded"}`,
			wantErr: "quota exceeded",
			check: func(t *testing.T, err error) {
				var statusErr *llm.StatusError
				assert.ErrorAs(t, err, &statusErr)
			},
		},
		{
			name:    "non json error",
			status:  http.StatusBadGateway,
			body:    `Bad Gateway`,
			wantErr: "upstream http error: status 502 (Bad Gateway)",
			check: func(t *testing.T, err error) {
				assert.Contains(t, err.Error(), "502")
				assert.Contains(t, err.Error(), "Bad Gateway")
			},
		},
		{
			name:    "unparsable success",
			status:  http.StatusOK,
			body:    `{"candidates": [`,
			wantErr: "failed to parse response as JSON",
			check: func(t *testing.T, err error) {
				var parseErr *llm.ParseError
				assert.ErrorAs(t, err, &parseErr)
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			provider, err := llm.NewGemini(llm.Config{BaseURL: srv.URL, APIKey: "k"})
			require.NoError(t, err)
			reply, err := New(provider, DefaultOptions()).Converse(context.Background(), persona, []domain.Turn{{Role: domain.TurnRoleUser, Text: "hi"}})
			require.Error(t, err)
			assert.EqualError(t, err, tc.wantErr)
			assert.Equal(t, domain.Reply{}, reply)
			tc.check(t, err)
		})
	}
}

func TestConverseMissingCredentialMakesNoCall(t *testing.T) {
	provider, err := llm.New(llm.Config{Provider: "gemini"})
	require.NoError(t, err)

	_, err = New(provider, DefaultOptions()).Converse(context.Background(), persona, []domain.Turn{{Role: domain.TurnRoleUser, Text: "hi"}})
	var cfgErr *llm.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.ErrorIs(t, err, llm.ErrMissingCredential)
}

func TestParseReplyEmptyResponseTextIsValid(t *testing.T) {
	reply, err := ParseReply(`{"response_text":""}`)
	require.NoError(t, err)
	assert.Equal(t, domain.ReplyKindStructured, reply.Kind)
	assert.Empty(t, reply.Text)
}
