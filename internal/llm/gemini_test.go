package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGemini(t *testing.T, handler http.HandlerFunc) *Gemini {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	g, err := NewGemini(Config{BaseURL: srv.URL, APIKey: "test-key", Model: "gemini-test"})
	require.NoError(t, err)
	return g
}

var testRequest = Request{
	Messages: []Message{
		{Role: RoleUser, Text: "prime"},
		{Role: RoleModel, Text: "ack"},
		{Role: RoleUser, Text: "hello"},
	},
	JSONOutput: true,
}

func TestGeminiCompleteSendsConversation(t *testing.T) {
	g := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-test:generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))

		var body geminiRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if assert.Len(t, body.Contents, 3) {
			assert.Equal(t, "model", body.Contents[1].Role)
			assert.Equal(t, "hello", body.Contents[2].Parts[0].Text)
		}
		if assert.NotNil(t, body.GenerationConfig) {
			assert.Equal(t, "application/json", body.GenerationConfig.ResponseMimeType)
		}

		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"response_text\":"},{"text":"\"hi\"}"}]}}]}`))
	})

	out, err := g.Complete(context.Background(), testRequest)
	require.NoError(t, err)
	assert.Equal(t, `{"response_text":"hi"}`, out.Text)
	assert.Equal(t, Info{Provider: ProviderGemini, Model: "gemini-test"}, g.Info())
}

func TestGeminiStatusErrorWithJSONMessage(t *testing.T) {
	g := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"quota exceeded"}`))
	})

	_, err := g.Complete(context.Background(), testRequest)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	assert.EqualError(t, err, "quota exceeded")
}

func TestGeminiStatusErrorNestedMessage(t *testing.T) {
	g := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":429,"message":"Resource has been exhausted","status":"RESOURCE_EXHAUSTED"}}`))
	})

	_, err := g.Complete(context.Background(), testRequest)
	assert.EqualError(t, err, "Resource has been exhausted")
}

func TestGeminiStatusErrorWithoutJSON(t *testing.T) {
	g := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`<html>upstream down</html>`))
	})

	_, err := g.Complete(context.Background(), testRequest)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.EqualError(t, err, "upstream http error: status 502 (Bad Gateway)")
	assert.Equal(t, "<html>upstream down</html>", statusErr.Body)
}

func TestGeminiUnparsableBody(t *testing.T) {
	g := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json at all`))
	})

	out, err := g.Complete(context.Background(), testRequest)
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.EqualError(t, err, "failed to parse response as JSON")
	assert.Equal(t, Completion{}, out)
}

func TestGeminiNoCandidatesIsParseError(t *testing.T) {
	g := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"promptFeedback":{"blockReason":"SAFETY"}}`))
	})

	_, err := g.Complete(context.Background(), testRequest)
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.ErrorContains(t, parseErr.Err, "SAFETY")
}

func TestGeminiTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	baseURL := srv.URL
	srv.Close()

	g, err := NewGemini(Config{BaseURL: baseURL, APIKey: "k"})
	require.NoError(t, err)
	_, err = g.Complete(context.Background(), testRequest)
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.NotContains(t, err.Error(), "Post ")
}

func TestGeminiHonorsContext(t *testing.T) {
	g := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Complete(ctx, testRequest)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewGeminiRequiresKey(t *testing.T) {
	_, err := NewGemini(Config{})
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.ErrorIs(t, err, ErrMissingCredential)
}
