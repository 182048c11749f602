package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

const maxHTTPErrorBodyReadSize = 64 * 1024

var ErrMissingCredential = errors.New("missing upstream API key")

// ConfigError means the provider cannot be used as configured. No request
// was sent.
type ConfigError struct {
	Provider string
	Err      error
}

func (e *ConfigError) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("upstream not configured: %v", e.Err)
	}
	return fmt.Sprintf("upstream %s not configured: %v", e.Provider, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// TransportError wraps a failure to reach the upstream or read its reply.
// The message is passed through unchanged.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return e.Err.Error() }

func (e *TransportError) Unwrap() error { return e.Err }

// StatusError is a non-2xx upstream reply. When the body carried an error
// message, Error returns exactly that message.
type StatusError struct {
	StatusCode int
	Status     string
	Message    string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("upstream http error: status %d (%s)", e.StatusCode, e.reason())
}

func (e *StatusError) reason() string {
	if phrase := reasonPhrase(e.Status, e.StatusCode); phrase != "" {
		return phrase
	}
	return "unknown"
}

// ParseError reports a reply that arrived but could not be decoded.
type ParseError struct {
	Message string
	Err     error
}

func (e *ParseError) Error() string { return e.Message }

func (e *ParseError) Unwrap() error { return e.Err }

func ResponseParseError(err error) *ParseError {
	return &ParseError{Message: "failed to parse response as JSON", Err: err}
}

func ReplyParseError(err error) *ParseError {
	return &ParseError{Message: "failed to parse model reply", Err: err}
}

func NewStatusError(statusCode int, status string, body []byte) *StatusError {
	return &StatusError{
		StatusCode: statusCode,
		Status:     reasonPhrase(status, statusCode),
		Message:    ErrorMessage(body),
		Body:       strings.TrimSpace(string(body)),
	}
}

// ErrorMessage extracts a human message from a JSON error body. It accepts
// {"error":"msg"}, {"error":{"message":"msg"}} and {"message":"msg"}.
func ErrorMessage(body []byte) string {
	if !gjson.ValidBytes(body) {
		return ""
	}
	errField := gjson.GetBytes(body, "error")
	if errField.Type == gjson.String {
		return strings.TrimSpace(errField.String())
	}
	if msg := gjson.GetBytes(body, "error.message"); msg.Type == gjson.String {
		return strings.TrimSpace(msg.String())
	}
	if msg := gjson.GetBytes(body, "message"); msg.Type == gjson.String {
		return strings.TrimSpace(msg.String())
	}
	return ""
}

// reasonPhrase accepts either "Bad Gateway" or the "502 Bad Gateway" form
// net/http puts in Response.Status.
func reasonPhrase(status string, code int) string {
	status = strings.TrimSpace(status)
	if prefix := strconv.Itoa(code); strings.HasPrefix(status, prefix) {
		status = strings.TrimSpace(strings.TrimPrefix(status, prefix))
	}
	if status != "" {
		return status
	}
	return http.StatusText(code)
}
