package llm

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// RateLimitError reports that the provider is throttling (429) or
// overloaded (529).
type RateLimitError struct {
	StatusCode int
	RetryAfter time.Duration // zero when the provider gave no hint
	Message    string
}

func (e *RateLimitError) Error() string {
	msg := fmt.Sprintf("model rate limited (%d): %s", e.StatusCode, e.Message)
	if e.RetryAfter > 0 {
		msg += fmt.Sprintf(" (retry after %s)", e.RetryAfter)
	}
	return msg
}

// AuthError reports a missing, invalid, or unauthorized API key.
type AuthError struct {
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("model authentication failed (%d): %s", e.StatusCode, e.Message)
}

// ProtocolError reports any other non-success status or a response
// that could not be understood.
type ProtocolError struct {
	StatusCode int // zero when the failure happened after a 200
	Message    string
	Err        error
}

func (e *ProtocolError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("model API error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("model API error: %s", e.Message)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// apiErrorBody is the provider's error envelope:
// {"type":"error","error":{"type":"rate_limit_error","message":"..."}}.
type apiErrorBody struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// errorMessage extracts a readable message from an error body, falling
// back to the raw text.
func errorMessage(body string) string {
	var env apiErrorBody
	if err := json.Unmarshal([]byte(body), &env); err == nil && env.Error.Message != "" {
		if env.Error.Type != "" {
			return env.Error.Type + ": " + env.Error.Message
		}
		return env.Error.Message
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return "(empty response body)"
	}
	return body
}
