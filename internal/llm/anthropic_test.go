package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestConvertToAnthropic(t *testing.T) {
	messages := []Message{
		{Role: RoleUser, Content: []ContentBlock{TextBlock("Brief me on the storm.")}},
		{Role: RoleAssistant, Content: []ContentBlock{
			TextBlock("Checking the forecast."),
			ToolUseBlock("toolu_1", "get_weather", map[string]any{"latitude": 30.2}),
			ToolUseBlock("toolu_2", "list_briefings", nil),
		}},
		{Role: RoleTool, Content: []ContentBlock{
			ToolResultBlock("toolu_1", `{"temp":31}`, false),
			ToolResultBlock("toolu_2", "storage offline", true),
		}},
		{Role: RoleSystem, Content: []ContentBlock{TextBlock("already saved")}},
		{Role: RoleAssistant, Content: []ContentBlock{TextBlock("")}},
	}

	result, err := convertToAnthropic(messages)
	if err != nil {
		t.Fatalf("convertToAnthropic: %v", err)
	}

	// system dropped; empty assistant message dropped
	if len(result) != 3 {
		t.Fatalf("got %d messages, want 3", len(result))
	}

	roles := []string{result[0].Role, result[1].Role, result[2].Role}
	if diff := cmp.Diff([]string{"user", "assistant", "user"}, roles); diff != "" {
		t.Errorf("roles mismatch (-want +got):\n%s", diff)
	}

	uses := result[1].Content
	if string(uses[1].Input) != `{"latitude":30.2}` {
		t.Errorf("input = %s", uses[1].Input)
	}
	if string(uses[2].Input) != `{}` {
		t.Errorf("nil input encoded as %s, want {}", uses[2].Input)
	}

	results := result[2].Content
	if results[0].ToolUseID != "toolu_1" || results[0].IsError {
		t.Errorf("first result = %+v", results[0])
	}
	if results[1].ToolUseID != "toolu_2" || !results[1].IsError {
		t.Errorf("second result = %+v", results[1])
	}
}

func TestConvertToAnthropic_UnknownRole(t *testing.T) {
	_, err := convertToAnthropic([]Message{{Role: "narrator", Content: []ContentBlock{TextBlock("x")}}})
	if err == nil {
		t.Fatal("expected error for unknown role")
	}
}

func TestConvertToolsToAnthropic(t *testing.T) {
	tools := []Tool{
		{
			Name:        "geocode_location",
			Description: "Resolve a place name",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"place": map[string]any{"type": "string"}},
				"required":   []any{"place"},
			},
		},
		{Name: "ping_tool"},
	}

	result := convertToolsToAnthropic(tools)
	if len(result) != 2 {
		t.Fatalf("got %d tools, want 2", len(result))
	}
	if result[0].Name != "geocode_location" || result[0].Description != "Resolve a place name" {
		t.Errorf("tool[0] = %+v", result[0])
	}
	empty, _ := result[1].InputSchema.(map[string]any)
	if empty["type"] != "object" {
		t.Errorf("missing schema should default to an empty object schema, got %v", result[1].InputSchema)
	}
}

func TestConvertFromAnthropic(t *testing.T) {
	resp := &anthropicResponse{
		ID:    "msg_01",
		Model: "claude-sonnet-4-5",
		Role:  "assistant",
		Content: []anthropicContent{
			{Type: "text", Text: "I'll look that up."},
			{Type: "thinking"},
			{Type: "tool_use", ID: "toolu_xyz", Name: "web_search", Input: json.RawMessage(`{"query":"hurricane"}`)},
		},
		StopReason: "tool_use",
		Usage:      anthropicUsage{InputTokens: 120, OutputTokens: 40},
	}

	got, err := convertFromAnthropic(resp)
	if err != nil {
		t.Fatalf("convertFromAnthropic: %v", err)
	}

	want := &Response{
		ID:         "msg_01",
		Model:      "claude-sonnet-4-5",
		StopReason: "tool_use",
		Usage:      Usage{InputTokens: 120, OutputTokens: 40},
		Content: []ContentBlock{
			TextBlock("I'll look that up."),
			ToolUseBlock("toolu_xyz", "web_search", map[string]any{"query": "hurricane"}),
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("response mismatch (-want +got):\n%s", diff)
	}
}

func TestConvertFromAnthropic_ToolUseWithoutID(t *testing.T) {
	_, err := convertFromAnthropic(&anthropicResponse{
		Content: []anthropicContent{{Type: "tool_use", Name: "web_search"}},
	})
	var perr *ProtocolError
	if !errors.As(err, &perr) {
		t.Fatalf("error = %v, want *ProtocolError", err)
	}
}

func TestAnthropicClient_Complete(t *testing.T) {
	var gotReq anthropicRequest
	var gotHeaders http.Header

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotReq)

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-test",
			"content": [{"type": "text", "text": "Clear skies."}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 10, "output_tokens": 3}
		}`)
	}))
	defer ts.Close()

	c := NewAnthropicClient("sk-test", nil, WithBaseURL(ts.URL))
	resp, err := c.Complete(context.Background(), Request{
		Model:     "claude-test",
		System:    "You are a briefing assistant.",
		Messages:  []Message{{Role: RoleUser, Content: []ContentBlock{TextBlock("Weather?")}}},
		Tools:     []Tool{{Name: "get_weather", InputSchema: map[string]any{"type": "object"}}},
		MaxTokens: 1000,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if got := resp.Message().Text(); got != "Clear skies." {
		t.Errorf("text = %q", got)
	}
	if resp.StopReason != "end_turn" {
		t.Errorf("StopReason = %q", resp.StopReason)
	}

	if gotHeaders.Get("x-api-key") != "sk-test" {
		t.Errorf("x-api-key = %q", gotHeaders.Get("x-api-key"))
	}
	if gotHeaders.Get("anthropic-version") != anthropicAPIVersion {
		t.Errorf("anthropic-version = %q", gotHeaders.Get("anthropic-version"))
	}
	if !strings.HasPrefix(gotHeaders.Get("User-Agent"), "briefer/") {
		t.Errorf("User-Agent = %q", gotHeaders.Get("User-Agent"))
	}
	if gotReq.MaxTokens != 1000 || gotReq.System != "You are a briefing assistant." {
		t.Errorf("request = %+v", gotReq)
	}
	if len(gotReq.Tools) != 1 || gotReq.Tools[0].Name != "get_weather" {
		t.Errorf("tools = %+v", gotReq.Tools)
	}
}

func TestAnthropicClient_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		retryAfter string
		check      func(t *testing.T, err error)
	}{
		{
			name: "rate limited", status: http.StatusTooManyRequests, retryAfter: "7",
			check: func(t *testing.T, err error) {
				var e *RateLimitError
				if !errors.As(err, &e) {
					t.Fatalf("error = %T, want *RateLimitError", err)
				}
				if e.RetryAfter != 7*time.Second {
					t.Errorf("RetryAfter = %v, want 7s", e.RetryAfter)
				}
			},
		},
		{
			name: "overloaded", status: statusOverloaded,
			check: func(t *testing.T, err error) {
				var e *RateLimitError
				if !errors.As(err, &e) {
					t.Fatalf("error = %T, want *RateLimitError", err)
				}
			},
		},
		{
			name: "bad key", status: http.StatusUnauthorized,
			check: func(t *testing.T, err error) {
				var e *AuthError
				if !errors.As(err, &e) {
					t.Fatalf("error = %T, want *AuthError", err)
				}
			},
		},
		{
			name: "forbidden", status: http.StatusForbidden,
			check: func(t *testing.T, err error) {
				var e *AuthError
				if !errors.As(err, &e) {
					t.Fatalf("error = %T, want *AuthError", err)
				}
			},
		},
		{
			name: "server error", status: http.StatusInternalServerError,
			check: func(t *testing.T, err error) {
				var e *ProtocolError
				if !errors.As(err, &e) || e.StatusCode != 500 {
					t.Fatalf("error = %v, want *ProtocolError with status 500", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.retryAfter != "" {
					w.Header().Set("Retry-After", tt.retryAfter)
				}
				w.WriteHeader(tt.status)
				io.WriteString(w, `{"type":"error","error":{"type":"some_error","message":"details here"}}`)
			}))
			defer ts.Close()

			c := NewAnthropicClient("sk-test", nil, WithBaseURL(ts.URL))
			_, err := c.Complete(context.Background(), Request{
				Model:    "claude-test",
				Messages: []Message{{Role: RoleUser, Content: []ContentBlock{TextBlock("hi")}}},
			})
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), "some_error: details here") {
				t.Errorf("error %q does not carry the provider message", err)
			}
			tt.check(t, err)
		})
	}
}

func TestAnthropicClient_MalformedBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"content": [`)
	}))
	defer ts.Close()

	c := NewAnthropicClient("sk-test", nil, WithBaseURL(ts.URL))
	_, err := c.Complete(context.Background(), Request{Model: "m"})
	var perr *ProtocolError
	if !errors.As(err, &perr) {
		t.Fatalf("error = %v, want *ProtocolError", err)
	}
}

func TestAnthropicClient_ImplementsGateway(t *testing.T) {
	var _ Gateway = (*AnthropicClient)(nil)
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`, "overloaded_error: Overloaded"},
		{`plain text failure`, "plain text failure"},
		{``, "(empty response body)"},
	}
	for _, tt := range tests {
		if got := errorMessage(tt.body); got != tt.want {
			t.Errorf("errorMessage(%q) = %q, want %q", tt.body, got, tt.want)
		}
	}
}
