package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/nugget/briefer/internal/httpkit"
)

const (
	anthropicAPIURL     = "https://api.anthropic.com/v1/messages"
	anthropicAPIVersion = "2023-06-01"

	// statusOverloaded is Anthropic's non-standard "overloaded" status.
	statusOverloaded = 529
)

// AnthropicClient is a client for the Anthropic Messages API.
type AnthropicClient struct {
	apiKey     string
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures an AnthropicClient.
type Option func(*AnthropicClient)

// WithBaseURL points the client at a different Messages endpoint.
func WithBaseURL(url string) Option {
	return func(c *AnthropicClient) {
		if url != "" {
			c.url = url
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *AnthropicClient) { c.httpClient = hc }
}

// NewAnthropicClient creates a new Anthropic client.
func NewAnthropicClient(apiKey string, logger *slog.Logger, opts ...Option) *AnthropicClient {
	if logger == nil {
		logger = slog.Default()
	}
	// Long prompts with many tool results can take a while before the
	// first header arrives.
	t := httpkit.NewTransport()
	t.ResponseHeaderTimeout = 120 * time.Second

	c := &AnthropicClient{
		apiKey: apiKey,
		url:    anthropicAPIURL,
		logger: logger.With("provider", "anthropic"),
		httpClient: httpkit.NewClient(
			// Deadlines come from the caller's context.
			httpkit.WithTimeout(0),
			httpkit.WithTransport(t),
		),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Anthropic request/response types

type anthropicRequest struct {
	Model     string             `json:"model"`
	Messages  []anthropicMessage `json:"messages"`
	System    string             `json:"system,omitempty"`
	MaxTokens int                `json:"max_tokens"`
	Tools     []anthropicTool    `json:"tools,omitempty"`
}

type anthropicMessage struct {
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicContent struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"` // for tool_result
	IsError   bool            `json:"is_error,omitempty"`
}

type anthropicTool struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	InputSchema any    `json:"input_schema"`
}

type anthropicResponse struct {
	ID         string             `json:"id"`
	Type       string             `json:"type"`
	Role       string             `json:"role"`
	Content    []anthropicContent `json:"content"`
	Model      string             `json:"model"`
	StopReason string             `json:"stop_reason"`
	Usage      anthropicUsage     `json:"usage"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Complete sends one non-streaming Messages request.
func (c *AnthropicClient) Complete(ctx context.Context, req Request) (*Response, error) {
	msgs, err := convertToAnthropic(req.Messages)
	if err != nil {
		return nil, err
	}

	areq := anthropicRequest{
		Model:     req.Model,
		Messages:  msgs,
		System:    req.System,
		MaxTokens: req.MaxTokens,
		Tools:     convertToolsToAnthropic(req.Tools),
	}

	c.logger.Debug("preparing request",
		"model", areq.Model,
		"messages", len(areq.Messages),
		"tools", len(areq.Tools),
		"system_len", len(areq.System),
	)

	body, err := c.post(ctx, areq)
	if err != nil {
		return nil, err
	}
	defer httpkit.DrainAndClose(body, 1<<20)

	var aresp anthropicResponse
	if err := json.NewDecoder(body).Decode(&aresp); err != nil {
		return nil, &ProtocolError{Message: "decode response", Err: err}
	}
	resp, err := convertFromAnthropic(&aresp)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("response received",
		"model", resp.Model,
		"stop_reason", resp.StopReason,
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
		"blocks", len(resp.Content),
	)

	return resp, nil
}

// Ping checks that the API is reachable and the key is accepted by
// asking model for a single token.
func (c *AnthropicClient) Ping(ctx context.Context, model string) error {
	body, err := c.post(ctx, anthropicRequest{
		Model:     model,
		Messages:  []anthropicMessage{{Role: RoleUser, Content: []anthropicContent{{Type: BlockText, Text: "ping"}}}},
		MaxTokens: 1,
	})
	if err != nil {
		return err
	}
	httpkit.DrainAndClose(body, 1<<20)
	return nil
}

// post sends areq and returns the body of a 2xx response. Error
// statuses are mapped to the typed errors.
func (c *AnthropicClient) post(ctx context.Context, areq anthropicRequest) (io.ReadCloser, error) {
	jsonData, err := json.Marshal(areq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	c.logger.Log(ctx, LevelTrace, "request payload", "json", string(jsonData))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp.Body, nil
	}

	msg := errorMessage(httpkit.ReadErrorBody(resp.Body, 4096))
	c.logger.Error("API error", "status", resp.StatusCode, "message", msg)

	switch resp.StatusCode {
	case http.StatusTooManyRequests, statusOverloaded:
		return nil, &RateLimitError{
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Message:    msg,
		}
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, &AuthError{StatusCode: resp.StatusCode, Message: msg}
	default:
		return nil, &ProtocolError{StatusCode: resp.StatusCode, Message: msg}
	}
}

// parseRetryAfter reads a Retry-After header in seconds.
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// convertToAnthropic converts conversation messages to the wire format.
// Control (system role) messages are dropped, tool messages become user
// messages of tool_result blocks, and empty text blocks are omitted
// because the API rejects them.
func convertToAnthropic(messages []Message) ([]anthropicMessage, error) {
	result := make([]anthropicMessage, 0, len(messages))

	for _, msg := range messages {
		role := msg.Role
		switch role {
		case RoleSystem:
			continue
		case RoleTool:
			role = RoleUser
		case RoleUser, RoleAssistant:
		default:
			return nil, fmt.Errorf("unknown message role %q", msg.Role)
		}

		blocks := make([]anthropicContent, 0, len(msg.Content))
		for _, b := range msg.Content {
			switch b.Type {
			case BlockText:
				if b.Text == "" {
					continue
				}
				blocks = append(blocks, anthropicContent{Type: BlockText, Text: b.Text})
			case BlockToolUse:
				input, err := marshalInput(b.Input)
				if err != nil {
					return nil, fmt.Errorf("marshal input for %s: %w", b.Name, err)
				}
				blocks = append(blocks, anthropicContent{
					Type:  BlockToolUse,
					ID:    b.ID,
					Name:  b.Name,
					Input: input,
				})
			case BlockToolResult:
				blocks = append(blocks, anthropicContent{
					Type:      BlockToolResult,
					ToolUseID: b.ToolUseID,
					Content:   b.Content,
					IsError:   b.IsError,
				})
			default:
				return nil, fmt.Errorf("unknown content block type %q", b.Type)
			}
		}
		if len(blocks) == 0 {
			continue
		}

		result = append(result, anthropicMessage{Role: role, Content: blocks})
	}
	return result, nil
}

// marshalInput encodes tool input, always as an object: the API
// rejects a tool_use block without one.
func marshalInput(input map[string]any) (json.RawMessage, error) {
	if len(input) == 0 {
		return json.RawMessage(`{}`), nil
	}
	return json.Marshal(input)
}

// convertToolsToAnthropic converts tool descriptors to the wire format.
func convertToolsToAnthropic(tools []Tool) []anthropicTool {
	if len(tools) == 0 {
		return nil
	}

	result := make([]anthropicTool, 0, len(tools))
	for _, tool := range tools {
		var schema any = tool.InputSchema
		if len(tool.InputSchema) == 0 {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		result = append(result, anthropicTool{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: schema,
		})
	}
	return result
}

// convertFromAnthropic converts an API response to a Response. Block
// types the gateway does not model (thinking, server tools) are
// skipped.
func convertFromAnthropic(resp *anthropicResponse) (*Response, error) {
	out := &Response{
		ID:         resp.ID,
		Model:      resp.Model,
		StopReason: resp.StopReason,
		Usage: Usage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		},
	}

	for _, block := range resp.Content {
		switch block.Type {
		case BlockText:
			out.Content = append(out.Content, TextBlock(block.Text))
		case BlockToolUse:
			if block.ID == "" || block.Name == "" {
				return nil, &ProtocolError{Message: "tool_use block without id or name"}
			}
			args := map[string]any{}
			if len(block.Input) > 0 {
				if err := json.Unmarshal(block.Input, &args); err != nil {
					args = map[string]any{"_raw": string(block.Input)}
				}
			}
			out.Content = append(out.Content, ToolUseBlock(block.ID, block.Name, args))
		}
	}
	return out, nil
}
