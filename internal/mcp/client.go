package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/nugget/briefer/internal/buildinfo"
)

// protocolVersion is the MCP protocol version we advertise during initialization.
const protocolVersion = "2024-11-05"

// cancelNoticeTimeout bounds the best-effort notifications/cancelled
// sent when a caller abandons a request.
const cancelNoticeTimeout = 2 * time.Second

// ToolDefinition is an MCP tool as returned by tools/list.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// ContentBlock is a single content item in a tools/call response.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// CallResult is the outcome of a successful tools/call.
type CallResult struct {
	// Content holds the raw content blocks in server order.
	Content []ContentBlock

	// Text is Content flattened to a single string: text parts joined
	// with newlines, other parts as inline markers.
	Text string

	// Structured is the structuredContent payload, when the server sent one.
	Structured json.RawMessage
}

// callToolResult is the result payload of a tools/call response.
type callToolResult struct {
	Content           []ContentBlock  `json:"content"`
	StructuredContent json.RawMessage `json:"structuredContent,omitempty"`
	IsError           bool            `json:"isError,omitempty"`
}

// toolsListResult is the result payload of a tools/list response.
type toolsListResult struct {
	Tools      []ToolDefinition `json:"tools"`
	NextCursor string           `json:"nextCursor,omitempty"`
}

// serverInfo is returned in the initialize response.
type serverInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// serverCapabilities describes what an MCP server supports.
type serverCapabilities struct {
	Tools *struct{} `json:"tools,omitempty"`
}

// initializeResult is the full initialize response result.
type initializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	ServerInfo      serverInfo         `json:"serverInfo"`
	Capabilities    serverCapabilities `json:"capabilities"`
}

// versionAware is implemented by transports that must echo the
// negotiated protocol version on every request.
type versionAware interface {
	setProtocolVersion(string)
}

// Client connects to a single MCP server and provides typed access to
// the MCP protocol operations (initialize, tools/list, tools/call).
type Client struct {
	name      string
	transport Transport
	logger    *slog.Logger
	nextID    atomic.Int64

	mu          sync.RWMutex
	initialized bool
	serverName  string
	serverVer   string
	tools       []ToolDefinition
	schemas     map[string]*jsonschema.Schema
}

// NewClient creates an MCP client for the given server. The transport
// determines how messages are delivered (stdio or HTTP). Most callers
// want [Connect], which also performs the handshake.
func NewClient(name string, transport Transport, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		name:      name,
		transport: transport,
		logger:    logger.With("mcp_server", name),
	}
}

// Connect creates a client over transport and performs the MCP
// handshake. On failure the transport is closed and a
// [*ConnectionError] is returned.
func Connect(ctx context.Context, name string, transport Transport, logger *slog.Logger) (*Client, error) {
	c := NewClient(name, transport, logger)
	if err := c.Initialize(ctx); err != nil {
		_ = transport.Close()
		var connErr *ConnectionError
		if errors.As(err, &connErr) {
			return nil, connErr
		}
		return nil, &ConnectionError{Server: name, Op: "connect", Err: err}
	}
	return c, nil
}

// Name returns the configured server name.
func (c *Client) Name() string {
	return c.name
}

// ServerInfo returns the name and version the server reported at
// initialize.
func (c *Client) ServerInfo() (name, version string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverName, c.serverVer
}

// Initialize performs the MCP handshake: sends an initialize request
// and then the notifications/initialized notification.
func (c *Client) Initialize(ctx context.Context) error {
	params := map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    "briefer",
			"version": buildinfo.Version,
		},
	}

	resp, err := c.send(ctx, "initialize", params)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	var result initializeResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return fmt.Errorf("unmarshal initialize result: %w", err)
	}

	c.mu.Lock()
	c.initialized = true
	c.serverName = result.ServerInfo.Name
	c.serverVer = result.ServerInfo.Version
	c.mu.Unlock()

	if va, ok := c.transport.(versionAware); ok && result.ProtocolVersion != "" {
		va.setProtocolVersion(result.ProtocolVersion)
	}

	c.logger.Info("MCP server initialized",
		"server_name", result.ServerInfo.Name,
		"server_version", result.ServerInfo.Version,
		"protocol_version", result.ProtocolVersion,
	)

	if err := c.transport.Notify(ctx, NewNotification("notifications/initialized", nil)); err != nil {
		return &ConnectionError{Server: c.name, Op: "notifications/initialized", Err: err}
	}

	return nil
}

// ListTools calls tools/list and returns the available tool definitions.
// Results are cached for the life of the connection; subsequent calls
// return the cached list.
func (c *Client) ListTools(ctx context.Context) ([]ToolDefinition, error) {
	c.mu.RLock()
	if c.tools != nil {
		defer c.mu.RUnlock()
		return c.tools, nil
	}
	c.mu.RUnlock()

	tools := []ToolDefinition{}
	cursor := ""
	for {
		var params any
		if cursor != "" {
			params = map[string]any{"cursor": cursor}
		}

		resp, err := c.send(ctx, "tools/list", params)
		if err != nil {
			var rpcErr *RPCError
			if errors.As(err, &rpcErr) {
				return nil, &ConnectionError{Server: c.name, Op: "tools/list", Err: rpcErr}
			}
			return nil, err
		}

		var result toolsListResult
		if err := json.Unmarshal(resp.Result, &result); err != nil {
			return nil, &ConnectionError{Server: c.name, Op: "tools/list",
				Err: fmt.Errorf("unmarshal result: %w", err)}
		}
		tools = append(tools, result.Tools...)

		if result.NextCursor == "" {
			break
		}
		cursor = result.NextCursor
	}

	schemas := make(map[string]*jsonschema.Schema, len(tools))
	for _, t := range tools {
		sch, err := compileInputSchema(t.Name, t.InputSchema)
		if err != nil {
			c.logger.Warn("tool input schema not usable, arguments will not be validated",
				"tool", t.Name, "error", err)
		}
		schemas[t.Name] = sch
	}

	c.mu.Lock()
	c.tools = tools
	c.schemas = schemas
	c.mu.Unlock()

	c.logger.Info("discovered MCP tools", "count", len(tools))
	return tools, nil
}

// CallTool invokes a tool by name with the given arguments.
//
// When the tool list has been fetched, arguments are checked against
// the tool's input schema first and a mismatch is reported without
// contacting the server. Server-side failures and schema mismatches
// are returned as [*ToolExecutionError]; a broken channel as
// [*ConnectionError]. Context errors are returned wrapped.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (*CallResult, error) {
	if err := c.checkArgs(name, args); err != nil {
		return nil, err
	}

	if args == nil {
		args = map[string]any{}
	}
	params := map[string]any{
		"name":      name,
		"arguments": args,
	}

	resp, err := c.send(ctx, "tools/call", params)
	if err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) {
			return nil, &ToolExecutionError{Tool: name, Message: rpcErr.Message, Err: rpcErr}
		}
		return nil, fmt.Errorf("tools/call %s: %w", name, err)
	}

	var result callToolResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, &ToolExecutionError{Tool: name,
			Message: "malformed result", Err: fmt.Errorf("unmarshal tools/call result: %w", err)}
	}

	text := extractText(result.Content)

	if result.IsError {
		if text == "" {
			text = "tool reported an error"
		}
		return nil, &ToolExecutionError{Tool: name, Message: text}
	}

	return &CallResult{
		Content:    result.Content,
		Text:       text,
		Structured: result.StructuredContent,
	}, nil
}

// checkArgs validates args against the cached schema for name. Before
// the first ListTools nothing is known and everything passes.
func (c *Client) checkArgs(name string, args map[string]any) error {
	c.mu.RLock()
	known := c.tools != nil
	sch, found := c.schemas[name]
	c.mu.RUnlock()

	if !known {
		return nil
	}
	if !found {
		return &ToolExecutionError{Tool: name, Message: "unknown tool"}
	}
	if err := validateArgs(sch, args); err != nil {
		return &ToolExecutionError{Tool: name, Message: err.Error(), Err: err}
	}
	return nil
}

// Ping checks whether the MCP server is responsive.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.send(ctx, "ping", nil)
	return err
}

// Close shuts down the client and its transport.
func (c *Client) Close() error {
	c.logger.Info("closing MCP client")
	return c.transport.Close()
}

// send issues a JSON-RPC request. Transport failures come back as
// [*ConnectionError], protocol-level errors as [*RPCError], and an
// expired ctx as its own error after a cancellation notice is sent.
func (c *Client) send(ctx context.Context, method string, params any) (*Response, error) {
	id := c.nextID.Add(1)
	req := NewRequest(id, method, params)

	resp, err := c.transport.Send(ctx, req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			c.notifyCancelled(ctx, id, ctxErr)
			return nil, ctxErr
		}
		return nil, &ConnectionError{Server: c.name, Op: method, Err: err}
	}

	if resp.Error != nil {
		return nil, resp.Error
	}

	return resp, nil
}

// notifyCancelled tells the server a request was abandoned so it can
// stop work. Best effort.
func (c *Client) notifyCancelled(ctx context.Context, id int64, reason error) {
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cancelNoticeTimeout)
	defer cancel()

	err := c.transport.Notify(nctx, NewNotification("notifications/cancelled", map[string]any{
		"requestId": id,
		"reason":    reason.Error(),
	}))
	if err != nil {
		c.logger.Debug("cancel notification failed", "id", id, "error", err)
	}
}

// extractText joins all text content blocks into a single string.
// Non-text blocks are represented as inline markers.
func extractText(blocks []ContentBlock) string {
	var parts []string
	for _, b := range blocks {
		switch b.Type {
		case "text":
			parts = append(parts, b.Text)
		case "image":
			parts = append(parts, "[image]")
		case "resource", "resource_link":
			parts = append(parts, "[resource]")
		default:
			parts = append(parts, fmt.Sprintf("[%s]", b.Type))
		}
	}
	return strings.Join(parts, "\n")
}
