package mcp

import (
	"context"
	"errors"
)

// ErrTransportClosed is returned by a transport after Close, or after
// the channel to the server broke and cannot be reused.
var ErrTransportClosed = errors.New("mcp transport closed")

// Transport is the interface for MCP server communication.
// Implementations handle the details of sending JSON-RPC requests and
// receiving responses over a specific transport (stdio or HTTP).
type Transport interface {
	// Send sends a JSON-RPC request and returns the matching response.
	// The transport handles framing, encoding, and correlation.
	// Cancelling ctx abandons the wait; it does not tear the
	// connection down.
	Send(ctx context.Context, req *Request) (*Response, error)

	// Notify sends a JSON-RPC notification (no response expected).
	Notify(ctx context.Context, notif *Notification) error

	// Close shuts down the transport and releases resources.
	// For stdio transports this terminates the subprocess.
	Close() error
}
