package mcp

import "fmt"

// ConnectionError reports that the tool server could not be reached or
// that the channel to it broke. It is fatal for the session.
type ConnectionError struct {
	Server string // configured server name
	Op     string // "connect", "tools/list", "tools/call", ...
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("mcp server %s: %s: %v", e.Server, e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ToolExecutionError reports that a single tool call failed: the server
// flagged the result as an error, answered with a JSON-RPC error, or
// the arguments did not match the tool's input schema. The session
// remains usable.
type ToolExecutionError struct {
	Tool    string
	Message string
	Err     error // *RPCError or schema validation error, when known
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s failed: %s", e.Tool, e.Message)
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }
