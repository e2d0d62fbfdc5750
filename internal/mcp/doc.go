// Package mcp implements the client side of the Model Context Protocol,
// the channel between briefer's agent loop and its tool server.
//
// MCP uses JSON-RPC 2.0 over two transports: stdio (a subprocess
// speaking newline-delimited JSON) and streamable HTTP. [Connect]
// performs the initialize handshake; [Client.ListTools] discovers tools
// once per connection; [Client.CallTool] validates arguments against
// the tool's input schema and invokes it.
//
// Failures are split by blast radius. A [*ConnectionError] means the
// server is unreachable or the channel broke and the session is over.
// A [*ToolExecutionError] means one call failed and the conversation
// can carry on.
package mcp
