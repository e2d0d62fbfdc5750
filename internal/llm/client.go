// Package llm is briefer's model gateway: a thin client for a
// tool-calling chat model that speaks in content blocks.
package llm

import "context"

// Gateway is the interface the agent loop uses to talk to a model.
type Gateway interface {
	// Complete sends the conversation and returns the model's next
	// message. Failures are *RateLimitError, *AuthError, or
	// *ProtocolError, or a wrapped transport/context error.
	Complete(ctx context.Context, req Request) (*Response, error)
}
