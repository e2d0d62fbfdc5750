package agent

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/nugget/briefer/internal/llm"
)

// Conversation is the ordered message history of one query.
//
// Invariant: every assistant message that requests tools is followed
// immediately by exactly one tool message answering each request, in
// request order. Control (system role) messages may follow a tool
// message but are stripped before each model call.
type Conversation struct {
	messages []llm.Message
}

// NewConversation starts a conversation with one user message.
func NewConversation(query string) *Conversation {
	return &Conversation{messages: []llm.Message{{
		Role:    llm.RoleUser,
		Content: []llm.ContentBlock{llm.TextBlock(query)},
	}}}
}

// Append adds m to the end of the history.
func (c *Conversation) Append(m llm.Message) {
	c.messages = append(c.messages, m)
}

// Messages returns a copy of the full history, control messages included.
func (c *Conversation) Messages() []llm.Message {
	return append([]llm.Message(nil), c.messages...)
}

// Len returns the number of messages.
func (c *Conversation) Len() int { return len(c.messages) }

// StripControl removes every control message so they never accumulate.
func (c *Conversation) StripControl() {
	c.messages = lo.Reject(c.messages, func(m llm.Message, _ int) bool {
		return m.Role == llm.RoleSystem
	})
}

// Roles lists message roles in order, for progress logging.
func (c *Conversation) Roles() []string {
	return lo.Map(c.messages, func(m llm.Message, _ int) string { return m.Role })
}

// Validate checks the request/result pairing invariant.
func (c *Conversation) Validate() error {
	msgs := lo.Reject(c.messages, func(m llm.Message, _ int) bool {
		return m.Role == llm.RoleSystem
	})

	seen := make(map[string]bool)
	for i, m := range msgs {
		switch m.Role {
		case llm.RoleAssistant:
			uses := m.ToolUses()
			if len(uses) == 0 {
				continue
			}
			if i+1 >= len(msgs) {
				return fmt.Errorf("message %d: %d tool requests without results", i, len(uses))
			}
			next := msgs[i+1]
			if next.Role != llm.RoleTool {
				return fmt.Errorf("message %d: tool requests followed by %s message", i, next.Role)
			}
			if len(next.Content) != len(uses) {
				return fmt.Errorf("message %d: %d tool requests, %d results", i, len(uses), len(next.Content))
			}
			for j, use := range uses {
				if seen[use.ID] {
					return fmt.Errorf("message %d: duplicate tool request id %q", i, use.ID)
				}
				seen[use.ID] = true

				res := next.Content[j]
				if res.Type != llm.BlockToolResult || res.ToolUseID != use.ID {
					return fmt.Errorf("message %d: result %d answers %q, want %q", i+1, j, res.ToolUseID, use.ID)
				}
			}
		case llm.RoleTool:
			if i == 0 || len(msgs[i-1].ToolUses()) == 0 {
				return fmt.Errorf("message %d: tool results without a preceding request", i)
			}
		}
	}
	return nil
}
