// Package agent implements briefer's agentic tool-calling loop.
//
// One call to [Loop.ProcessQuery] runs one user query to completion:
// the model is called, any tools it asks for are executed through the
// tool transport, their results are fed back, and the cycle repeats
// until the model answers without asking for tools or the round limit
// trips. A single side-effecting tool (save_briefing by default) is
// tracked so the model is told, from then on, that the work is saved.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/nugget/briefer/internal/llm"
	"github.com/nugget/briefer/internal/mcp"
	"github.com/nugget/briefer/internal/prompts"
)

// Defaults for zero Config fields.
const (
	DefaultMaxToolRounds  = 12
	DefaultMaxTokens      = 1000
	DefaultSideEffectTool = "save_briefing"
)

// maxParallelTools caps concurrent tool calls within one round.
const maxParallelTools = 4

// ToolSource is the tool transport as the loop sees it. *mcp.Client
// implements it.
type ToolSource interface {
	ListTools(ctx context.Context) ([]mcp.ToolDefinition, error)
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallResult, error)
}

// UsageRecorder receives token usage for every model call.
type UsageRecorder interface {
	RecordUsage(ctx context.Context, queryID, model string, round int, u llm.Usage) error
}

// Config tunes the loop.
type Config struct {
	Model          string
	MaxTokens      int
	MaxToolRounds  int
	SideEffectTool string

	// EnforceSingleSideEffect answers repeat requests for the
	// side-effect tool with a canned result instead of executing them.
	EnforceSingleSideEffect bool

	// ParallelTools runs the tool calls of one round concurrently.
	ParallelTools bool

	// ToolTimeout bounds each tool call; zero means no limit beyond
	// the query context.
	ToolTimeout time.Duration

	// Skills is the skills contract embedded in the system prompt.
	Skills string
}

func (c *Config) applyDefaults() {
	if c.MaxToolRounds <= 0 {
		c.MaxToolRounds = DefaultMaxToolRounds
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.SideEffectTool == "" {
		c.SideEffectTool = DefaultSideEffectTool
	}
}

// Deps are the loop's collaborators. Tools may be nil, in which case
// every query fails with [*NotConnectedError].
type Deps struct {
	Gateway llm.Gateway
	Tools   ToolSource
	Usage   UsageRecorder
	Logger  *slog.Logger
}

// RunState is the per-query state. It is created by ProcessQuery and
// discarded when it returns.
type RunState struct {
	// Round counts model calls made so far.
	Round int

	// SideEffectFired is set once the side-effect tool has succeeded
	// and is never cleared within the query.
	SideEffectFired bool
}

// Loop runs queries against a model and a tool source.
type Loop struct {
	cfg     Config
	gateway llm.Gateway
	tools   ToolSource
	usage   UsageRecorder
	logger  *slog.Logger
	system  string
}

// NewLoop creates a loop.
func NewLoop(cfg Config, deps Deps) *Loop {
	cfg.applyDefaults()
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		cfg:     cfg,
		gateway: deps.Gateway,
		tools:   deps.Tools,
		usage:   deps.Usage,
		logger:  logger,
		system:  prompts.SystemPrompt(cfg.Skills, cfg.SideEffectTool),
	}
}

// ProcessQuery runs query to completion and returns the final answer:
// the text of every model message, in order, joined by newlines.
//
// Tool failures are reported back to the model and do not fail the
// query. Model errors, a broken tool connection, and cancellation of
// ctx do. Exhausting the round limit is not an error: the partial
// answer is returned with a notice appended.
func (l *Loop) ProcessQuery(ctx context.Context, query string) (string, error) {
	if l.tools == nil {
		return "", &NotConnectedError{}
	}

	queryID := newQueryID()
	logger := l.logger.With("query_id", queryID)

	defs, err := l.tools.ListTools(ctx)
	if err != nil {
		return "", fmt.Errorf("list tools: %w", err)
	}
	tools := toolsForModel(defs)

	logger.Info("query started", "tools", len(tools), "query_len", len(query))

	conv := NewConversation(query)
	state := &RunState{}
	var texts []string
	started := time.Now()

	for {
		state.Round++
		if state.Round > l.cfg.MaxToolRounds {
			logger.Warn("tool round limit reached", "limit", l.cfg.MaxToolRounds)
			return forcedStop(texts), nil
		}

		system := l.system
		if state.SideEffectFired {
			system = prompts.WithAlreadySaved(system)
		}

		conv.StripControl()
		if err := conv.Validate(); err != nil {
			logger.Error("conversation pairing invariant violated", "error", err)
		}

		logger.Debug("calling model", "round", state.Round, "roles", conv.Roles())

		resp, err := l.gateway.Complete(ctx, llm.Request{
			Model:     l.cfg.Model,
			System:    system,
			Messages:  conv.Messages(),
			Tools:     tools,
			MaxTokens: l.cfg.MaxTokens,
		})
		if err != nil {
			return "", fmt.Errorf("model call (round %d): %w", state.Round, err)
		}
		l.recordUsage(ctx, logger, queryID, state.Round, resp)

		msg := resp.Message()
		conv.Append(msg)

		for _, b := range msg.Content {
			if b.Type == llm.BlockText {
				texts = append(texts, b.Text)
			}
		}

		uses := msg.ToolUses()
		if len(uses) == 0 {
			break
		}

		logger.Info("model requested tools",
			"round", state.Round,
			"count", len(uses),
			"tools", lo.Map(uses, func(b llm.ContentBlock, _ int) string { return b.Name }),
		)

		results, err := l.executeTools(ctx, logger, uses, state)
		if err != nil {
			return "", err
		}
		conv.Append(llm.Message{Role: llm.RoleTool, Content: results})

		if state.SideEffectFired {
			conv.Append(llm.Message{
				Role:    llm.RoleSystem,
				Content: []llm.ContentBlock{llm.TextBlock(prompts.SavedControlNote)},
			})
		}
	}

	logger.Info("query completed",
		"rounds", state.Round,
		"saved", state.SideEffectFired,
		"elapsed", time.Since(started).Round(time.Millisecond),
	)
	return strings.TrimSpace(strings.Join(texts, "\n")), nil
}

// executeTools runs every requested tool and returns one result per
// request, in request order. In parallel mode ordinary tools run
// concurrently; calls to the side-effect tool always run one at a time
// in request order after them, so the single-save guard sees the
// outcome of each attempt.
func (l *Loop) executeTools(ctx context.Context, logger *slog.Logger, uses []llm.ContentBlock, state *RunState) ([]llm.ContentBlock, error) {
	results := make([]llm.ContentBlock, len(uses))

	var deferred []int
	if l.cfg.ParallelTools && len(uses) > 1 {
		var g errgroup.Group
		g.SetLimit(maxParallelTools)
		for i, use := range uses {
			if use.Name == l.cfg.SideEffectTool {
				deferred = append(deferred, i)
				continue
			}
			g.Go(func() error {
				res, _, err := l.callTool(ctx, logger, use)
				results[i] = res
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		deferred = lo.Range(len(uses))
	}

	for _, i := range deferred {
		use := uses[i]

		if use.Name == l.cfg.SideEffectTool && state.SideEffectFired && l.cfg.EnforceSingleSideEffect {
			logger.Warn("skipping repeat side-effect call", "tool", use.Name, "id", use.ID)
			results[i] = llm.ToolResultBlock(use.ID, prompts.AlreadySavedResult, false)
			continue
		}

		res, ok, err := l.callTool(ctx, logger, use)
		if err != nil {
			return nil, err
		}
		results[i] = res

		if ok && use.Name == l.cfg.SideEffectTool && !state.SideEffectFired {
			state.SideEffectFired = true
			logger.Info("side-effect tool succeeded", "tool", use.Name, "round", state.Round)
		}
	}

	return results, nil
}

// callTool executes one tool request. A failure of the tool itself is
// folded into an error-flagged result and ok is false; err is non-nil
// only when the query must stop (cancelled, or the connection broke).
func (l *Loop) callTool(ctx context.Context, logger *slog.Logger, use llm.ContentBlock) (res llm.ContentBlock, ok bool, err error) {
	callCtx := ctx
	if l.cfg.ToolTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, l.cfg.ToolTimeout)
		defer cancel()
	}

	logger.Info("calling tool", "tool", use.Name, "id", use.ID)
	logger.Log(ctx, llm.LevelTrace, "tool arguments", "tool", use.Name, "args", use.Input)

	start := time.Now()
	out, callErr := l.tools.CallTool(callCtx, use.Name, use.Input)
	elapsed := time.Since(start).Round(10 * time.Millisecond)

	if callErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, false, fmt.Errorf("tool %s: %w", use.Name, ctxErr)
		}
		var connErr *mcp.ConnectionError
		if errors.As(callErr, &connErr) {
			return res, false, callErr
		}
		logger.Warn("tool failed", "tool", use.Name, "id", use.ID, "duration", elapsed, "error", callErr)
		return llm.ToolResultBlock(use.ID, "Error: "+callErr.Error(), true), false, nil
	}

	logger.Info("tool finished", "tool", use.Name, "id", use.ID, "duration", elapsed, "result_len", len(out.Text))
	return llm.ToolResultBlock(use.ID, out.Text, false), true, nil
}

func (l *Loop) recordUsage(ctx context.Context, logger *slog.Logger, queryID string, round int, resp *llm.Response) {
	if l.usage == nil {
		return
	}
	model := resp.Model
	if model == "" {
		model = l.cfg.Model
	}
	if err := l.usage.RecordUsage(ctx, queryID, model, round, resp.Usage); err != nil {
		logger.Warn("failed to record usage", "error", err)
	}
}

// forcedStop builds the answer for a query that ran out of rounds.
func forcedStop(texts []string) string {
	partial := strings.TrimSpace(strings.Join(texts, "\n"))
	if partial == "" {
		return prompts.ForcedStopEmpty
	}
	return partial + "\n\n" + prompts.ForcedStopNotice
}

// toolsForModel converts tool descriptors to the gateway's format.
func toolsForModel(defs []mcp.ToolDefinition) []llm.Tool {
	return lo.Map(defs, func(d mcp.ToolDefinition, _ int) llm.Tool {
		return llm.Tool{Name: d.Name, Description: d.Description, InputSchema: d.InputSchema}
	})
}

// newQueryID returns a time-ordered query identifier.
func newQueryID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
