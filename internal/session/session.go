// Package session holds the state of one user's connection to a tool
// server: the transport, the agent loop bound to it, and the history of
// questions asked. The chat REPL, the one-shot ask command, and the
// HTTP shell each own a Session.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nugget/briefer/internal/agent"
	"github.com/nugget/briefer/internal/config"
	"github.com/nugget/briefer/internal/llm"
	"github.com/nugget/briefer/internal/mcp"
	"github.com/nugget/briefer/internal/prompts"
	"github.com/nugget/briefer/internal/usage"
)

// ErrBusy is returned by Ask while another query is running.
var ErrBusy = errors.New("a query is already running")

// Exchange is one answered (or failed) question.
type Exchange struct {
	Question string
	Answer   string
	Err      error
	Started  time.Time
	Elapsed  time.Duration
}

// Dialer builds the transport for an MCP section.
type Dialer func(cfg config.MCPConfig, logger *slog.Logger) (mcp.Transport, error)

// Deps are the collaborators a Session needs beyond configuration.
type Deps struct {
	Gateway llm.Gateway

	// Usage is optional; when set every model call is recorded.
	Usage *usage.Store

	// Dial overrides transport construction. Nil uses [DialTransport].
	Dial Dialer

	Logger *slog.Logger
}

// Session is safe for concurrent use. At most one query runs at a time.
type Session struct {
	id     string
	cfg    *config.Config
	source string
	deps   Deps
	logger *slog.Logger
	skills string

	mu      sync.Mutex
	client  *mcp.Client
	loop    *agent.Loop
	busy    bool
	history []Exchange
}

// New creates a disconnected session. source tags usage records
// (usage.SourceChat, usage.SourceAsk, usage.SourceAPI).
func New(cfg *config.Config, source string, deps Deps) (*Session, error) {
	if deps.Gateway == nil {
		return nil, errors.New("session requires a model gateway")
	}
	if deps.Dial == nil {
		deps.Dial = DialTransport
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	skills, err := prompts.LoadSkills(cfg.Agent.SkillsFile, cfg.Agent.SkillsMaxChars)
	if err != nil {
		return nil, fmt.Errorf("load skills: %w", err)
	}

	id := uuid.NewString()
	return &Session{
		id:     id,
		cfg:    cfg,
		source: source,
		deps:   deps,
		logger: deps.Logger.With("session_id", id),
		skills: skills,
	}, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// DialTransport builds a stdio or HTTP transport from cfg. For stdio
// the command is resolved with [mcp.ResolveCommand].
func DialTransport(cfg config.MCPConfig, logger *slog.Logger) (mcp.Transport, error) {
	switch cfg.Transport {
	case "http":
		if cfg.URL == "" {
			return nil, &mcp.ConnectionError{Server: cfg.Name, Op: "configure", Err: errors.New("no server url")}
		}
		return mcp.NewHTTPTransport(mcp.HTTPConfig{
			URL:     cfg.URL,
			Headers: cfg.Headers,
			Logger:  logger,
		}), nil
	case "", "stdio":
		command, args, err := mcp.ResolveCommand(cfg.Command, cfg.Args)
		if err != nil {
			return nil, &mcp.ConnectionError{Server: cfg.Name, Op: "configure", Err: err}
		}
		return mcp.NewStdioTransport(mcp.StdioConfig{
			Command: command,
			Args:    args,
			Env:     cfg.Env,
			Logger:  logger,
		}), nil
	default:
		return nil, &mcp.ConnectionError{Server: cfg.Name, Op: "configure",
			Err: fmt.Errorf("unknown transport %q", cfg.Transport)}
	}
}

// Connect opens the tool server connection. endpoint, when non-empty,
// replaces the configured stdio command. Any previous connection is
// closed first.
func (s *Session) Connect(ctx context.Context, endpoint string) error {
	mcfg := s.cfg.MCP
	if endpoint != "" {
		mcfg.Transport = "stdio"
		mcfg.Command = endpoint
		mcfg.Args = nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return ErrBusy
	}
	s.disconnectLocked()

	transport, err := s.deps.Dial(mcfg, s.logger)
	if err != nil {
		return err
	}

	initCtx, cancel := context.WithTimeout(ctx, mcfg.InitTimeout)
	defer cancel()

	client, err := mcp.Connect(initCtx, mcfg.Name, transport, s.logger)
	if err != nil {
		return err
	}

	// Prime the tool list so arguments are schema-checked from the
	// first call.
	tools, err := client.ListTools(initCtx)
	if err != nil {
		_ = client.Close()
		return fmt.Errorf("list tools: %w", err)
	}

	var recorder agent.UsageRecorder
	if s.deps.Usage != nil {
		recorder = usage.NewRecorder(s.deps.Usage, s.cfg.Usage.Pricing, s.id, s.source)
	}

	s.client = client
	s.loop = agent.NewLoop(agent.Config{
		Model:                   s.cfg.Anthropic.Model,
		MaxTokens:               s.cfg.Anthropic.MaxTokens,
		MaxToolRounds:           s.cfg.Agent.MaxToolRounds,
		SideEffectTool:          s.cfg.Agent.SideEffectTool,
		EnforceSingleSideEffect: s.cfg.Agent.EnforceSingleSideEffect,
		ParallelTools:           s.cfg.Agent.ParallelTools,
		ToolTimeout:             s.cfg.Agent.ToolTimeout,
		Skills:                  s.skills,
	}, agent.Deps{
		Gateway: s.deps.Gateway,
		Tools:   client,
		Usage:   recorder,
		Logger:  s.logger,
	})

	name, version := client.ServerInfo()
	s.logger.Info("connected to tool server",
		"transport", mcfg.Transport,
		"server", name,
		"version", version,
		"tools", len(tools),
	)
	return nil
}

// Connected reports whether a tool server connection is open.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client != nil
}

// Ask runs one query. It fails with [ErrBusy] when another query is in
// flight and with [*agent.NotConnectedError] before Connect.
func (s *Session) Ask(ctx context.Context, question string) (string, error) {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return "", ErrBusy
	}
	loop := s.loop
	if loop == nil {
		s.mu.Unlock()
		return "", &agent.NotConnectedError{Reason: "use /connect first"}
	}
	s.busy = true
	s.mu.Unlock()

	started := time.Now()
	answer, err := loop.ProcessQuery(ctx, question)

	var connErr *mcp.ConnectionError
	s.mu.Lock()
	s.busy = false
	s.history = append(s.history, Exchange{
		Question: question,
		Answer:   answer,
		Err:      err,
		Started:  started,
		Elapsed:  time.Since(started),
	})
	if errors.As(err, &connErr) && s.loop == loop {
		s.logger.Warn("tool server connection lost", "error", err)
		s.disconnectLocked()
	}
	s.mu.Unlock()

	return answer, err
}

// Tools returns the connected server's tools.
func (s *Session) Tools(ctx context.Context) ([]mcp.ToolDefinition, error) {
	client, err := s.currentClient()
	if err != nil {
		return nil, err
	}
	return client.ListTools(ctx)
}

// CallTool invokes a tool directly, outside the agent loop.
func (s *Session) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallResult, error) {
	client, err := s.currentClient()
	if err != nil {
		return nil, err
	}
	return client.CallTool(ctx, name, args)
}

// Ping checks that the tool server still answers.
func (s *Session) Ping(ctx context.Context) error {
	client, err := s.currentClient()
	if err != nil {
		return err
	}
	return client.Ping(ctx)
}

// Probe pings the tool server, reconnecting with the configured
// endpoint first when the session is disconnected. It is the health
// probe `briefer serve` runs.
func (s *Session) Probe(ctx context.Context) error {
	if !s.Connected() {
		return s.Connect(ctx, "")
	}
	return s.Ping(ctx)
}

// History returns a copy of the exchanges so far, oldest first.
func (s *Session) History() []Exchange {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Exchange(nil), s.history...)
}

// Disconnect closes the tool server connection, if any.
func (s *Session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnectLocked()
}

// Close releases the session. It does not wait for a running query;
// closing the transport makes that query fail.
func (s *Session) Close() error {
	s.Disconnect()
	return nil
}

func (s *Session) currentClient() (*mcp.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil, &agent.NotConnectedError{Reason: "use /connect first"}
	}
	return s.client, nil
}

func (s *Session) disconnectLocked() {
	if s.client == nil {
		return
	}
	if err := s.client.Close(); err != nil {
		s.logger.Debug("error closing tool server", "error", err)
	}
	s.client = nil
	s.loop = nil
}
