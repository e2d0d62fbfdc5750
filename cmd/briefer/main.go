// Briefer is a research assistant that answers questions by driving the
// tools of an MCP tool server (geocoding, weather, web search and
// scraping, briefing storage) through a tool-calling model.
//
// Usage:
//
//	briefer chat             Interactive session (REPL)
//	briefer ask <question>   Answer a single question and exit
//	briefer serve            Start the HTTP API
//	briefer tools            List the tool server's tools
//	briefer usage [days]     Token usage and cost over the last N days (default 30)
//	briefer init [dir]       Write an example config and skills file
//	briefer version          Print version and build information
//	briefer -o json version  Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/nugget/briefer/internal/api"
	"github.com/nugget/briefer/internal/buildinfo"
	"github.com/nugget/briefer/internal/config"
	"github.com/nugget/briefer/internal/connwatch"
	"github.com/nugget/briefer/internal/llm"
	"github.com/nugget/briefer/internal/session"
	"github.com/nugget/briefer/internal/shell"
	"github.com/nugget/briefer/internal/usage"
)

// main is intentionally minimal. It constructs the OS-level environment
// and delegates immediately to [run] so the whole lifecycle can be
// driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdin, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// options are the global flags.
type options struct {
	configPath string
	outputFmt  string // "text" (default) or "json"
}

// run is the real entry point. Arguments are parsed by hand so that
// run can be called concurrently from tests without flag package
// globals.
func run(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, args []string) error {
	var opts options
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case command != "":
			cmdArgs = append(cmdArgs, args[i])
		case args[i] == "-config" && i+1 < len(args):
			opts.configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			opts.configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			opts.outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			opts.outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			opts.outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-"):
			command = args[i]
		default:
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	if opts.outputFmt == "" {
		opts.outputFmt = "text"
	}
	if opts.outputFmt != "text" && opts.outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", opts.outputFmt)
	}

	switch command {
	case "chat":
		return runChat(ctx, stdin, stdout, stderr, opts)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: briefer ask <question>")
		}
		return runAsk(ctx, stdout, stderr, opts, strings.Join(cmdArgs, " "))
	case "serve":
		return runServe(ctx, stdout, opts)
	case "tools":
		return runTools(ctx, stdout, stderr, opts)
	case "usage":
		days := 30
		if len(cmdArgs) > 0 {
			n, err := strconv.Atoi(cmdArgs[0])
			if err != nil || n <= 0 {
				return fmt.Errorf("usage: briefer usage [days]")
			}
			days = n
		}
		return runUsage(ctx, stdout, opts, days)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "version":
		return runVersion(stdout, opts.outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.BuildInfo()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "git_branch", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Briefer - research briefings from MCP tools")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: briefer [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  chat             Interactive session")
	fmt.Fprintln(w, "  ask <question>   Answer one question and exit")
	fmt.Fprintln(w, "  serve            Start the HTTP API")
	fmt.Fprintln(w, "  tools            List the tool server's tools")
	fmt.Fprintln(w, "  usage [days]     Token usage and cost (default: 30 days)")
	fmt.Fprintln(w, "  init [dir]       Write example config and skills (default: .)")
	fmt.Fprintln(w, "  version          Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  "+strings.Join(config.DefaultSearchPaths(), ", "))
	return nil
}

// runChat starts the REPL. A connection is attempted up front when a
// tool server is configured; failure leaves the user at the prompt to
// /connect by hand.
func runChat(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, opts options) error {
	cfg, logger, err := setup(opts, stderr, slog.LevelWarn)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sess, closeAll, err := newSession(cfg, usage.SourceChat, logger)
	if err != nil {
		return err
	}
	defer closeAll()

	if cfg.MCP.Command != "" || cfg.MCP.URL != "" {
		if err := sess.Connect(ctx, ""); err != nil {
			fmt.Fprintf(stdout, "Error: %v\n", err)
		}
	}

	return shell.New(sess, stdin, stdout, logger).Run(ctx)
}

// runAsk answers a single question and prints the answer.
func runAsk(ctx context.Context, stdout, stderr io.Writer, opts options, question string) error {
	cfg, logger, err := setup(opts, stderr, slog.LevelWarn)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sess, closeAll, err := newSession(cfg, usage.SourceAsk, logger)
	if err != nil {
		return err
	}
	defer closeAll()

	if err := sess.Connect(ctx, ""); err != nil {
		return err
	}

	answer, err := sess.Ask(ctx, question)
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}
	fmt.Fprintln(stdout, answer)
	return nil
}

// runServe starts the HTTP API and blocks until SIGINT or SIGTERM.
func runServe(ctx context.Context, stdout io.Writer, opts options) error {
	cfg, logger, err := setup(opts, stdout, slog.LevelInfo)
	if err != nil {
		return err
	}
	logger.Info("starting briefer", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "built", buildinfo.BuildTime)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sess, closeAll, err := newSession(cfg, usage.SourceAPI, logger)
	if err != nil {
		return err
	}
	defer closeAll()

	if err := sess.Connect(ctx, ""); err != nil {
		return err
	}

	// The watcher reconnects the session when the tool server restarts.
	watcher, err := connwatch.Watch(ctx, connwatch.Config{
		Name:  cfg.MCP.Name,
		Probe: sess.Probe,
		Backoff: connwatch.BackoffConfig{
			PollInterval: cfg.MCP.HealthInterval,
			ProbeTimeout: cfg.MCP.InitTimeout,
		},
		OnDown: func(error) { sess.Disconnect() },
		Logger: logger,
	})
	if err != nil {
		return err
	}
	defer watcher.Stop()

	srv := api.NewServer(cfg.Listen.Address, cfg.Listen.Port, sess, logger)
	srv.SetHealthReporter(watcher)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutdown signal received")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api server shutdown", "error", err)
	}
	logger.Info("briefer stopped")
	return nil
}

// runTools connects to the tool server and lists its tools.
func runTools(ctx context.Context, stdout, stderr io.Writer, opts options) error {
	cfg, logger, err := setup(opts, stderr, slog.LevelWarn)
	if err != nil {
		return err
	}

	sess, closeAll, err := newSession(cfg, usage.SourceChat, logger)
	if err != nil {
		return err
	}
	defer closeAll()

	if err := sess.Connect(ctx, ""); err != nil {
		return err
	}
	tools, err := sess.Tools(ctx)
	if err != nil {
		return err
	}

	if opts.outputFmt == "json" {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(tools)
	}
	for _, t := range tools {
		fmt.Fprintf(stdout, "%-22s %s\n", t.Name, t.Description)
	}
	return nil
}

// usageReport is the JSON shape of `briefer usage`.
type usageReport struct {
	Days     int                       `json:"days"`
	Total    *usage.Summary            `json:"total"`
	ByModel  map[string]*usage.Summary `json:"by_model"`
	BySource map[string]*usage.Summary `json:"by_source"`
}

// runUsage prints token usage and cost from the ledger.
func runUsage(ctx context.Context, stdout io.Writer, opts options, days int) error {
	cfg, _, err := setup(opts, io.Discard, slog.LevelWarn)
	if err != nil {
		return err
	}

	store, err := usage.NewStore(cfg.Usage.Path)
	if err != nil {
		return fmt.Errorf("open usage ledger %s: %w", cfg.Usage.Path, err)
	}
	defer store.Close()

	end := time.Now()
	start := end.AddDate(0, 0, -days)

	report := usageReport{Days: days}
	if report.Total, err = store.Summary(ctx, start, end); err != nil {
		return err
	}
	if report.ByModel, err = store.SummaryByModel(ctx, start, end); err != nil {
		return err
	}
	if report.BySource, err = store.SummaryBySource(ctx, start, end); err != nil {
		return err
	}

	if opts.outputFmt == "json" {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	writeUsage(stdout, report)
	return nil
}

func writeUsage(w io.Writer, r usageReport) {
	line := func(label string, s *usage.Summary) {
		fmt.Fprintf(w, "  %-28s %6s queries %10s in %10s out  $%.4f\n",
			label,
			humanize.Comma(int64(s.TotalQueries)),
			humanize.Comma(s.TotalInputTokens),
			humanize.Comma(s.TotalOutputTokens),
			s.TotalCostUSD,
		)
	}

	fmt.Fprintf(w, "Usage over the last %d days\n", r.Days)
	line("total", r.Total)
	if len(r.ByModel) > 0 {
		fmt.Fprintln(w, "By model:")
		for _, k := range sortedKeys(r.ByModel) {
			line(k, r.ByModel[k])
		}
	}
	if len(r.BySource) > 0 {
		fmt.Fprintln(w, "By source:")
		for _, k := range sortedKeys(r.BySource) {
			line(k, r.BySource[k])
		}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}

// setup loads the configuration and builds the logger. Logs go to
// logOut at the configured level, or at fallback when none is set.
func setup(opts options, logOut io.Writer, fallback slog.Level) (*config.Config, *slog.Logger, error) {
	cfg, cfgPath, err := loadConfig(opts.configPath)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config %s: %w", cfgPath, err)
	}

	level := fallback
	if cfg.LogLevel != "" {
		// Already checked by Validate.
		level, _ = config.ParseLogLevel(cfg.LogLevel)
	}
	logger := config.NewLogger(logOut, level, cfg.LogFormat)
	logger.Debug("config loaded", "path", cfgPath)
	return cfg, logger, nil
}

// loadConfig locates and parses the YAML configuration file. With no
// explicit path and no file in the search path, the built-in defaults
// are used.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		if explicit != "" {
			return nil, "", err
		}
		return config.Default(), "(defaults)", nil
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	return cfg, cfgPath, nil
}

// newSession builds the model gateway, the optional usage ledger, and a
// disconnected session. The returned func releases all of them.
func newSession(cfg *config.Config, source string, logger *slog.Logger) (*session.Session, func(), error) {
	if !cfg.Anthropic.Configured() {
		return nil, nil, fmt.Errorf("anthropic.api_key is not set (set ANTHROPIC_API_KEY or edit the config)")
	}

	var gwOpts []llm.Option
	if cfg.Anthropic.BaseURL != "" {
		gwOpts = append(gwOpts, llm.WithBaseURL(cfg.Anthropic.BaseURL))
	}
	gateway := llm.NewAnthropicClient(cfg.Anthropic.APIKey, logger, gwOpts...)

	var ledger *usage.Store
	if cfg.Usage.Enabled {
		if err := os.MkdirAll(filepath.Dir(cfg.Usage.Path), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create usage directory: %w", err)
		}
		s, err := usage.NewStore(cfg.Usage.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open usage ledger %s: %w", cfg.Usage.Path, err)
		}
		ledger = s
	}

	sess, err := session.New(cfg, source, session.Deps{Gateway: gateway, Usage: ledger, Logger: logger})
	if err != nil {
		if ledger != nil {
			ledger.Close()
		}
		return nil, nil, err
	}

	return sess, func() {
		sess.Close()
		if ledger != nil {
			ledger.Close()
		}
	}, nil
}
