// Package shell is the interactive chat REPL behind `briefer chat`.
//
// Lines starting with a slash are commands; anything else is a question
// for the agent. Answers are rendered as terminal markdown when the
// output is a terminal and printed as-is otherwise.
package shell

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/dustin/go-humanize"
	"golang.org/x/term"

	"github.com/nugget/briefer/internal/briefing"
	"github.com/nugget/briefer/internal/mcp"
	"github.com/nugget/briefer/internal/session"
)

// Backend is the session surface the shell drives. *session.Session
// implements it.
type Backend interface {
	Connect(ctx context.Context, endpoint string) error
	Disconnect()
	Connected() bool
	Ask(ctx context.Context, question string) (string, error)
	Tools(ctx context.Context) ([]mcp.ToolDefinition, error)
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallResult, error)
	History() []session.Exchange
}

const prompt = "briefer> "

const helpText = `Commands:
  /connect [path]   connect to the tool server (path overrides the configured command)
  /disconnect       close the tool server connection
  /tools            list the server's tools
  /briefings        list saved briefings
  /history          show questions asked this session
  /help             show this help
  /quit             exit

Anything else is sent to the agent as a question.`

// Shell reads commands and questions from in and writes to out.
type Shell struct {
	backend Backend
	in      io.Reader
	out     io.Writer
	render  func(string) string
	logger  *slog.Logger
	now     func() time.Time
}

// New returns a shell over backend. Markdown rendering is enabled when
// out is a terminal.
func New(backend Backend, in io.Reader, out io.Writer, logger *slog.Logger) *Shell {
	if logger == nil {
		logger = slog.Default()
	}
	return &Shell{
		backend: backend,
		in:      in,
		out:     out,
		render:  markdownRenderer(out, logger),
		logger:  logger,
		now:     time.Now,
	}
}

// markdownRenderer returns a glamour renderer sized to the terminal,
// or the identity function when out is not a terminal.
func markdownRenderer(out io.Writer, logger *slog.Logger) func(string) string {
	plain := func(s string) string { return s }

	f, ok := out.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return plain
	}

	width := 100
	if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 20 {
		width = w - 4
	}
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(width))
	if err != nil {
		logger.Debug("markdown renderer unavailable", "error", err)
		return plain
	}
	return func(s string) string {
		rendered, err := r.Render(s)
		if err != nil {
			return s
		}
		return strings.TrimRight(rendered, "\n")
	}
}

// Run processes input until EOF, /quit, or ctx is done.
func (sh *Shell) Run(ctx context.Context) error {
	sh.println("briefer chat. Type /help for commands.")
	if !sh.backend.Connected() {
		sh.println("Not connected. Use /connect [path] to start the tool server.")
	}

	scanner := bufio.NewScanner(sh.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for {
		fmt.Fprint(sh.out, prompt)
		if !scanner.Scan() {
			fmt.Fprintln(sh.out)
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := sh.command(ctx, line); quit {
				return nil
			}
			continue
		}
		sh.ask(ctx, line)
	}
}

// command runs a slash command and reports whether the shell should exit.
func (sh *Shell) command(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	name, args := fields[0], fields[1:]

	switch name {
	case "/quit", "/exit":
		sh.println("Bye.")
		return true
	case "/help":
		sh.println(helpText)
	case "/connect":
		endpoint := ""
		if len(args) > 0 {
			endpoint = args[0]
		}
		sh.connect(ctx, endpoint)
	case "/disconnect":
		if !sh.backend.Connected() {
			sh.println("Not connected.")
			break
		}
		sh.backend.Disconnect()
		sh.println("Disconnected.")
	case "/tools":
		sh.tools(ctx)
	case "/briefings":
		sh.briefings(ctx)
	case "/history":
		sh.history()
	default:
		sh.printf("Unknown command %s. Type /help for commands.\n", name)
	}
	return false
}

func (sh *Shell) connect(ctx context.Context, endpoint string) {
	if err := sh.backend.Connect(ctx, endpoint); err != nil {
		sh.printErr(err)
		return
	}
	tools, err := sh.backend.Tools(ctx)
	if err != nil {
		sh.printErr(err)
		return
	}
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name
	}
	sh.printf("Connected. Tools: %s\n", strings.Join(names, ", "))
}

func (sh *Shell) tools(ctx context.Context) {
	tools, err := sh.backend.Tools(ctx)
	if err != nil {
		sh.printErr(err)
		return
	}
	for _, t := range tools {
		sh.printf("  %-22s %s\n", t.Name, t.Description)
	}
}

func (sh *Shell) briefings(ctx context.Context) {
	res, err := sh.backend.CallTool(ctx, briefing.ListToolName, map[string]any{})
	if err != nil {
		sh.printErr(err)
		return
	}

	raw := []byte(res.Text)
	if len(res.Structured) > 0 {
		raw = res.Structured
	}
	var listing briefing.Listing
	if err := json.Unmarshal(raw, &listing); err != nil {
		sh.printErr(fmt.Errorf("unexpected %s result: %w", briefing.ListToolName, err))
		return
	}

	if listing.Total == 0 {
		sh.println("No saved briefings.")
		return
	}
	for _, it := range listing.Items {
		when := it.CreatedAt
		if t, err := time.ParseInLocation(briefing.TimeFormat, it.CreatedAt, time.UTC); err == nil {
			when = humanize.RelTime(t, sh.now(), "ago", "from now")
		}
		sh.printf("  %s  %-40s %s\n", it.ID[:min(8, len(it.ID))], it.Title, when)
	}
	if listing.Total > len(listing.Items) {
		sh.printf("  ... %s more\n", humanize.Comma(int64(listing.Total-len(listing.Items))))
	}
}

func (sh *Shell) history() {
	hist := sh.backend.History()
	if len(hist) == 0 {
		sh.println("No questions yet.")
		return
	}
	for i, ex := range hist {
		status := "ok"
		if ex.Err != nil {
			status = "error"
		}
		sh.printf("%3d. %s (%s, %s)\n", i+1, ex.Question, status, ex.Elapsed.Round(time.Millisecond))
	}
}

func (sh *Shell) ask(ctx context.Context, question string) {
	answer, err := sh.backend.Ask(ctx, question)
	if err != nil {
		sh.printErr(err)
		return
	}
	sh.println(sh.render(answer))
}

func (sh *Shell) printErr(err error) {
	var connErr *mcp.ConnectionError
	if errors.As(err, &connErr) {
		sh.logger.Warn("tool server connection error", "error", err)
	}
	sh.printf("Error: %v\n", err)
}

func (sh *Shell) println(s string) { fmt.Fprintln(sh.out, s) }

func (sh *Shell) printf(format string, args ...any) { fmt.Fprintf(sh.out, format, args...) }
