package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// stopGrace is how long Close waits for the subprocess to exit after
// its stdin is closed before killing it.
const stopGrace = 5 * time.Second

// StdioConfig configures a stdio MCP transport that communicates with
// a subprocess over stdin/stdout using newline-delimited JSON-RPC.
type StdioConfig struct {
	// Command is the executable to run.
	Command string

	// Args are command-line arguments passed to the executable.
	Args []string

	// Env are additional environment variables for the subprocess
	// (format: "KEY=VALUE"). These are appended to the current
	// process environment.
	Env []string

	// Logger is the structured logger for transport diagnostics.
	Logger *slog.Logger
}

// ResolveCommand turns a server endpoint into the command line that
// runs it. A script ending in .py runs under python and one ending in
// .js runs under node; the script must exist. Anything else is taken
// to be an executable and is returned unchanged.
func ResolveCommand(endpoint string, args []string) (string, []string, error) {
	if strings.TrimSpace(endpoint) == "" {
		return "", nil, fmt.Errorf("empty server endpoint")
	}

	var interpreter string
	switch strings.ToLower(filepath.Ext(endpoint)) {
	case ".py":
		interpreter = "python"
	case ".js":
		interpreter = "node"
	default:
		return endpoint, args, nil
	}

	if _, err := os.Stat(endpoint); err != nil {
		return "", nil, fmt.Errorf("server script %s: %w", endpoint, err)
	}
	return interpreter, append([]string{endpoint}, args...), nil
}

// StdioTransport communicates with an MCP server running as a
// subprocess. JSON-RPC messages are newline-delimited on stdin/stdout.
//
// A single read loop owns stdout and routes responses to waiting
// callers by request ID, so a caller whose context expires can walk
// away without disturbing the subprocess or the next request. Once the
// subprocess exits the transport is broken for good.
type StdioTransport struct {
	config StdioConfig
	logger *slog.Logger

	// sem guards writes to stdin and the process lifecycle. It is a
	// one-slot channel so waiting callers can honor their context.
	sem    chan struct{}
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	done   chan struct{} // closed when the read loop exits
	closed bool

	pendingMu sync.Mutex
	pending   map[int64]chan *Response
	readErr   error
}

// NewStdioTransport creates a stdio transport for the given config.
// The subprocess is not started until the first Send or Notify call.
func NewStdioTransport(cfg StdioConfig) *StdioTransport {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &StdioTransport{
		config:  cfg,
		logger:  logger,
		sem:     make(chan struct{}, 1),
		pending: make(map[int64]chan *Response),
	}
}

// acquire takes the write slot, giving up when ctx is done.
func (t *StdioTransport) acquire(ctx context.Context) error {
	select {
	case t.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	// Both cases can be ready at once; never proceed on a dead context.
	if err := ctx.Err(); err != nil {
		<-t.sem
		return err
	}
	return nil
}

func (t *StdioTransport) release() {
	<-t.sem
}

// start launches the subprocess if it has not been started. Caller
// must hold the write slot.
func (t *StdioTransport) start() error {
	if t.closed {
		return ErrTransportClosed
	}
	if t.cmd != nil {
		select {
		case <-t.done:
			return t.brokenErr()
		default:
			return nil
		}
	}

	t.logger.Info("starting MCP subprocess",
		"command", t.config.Command,
		"args", t.config.Args,
	)

	cmd := exec.Command(t.config.Command, t.config.Args...)
	cmd.Env = append(os.Environ(), t.config.Env...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return fmt.Errorf("create stdout pipe: %w", err)
	}

	// stderr is diagnostics only, never protocol.
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		return fmt.Errorf("create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		stderrPipe.Close()
		stdout.Close()
		stdin.Close()
		return fmt.Errorf("start subprocess %s: %w", t.config.Command, err)
	}

	t.cmd = cmd
	t.stdin = stdin
	t.done = make(chan struct{})

	go t.drainStderr(stderrPipe)
	go t.readLoop(stdout, t.done)

	t.logger.Info("MCP subprocess started", "pid", cmd.Process.Pid)
	return nil
}

// drainStderr reads stderr lines and logs them at debug level.
func (t *StdioTransport) drainStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)
	for scanner.Scan() {
		t.logger.Debug("MCP subprocess stderr", "line", scanner.Text())
	}
}

// readLoop delivers responses to their waiters until stdout closes.
func (t *StdioTransport) readLoop(r io.Reader, done chan struct{}) {
	defer close(done)

	reader := bufio.NewReaderSize(r, 1<<20) // 1 MiB buffer for large responses
	for {
		line, err := reader.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			t.dispatch(line)
		}
		if err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			t.fail(fmt.Errorf("read from subprocess stdout: %w", err))
			return
		}
	}
}

func (t *StdioTransport) dispatch(line []byte) {
	resp, ok := decodeMessage(line)
	if !ok {
		if resp == nil {
			t.logger.Debug("skipping non-JSON line from MCP subprocess", "line", string(line))
		} else {
			t.logger.Debug("skipping MCP message that is not a response",
				"method", resp.Method, "id", resp.ID)
		}
		return
	}

	t.pendingMu.Lock()
	ch, found := t.pending[resp.ID]
	delete(t.pending, resp.ID)
	t.pendingMu.Unlock()

	if !found {
		// Usually the answer to a request whose caller already gave up.
		t.logger.Debug("skipping unmatched MCP message", "id", resp.ID)
		return
	}
	ch <- resp
}

// fail records the terminal read error and wakes every waiter.
func (t *StdioTransport) fail(err error) {
	t.pendingMu.Lock()
	defer t.pendingMu.Unlock()

	if t.readErr == nil {
		t.readErr = err
	}
	for id, ch := range t.pending {
		close(ch)
		delete(t.pending, id)
	}
}

func (t *StdioTransport) brokenErr() error {
	t.pendingMu.Lock()
	defer t.pendingMu.Unlock()
	if t.readErr != nil {
		return t.readErr
	}
	return ErrTransportClosed
}

func (t *StdioTransport) forget(id int64) {
	t.pendingMu.Lock()
	delete(t.pending, id)
	t.pendingMu.Unlock()
}

// write sends one framed message. Caller must hold the write slot.
func (t *StdioTransport) write(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if _, err := t.stdin.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write to subprocess stdin: %w", err)
	}
	return nil
}

// Send writes a JSON-RPC request to the subprocess and waits for the
// response with the same ID.
func (t *StdioTransport) Send(ctx context.Context, req *Request) (*Response, error) {
	if err := t.acquire(ctx); err != nil {
		return nil, err
	}
	if err := t.start(); err != nil {
		t.release()
		return nil, err
	}

	ch := make(chan *Response, 1)
	t.pendingMu.Lock()
	if t.readErr != nil {
		err := t.readErr
		t.pendingMu.Unlock()
		t.release()
		return nil, err
	}
	t.pending[req.ID] = ch
	t.pendingMu.Unlock()

	err := t.write(req)
	t.release()
	if err != nil {
		t.forget(req.ID)
		return nil, err
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, t.brokenErr()
		}
		return resp, nil
	case <-ctx.Done():
		t.forget(req.ID)
		return nil, ctx.Err()
	}
}

// Notify sends a JSON-RPC notification over stdin. No response is expected.
func (t *StdioTransport) Notify(ctx context.Context, notif *Notification) error {
	if err := t.acquire(ctx); err != nil {
		return err
	}
	defer t.release()

	if err := t.start(); err != nil {
		return err
	}
	return t.write(notif)
}

// Close terminates the subprocess and releases resources. It waits for
// any in-progress write to finish first.
func (t *StdioTransport) Close() error {
	_ = t.acquire(context.Background())
	defer t.release()

	if t.closed {
		return nil
	}
	t.closed = true
	return t.stop()
}

// stop terminates the subprocess: stdin is closed so a well-behaved
// server exits on its own, and it is killed after stopGrace. Caller
// must hold the write slot.
func (t *StdioTransport) stop() error {
	if t.cmd == nil || t.cmd.Process == nil {
		return nil
	}

	pid := t.cmd.Process.Pid
	t.logger.Info("stopping MCP subprocess", "pid", pid)

	if t.stdin != nil {
		t.stdin.Close()
	}

	exited := make(chan error, 1)
	go func() {
		<-t.done
		exited <- t.cmd.Wait()
	}()

	var err error
	select {
	case err = <-exited:
	case <-time.After(stopGrace):
		t.logger.Warn("MCP subprocess did not exit gracefully, killing", "pid", pid)
		_ = t.cmd.Process.Kill()
		<-exited
	}

	t.fail(ErrTransportClosed)
	t.cmd = nil
	t.stdin = nil
	return err
}
