// Package api implements the briefer HTTP shell: a small JSON API over
// one agent session, served by `briefer serve`.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/nugget/briefer/internal/agent"
	"github.com/nugget/briefer/internal/buildinfo"
	"github.com/nugget/briefer/internal/connwatch"
	"github.com/nugget/briefer/internal/llm"
	"github.com/nugget/briefer/internal/mcp"
	"github.com/nugget/briefer/internal/session"
)

// maxQueryBytes caps a POST /v1/query body.
const maxQueryBytes = 64 << 10

// Backend is the session surface the server needs. *session.Session
// implements it.
type Backend interface {
	Ask(ctx context.Context, question string) (string, error)
	Tools(ctx context.Context) ([]mcp.ToolDefinition, error)
	Connected() bool
}

// HealthReporter reports tool server health. *connwatch.Watcher
// implements it.
type HealthReporter interface {
	Status() connwatch.Status
}

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Server is the HTTP API server.
type Server struct {
	address  string
	port     int
	backend  Backend
	health   HealthReporter
	logger   *slog.Logger
	server   *http.Server
	markdown goldmark.Markdown
}

// SetHealthReporter adds tool server status to /healthz. A server that
// is not ready turns the overall status to "degraded".
func (s *Server) SetHealthReporter(h HealthReporter) {
	s.health = h
}

// NewServer creates a new API server.
func NewServer(address string, port int, backend Backend, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		address:  address,
		port:     port,
		backend:  backend,
		logger:   logger,
		markdown: goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}
}

// Handler returns the routed handler with request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/query", s.handleQuery)
	mux.HandleFunc("GET /v1/tools", s.handleTools)
	mux.HandleFunc("GET /v1/ws", s.handleWebSocket)

	mux.HandleFunc("GET /v1/version", s.handleVersion)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /{$}", s.handleRoot)

	return s.withLogging(mux)
}

// Start begins serving HTTP requests. It returns http.ErrServerClosed
// after Shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute, // a query is up to twelve model calls plus tools
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	addr := s.address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting API server", "address", addr, "port", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"name":    "briefer",
		"version": buildinfo.Version,
		"status":  "ok",
	}, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, buildinfo.BuildInfo(), s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":    "healthy",
		"connected": s.backend.Connected(),
		"uptime":    buildinfo.Uptime().Round(time.Second).String(),
	}
	if s.health != nil {
		st := s.health.Status()
		body["tool_server"] = st
		if !st.Ready {
			body["status"] = "degraded"
		}
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, body, s.logger)
}

// QueryRequest is the body of POST /v1/query.
type QueryRequest struct {
	Query string `json:"query"`
}

// QueryResponse is the answer to POST /v1/query.
type QueryResponse struct {
	Answer    string `json:"answer"`
	HTML      string `json:"html"`
	ElapsedMS int64  `json:"elapsed_ms"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxQueryBytes)).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		s.errorResponse(w, http.StatusBadRequest, "query is required")
		return
	}

	start := time.Now()
	answer, err := s.backend.Ask(r.Context(), query)
	if err != nil {
		code := statusFor(err)
		if code >= 500 {
			s.logger.Error("query failed", "error", err)
		}
		s.errorResponse(w, code, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, QueryResponse{
		Answer:    answer,
		HTML:      s.renderHTML(answer),
		ElapsedMS: time.Since(start).Milliseconds(),
	}, s.logger)
}

// ToolInfo is one entry of GET /v1/tools.
type ToolInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	defs, err := s.backend.Tools(r.Context())
	if err != nil {
		s.errorResponse(w, statusFor(err), err.Error())
		return
	}
	tools := make([]ToolInfo, len(defs))
	for i, d := range defs {
		tools[i] = ToolInfo{Name: d.Name, Description: d.Description, InputSchema: d.InputSchema}
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{"tools": tools}, s.logger)
}

// renderHTML converts a markdown answer to HTML. A conversion failure
// yields "" and the raw answer is still returned.
func (s *Server) renderHTML(md string) string {
	var buf bytes.Buffer
	if err := s.markdown.Convert([]byte(md), &buf); err != nil {
		s.logger.Debug("markdown conversion failed", "error", err)
		return ""
	}
	return buf.String()
}

// statusFor maps a query error to an HTTP status.
func statusFor(err error) int {
	var (
		connErr  *mcp.ConnectionError
		rateErr  *llm.RateLimitError
		authErr  *llm.AuthError
		protoErr *llm.ProtocolError
	)
	switch {
	case errors.Is(err, session.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, agent.ErrNotConnected):
		return http.StatusServiceUnavailable
	case errors.As(err, &rateErr):
		return http.StatusTooManyRequests
	case errors.As(err, &connErr), errors.As(err, &authErr), errors.As(err, &protoErr):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    code,
		},
	}, s.logger)
}
