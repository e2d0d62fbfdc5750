// Briefer-tools is the MCP tool server used by briefer. It serves the
// geocode_location, get_weather, web_search, web_scrape,
// extract_main_text, rank_search_results, and briefing storage tools.
//
// Usage:
//
//	briefer-tools [-config path]                Serve on stdin/stdout
//	briefer-tools [-config path] -http :8585    Serve streamable HTTP at /mcp
//
// Logs always go to stderr; with stdio, stdout carries the protocol.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nugget/briefer/internal/buildinfo"
	"github.com/nugget/briefer/internal/config"
	"github.com/nugget/briefer/internal/toolserver"
)

func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stderr io.Writer, args []string) error {
	var configPath, httpAddr string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case args[i] == "-http" && i+1 < len(args):
			httpAddr = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-http="):
			httpAddr = strings.TrimPrefix(args[i], "-http=")
		case args[i] == "-version" || args[i] == "--version":
			fmt.Fprintln(stderr, buildinfo.String())
			return nil
		default:
			return fmt.Errorf("unknown argument: %s (usage: briefer-tools [-config path] [-http addr])", args[i])
		}
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := config.NewLogger(stderr, level, cfg.LogFormat).With("component", "briefer-tools")

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	deps := toolserver.DepsFromConfig(cfg.Tools, logger)
	server := toolserver.New(deps)

	logger.Info("tool server starting",
		"version", buildinfo.Version,
		"storage", deps.Briefing.Path(),
		"search", deps.Search.Providers(),
	)

	if httpAddr == "" {
		err := toolserver.ServeStdio(ctx, server)
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("stdio server: %w", err)
		}
		return nil
	}
	return serveHTTP(ctx, httpAddr, toolserver.HTTPHandler(server), logger)
}

func serveHTTP(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/mcp", handler)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintln(w, `{"status":"healthy"}`)
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving MCP over HTTP", "address", addr, "path", "/mcp")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// loadConfig reads the config when one is found. The tool server runs
// fine on defaults.
func loadConfig(explicit string) (*config.Config, error) {
	path, err := config.FindConfig(explicit)
	if err != nil {
		if explicit != "" {
			return nil, err
		}
		return config.Default(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}
