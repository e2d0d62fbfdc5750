// Package toolserver assembles the briefer tool server: an MCP server
// exposing the location, web, text, and briefing storage tools over
// stdio or streamable HTTP.
package toolserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nugget/briefer/internal/briefing"
	"github.com/nugget/briefer/internal/buildinfo"
	"github.com/nugget/briefer/internal/config"
	"github.com/nugget/briefer/internal/content"
	"github.com/nugget/briefer/internal/fetch"
	"github.com/nugget/briefer/internal/geo"
	"github.com/nugget/briefer/internal/research"
	"github.com/nugget/briefer/internal/search"
)

// Name is the implementation name announced at initialize.
const Name = "briefer-tools"

// Deps are the backends the tools run against.
type Deps struct {
	Search   *search.Manager
	Fetcher  *fetch.Fetcher
	Geo      *geo.Client
	Briefing *briefing.Store
	Logger   *slog.Logger
}

// DepsFromConfig builds the tool backends from the tools section.
func DepsFromConfig(cfg config.ToolsConfig, logger *slog.Logger) Deps {
	mgr := search.NewManager(cfg.Search.Primary)
	mgr.SetLogger(logger)
	if cfg.Search.SearXNG.Configured() {
		mgr.Register(search.NewSearXNG(cfg.Search.SearXNG.URL))
	}
	if cfg.Search.Brave.Configured() {
		mgr.Register(search.NewBrave(cfg.Search.Brave.APIKey, ""))
	}
	if !mgr.Configured() {
		logger.Warn("no search provider configured, web_search will fail")
	}

	var fetchOpts []fetch.Option
	if cfg.FetchChars > 0 {
		fetchOpts = append(fetchOpts, fetch.WithMaxChars(cfg.FetchChars))
	}
	if cfg.UserAgent != "" {
		fetchOpts = append(fetchOpts, fetch.WithUserAgent(cfg.UserAgent))
	}

	return Deps{
		Search:   mgr,
		Fetcher:  fetch.New(fetchOpts...),
		Geo:      geo.New(geo.WithGeocodeURL(cfg.GeoURL), geo.WithWeatherURL(cfg.WeatherURL)),
		Briefing: briefing.NewStore(cfg.StoragePath, logger.With("component", "briefing")),
		Logger:   logger,
	}
}

// New returns an MCP server with every tool registered.
func New(deps Deps) *mcp.Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	s := mcp.NewServer(&mcp.Implementation{Name: Name, Version: buildinfo.Version}, nil)

	register(s, deps.Logger, geo.GeocodeToolName, geo.GeocodeToolDescription, geo.GeocodeToolDefinition(), geo.GeocodeTool(deps.Geo))
	register(s, deps.Logger, geo.WeatherToolName, geo.WeatherToolDescription, geo.WeatherToolDefinition(), geo.WeatherTool(deps.Geo))
	register(s, deps.Logger, search.ToolName, search.ToolDescription, search.ToolDefinition(), search.Tool(deps.Search))
	register(s, deps.Logger, fetch.ToolName, fetch.ToolDescription, fetch.ToolDefinition(), fetch.Tool(deps.Fetcher))
	register(s, deps.Logger, content.ToolName, content.ToolDescription, content.ToolDefinition(), content.Tool())
	register(s, deps.Logger, research.ToolName, research.ToolDescription, research.ToolDefinition(), research.Tool())

	register(s, deps.Logger, briefing.SaveToolName, briefing.SaveToolDescription, briefing.SaveToolDefinition(), briefing.SaveTool(deps.Briefing))
	register(s, deps.Logger, briefing.ListToolName, briefing.ListToolDescription, briefing.ListToolDefinition(), briefing.ListTool(deps.Briefing))
	register(s, deps.Logger, briefing.GetToolName, briefing.GetToolDescription, briefing.IDToolDefinition(), briefing.GetTool(deps.Briefing))
	register(s, deps.Logger, briefing.DeleteToolName, briefing.DeleteToolDescription, briefing.IDToolDefinition(), briefing.DeleteTool(deps.Briefing))

	return s
}

// register adds a typed tool. A handler error is reported to the
// caller as an isError result carrying the error text.
func register[In, Out any](s *mcp.Server, logger *slog.Logger, name, desc string, schema map[string]any, fn func(context.Context, In) (Out, error)) {
	mcp.AddTool(s, &mcp.Tool{Name: name, Description: desc, InputSchema: schema},
		func(ctx context.Context, _ *mcp.CallToolRequest, in In) (*mcp.CallToolResult, Out, error) {
			start := time.Now()
			out, err := fn(ctx, in)
			if err != nil {
				logger.Warn("tool failed", "tool", name, "elapsed", time.Since(start).Round(time.Millisecond), "error", err)
				var zero Out
				return nil, zero, err
			}
			logger.Debug("tool done", "tool", name, "elapsed", time.Since(start).Round(time.Millisecond))
			return nil, out, nil
		})
}

// ServeStdio serves s on stdin/stdout until the client disconnects or
// ctx is done.
func ServeStdio(ctx context.Context, s *mcp.Server) error {
	return s.Run(ctx, &mcp.StdioTransport{})
}

// HTTPHandler serves s over streamable HTTP.
func HTTPHandler(s *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return s }, &mcp.StreamableHTTPOptions{})
}
