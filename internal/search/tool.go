package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ToolName is the name the tool is registered under.
const ToolName = "web_search"

// ToolDescription is shown to the model.
const ToolDescription = "Search the web. Returns an ordered list of results with title, url, and snippet."

// Input is the web_search argument object.
type Input struct {
	Query    string `json:"query"`
	Count    int    `json:"count,omitempty"`
	Language string `json:"language,omitempty"`
	Provider string `json:"provider,omitempty"`
}

// Output is the web_search result object.
type Output struct {
	Query    string   `json:"query"`
	Provider string   `json:"provider"`
	Results  []Result `json:"results"`
}

// Tool returns the web_search handler. Naming a provider pins the
// query to it; otherwise the manager's primary answers, with fallback.
func Tool(mgr *Manager) func(ctx context.Context, in Input) (Output, error) {
	return func(ctx context.Context, in Input) (Output, error) {
		query := strings.TrimSpace(in.Query)
		if query == "" {
			return Output{}, errors.New("web_search: query is required")
		}
		opts := Options{Count: in.Count, Language: in.Language}

		var (
			results  []Result
			provider = in.Provider
			err      error
		)
		if provider != "" {
			results, err = mgr.SearchWith(ctx, provider, query, opts)
		} else {
			results, provider, err = mgr.Search(ctx, query, opts)
		}
		if err != nil {
			return Output{}, fmt.Errorf("web_search: %w", err)
		}
		if results == nil {
			results = []Result{}
		}
		return Output{Query: query, Provider: provider, Results: results}, nil
	}
}

// ToolDefinition returns the JSON Schema parameters for the web_search tool.
func ToolDefinition() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "The search query string.",
				"minLength":   1,
			},
			"count": map[string]any{
				"type":        "integer",
				"description": "Maximum number of results to return (1-10). Default: 5.",
				"minimum":     1,
				"maximum":     MaxCount,
			},
			"language": map[string]any{
				"type":        "string",
				"description": "ISO 639-1 language code for results (e.g., 'en', 'de').",
			},
			"provider": map[string]any{
				"type":        "string",
				"description": "Search provider to use (brave or searxng). Omit for default.",
			},
		},
		"required": []string{"query"},
	}
}
