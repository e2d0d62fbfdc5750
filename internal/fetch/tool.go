package fetch

import "context"

// ToolName is the name the tool is registered under.
const ToolName = "web_scrape"

// ToolDescription is shown to the model.
const ToolDescription = "Fetch a web page and return its readable text content, title, and HTTP status."

// Input is the web_scrape argument object.
type Input struct {
	URL      string `json:"url"`
	MaxChars int    `json:"max_chars,omitempty"`
}

// Tool returns the web_scrape handler.
func Tool(f *Fetcher) func(ctx context.Context, in Input) (Result, error) {
	return func(ctx context.Context, in Input) (Result, error) {
		res, err := f.Fetch(ctx, in.URL, in.MaxChars)
		if err != nil {
			return Result{}, err
		}
		return *res, nil
	}
}

// ToolDefinition returns the JSON Schema parameters for the web_scrape tool.
func ToolDefinition() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "URL to fetch and extract content from.",
				"minLength":   1,
			},
			"max_chars": map[string]any{
				"type":        "integer",
				"description": "Maximum characters of text to return. Default: 20000.",
				"minimum":     100,
				"maximum":     200000,
			},
		},
		"required": []string{"url"},
	}
}
