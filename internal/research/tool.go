package research

import "context"

// ToolName is the name the tool is registered under.
const ToolName = "rank_search_results"

// ToolDescription is shown to the model.
const ToolDescription = "Rank web_search results by relevance to a goal, boosting official sources, so the best pages are scraped first. Returns ranked entries and top_urls."

// Input is the rank_search_results argument object.
type Input struct {
	Results        []Candidate `json:"results"`
	Goal           string      `json:"goal"`
	TopK           int         `json:"top_k,omitempty"`
	PreferOfficial *bool       `json:"prefer_official,omitempty"`
}

// Tool returns the rank_search_results handler.
func Tool() func(ctx context.Context, in Input) (Ranking, error) {
	return func(_ context.Context, in Input) (Ranking, error) {
		topK := in.TopK
		if topK == 0 {
			topK = DefaultTopK
		}
		prefer := in.PreferOfficial == nil || *in.PreferOfficial
		return Rank(in.Results, in.Goal, topK, prefer)
	}
}

// ToolDefinition returns the JSON Schema parameters for rank_search_results.
func ToolDefinition() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"results": map[string]any{
				"type":        "array",
				"description": "The results list from web_search.",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"title":   map[string]any{"type": "string"},
						"url":     map[string]any{"type": "string"},
						"snippet": map[string]any{"type": "string"},
					},
				},
			},
			"goal": map[string]any{
				"type":        "string",
				"description": "The user's intent, e.g. 'winter storm advisory seattle'.",
			},
			"top_k": map[string]any{
				"type":        "integer",
				"description": "Number of top URLs to return (1-20). Default: 5.",
			},
			"prefer_official": map[string]any{
				"type":        "boolean",
				"description": "Boost .gov/.edu and known official domains. Default: true.",
			},
		},
		"required": []string{"results", "goal"},
	}
}
