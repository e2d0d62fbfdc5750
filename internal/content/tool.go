package content

import "context"

// ToolName is the name the tool is registered under.
const ToolName = "extract_main_text"

// ToolDescription is shown to the model.
const ToolDescription = "Clean and normalize scraped text (e.g. web_scrape content) for summarization: drops navigation and boilerplate lines, collapses whitespace, and truncates at a natural break."

// Input is the extract_main_text argument object. Nil booleans take
// their default of true.
type Input struct {
	Content        string `json:"content"`
	MaxChars       int    `json:"max_chars,omitempty"`
	KeepParagraphs *bool  `json:"keep_paragraphs,omitempty"`
	RemoveNoise    *bool  `json:"remove_noise,omitempty"`
}

func orTrue(b *bool) bool { return b == nil || *b }

// Tool returns the extract_main_text handler.
func Tool() func(ctx context.Context, in Input) (Result, error) {
	return func(_ context.Context, in Input) (Result, error) {
		return Clean(in.Content, Options{
			MaxChars:       in.MaxChars,
			KeepParagraphs: orTrue(in.KeepParagraphs),
			RemoveNoise:    orTrue(in.RemoveNoise),
		})
	}
}

// ToolDefinition returns the JSON Schema parameters for extract_main_text.
func ToolDefinition() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"content": map[string]any{
				"type":        "string",
				"description": "Raw text content, e.g. the content field of a web_scrape result.",
			},
			"max_chars": map[string]any{
				"type":        "integer",
				"description": "Maximum output length (500-200000). Default: 12000.",
			},
			"keep_paragraphs": map[string]any{
				"type":        "boolean",
				"description": "Preserve paragraph breaks; false returns a single block. Default: true.",
			},
			"remove_noise": map[string]any{
				"type":        "boolean",
				"description": "Filter navigation, footer, and boilerplate lines. Default: true.",
			},
		},
		"required": []string{"content"},
	}
}
