package briefing

import "context"

// Tool names.
const (
	SaveToolName   = "save_briefing"
	ListToolName   = "list_briefings"
	GetToolName    = "get_briefing"
	DeleteToolName = "delete_briefing"
)

// Tool descriptions.
const (
	SaveToolDescription   = "Save a briefing/report to local storage. Side effect: call at most once per user request. Returns {id, title, created_at}."
	ListToolDescription   = "List saved briefings, newest first, optionally filtered by tag or a title/content substring."
	GetToolDescription    = "Retrieve a saved briefing by id, including its full content."
	DeleteToolDescription = "Delete a saved briefing by id."
)

// SaveInput is the save_briefing argument object.
type SaveInput struct {
	Title    string         `json:"title"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Tags     []string       `json:"tags,omitempty"`
}

// Saved is the save_briefing result.
type Saved struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at"`
}

// ListInput is the list_briefings argument object.
type ListInput struct {
	Limit int    `json:"limit,omitempty"`
	Tag   string `json:"tag,omitempty"`
	Query string `json:"query,omitempty"`
}

// IDInput is the argument object of get_briefing and delete_briefing.
type IDInput struct {
	ID string `json:"id"`
}

// Deleted is the delete_briefing result.
type Deleted struct {
	Deleted bool   `json:"deleted"`
	ID      string `json:"id"`
}

// SaveTool returns the save_briefing handler.
func SaveTool(s *Store) func(ctx context.Context, in SaveInput) (Saved, error) {
	return func(_ context.Context, in SaveInput) (Saved, error) {
		b, err := s.Save(in.Title, in.Content, in.Metadata, in.Tags)
		if err != nil {
			return Saved{}, err
		}
		return Saved{ID: b.ID, Title: b.Title, CreatedAt: b.CreatedAt}, nil
	}
}

// ListTool returns the list_briefings handler.
func ListTool(s *Store) func(ctx context.Context, in ListInput) (Listing, error) {
	return func(_ context.Context, in ListInput) (Listing, error) {
		limit := in.Limit
		if limit == 0 {
			limit = DefaultListLimit
		}
		return s.List(limit, in.Tag, in.Query)
	}
}

// GetTool returns the get_briefing handler.
func GetTool(s *Store) func(ctx context.Context, in IDInput) (Briefing, error) {
	return func(_ context.Context, in IDInput) (Briefing, error) {
		return s.Get(in.ID)
	}
}

// DeleteTool returns the delete_briefing handler.
func DeleteTool(s *Store) func(ctx context.Context, in IDInput) (Deleted, error) {
	return func(_ context.Context, in IDInput) (Deleted, error) {
		ok, err := s.Delete(in.ID)
		if err != nil {
			return Deleted{}, err
		}
		return Deleted{Deleted: ok, ID: in.ID}, nil
	}
}

// SaveToolDefinition returns the JSON Schema for save_briefing.
func SaveToolDefinition() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title": map[string]any{
				"type":        "string",
				"description": "Briefing title.",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "The briefing body.",
			},
			"metadata": map[string]any{
				"type":        "object",
				"description": "Optional metadata (location, coordinates, source urls, ...).",
			},
			"tags": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Optional tags.",
			},
		},
		"required": []string{"title", "content"},
	}
}

// ListToolDefinition returns the JSON Schema for list_briefings.
func ListToolDefinition() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"limit": map[string]any{
				"type":        "integer",
				"description": "Maximum number of results (1-200). Default: 20.",
			},
			"tag": map[string]any{
				"type":        "string",
				"description": "Only briefings carrying this tag.",
			},
			"query": map[string]any{
				"type":        "string",
				"description": "Case-insensitive substring to find in title or content.",
			},
		},
	}
}

// IDToolDefinition returns the JSON Schema for get_briefing and delete_briefing.
func IDToolDefinition() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"id": map[string]any{
				"type":        "string",
				"description": "Briefing id.",
			},
		},
		"required": []string{"id"},
	}
}
