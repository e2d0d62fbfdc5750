// Package search provides the web_search tool over pluggable search
// backends.
//
// Backends implement [Provider] and are registered with a [Manager].
// A query goes to the configured primary backend; if it fails, the
// remaining backends are tried in name order and the first answer
// wins. Results are cleaned before they reach the model: entries
// without a URL are dropped, repeated URLs collapse to their first
// occurrence, and whitespace is normalized.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/samber/lo"
)

// Result is a single search result.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// Options tune one query.
type Options struct {
	// Count caps the results. Zero means DefaultCount.
	Count int `json:"count,omitempty"`

	// Language is an ISO 639-1 code such as "en" or "de".
	Language string `json:"language,omitempty"`
}

// Result count bounds.
const (
	DefaultCount = 5
	MaxCount     = 10
)

func (o Options) count() int {
	switch {
	case o.Count <= 0:
		return DefaultCount
	case o.Count > MaxCount:
		return MaxCount
	}
	return o.Count
}

// Provider is a search backend.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, opts Options) ([]Result, error)
}

// Manager routes queries to registered providers.
type Manager struct {
	providers map[string]Provider
	primary   string
	logger    *slog.Logger
}

// NewManager creates a manager whose default backend is primary.
func NewManager(primary string) *Manager {
	return &Manager{
		providers: make(map[string]Provider),
		primary:   primary,
		logger:    slog.Default(),
	}
}

// SetLogger sets the logger used to report fallbacks.
func (m *Manager) SetLogger(logger *slog.Logger) {
	if logger != nil {
		m.logger = logger
	}
}

// Register adds p, replacing any provider of the same name.
func (m *Manager) Register(p Provider) {
	m.providers[p.Name()] = p
}

// Primary returns the default provider name.
func (m *Manager) Primary() string { return m.primary }

// Providers returns the sorted names of all registered providers.
func (m *Manager) Providers() []string {
	return slices.Sorted(maps.Keys(m.providers))
}

// Configured reports whether at least one provider is registered.
func (m *Manager) Configured() bool {
	return len(m.providers) > 0
}

// Search runs query on the primary provider, falling back to the
// others on error. It returns the name of the provider that answered.
func (m *Manager) Search(ctx context.Context, query string, opts Options) ([]Result, string, error) {
	if !m.Configured() {
		return nil, "", errors.New("no search provider configured")
	}

	order := m.Providers()
	if _, ok := m.providers[m.primary]; ok {
		order = append([]string{m.primary}, lo.Without(order, m.primary)...)
	}

	var errs []error
	for _, name := range order {
		results, err := m.SearchWith(ctx, name, query, opts)
		if err == nil {
			return results, name, nil
		}
		if ctx.Err() != nil {
			return nil, name, err
		}
		m.logger.Warn("search provider failed", "provider", name, "error", err)
		errs = append(errs, err)
	}
	return nil, "", errors.Join(errs...)
}

// SearchWith runs query on the named provider only.
func (m *Manager) SearchWith(ctx context.Context, provider, query string, opts Options) ([]Result, error) {
	p, ok := m.providers[provider]
	if !ok {
		return nil, fmt.Errorf("search provider %q not configured", provider)
	}
	results, err := p.Search(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	return clean(results, opts.count()), nil
}

// clean drops results without a URL, keeps the first of any repeated
// URL, collapses whitespace, and caps the list at limit.
func clean(results []Result, limit int) []Result {
	results = lo.Filter(results, func(r Result, _ int) bool { return strings.TrimSpace(r.URL) != "" })
	results = lo.UniqBy(results, func(r Result) string { return strings.TrimSpace(r.URL) })
	results = lo.Map(results, func(r Result, _ int) Result {
		return Result{
			Title:   strings.Join(strings.Fields(r.Title), " "),
			URL:     strings.TrimSpace(r.URL),
			Snippet: strings.Join(strings.Fields(r.Snippet), " "),
		}
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}
