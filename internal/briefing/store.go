// Package briefing is the briefing store behind the save_briefing,
// list_briefings, get_briefing, and delete_briefing tools.
//
// Briefings live in a single JSON file, newest first:
//
//	{"briefings": [{"id": "...", "title": "...", ...}, ...]}
//
// Every change rewrites the whole file through a temp file that is
// synced and renamed over the original, so readers see either the old
// or the new contents and never a partial write. A missing or corrupt
// file reads as an empty store.
package briefing

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// TimeFormat is the layout of CreatedAt and UpdatedAt (UTC).
const TimeFormat = "2006-01-02T15:04:05"

// List limit bounds.
const (
	DefaultListLimit = 20
	MaxListLimit     = 200
)

// ErrNotFound is returned for an unknown briefing id.
var ErrNotFound = errors.New("briefing not found")

// Briefing is one stored record.
type Briefing struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata"`
	Tags      []string       `json:"tags"`
	CreatedAt string         `json:"created_at"`
	UpdatedAt string         `json:"updated_at"`
}

// Item is the list view of a briefing.
type Item struct {
	ID              string         `json:"id"`
	Title           string         `json:"title"`
	CreatedAt       string         `json:"created_at"`
	UpdatedAt       string         `json:"updated_at"`
	Tags            []string       `json:"tags"`
	MetadataPreview map[string]any `json:"metadata_preview"`
}

// Listing is the result of List.
type Listing struct {
	Total int    `json:"total"`
	Limit int    `json:"limit"`
	Items []Item `json:"items"`
}

type document struct {
	Briefings []Briefing `json:"briefings"`
}

// Store is a JSON-file briefing store. Safe for concurrent use within
// one process.
type Store struct {
	path   string
	logger *slog.Logger

	mu sync.Mutex

	// Replaced in tests.
	now    func() time.Time
	newID  func() string
	rename func(oldpath, newpath string) error
}

// NewStore returns a store backed by path. The file and its directory
// are created on first write.
func NewStore(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		path:   path,
		logger: logger,
		now:    time.Now,
		newID:  func() string { return strings.ReplaceAll(uuid.NewString(), "-", "") },
		rename: os.Rename,
	}
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Save stores a new briefing at the head of the list.
func (s *Store) Save(title, content string, metadata map[string]any, tags []string) (Briefing, error) {
	title, content = strings.TrimSpace(title), strings.TrimSpace(content)
	if title == "" {
		return Briefing{}, errors.New("title must be a non-empty string")
	}
	if content == "" {
		return Briefing{}, errors.New("content must be a non-empty string")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.load()
	ts := s.now().UTC().Format(TimeFormat)
	b := Briefing{
		ID:        s.newID(),
		Title:     title,
		Content:   content,
		Metadata:  metadata,
		Tags:      tags,
		CreatedAt: ts,
		UpdatedAt: ts,
	}
	b.normalize()
	doc.Briefings = append([]Briefing{b}, doc.Briefings...)

	if err := s.write(doc); err != nil {
		return Briefing{}, fmt.Errorf("failed to save briefing: %w", err)
	}
	s.logger.Info("briefing saved", "id", b.ID, "title", b.Title, "total", len(doc.Briefings))
	return b, nil
}

// List returns up to limit briefings, newest first. tag matches
// case-insensitively against tags; query is a case-insensitive
// substring of the title or content. Total counts every match.
func (s *Store) List(limit int, tag, query string) (Listing, error) {
	limit = max(1, min(limit, MaxListLimit))
	tag = strings.ToLower(strings.TrimSpace(tag))
	query = strings.ToLower(strings.TrimSpace(query))

	s.mu.Lock()
	doc := s.load()
	s.mu.Unlock()

	matched := lo.Filter(doc.Briefings, func(b Briefing, _ int) bool {
		if tag != "" && !lo.ContainsBy(b.Tags, func(t string) bool { return strings.ToLower(t) == tag }) {
			return false
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(b.Title), query) &&
			!strings.Contains(strings.ToLower(b.Content), query) {
			return false
		}
		return true
	})

	items := lo.Map(matched[:min(limit, len(matched))], func(b Briefing, _ int) Item {
		return Item{
			ID:              b.ID,
			Title:           b.Title,
			CreatedAt:       b.CreatedAt,
			UpdatedAt:       b.UpdatedAt,
			Tags:            b.Tags,
			MetadataPreview: b.Metadata,
		}
	})
	return Listing{Total: len(matched), Limit: limit, Items: items}, nil
}

// Get returns the briefing with id.
func (s *Store) Get(id string) (Briefing, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Briefing{}, errors.New("id must be a non-empty string")
	}

	s.mu.Lock()
	doc := s.load()
	s.mu.Unlock()

	b, ok := lo.Find(doc.Briefings, func(b Briefing) bool { return b.ID == id })
	if !ok {
		return Briefing{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return b, nil
}

// Delete removes the briefing with id and reports whether it existed.
// The file is rewritten either way.
func (s *Store) Delete(id string) (bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return false, errors.New("id must be a non-empty string")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.load()
	before := len(doc.Briefings)
	doc.Briefings = lo.Reject(doc.Briefings, func(b Briefing, _ int) bool { return b.ID == id })
	deleted := len(doc.Briefings) != before

	if err := s.write(doc); err != nil {
		return false, fmt.Errorf("failed to delete briefing: %w", err)
	}
	if deleted {
		s.logger.Info("briefing deleted", "id", id)
	}
	return deleted, nil
}

// load reads the store file. Callers hold s.mu.
func (s *Store) load() document {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("briefing store unreadable, treating as empty", "path", s.path, "error", err)
		}
		return document{Briefings: []Briefing{}}
	}

	// Records are decoded one at a time so a single malformed entry
	// cannot take the rest of the store down with it.
	var raw struct {
		Briefings []json.RawMessage `json:"briefings"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		s.logger.Warn("briefing store corrupt, treating as empty", "path", s.path, "error", err)
		return document{Briefings: []Briefing{}}
	}

	doc := document{Briefings: make([]Briefing, 0, len(raw.Briefings))}
	for i, rec := range raw.Briefings {
		var b Briefing
		if err := json.Unmarshal(rec, &b); err != nil {
			s.logger.Warn("skipping malformed briefing", "path", s.path, "index", i, "error", err)
			continue
		}
		if b.ID == "" {
			continue
		}
		b.normalize()
		doc.Briefings = append(doc.Briefings, b)
	}
	return doc
}

// write replaces the store file with doc. Callers hold s.mu.
func (s *Store) write(doc document) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := s.rename(tmpName, s.path); err != nil {
		return err
	}
	committed = true

	// Persist the rename itself. Not every platform supports syncing a
	// directory, so failure here is ignored.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		d.Close()
	}
	return nil
}

// normalize replaces nil collections with empty ones.
func (b *Briefing) normalize() {
	if b.Metadata == nil {
		b.Metadata = map[string]any{}
	}
	if b.Tags == nil {
		b.Tags = []string{}
	}
}
