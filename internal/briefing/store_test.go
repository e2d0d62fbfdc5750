package briefing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(filepath.Join(t.TempDir(), "data", "briefings.json"), slog.New(slog.NewTextHandler(io.Discard, nil)))

	clock := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	n := 0
	s.newID = func() string {
		n++
		return fmt.Sprintf("%032x", n)
	}
	return s
}

func readDoc(t *testing.T, path string) document {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read store: %v", err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("store file is not valid JSON: %v\n%s", err, data)
	}
	return doc
}

func TestSave(t *testing.T) {
	s := testStore(t)

	b, err := s.Save("  Seattle storm  ", "  Heavy snow expected.  ", map[string]any{"lat": 47.6}, []string{"weather"})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	want := Briefing{
		ID:        fmt.Sprintf("%032x", 1),
		Title:     "Seattle storm",
		Content:   "Heavy snow expected.",
		Metadata:  map[string]any{"lat": 47.6},
		Tags:      []string{"weather"},
		CreatedAt: "2025-06-15T12:01:00",
		UpdatedAt: "2025-06-15T12:01:00",
	}
	if diff := cmp.Diff(want, b); diff != "" {
		t.Errorf("Save mismatch (-want +got):\n%s", diff)
	}

	doc := readDoc(t, s.Path())
	if diff := cmp.Diff([]Briefing{want}, doc.Briefings); diff != "" {
		t.Errorf("file mismatch (-want +got):\n%s", diff)
	}
}

func TestSave_NewestFirstAndDefaults(t *testing.T) {
	s := testStore(t)
	for _, title := range []string{"first", "second", "third"} {
		if _, err := s.Save(title, "body", nil, nil); err != nil {
			t.Fatalf("Save(%s): %v", title, err)
		}
	}

	doc := readDoc(t, s.Path())
	var titles []string
	for _, b := range doc.Briefings {
		titles = append(titles, b.Title)
		if b.Metadata == nil || b.Tags == nil {
			t.Errorf("%s: nil metadata/tags should be stored as {} and []", b.Title)
		}
	}
	if diff := cmp.Diff([]string{"third", "second", "first"}, titles); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}

	raw, _ := os.ReadFile(s.Path())
	if !strings.Contains(string(raw), `"metadata": {}`) || !strings.Contains(string(raw), `"tags": []`) {
		t.Errorf("empty collections not written as {} / []:\n%s", raw)
	}
}

func TestSave_Validation(t *testing.T) {
	s := testStore(t)
	if _, err := s.Save(" ", "body", nil, nil); err == nil || !strings.Contains(err.Error(), "title") {
		t.Errorf("blank title err = %v", err)
	}
	if _, err := s.Save("title", "\n", nil, nil); err == nil || !strings.Contains(err.Error(), "content") {
		t.Errorf("blank content err = %v", err)
	}
	if _, err := os.Stat(s.Path()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("failed saves must not create the file: %v", err)
	}
}

func TestList(t *testing.T) {
	s := testStore(t)
	seed := []struct {
		title, content string
		tags           []string
	}{
		{"Seattle snow", "Pass closures likely", []string{"Weather", "wa"}},
		{"Portland rain", "Atmospheric river", []string{"weather"}},
		{"Market update", "Snowflake stock rallies", []string{"finance"}},
	}
	for _, b := range seed {
		if _, err := s.Save(b.title, b.content, map[string]any{"src": b.title}, b.tags); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	tests := []struct {
		name       string
		limit      int
		tag, query string
		wantTotal  int
		wantLimit  int
		wantTitles []string
	}{
		{name: "all", limit: 20, wantTotal: 3, wantLimit: 20, wantTitles: []string{"Market update", "Portland rain", "Seattle snow"}},
		{name: "limited", limit: 1, wantTotal: 3, wantLimit: 1, wantTitles: []string{"Market update"}},
		{name: "limit clamped low", limit: -5, wantTotal: 3, wantLimit: 1, wantTitles: []string{"Market update"}},
		{name: "limit clamped high", limit: 1000, wantTotal: 3, wantLimit: 200, wantTitles: []string{"Market update", "Portland rain", "Seattle snow"}},
		{name: "tag case-insensitive", limit: 20, tag: "WEATHER", wantTotal: 2, wantLimit: 20, wantTitles: []string{"Portland rain", "Seattle snow"}},
		{name: "query title or content", limit: 20, query: "snow", wantTotal: 2, wantLimit: 20, wantTitles: []string{"Market update", "Seattle snow"}},
		{name: "tag and query", limit: 20, tag: "weather", query: "SNOW", wantTotal: 1, wantLimit: 20, wantTitles: []string{"Seattle snow"}},
		{name: "no match", limit: 20, query: "volcano", wantTotal: 0, wantLimit: 20, wantTitles: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.List(tt.limit, tt.tag, tt.query)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if got.Total != tt.wantTotal || got.Limit != tt.wantLimit {
				t.Errorf("total/limit = %d/%d, want %d/%d", got.Total, got.Limit, tt.wantTotal, tt.wantLimit)
			}
			titles := []string{}
			for _, it := range got.Items {
				titles = append(titles, it.Title)
				if it.MetadataPreview["src"] != it.Title {
					t.Errorf("metadata_preview for %q = %v", it.Title, it.MetadataPreview)
				}
			}
			if diff := cmp.Diff(tt.wantTitles, titles); diff != "" {
				t.Errorf("titles mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestGetAndDelete(t *testing.T) {
	s := testStore(t)
	a, _ := s.Save("A", "alpha", nil, nil)
	b, _ := s.Save("B", "beta", nil, nil)

	got, err := s.Get(a.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Content != "alpha" {
		t.Errorf("Get content = %q", got.Content)
	}

	if _, err := s.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(nope) err = %v, want ErrNotFound", err)
	}
	if _, err := s.Get(""); err == nil {
		t.Error("Get(\"\") should fail")
	}

	deleted, err := s.Delete(a.ID)
	if err != nil || !deleted {
		t.Fatalf("Delete = %v, %v", deleted, err)
	}
	deleted, err = s.Delete(a.ID)
	if err != nil || deleted {
		t.Errorf("second Delete = %v, %v; want false, nil", deleted, err)
	}

	doc := readDoc(t, s.Path())
	if len(doc.Briefings) != 1 || doc.Briefings[0].ID != b.ID {
		t.Errorf("remaining = %+v", doc.Briefings)
	}
}

func TestLoad_MissingAndCorrupt(t *testing.T) {
	s := testStore(t)

	got, err := s.List(20, "", "")
	if err != nil || got.Total != 0 || got.Items == nil {
		t.Fatalf("missing file: %+v, %v", got, err)
	}

	if err := os.MkdirAll(filepath.Dir(s.Path()), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(s.Path(), []byte(`{"briefings": [ {"id": "x", "tit`), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err = s.List(20, "", "")
	if err != nil || got.Total != 0 {
		t.Errorf("corrupt file: %+v, %v", got, err)
	}

	if _, err := s.Save("fresh", "start", nil, nil); err != nil {
		t.Fatalf("Save over corrupt file: %v", err)
	}
	if doc := readDoc(t, s.Path()); len(doc.Briefings) != 1 {
		t.Errorf("store should restart empty, got %d briefings", len(doc.Briefings))
	}
}

func TestLoad_SkipsMalformedRecords(t *testing.T) {
	s := testStore(t)
	if err := os.MkdirAll(filepath.Dir(s.Path()), 0o755); err != nil {
		t.Fatal(err)
	}
	body := `{"briefings": [
		{"id": "keep", "title": "Seattle", "content": "Rain.", "created_at": "2025-06-14T09:00:00"},
		{"id": "bad", "title": "Broken", "content": "x", "metadata": "not-a-map"},
		42,
		null,
		{"title": "no id"}
	]}`
	if err := os.WriteFile(s.Path(), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := s.Get("keep")
	if err != nil {
		t.Fatalf("Get(keep): %v", err)
	}
	if got.Title != "Seattle" || got.Content != "Rain." {
		t.Errorf("Get(keep) = %+v", got)
	}
	if _, err := s.Get("bad"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(bad) err = %v, want ErrNotFound", err)
	}

	if _, err := s.Save("fresh", "new", nil, nil); err != nil {
		t.Fatalf("Save: %v", err)
	}
	listing, err := s.List(20, "", "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if listing.Total != 2 {
		t.Fatalf("Total = %d, want 2 (fresh + keep)", listing.Total)
	}
	doc := readDoc(t, s.Path())
	ids := []string{doc.Briefings[0].Title, doc.Briefings[1].ID}
	if diff := cmp.Diff([]string{"fresh", "keep"}, ids); diff != "" {
		t.Errorf("stored records mismatch (-want +got):\n%s", diff)
	}
}

// A crash between writing the temp file and renaming it must leave the
// previous store intact and no temp file behind.
func TestWrite_FailedRenameKeepsOriginal(t *testing.T) {
	s := testStore(t)
	if _, err := s.Save("keep", "original", nil, nil); err != nil {
		t.Fatalf("Save: %v", err)
	}
	before, _ := os.ReadFile(s.Path())

	s.rename = func(string, string) error { return errors.New("power lost") }
	if _, err := s.Save("lost", "never lands", nil, nil); err == nil || !strings.Contains(err.Error(), "power lost") {
		t.Fatalf("Save err = %v, want rename failure", err)
	}

	after, _ := os.ReadFile(s.Path())
	if string(before) != string(after) {
		t.Errorf("store changed after failed write:\n%s", after)
	}
	entries, _ := os.ReadDir(filepath.Dir(s.Path()))
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestTools(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	saved, err := SaveTool(s)(ctx, SaveInput{Title: "T", Content: "C", Tags: []string{"x"}})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.ID == "" || saved.Title != "T" || saved.CreatedAt == "" {
		t.Errorf("saved = %+v", saved)
	}

	listing, err := ListTool(s)(ctx, ListInput{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if listing.Limit != DefaultListLimit || listing.Total != 1 {
		t.Errorf("listing = %+v", listing)
	}

	got, err := GetTool(s)(ctx, IDInput{ID: saved.ID})
	if err != nil || got.Content != "C" {
		t.Errorf("get = %+v, %v", got, err)
	}

	del, err := DeleteTool(s)(ctx, IDInput{ID: saved.ID})
	if err != nil || !del.Deleted || del.ID != saved.ID {
		t.Errorf("delete = %+v, %v", del, err)
	}
}

func TestNewStore_RealIDs(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "b.json"), nil)
	b, err := s.Save("t", "c", nil, nil)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if len(b.ID) != 32 || strings.Contains(b.ID, "-") {
		t.Errorf("id = %q, want 32 hex chars", b.ID)
	}
	if _, err := time.Parse(TimeFormat, b.CreatedAt); err != nil {
		t.Errorf("created_at %q: %v", b.CreatedAt, err)
	}
}
