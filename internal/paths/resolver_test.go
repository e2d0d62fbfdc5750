package paths

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestResolve(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	r := New(map[string]string{
		"data":  "/var/lib/briefer",
		"cache": "~/cache",
	})

	tests := []struct {
		name string
		path string
		want string
	}{
		{"data prefix", "data:briefings.json", filepath.Join("/var/lib/briefer", "briefings.json")},
		{"data nested", "data:archive/old.json", filepath.Join("/var/lib/briefer", "archive", "old.json")},
		{"bare prefix", "data:", "/var/lib/briefer"},
		{"prefix dir has tilde", "cache:x", filepath.Join(home, "cache", "x")},
		{"tilde path", "~/skills.md", filepath.Join(home, "skills.md")},
		{"bare tilde", "~", home},
		{"other user untouched", "~bob/x", "~bob/x"},
		{"absolute path unchanged", "/etc/briefer/skills.md", "/etc/briefer/skills.md"},
		{"relative path unchanged", "data/usage.db", "data/usage.db"},
		{"empty string unchanged", "", ""},
		{"no match", "unknown:foo", "unknown:foo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.Resolve(tt.path); got != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestResolve_NilReceiver(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	var r *Resolver
	if got := r.Resolve("data:foo.json"); got != "data:foo.json" {
		t.Errorf("nil Resolve = %q, want unchanged", got)
	}
	if got := r.Resolve("~/foo.json"); got != filepath.Join(home, "foo.json") {
		t.Errorf("nil Resolve did not expand ~: %q", got)
	}
	if r.Prefixes() != nil {
		t.Error("nil Prefixes should be nil")
	}
}

func TestResolve_LongerPrefixFirst(t *testing.T) {
	r := New(map[string]string{
		"data":     "/short",
		"database": "/long",
	})
	if got := r.Resolve("database:x"); got != filepath.Join("/long", "x") {
		t.Errorf("Resolve(database:x) = %q", got)
	}
	if got := r.Resolve("data:x"); got != filepath.Join("/short", "x") {
		t.Errorf("Resolve(data:x) = %q", got)
	}
}

func TestNew(t *testing.T) {
	if New(nil) != nil {
		t.Error("New(nil) should return nil")
	}
	r := New(map[string]string{"data:": "/d", "cache": "/c"})
	if diff := cmp.Diff([]string{"cache", "data"}, r.Prefixes()); diff != "" {
		t.Errorf("Prefixes mismatch (-want +got):\n%s", diff)
	}
}
