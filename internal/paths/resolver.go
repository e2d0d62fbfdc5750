// Package paths resolves the file paths written in configuration.
// A path may start with ~ for the user's home directory or with a
// named prefix such as "data:" that stands for a configured directory,
// so "data:briefings.json" follows data_dir wherever it points.
package paths

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Resolver maps named prefixes to directories. A nil *Resolver only
// expands ~.
type Resolver struct {
	prefixes map[string]string // "data:" -> "/var/lib/briefer"
	sorted   []string          // prefixes sorted by descending length
}

// New creates a Resolver from a prefix-to-directory map. Keys are
// prefix names without the trailing colon. Directories have ~ expanded.
// Returns nil if the map is empty.
func New(prefixes map[string]string) *Resolver {
	if len(prefixes) == 0 {
		return nil
	}
	m := make(map[string]string, len(prefixes))
	sorted := make([]string, 0, len(prefixes))
	for name, dir := range prefixes {
		key := strings.TrimSuffix(name, ":") + ":"
		m[key] = ExpandHome(dir)
		sorted = append(sorted, key)
	}
	// Longer prefixes first so "data:" never shadows "database:".
	sort.Slice(sorted, func(i, j int) bool {
		return len(sorted[i]) > len(sorted[j])
	})
	return &Resolver{prefixes: m, sorted: sorted}
}

// Resolve expands a prefixed or ~ path. Anything else, including the
// empty string, is returned unchanged. A bare prefix resolves to its
// directory.
func (r *Resolver) Resolve(path string) string {
	if r != nil {
		for _, prefix := range r.sorted {
			if rel, ok := strings.CutPrefix(path, prefix); ok {
				if rel == "" {
					return r.prefixes[prefix]
				}
				return filepath.Join(r.prefixes[prefix], rel)
			}
		}
	}
	return ExpandHome(path)
}

// Prefixes returns the registered prefix names sorted alphabetically,
// without trailing colons.
func (r *Resolver) Prefixes() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.prefixes))
	for prefix := range r.prefixes {
		names = append(names, strings.TrimSuffix(prefix, ":"))
	}
	sort.Strings(names)
	return names
}

// ExpandHome replaces a leading ~ with the user's home directory.
// ~user forms are left alone.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") || strings.HasPrefix(path, "~"+string(filepath.Separator)) {
		return filepath.Join(home, path[2:])
	}
	return path
}
