package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/nugget/briefer/internal/defaults"
)

// runInit initializes a briefer working directory with the example
// config and skills contract. Existing files are never overwritten.
func runInit(w io.Writer, dir string) error {
	fmt.Fprintf(w, "Initializing briefer workspace in %s\n", dir)

	data := filepath.Join(dir, "data")
	if err := os.MkdirAll(data, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", data, err)
	}

	// The config usually ends up holding API keys.
	configPath := filepath.Join(dir, "config.yaml")
	if err := writeIfMissing(configPath, defaults.ConfigYAML, 0o600); err != nil {
		return err
	}
	fmt.Fprintf(w, "  ✓ %s\n", configPath)

	skillsPath := filepath.Join(dir, "skills.md")
	if err := writeIfMissing(skillsPath, defaults.SkillsMD, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(w, "  ✓ %s\n", skillsPath)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Edit config.yaml to point at your tool server and search provider.")
	return nil
}

// writeIfMissing writes content to path only if the file does not
// already exist.
func writeIfMissing(path string, content []byte, perm os.FileMode) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.WriteFile(path, content, perm); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
