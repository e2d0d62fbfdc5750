package prompts

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"unicode/utf8"
)

// SkillsTruncationMarker ends a skills contract that was cut short.
const SkillsTruncationMarker = "\n\n...[skills.md truncated]"

// LoadSkills reads the skills contract at path for prompt injection.
// A missing file, or an empty path, yields "" and no error. Text longer
// than maxChars characters is cut and marked with
// [SkillsTruncationMarker]; maxChars <= 0 disables the limit.
func LoadSkills(path string, maxChars int) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return truncateSkills(strings.TrimSpace(string(data)), maxChars), nil
}

// truncateSkills limits text to maxChars runes.
func truncateSkills(text string, maxChars int) string {
	if maxChars <= 0 || utf8.RuneCountInString(text) <= maxChars {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxChars]) + SkillsTruncationMarker
}
