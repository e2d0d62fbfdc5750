// Package content implements extract_main_text, a pure text cleaner
// for scraped pages. It removes boilerplate lines (menus, cookie
// banners, share bars), normalizes whitespace, and truncates at a
// natural break so the result can be fed to a summarizer.
package content

import (
	"errors"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Limits for the max_chars argument.
const (
	DefaultMaxChars = 12000
	MinMaxChars     = 500
	MaxMaxChars     = 200000
)

// TruncationMarker is appended to truncated text.
const TruncationMarker = "\n\n...[truncated]"

var truncatedTag = strings.TrimSpace(TruncationMarker)

// ErrEmptyContent is returned for blank input.
var ErrEmptyContent = errors.New("content must be a non-empty string")

// Heuristic thresholds for noise lines.
const (
	minLineChars        = 25
	maxUpperLineChars   = 120
	maxKeywordLineChars = 160
	upperRatio          = 0.85
	minBreakFraction    = 0.6
)

var noisePattern = regexp.MustCompile(`\b(cookies?|privacy policy|terms of service|accept all|subscribe|sign in|log in|newsletter|share|facebook|twitter|instagram|linkedin|download our app)\b`)

var (
	spaceRun   = regexp.MustCompile(`[ \t]+`)
	newlineRun = regexp.MustCompile(`\n{3,}`)
)

// Options control Clean.
type Options struct {
	MaxChars       int
	KeepParagraphs bool
	RemoveNoise    bool
}

// Result is the cleaned text and what was done to it.
type Result struct {
	CleanText      string `json:"clean_text"`
	Length         int    `json:"length"`
	RemovedNoise   bool   `json:"removed_noise"`
	KeptParagraphs bool   `json:"kept_paragraphs"`
	MaxChars       int    `json:"max_chars"`
	Note           string `json:"note,omitempty"`
}

// ClampMaxChars maps n into [MinMaxChars, MaxMaxChars]; zero or less
// selects DefaultMaxChars.
func ClampMaxChars(n int) int {
	switch {
	case n <= 0:
		return DefaultMaxChars
	case n < MinMaxChars:
		return MinMaxChars
	case n > MaxMaxChars:
		return MaxMaxChars
	}
	return n
}

// Clean normalizes text according to opts. Length is measured in
// characters (runes).
func Clean(text string, opts Options) (Result, error) {
	if strings.TrimSpace(text) == "" {
		return Result{}, ErrEmptyContent
	}

	maxChars := ClampMaxChars(opts.MaxChars)
	res := Result{
		RemovedNoise:   opts.RemoveNoise,
		KeptParagraphs: opts.KeepParagraphs,
		MaxChars:       maxChars,
	}

	text = normalizeWhitespace(text)

	// Output of an earlier truncating run keeps its marker.
	text, wasTruncated := strings.CutSuffix(text, truncatedTag)
	text = strings.TrimSpace(text)

	if opts.RemoveNoise {
		var kept []string
		for _, line := range strings.Split(text, "\n") {
			line = strings.TrimSpace(line)
			if line != "" && !looksLikeNoise(line) {
				kept = append(kept, line)
			}
		}
		text = strings.TrimSpace(strings.Join(kept, "\n\n"))
	}

	if text == "" {
		res.Note = "All content filtered out as noise. Try remove_noise=false."
		return res, nil
	}

	if !opts.KeepParagraphs {
		text = strings.Join(strings.Fields(text), " ")
	}

	res.CleanText = truncate(text, maxChars)
	if wasTruncated && !strings.HasSuffix(res.CleanText, TruncationMarker) {
		res.CleanText += TruncationMarker
	}
	res.Length = utf8.RuneCountInString(res.CleanText)
	return res, nil
}

func normalizeWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = spaceRun.ReplaceAllString(s, " ")
	s = newlineRun.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// looksLikeNoise reports whether line is navigation or boilerplate
// rather than prose.
func looksLikeNoise(line string) bool {
	n := utf8.RuneCountInString(line)
	low := strings.ToLower(line)
	if n < maxKeywordLineChars && noisePattern.MatchString(low) {
		return true
	}
	if n < minLineChars {
		// Short sentences survive; menu items and crumbs do not.
		return !strings.HasSuffix(line, ".") && !strings.HasSuffix(line, "?") && !strings.HasSuffix(line, "!")
	}

	if strings.Count(low, "|") >= 3 || strings.Count(low, "•") >= 3 {
		return true
	}

	var letters, upper int
	for _, r := range line {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	if letters > 0 && float64(upper)/float64(letters) > upperRatio && n < maxUpperLineChars {
		return true
	}

	return false
}

// truncate cuts text to maxChars runes, backing up to the last
// paragraph or sentence break when one falls in the final 40 %.
func truncate(text string, maxChars int) string {
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}

	cut := string(runes[:maxChars])
	last := -1
	for _, sep := range []string{"\n\n", ". ", "! ", "? "} {
		if i := strings.LastIndex(cut, sep); i > last {
			last = i
		}
	}
	if last >= 0 {
		if pos := utf8.RuneCountInString(cut[:last]); float64(pos) > float64(maxChars)*minBreakFraction {
			cut = cut[:last+1]
		}
	}
	return strings.TrimSpace(cut) + TruncationMarker
}
