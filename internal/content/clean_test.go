package content

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"
)

const article = "HOME | NEWS | SPORTS | WEATHER\r\n" +
	"Menu\r\n" +
	"Winter storm warning issued for the Cascades through Friday morning.\r\n" +
	"\r\n\r\n\r\n" +
	"Heavy snow is expected above 3000 feet, with totals of    one to two feet possible.\r\n" +
	"We use cookies to improve your experience.\r\n" +
	"Share this story\r\n" +
	"Stay safe.\r\n" +
	"BREAKING WEATHER ALERTS FOR THE REGION\r\n"

func TestClean_RemovesNoise(t *testing.T) {
	got, err := Clean(article, Options{KeepParagraphs: true, RemoveNoise: true})
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}

	want := "Winter storm warning issued for the Cascades through Friday morning.\n\n" +
		"Heavy snow is expected above 3000 feet, with totals of one to two feet possible.\n\n" +
		"Stay safe."
	if got.CleanText != want {
		t.Errorf("CleanText =\n%q\nwant\n%q", got.CleanText, want)
	}
	if got.Length != utf8.RuneCountInString(want) {
		t.Errorf("Length = %d", got.Length)
	}
	if !got.RemovedNoise || !got.KeptParagraphs || got.MaxChars != DefaultMaxChars {
		t.Errorf("flags = %+v", got)
	}
}

func TestClean_KeepNoise(t *testing.T) {
	got, err := Clean("Menu\r\n\r\n\r\n\r\nShare   this", Options{KeepParagraphs: true})
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}
	if got.CleanText != "Menu\n\nShare this" {
		t.Errorf("CleanText = %q", got.CleanText)
	}
}

func TestClean_SingleBlock(t *testing.T) {
	got, err := Clean("First paragraph is right here.\n\nSecond paragraph follows it.", Options{RemoveNoise: true})
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}
	if got.CleanText != "First paragraph is right here. Second paragraph follows it." {
		t.Errorf("CleanText = %q", got.CleanText)
	}
}

func TestClean_AllNoise(t *testing.T) {
	got, err := Clean("Home\nAbout\nContact", Options{RemoveNoise: true, KeepParagraphs: true})
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}
	if got.CleanText != "" || got.Length != 0 || got.Note == "" {
		t.Errorf("result = %+v, want empty text with a note", got)
	}
}

func TestClean_Empty(t *testing.T) {
	if _, err := Clean(" \n\t ", Options{}); !errors.Is(err, ErrEmptyContent) {
		t.Errorf("err = %v, want ErrEmptyContent", err)
	}
}

func TestClean_Truncates(t *testing.T) {
	sentence := "This sentence is exactly fifty characters long ok. "
	text := strings.Repeat(sentence, 30) // 1530 chars

	got, err := Clean(text, Options{MaxChars: 500, KeepParagraphs: true})
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}
	if !strings.HasSuffix(got.CleanText, "ok."+TruncationMarker) {
		t.Errorf("should cut at a sentence break: %q", got.CleanText[len(got.CleanText)-40:])
	}
	if got.Length > 500+utf8.RuneCountInString(TruncationMarker) {
		t.Errorf("Length = %d exceeds limit", got.Length)
	}
}

func TestClean_DropsShortCallToAction(t *testing.T) {
	got, err := Clean("Subscribe now!\nThis is a real sentence about weather patterns today.",
		Options{RemoveNoise: true, KeepParagraphs: true})
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}
	if got.CleanText != "This is a real sentence about weather patterns today." {
		t.Errorf("CleanText = %q", got.CleanText)
	}
}

// Cleaning already-cleaned text must not change it.
func TestClean_Idempotent(t *testing.T) {
	long := strings.Repeat("This sentence is exactly fifty characters long ok. ", 30)

	tests := []struct {
		name string
		text string
		opts Options
	}{
		{name: "paragraphs", text: article, opts: Options{RemoveNoise: true, KeepParagraphs: true}},
		{name: "single block", text: "First paragraph is right here.\n\nSecond paragraph follows it.", opts: Options{RemoveNoise: true}},
		{name: "truncated", text: long, opts: Options{MaxChars: 500, RemoveNoise: true, KeepParagraphs: true}},
		{name: "truncated single block", text: long, opts: Options{MaxChars: 500, RemoveNoise: true}},
		{name: "truncated keep noise", text: long, opts: Options{MaxChars: 500, KeepParagraphs: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first, err := Clean(tt.text, tt.opts)
			if err != nil {
				t.Fatalf("first Clean: %v", err)
			}
			second, err := Clean(first.CleanText, tt.opts)
			if err != nil {
				t.Fatalf("second Clean: %v", err)
			}
			if second.CleanText != first.CleanText {
				t.Errorf("second pass changed text:\nfirst  %q\nsecond %q", first.CleanText, second.CleanText)
			}
			if second.Length != first.Length {
				t.Errorf("Length %d -> %d", first.Length, second.Length)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		text string
		max  int
		want string
	}{
		{name: "short", text: "abc", max: 10, want: "abc"},
		{name: "no break", text: strings.Repeat("x", 20), max: 10, want: strings.Repeat("x", 10) + TruncationMarker},
		{name: "break too early", text: "Hi. " + strings.Repeat("y", 20), max: 10, want: "Hi. yyyyyy" + TruncationMarker},
		{name: "paragraph break", text: "aaaaaaaa\n\nbbbbbbbb", max: 12, want: "aaaaaaaa" + TruncationMarker},
		{name: "runes", text: strings.Repeat("é", 12), max: 10, want: strings.Repeat("é", 10) + TruncationMarker},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := truncate(tt.text, tt.max); got != tt.want {
				t.Errorf("truncate = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLooksLikeNoise(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{"Menu", true},
		{"It snowed.", false},
		{"Why?", false},
		{"Home | About | Blog | Contact us today", true},
		{"• one • two • three and some more text", true},
		{"ALL CAPS SECTION HEADER GOES HERE", true},
		{"Subscribe to our newsletter for daily updates", true},
		{"Forecasters said the storm would linger over the passes until late Friday evening.", false},
		{strings.Repeat("Long prose about sharing the road safely in winter conditions. ", 3), false},
		{"Subscribe now!", true},
		{"Share this.", true},

		// Length boundaries.
		{strings.Repeat("a", minLineChars-1), true},
		{strings.Repeat("a", minLineChars), false},
		{strings.Repeat("A", maxUpperLineChars-1), true},
		{strings.Repeat("A", maxUpperLineChars), false},
		{"newsletter " + strings.Repeat("x", maxKeywordLineChars-12), true},
		{"newsletter " + strings.Repeat("x", maxKeywordLineChars-11), false},
	}
	for _, tt := range tests {
		if got := looksLikeNoise(tt.line); got != tt.want {
			t.Errorf("looksLikeNoise(%q) = %v, want %v", tt.line, got, tt.want)
		}
	}
}

func TestClampMaxChars(t *testing.T) {
	for in, want := range map[int]int{0: 12000, 10: 500, 5000: 5000, 1_000_000: 200000} {
		if got := ClampMaxChars(in); got != want {
			t.Errorf("ClampMaxChars(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestTool_Defaults(t *testing.T) {
	off := false
	tool := Tool()

	got, err := tool(context.Background(), Input{Content: "Menu\nA sentence that is long enough to keep."})
	if err != nil {
		t.Fatalf("tool: %v", err)
	}
	if !got.RemovedNoise || !got.KeptParagraphs {
		t.Errorf("defaults should be true: %+v", got)
	}
	if got.CleanText != "A sentence that is long enough to keep." {
		t.Errorf("CleanText = %q", got.CleanText)
	}

	got, err = tool(context.Background(), Input{Content: "Menu", RemoveNoise: &off})
	if err != nil {
		t.Fatalf("tool: %v", err)
	}
	if got.CleanText != "Menu" {
		t.Errorf("remove_noise=false should keep text: %+v", got)
	}
}
