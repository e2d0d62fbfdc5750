package research

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRank(t *testing.T) {
	results := []Candidate{
		{Title: "Pinterest winter storm ideas", URL: "https://www.pinterest.com/pin/1", Snippet: "winter storm"},
		{Title: "Winter Storm Warning", URL: "https://forecast.weather.gov/alerts/wa", Snippet: "Winter storm warning for Seattle"},
		{Title: "No URL", URL: "  "},
		{Title: "Local blog", URL: "https://example.com/blog/snow", Snippet: "Seattle snow"},
	}

	got, err := Rank(results, "Seattle winter storm", 2, true)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}

	// goal tokens: seattle, winter, storm
	// weather.gov: title 2/3*3 + snippet 3/3*2 + .gov 2 + trusted 2.5 + /alerts 0.3 = 8.8
	// blog: title 0 + snippet 1/3*2 + /blog 0.3 = 0.9667
	// pinterest: title 2/3*3 + snippet 2/3*2 - 2 = 1.3333
	want := Ranking{
		Goal:    "Seattle winter storm",
		TopK:    2,
		TopURLs: []string{"https://forecast.weather.gov/alerts/wa", "https://www.pinterest.com/pin/1"},
		Ranked: []Ranked{
			{Rank: 1, Score: 8.8, Title: "Winter Storm Warning", URL: "https://forecast.weather.gov/alerts/wa",
				Snippet: "Winter storm warning for Seattle", Domain: "forecast.weather.gov", OriginalIndex: 1},
			{Rank: 2, Score: 1.3333, Title: "Pinterest winter storm ideas", URL: "https://www.pinterest.com/pin/1",
				Snippet: "winter storm", Domain: "www.pinterest.com", OriginalIndex: 0},
		},
		TotalScored: 3,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Rank mismatch (-want +got):\n%s", diff)
	}
}

func TestRank_PreferOfficialOff(t *testing.T) {
	results := []Candidate{
		{Title: "Snow report", URL: "https://www.noaa.gov/snow"},
		{Title: "Snow report", URL: "https://facebook.com/snow"},
		{Title: "Snow report", URL: "https://example.com/snow"},
	}

	got, err := Rank(results, "snow report", 5, false)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	// Without the official boost noaa ties the neutral site and keeps its
	// input position; the low-quality penalty still applies.
	wantOrder := []string{"https://www.noaa.gov/snow", "https://example.com/snow", "https://facebook.com/snow"}
	if diff := cmp.Diff(wantOrder, got.TopURLs); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
	if got.Ranked[0].Score != 3 || got.Ranked[2].Score != 1 {
		t.Errorf("scores = %v, %v", got.Ranked[0].Score, got.Ranked[2].Score)
	}
}

func TestRank_Errors(t *testing.T) {
	if _, err := Rank(nil, "goal", 5, true); !errors.Is(err, ErrNoResults) {
		t.Errorf("err = %v, want ErrNoResults", err)
	}
}

func TestRank_AllSkipped(t *testing.T) {
	got, err := Rank([]Candidate{{Title: "no url"}}, "goal", 5, true)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if got.TotalScored != 0 || len(got.TopURLs) != 0 || got.Ranked == nil {
		t.Errorf("ranking = %+v", got)
	}
}

func TestTokenize(t *testing.T) {
	got := tokenize("Road-closures: Yosemite, CA (I-5) naïve 2025!")
	want := []string{"road", "closures", "yosemite", "2025"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("tokenize mismatch (-want +got):\n%s", diff)
	}
}

func TestOverlap(t *testing.T) {
	if got := overlap(nil, "anything"); got != 0 {
		t.Errorf("overlap(nil) = %v", got)
	}
	if got := overlap([]string{"snow", "snow", "rain"}, "Snow today"); got != 2.0/3.0 {
		t.Errorf("overlap with repeats = %v", got)
	}
}

func TestClampTopK(t *testing.T) {
	for in, want := range map[int]int{-1: 1, 0: 1, 7: 7, 99: 20} {
		if got := ClampTopK(in); got != want {
			t.Errorf("ClampTopK(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestTool_Defaults(t *testing.T) {
	results := make([]Candidate, 8)
	for i := range results {
		results[i] = Candidate{Title: "x", URL: "https://example.com/" + string(rune('a'+i))}
	}
	got, err := Tool()(context.Background(), Input{Results: results, Goal: "x"})
	if err != nil {
		t.Fatalf("tool: %v", err)
	}
	if got.TopK != DefaultTopK || len(got.TopURLs) != DefaultTopK {
		t.Errorf("top_k = %d with %d urls, want %d", got.TopK, len(got.TopURLs), DefaultTopK)
	}
}
