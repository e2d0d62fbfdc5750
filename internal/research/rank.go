// Package research implements rank_search_results, which orders
// web_search results by relevance to a goal and by source quality so
// the agent scrapes the most promising pages first.
package research

import (
	"errors"
	"math"
	"net/url"
	"slices"
	"strings"
	"unicode"

	"github.com/samber/lo"
)

// top_k bounds.
const (
	DefaultTopK = 5
	MaxTopK     = 20
)

// Scoring weights.
const (
	titleWeight      = 3.0
	snippetWeight    = 2.0
	trustedTLDBoost  = 2.0
	trustedSiteBoost = 2.5
	lowQualityCost   = -2.0
	articlePathBoost = 0.3
)

var (
	trustedTLDs     = []string{".gov", ".edu"}
	trustedDomains  = []string{"weather.gov", "noaa.gov", "nws.noaa.gov", "cdc.gov", "who.int"}
	lowQualityHints = []string{"pinterest.", "facebook.", "instagram.", "tiktok.", "x.com", "twitter."}
	articlePaths    = []string{"/news", "/article", "/blog", "/press", "/alerts", "/advisory"}
)

// ErrNoResults is returned when there is nothing to rank.
var ErrNoResults = errors.New("results must be a non-empty list")

// Candidate is one web_search result.
type Candidate struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// Ranked is a scored candidate.
type Ranked struct {
	Rank          int     `json:"rank"`
	Score         float64 `json:"score"`
	Title         string  `json:"title"`
	URL           string  `json:"url"`
	Snippet       string  `json:"snippet"`
	Domain        string  `json:"domain"`
	OriginalIndex int     `json:"original_index"`
}

// Ranking is the result of Rank.
type Ranking struct {
	Goal        string   `json:"goal"`
	TopK        int      `json:"top_k"`
	TopURLs     []string `json:"top_urls"`
	Ranked      []Ranked `json:"ranked"`
	TotalScored int      `json:"total_scored"`
}

// ClampTopK maps k into [1, MaxTopK].
func ClampTopK(k int) int {
	return max(1, min(k, MaxTopK))
}

// Rank scores results against goal and returns the best topK. Entries
// without a URL are skipped. Ties keep their input order.
func Rank(results []Candidate, goal string, topK int, preferOfficial bool) (Ranking, error) {
	if len(results) == 0 {
		return Ranking{}, ErrNoResults
	}
	topK = ClampTopK(topK)
	goalTokens := tokenize(goal)

	scored := make([]Ranked, 0, len(results))
	for i, c := range results {
		u := strings.TrimSpace(c.URL)
		if u == "" {
			continue
		}
		title := strings.TrimSpace(c.Title)
		snippet := strings.TrimSpace(c.Snippet)
		dom := domain(u)

		score := titleWeight*overlap(goalTokens, title) + snippetWeight*overlap(goalTokens, snippet)
		if preferOfficial {
			score += tldBoost(dom) + siteBoost(dom)
		}
		score += lowQualityPenalty(dom)

		low := strings.ToLower(u)
		if lo.SomeBy(articlePaths, func(p string) bool { return strings.Contains(low, p) }) {
			score += articlePathBoost
		}

		scored = append(scored, Ranked{
			Score:         round4(score),
			Title:         title,
			URL:           u,
			Snippet:       snippet,
			Domain:        dom,
			OriginalIndex: i,
		})
	}

	slices.SortStableFunc(scored, func(a, b Ranked) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})
	for i := range scored {
		scored[i].Rank = i + 1
	}

	top := scored[:min(topK, len(scored))]
	return Ranking{
		Goal:        goal,
		TopK:        topK,
		TopURLs:     lo.Map(top, func(r Ranked, _ int) string { return r.URL }),
		Ranked:      top,
		TotalScored: len(scored),
	}, nil
}

// tokenize lowercases s, treats anything other than ASCII letters and
// digits as a separator, and keeps tokens of three or more characters.
func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)))
	})
	return lo.Filter(fields, func(t string, _ int) bool { return len(t) >= 3 })
}

// overlap is the fraction of goal tokens (with repeats) found in text.
func overlap(goal []string, text string) float64 {
	if len(goal) == 0 {
		return 0
	}
	hay := lo.SliceToMap(tokenize(text), func(t string) (string, struct{}) { return t, struct{}{} })
	n := lo.CountBy(goal, func(t string) bool {
		_, ok := hay[t]
		return ok
	})
	return float64(n) / float64(len(goal))
}

func domain(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}

func tldBoost(dom string) float64 {
	if lo.SomeBy(trustedTLDs, func(t string) bool { return strings.HasSuffix(dom, t) }) {
		return trustedTLDBoost
	}
	return 0
}

func siteBoost(dom string) float64 {
	if lo.SomeBy(trustedDomains, func(d string) bool { return strings.Contains(dom, d) }) {
		return trustedSiteBoost
	}
	return 0
}

func lowQualityPenalty(dom string) float64 {
	if lo.SomeBy(lowQualityHints, func(h string) bool { return strings.Contains(dom, h) }) {
		return lowQualityCost
	}
	return 0
}

func round4(f float64) float64 {
	return math.Round(f*10000) / 10000
}
