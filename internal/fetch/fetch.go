// Package fetch implements the web_scrape tool: it downloads a page
// and reduces it to readable text, dropping navigation, scripts, and
// other boilerplate.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/nugget/briefer/internal/httpkit"
)

// Defaults.
const (
	DefaultTimeout        = 30 * time.Second
	DefaultMaxBytes int64 = 5 * 1024 * 1024
	DefaultMaxChars       = 20000
)

// Result holds the fetched and extracted content from a URL.
type Result struct {
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Content     string `json:"content"`
	ContentType string `json:"content_type,omitempty"`
	Truncated   bool   `json:"truncated"`
	Length      int    `json:"length"`
	StatusCode  int    `json:"status_code"`
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithMaxChars sets the default character limit for extracted text.
func WithMaxChars(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxChars = n
		}
	}
}

// WithUserAgent overrides the User-Agent sent with every request.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) { f.userAgent = ua }
}

// Fetcher downloads and extracts readable content from web pages.
type Fetcher struct {
	client    *http.Client
	maxBytes  int64
	maxChars  int
	userAgent string
}

// New creates a Fetcher.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{maxBytes: DefaultMaxBytes, maxChars: DefaultMaxChars}
	for _, o := range opts {
		o(f)
	}
	f.client = httpkit.NewClient(
		httpkit.WithTimeout(DefaultTimeout),
		httpkit.WithUserAgent(f.userAgent),
	)
	return f
}

// Fetch downloads rawURL and extracts its readable text. maxChars
// limits the output length; 0 uses the fetcher's default. A scheme-less
// URL is fetched over https. Responses with status 400 and above are
// errors.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, maxChars int) (*Result, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, fmt.Errorf("web_scrape: url is required")
	}
	if !strings.Contains(rawURL, "://") {
		rawURL = "https://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("web_scrape: invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("web_scrape: unsupported scheme %q", u.Scheme)
	}

	if maxChars <= 0 {
		maxChars = f.maxChars
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("web_scrape: invalid url: %w", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,text/plain;q=0.8,*/*;q=0.7")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("web_scrape: request failed: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		body := httpkit.ReadErrorBody(resp.Body, 256)
		return nil, fmt.Errorf("web_scrape: HTTP %d from %s: %s", resp.StatusCode, u.Host, strings.TrimSpace(body))
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("web_scrape: failed to read response: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	res := &Result{
		URL:         resp.Request.URL.String(),
		ContentType: contentType,
		StatusCode:  resp.StatusCode,
	}

	switch {
	case isHTML(contentType):
		p := extractHTML(string(body))
		res.Title, res.Description, res.Content = p.title, p.description, p.text
	case isPlainText(contentType), utf8.Valid(body):
		res.Content = string(body)
	default:
		res.Content = fmt.Sprintf("Binary content (%s), %d bytes", contentType, len(body))
		res.Length = len(body)
		return res, nil
	}

	if utf8.RuneCountInString(res.Content) > maxChars {
		res.Content = truncateUTF8(res.Content, maxChars)
		res.Truncated = true
	}
	res.Length = utf8.RuneCountInString(res.Content)
	return res, nil
}

func isHTML(ct string) bool {
	ct = strings.ToLower(ct)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml")
}

func isPlainText(ct string) bool {
	return strings.Contains(strings.ToLower(ct), "text/plain")
}

// truncateUTF8 returns the first maxChars runes of s.
func truncateUTF8(s string, maxChars int) string {
	count := 0
	for i := range s {
		if count >= maxChars {
			return s[:i]
		}
		count++
	}
	return s
}
