// Package geo implements the location tools: geocode_location, which
// resolves a place name through OpenStreetMap Nominatim, and
// get_weather, which reads current conditions and a daily forecast
// from Open-Meteo. Neither service needs an API key.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nugget/briefer/internal/httpkit"
)

// Public endpoints.
const (
	DefaultGeocodeURL = "https://nominatim.openstreetmap.org/search"
	DefaultWeatherURL = "https://api.open-meteo.com/v1/forecast"
)

// Client talks to the geocoding and weather services.
type Client struct {
	geocodeURL string
	weatherURL string
	http       *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithGeocodeURL overrides the Nominatim search endpoint.
func WithGeocodeURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.geocodeURL = u
		}
	}
}

// WithWeatherURL overrides the Open-Meteo forecast endpoint.
func WithWeatherURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.weatherURL = u
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New creates a Client. Nominatim's usage policy requires an
// identifying User-Agent, which httpkit supplies.
func New(opts ...Option) *Client {
	c := &Client{
		geocodeURL: DefaultGeocodeURL,
		weatherURL: DefaultWeatherURL,
		http:       httpkit.NewClient(httpkit.WithTimeout(20 * time.Second)),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// getJSON issues a GET to base?params and decodes the JSON body into v.
func (c *Client) getJSON(ctx context.Context, service, base string, params url.Values, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", service, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: request failed: %w", service, err)
	}
	if resp.StatusCode != http.StatusOK {
		body := httpkit.ReadErrorBody(resp.Body, 256)
		return fmt.Errorf("%s failed: HTTP %d: %s", service, resp.StatusCode, strings.TrimSpace(body))
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("%s: decode response: %w", service, err)
	}
	return nil
}
