package geo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestGeocode(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("q") != "Seattle" || q.Get("format") != "json" || q.Get("limit") != "1" {
			t.Errorf("query = %v", q)
		}
		if ua := r.Header.Get("User-Agent"); !strings.HasPrefix(ua, "briefer/") {
			t.Errorf("User-Agent = %q", ua)
		}
		w.Write([]byte(`[{"display_name":"Seattle, King County, Washington, United States","lat":"47.6038321","lon":"-122.330062"}]`))
	}))
	defer ts.Close()

	got, err := New(WithGeocodeURL(ts.URL)).Geocode(context.Background(), " Seattle ")
	if err != nil {
		t.Fatalf("Geocode: %v", err)
	}
	want := Location{
		Place:       "Seattle",
		DisplayName: "Seattle, King County, Washington, United States",
		Latitude:    47.6038321,
		Longitude:   -122.330062,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Geocode mismatch (-want +got):\n%s", diff)
	}
}

func TestGeocode_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		place   string
		wantErr string
	}{
		{name: "no results", status: 200, body: `[]`, place: "Atlantis", wantErr: `no results found for "Atlantis"`},
		{name: "http error", status: 503, body: "busy", place: "Paris", wantErr: "Geocoding failed: HTTP 503"},
		{name: "bad lat", status: 200, body: `[{"lat":"north","lon":"1"}]`, place: "X", wantErr: "bad latitude"},
		{name: "empty place", place: "  ", wantErr: "place is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer ts.Close()

			_, err := New(WithGeocodeURL(ts.URL)).Geocode(context.Background(), tt.place)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestWeather(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("latitude") != "47.6" || q.Get("longitude") != "-122.33" || q.Get("forecast_days") != "2" {
			t.Errorf("query = %v", q)
		}
		w.Write([]byte(`{
			"latitude": 47.6, "longitude": -122.33, "timezone": "America/Los_Angeles",
			"current": {"time": "2025-06-15T12:00", "temperature_2m": 18.5, "relative_humidity_2m": 60,
			            "wind_speed_10m": 11.2, "weather_code": 2},
			"daily": {"time": ["2025-06-15", "2025-06-16"],
			          "temperature_2m_max": [21.0, 19.4], "temperature_2m_min": [12.1, 11.0],
			          "precipitation_sum": [0, 3.2], "weather_code": [2, 61]}
		}`))
	}))
	defer ts.Close()

	got, err := New(WithWeatherURL(ts.URL)).Weather(context.Background(), 47.6, -122.33, 2)
	if err != nil {
		t.Fatalf("Weather: %v", err)
	}
	want := Weather{
		Latitude:  47.6,
		Longitude: -122.33,
		Timezone:  "America/Los_Angeles",
		Current: Conditions{
			Time: "2025-06-15T12:00", TemperatureC: 18.5, HumidityPct: 60,
			WindSpeedKmh: 11.2, WeatherCode: 2, Description: "partly cloudy",
		},
		Daily: []Day{
			{Date: "2025-06-15", MaxC: 21.0, MinC: 12.1, PrecipitationMM: 0, WeatherCode: 2, Description: "partly cloudy"},
			{Date: "2025-06-16", MaxC: 19.4, MinC: 11.0, PrecipitationMM: 3.2, WeatherCode: 61, Description: "slight rain"},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Weather mismatch (-want +got):\n%s", diff)
	}
}

func TestWeather_DaysClamped(t *testing.T) {
	var gotDays []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotDays = append(gotDays, r.URL.Query().Get("forecast_days"))
		w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	c := New(WithWeatherURL(ts.URL))
	for _, days := range []int{0, 40} {
		w, err := c.Weather(context.Background(), 0, 0, days)
		if err != nil {
			t.Fatalf("Weather: %v", err)
		}
		if w.Daily == nil {
			t.Error("Daily must encode as [] not null")
		}
	}
	if diff := cmp.Diff([]string{"3", "16"}, gotDays); diff != "" {
		t.Errorf("forecast_days mismatch (-want +got):\n%s", diff)
	}
}

func TestWeather_BadCoordinates(t *testing.T) {
	if _, err := New().Weather(context.Background(), 91, 0, 1); err == nil {
		t.Error("expected error for latitude 91")
	}
}

func TestDescribe(t *testing.T) {
	if got := Describe(95); got != "thunderstorm" {
		t.Errorf("Describe(95) = %q", got)
	}
	if got := Describe(42); got != "unknown (code 42)" {
		t.Errorf("Describe(42) = %q", got)
	}
}
