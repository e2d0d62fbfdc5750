package geo

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// Forecast length bounds, in days.
const (
	DefaultForecastDays = 3
	MaxForecastDays     = 16
)

// Weather is current conditions plus a daily forecast.
type Weather struct {
	Latitude  float64    `json:"latitude"`
	Longitude float64    `json:"longitude"`
	Timezone  string     `json:"timezone"`
	Current   Conditions `json:"current"`
	Daily     []Day      `json:"daily"`
}

// Conditions are the observations at one instant.
type Conditions struct {
	Time         string  `json:"time"`
	TemperatureC float64 `json:"temperature_c"`
	HumidityPct  float64 `json:"humidity_pct"`
	WindSpeedKmh float64 `json:"wind_speed_kmh"`
	WeatherCode  int     `json:"weather_code"`
	Description  string  `json:"description"`
}

// Day is one day of forecast.
type Day struct {
	Date            string  `json:"date"`
	MaxC            float64 `json:"max_c"`
	MinC            float64 `json:"min_c"`
	PrecipitationMM float64 `json:"precipitation_mm"`
	WeatherCode     int     `json:"weather_code"`
	Description     string  `json:"description"`
}

type openMeteoResponse struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timezone  string  `json:"timezone"`
	Current   struct {
		Time        string  `json:"time"`
		Temperature float64 `json:"temperature_2m"`
		Humidity    float64 `json:"relative_humidity_2m"`
		WindSpeed   float64 `json:"wind_speed_10m"`
		WeatherCode int     `json:"weather_code"`
	} `json:"current"`
	Daily struct {
		Time          []string  `json:"time"`
		Max           []float64 `json:"temperature_2m_max"`
		Min           []float64 `json:"temperature_2m_min"`
		Precipitation []float64 `json:"precipitation_sum"`
		WeatherCode   []int     `json:"weather_code"`
	} `json:"daily"`
}

// Weather returns conditions at latitude/longitude and a forecast of
// days days (clamped to [1, MaxForecastDays]; 0 means the default).
func (c *Client) Weather(ctx context.Context, latitude, longitude float64, days int) (Weather, error) {
	if latitude < -90 || latitude > 90 || longitude < -180 || longitude > 180 {
		return Weather{}, fmt.Errorf("get_weather: coordinates out of range (%g, %g)", latitude, longitude)
	}
	switch {
	case days <= 0:
		days = DefaultForecastDays
	case days > MaxForecastDays:
		days = MaxForecastDays
	}

	params := url.Values{
		"latitude":      {strconv.FormatFloat(latitude, 'f', -1, 64)},
		"longitude":     {strconv.FormatFloat(longitude, 'f', -1, 64)},
		"current":       {"temperature_2m,relative_humidity_2m,wind_speed_10m,weather_code"},
		"daily":         {"temperature_2m_max,temperature_2m_min,precipitation_sum,weather_code"},
		"timezone":      {"auto"},
		"forecast_days": {strconv.Itoa(days)},
	}

	var r openMeteoResponse
	if err := c.getJSON(ctx, "Weather lookup", c.weatherURL, params, &r); err != nil {
		return Weather{}, err
	}

	w := Weather{
		Latitude:  r.Latitude,
		Longitude: r.Longitude,
		Timezone:  r.Timezone,
		Current: Conditions{
			Time:         r.Current.Time,
			TemperatureC: r.Current.Temperature,
			HumidityPct:  r.Current.Humidity,
			WindSpeedKmh: r.Current.WindSpeed,
			WeatherCode:  r.Current.WeatherCode,
			Description:  Describe(r.Current.WeatherCode),
		},
		Daily: make([]Day, 0, len(r.Daily.Time)),
	}
	for i, date := range r.Daily.Time {
		d := Day{Date: date}
		d.MaxC = at(r.Daily.Max, i)
		d.MinC = at(r.Daily.Min, i)
		d.PrecipitationMM = at(r.Daily.Precipitation, i)
		if i < len(r.Daily.WeatherCode) {
			d.WeatherCode = r.Daily.WeatherCode[i]
		}
		d.Description = Describe(d.WeatherCode)
		w.Daily = append(w.Daily, d)
	}
	return w, nil
}

func at(s []float64, i int) float64 {
	if i < len(s) {
		return s[i]
	}
	return 0
}

// wmoCodes maps WMO weather interpretation codes to text.
var wmoCodes = map[int]string{
	0:  "clear sky",
	1:  "mainly clear",
	2:  "partly cloudy",
	3:  "overcast",
	45: "fog",
	48: "depositing rime fog",
	51: "light drizzle",
	53: "moderate drizzle",
	55: "dense drizzle",
	56: "light freezing drizzle",
	57: "dense freezing drizzle",
	61: "slight rain",
	63: "moderate rain",
	65: "heavy rain",
	66: "light freezing rain",
	67: "heavy freezing rain",
	71: "slight snow",
	73: "moderate snow",
	75: "heavy snow",
	77: "snow grains",
	80: "slight rain showers",
	81: "moderate rain showers",
	82: "violent rain showers",
	85: "slight snow showers",
	86: "heavy snow showers",
	95: "thunderstorm",
	96: "thunderstorm with slight hail",
	99: "thunderstorm with heavy hail",
}

// Describe returns the text for a WMO weather code.
func Describe(code int) string {
	if s, ok := wmoCodes[code]; ok {
		return s
	}
	return fmt.Sprintf("unknown (code %d)", code)
}
