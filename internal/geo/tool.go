package geo

import "context"

// Tool names and descriptions.
const (
	GeocodeToolName        = "geocode_location"
	GeocodeToolDescription = "Convert a place name (e.g. 'Seattle') into coordinates (latitude/longitude) using OpenStreetMap Nominatim."

	WeatherToolName        = "get_weather"
	WeatherToolDescription = "Current weather conditions and a daily forecast for a latitude/longitude, from Open-Meteo. Use geocode_location first to resolve a place name."
)

// GeocodeInput is the geocode_location argument object.
type GeocodeInput struct {
	Place string `json:"place"`
}

// WeatherInput is the get_weather argument object.
type WeatherInput struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Days      int     `json:"days,omitempty"`
}

// GeocodeTool returns the geocode_location handler.
func GeocodeTool(c *Client) func(ctx context.Context, in GeocodeInput) (Location, error) {
	return func(ctx context.Context, in GeocodeInput) (Location, error) {
		return c.Geocode(ctx, in.Place)
	}
}

// WeatherTool returns the get_weather handler.
func WeatherTool(c *Client) func(ctx context.Context, in WeatherInput) (Weather, error) {
	return func(ctx context.Context, in WeatherInput) (Weather, error) {
		return c.Weather(ctx, in.Latitude, in.Longitude, in.Days)
	}
}

// GeocodeToolDefinition returns the JSON Schema for geocode_location.
func GeocodeToolDefinition() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"place": map[string]any{
				"type":        "string",
				"description": "Place name, address, or landmark.",
				"minLength":   1,
			},
		},
		"required": []string{"place"},
	}
}

// WeatherToolDefinition returns the JSON Schema for get_weather.
func WeatherToolDefinition() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"latitude": map[string]any{
				"type":    "number",
				"minimum": -90,
				"maximum": 90,
			},
			"longitude": map[string]any{
				"type":    "number",
				"minimum": -180,
				"maximum": 180,
			},
			"days": map[string]any{
				"type":        "integer",
				"description": "Forecast length in days (1-16). Default: 3.",
				"minimum":     1,
				"maximum":     MaxForecastDays,
			},
		},
		"required": []string{"latitude", "longitude"},
	}
}
