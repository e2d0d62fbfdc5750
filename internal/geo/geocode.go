package geo

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Location is a resolved place.
type Location struct {
	Place       string  `json:"place"`
	DisplayName string  `json:"display_name"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
}

type nominatimPlace struct {
	DisplayName string `json:"display_name"`
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
}

// Geocode resolves place to coordinates using the best Nominatim match.
func (c *Client) Geocode(ctx context.Context, place string) (Location, error) {
	place = strings.TrimSpace(place)
	if place == "" {
		return Location{}, fmt.Errorf("geocode_location: place is required")
	}

	params := url.Values{
		"q":      {place},
		"format": {"json"},
		"limit":  {"1"},
	}
	var found []nominatimPlace
	if err := c.getJSON(ctx, "Geocoding", c.geocodeURL, params, &found); err != nil {
		return Location{}, err
	}
	if len(found) == 0 {
		return Location{}, fmt.Errorf("no results found for %q", place)
	}

	lat, err := strconv.ParseFloat(found[0].Lat, 64)
	if err != nil {
		return Location{}, fmt.Errorf("geocoding: bad latitude %q", found[0].Lat)
	}
	lon, err := strconv.ParseFloat(found[0].Lon, 64)
	if err != nil {
		return Location{}, fmt.Errorf("geocoding: bad longitude %q", found[0].Lon)
	}

	return Location{
		Place:       place,
		DisplayName: found[0].DisplayName,
		Latitude:    lat,
		Longitude:   lon,
	}, nil
}
