// Package geocode resolves free-text place names to coordinates through a
// Nominatim-compatible search endpoint.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/example/ride-booking/internal/cache"
	"github.com/example/ride-booking/internal/models"
	"github.com/example/ride-booking/internal/observability"
)

// ErrNotFound covers every reason a place could not be resolved.
var ErrNotFound = errors.New("could not find location")

type Geocoder interface {
	Resolve(ctx context.Context, place string) (models.Coord, error)
}

// NominatimClient performs search lookups against a Nominatim HTTP server.
type NominatimClient struct {
	Endpoint  string
	Country   string
	UserAgent string
	Client    *http.Client
	Logger    *slog.Logger
}

func NewNominatimClient(endpoint, country string, logger *slog.Logger) *NominatimClient {
	// callers bound lookups through ctx
	return &NominatimClient{Endpoint: strings.TrimRight(endpoint, "/"), Country: country, UserAgent: "ride-booking/1.0", Client: &http.Client{}, Logger: logger}
}

// Query builds the qualified search text for place.
func Query(place, country string) string {
	place = strings.TrimSpace(place)
	country = strings.TrimSpace(country)
	if country == "" {
		return place
	}
	return place + ", " + country
}

type searchResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Resolve returns the first match for place. Network errors, bad responses
// and empty result sets all map to ErrNotFound.
func (n *NominatimClient) Resolve(ctx context.Context, place string) (models.Coord, error) {
	if strings.TrimSpace(place) == "" {
		return models.Coord{}, ErrNotFound
	}
	params := url.Values{}
	params.Set("format", "json")
	params.Set("q", Query(place, n.Country))
	params.Set("limit", "1")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.Endpoint+"/search?"+params.Encode(), nil)
	if err != nil {
		return models.Coord{}, n.fail(place, err)
	}
	// Nominatim's usage policy rejects requests without an identifying agent
	req.Header.Set("User-Agent", n.UserAgent)
	resp, err := n.Client.Do(req)
	if err != nil {
		return models.Coord{}, n.fail(place, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return models.Coord{}, n.fail(place, fmt.Errorf("geocoder returned status %d", resp.StatusCode))
	}
	var out []searchResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return models.Coord{}, n.fail(place, err)
	}
	if len(out) == 0 {
		observability.GeocodeRequests.WithLabelValues("miss").Inc()
		return models.Coord{}, ErrNotFound
	}
	lat, errLat := strconv.ParseFloat(out[0].Lat, 64)
	lon, errLon := strconv.ParseFloat(out[0].Lon, 64)
	c := models.Coord{Lat: lat, Lon: lon}
	if errLat != nil || errLon != nil || !c.Valid() {
		return models.Coord{}, n.fail(place, fmt.Errorf("bad coordinates %q,%q", out[0].Lat, out[0].Lon))
	}
	observability.GeocodeRequests.WithLabelValues("hit").Inc()
	return c, nil
}

func (n *NominatimClient) fail(place string, err error) error {
	observability.GeocodeRequests.WithLabelValues("error").Inc()
	if n.Logger != nil {
		n.Logger.Warn("geocode failed", "place", place, "error", err)
	}
	return fmt.Errorf("%w: %v", ErrNotFound, err)
}

// Cached memoizes successful lookups. Misses are never stored so a typo
// fixed upstream resolves on the next try.
type Cached struct {
	Next  Geocoder
	Cache cache.Cache
}

func (c *Cached) Resolve(ctx context.Context, place string) (models.Coord, error) {
	key := "geocode:" + strings.ToLower(strings.Join(strings.Fields(place), " "))
	if b, ok := c.Cache.Get(ctx, key); ok {
		var coord models.Coord
		if err := json.Unmarshal(b, &coord); err == nil {
			return coord, nil
		}
	}
	coord, err := c.Next.Resolve(ctx, place)
	if err != nil {
		return coord, err
	}
	if b, err := json.Marshal(coord); err == nil {
		c.Cache.Set(ctx, key, b)
	}
	return coord, nil
}
