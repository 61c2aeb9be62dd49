// README: Reverse geocoding for lot info notices, backed by the Google Maps Geocoding API.
package maps

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"googlemaps.github.io/maps"
)

var ErrNoAddress = errors.New("no address found")

// Geocoder resolves lot coordinates to a street address. Results are cached
// per coordinate pair for the life of the process.
type Geocoder struct {
	client   *maps.Client
	language string

	mu    sync.Mutex
	cache map[[2]float64]string
}

// NewGeocoder returns nil, nil when apiKey is empty so callers can treat the
// geocoder as optional.
func NewGeocoder(apiKey string, opts ...maps.ClientOption) (*Geocoder, error) {
	if apiKey == "" {
		return nil, nil
	}
	client, err := maps.NewClient(append([]maps.ClientOption{maps.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &Geocoder{client: client, language: "zh-TW", cache: make(map[[2]float64]string)}, nil
}

func (g *Geocoder) Address(ctx context.Context, lat, lng float64) (string, error) {
	key := [2]float64{lat, lng}
	g.mu.Lock()
	if addr, ok := g.cache[key]; ok {
		g.mu.Unlock()
		return addr, nil
	}
	g.mu.Unlock()

	results, err := g.client.ReverseGeocode(ctx, &maps.GeocodingRequest{
		LatLng:   &maps.LatLng{Lat: lat, Lng: lng},
		Language: g.language,
	})
	if err != nil {
		return "", fmt.Errorf("geocoding api error: %w", err)
	}
	if len(results) == 0 || results[0].FormattedAddress == "" {
		return "", ErrNoAddress
	}

	addr := results[0].FormattedAddress
	g.mu.Lock()
	g.cache[key] = addr
	g.mu.Unlock()
	return addr, nil
}
