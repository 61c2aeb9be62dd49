package maps

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"googlemaps.github.io/maps"
)

func newTestGeocoder(t *testing.T, body string) (*Geocoder, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		assert.Equal(t, "25.0173,121.5375", r.URL.Query().Get("latlng"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	g, err := NewGeocoder("test-key", maps.WithBaseURL(srv.URL))
	require.NoError(t, err)
	return g, &hits
}

func TestNewGeocoderWithoutKey(t *testing.T) {
	g, err := NewGeocoder("")
	require.NoError(t, err)
	assert.Nil(t, g)
}

func TestAddressCachesResult(t *testing.T) {
	g, hits := newTestGeocoder(t, `{"status":"OK","results":[{"formatted_address":"No. 1, Roosevelt Rd, Taipei"}]}`)

	addr, err := g.Address(context.Background(), 25.0173, 121.5375)
	require.NoError(t, err)
	assert.Equal(t, "No. 1, Roosevelt Rd, Taipei", addr)

	_, err = g.Address(context.Background(), 25.0173, 121.5375)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))
}

func TestAddressZeroResults(t *testing.T) {
	g, _ := newTestGeocoder(t, `{"status":"ZERO_RESULTS","results":[]}`)
	_, err := g.Address(context.Background(), 25.0173, 121.5375)
	assert.Error(t, err)
}
