package geocode

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kelvins/geocoder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weathersync/internal/weather"
)

var chandler = weather.Coordinate{Latitude: 33.3062, Longitude: -111.8413}

type zoneFunc func(ctx context.Context, at weather.Coordinate) (string, error)

func (f zoneFunc) TimeZone(ctx context.Context, at weather.Coordinate) (string, error) {
	return f(ctx, at)
}

func newTestGeocoder(reverse reverseFunc, zones weather.TimeZoneResolver) *GoogleGeocoder {
	g := NewGoogleGeocoder("key", zones, nil)
	g.reverse = reverse
	return g
}

func TestGoogleGeocoderResolvesPlace(t *testing.T) {
	g := newTestGeocoder(func(loc geocoder.Location) ([]geocoder.Address, error) {
		assert.Equal(t, chandler.Latitude, loc.Latitude)
		return []geocoder.Address{
			{State: "Arizona", Country: "United States"},
			{City: "Chandler", State: "Arizona", Country: "United States"},
		}, nil
	}, zoneFunc(func(context.Context, weather.Coordinate) (string, error) {
		return "America/Phoenix", nil
	}))

	place, err := g.ReverseGeocode(context.Background(), chandler)
	require.NoError(t, err)
	// The first address with any locality wins, even if only a state.
	assert.Equal(t, "Arizona", place.Name)
	assert.Equal(t, "United States", place.CountryCode)
	assert.Equal(t, "America/Phoenix", place.TimeZoneID)
}

func TestGoogleGeocoderPrefersCity(t *testing.T) {
	g := newTestGeocoder(func(geocoder.Location) ([]geocoder.Address, error) {
		return []geocoder.Address{{City: "Chandler", County: "Maricopa", Country: "United States"}}, nil
	}, nil)

	place, err := g.ReverseGeocode(context.Background(), chandler)
	require.NoError(t, err)
	assert.Equal(t, "Chandler", place.Name)
	assert.Empty(t, place.TimeZoneID)
}

func TestGoogleGeocoderZoneFailureIsNotFatal(t *testing.T) {
	g := newTestGeocoder(func(geocoder.Location) ([]geocoder.Address, error) {
		return []geocoder.Address{{City: "Chandler"}}, nil
	}, zoneFunc(func(context.Context, weather.Coordinate) (string, error) {
		return "", errors.New("zone service down")
	}))

	place, err := g.ReverseGeocode(context.Background(), chandler)
	require.NoError(t, err)
	assert.Equal(t, "Chandler", place.Name)
	assert.Empty(t, place.TimeZoneID)
}

func TestGoogleGeocoderErrors(t *testing.T) {
	_, err := NewGoogleGeocoder("", nil, nil).ReverseGeocode(context.Background(), chandler)
	assert.ErrorIs(t, err, ErrNotConfigured)

	g := newTestGeocoder(func(geocoder.Location) ([]geocoder.Address, error) {
		return nil, nil
	}, nil)
	_, err = g.ReverseGeocode(context.Background(), chandler)
	assert.ErrorIs(t, err, ErrNoResults)

	g = newTestGeocoder(func(geocoder.Location) ([]geocoder.Address, error) {
		return nil, errors.New("ZERO_RESULTS")
	}, nil)
	_, err = g.ReverseGeocode(context.Background(), chandler)
	assert.ErrorIs(t, err, ErrNoResults)

	g = newTestGeocoder(func(geocoder.Location) ([]geocoder.Address, error) {
		return nil, errors.New("OVER_QUERY_LIMIT")
	}, nil)
	_, err = g.ReverseGeocode(context.Background(), chandler)
	assert.ErrorContains(t, err, "OVER_QUERY_LIMIT")
}

func TestGoogleGeocoderHonoursContext(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	g := newTestGeocoder(func(geocoder.Location) ([]geocoder.Address, error) {
		<-block
		return nil, nil
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := g.ReverseGeocode(ctx, chandler)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type countingGeocoder struct {
	calls atomic.Int32
	err   error
}

func (c *countingGeocoder) ReverseGeocode(context.Context, weather.Coordinate) (weather.PlaceInfo, error) {
	c.calls.Add(1)
	if c.err != nil {
		return weather.PlaceInfo{}, c.err
	}
	return weather.PlaceInfo{Name: "Chandler"}, nil
}

func TestCachedGeocoderMemoizesNearbyLookups(t *testing.T) {
	next := &countingGeocoder{}
	c := NewCachedGeocoder(next, time.Minute)

	for _, at := range []weather.Coordinate{
		chandler,
		{Latitude: chandler.Latitude + 0.0001, Longitude: chandler.Longitude},
	} {
		place, err := c.ReverseGeocode(context.Background(), at)
		require.NoError(t, err)
		assert.Equal(t, "Chandler", place.Name)
	}
	assert.Equal(t, int32(1), next.calls.Load())

	_, err := c.ReverseGeocode(context.Background(), weather.Coordinate{Latitude: 40, Longitude: -74})
	require.NoError(t, err)
	assert.Equal(t, int32(2), next.calls.Load())
}

func TestCachedGeocoderDoesNotCacheFailures(t *testing.T) {
	next := &countingGeocoder{err: errors.New("down")}
	c := NewCachedGeocoder(next, time.Minute)

	_, err := c.ReverseGeocode(context.Background(), chandler)
	require.Error(t, err)
	_, err = c.ReverseGeocode(context.Background(), chandler)
	require.Error(t, err)
	assert.Equal(t, int32(2), next.calls.Load())
}

func TestZoneChain(t *testing.T) {
	failing := zoneFunc(func(context.Context, weather.Coordinate) (string, error) {
		return "", errors.New("nope")
	})
	ok := zoneFunc(func(context.Context, weather.Coordinate) (string, error) {
		return "America/Phoenix", nil
	})

	zone, err := ZoneChain{failing, ok}.TimeZone(context.Background(), chandler)
	require.NoError(t, err)
	assert.Equal(t, "America/Phoenix", zone)

	_, err = ZoneChain{failing}.TimeZone(context.Background(), chandler)
	assert.ErrorContains(t, err, "nope")

	_, err = ZoneChain{}.TimeZone(context.Background(), chandler)
	assert.Error(t, err)
}
