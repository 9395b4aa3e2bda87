// Package geocode resolves city identity for a coordinate.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/kelvins/geocoder"

	"github.com/i474232898/weathersync/internal/common"
	"github.com/i474232898/weathersync/internal/weather"
)

var (
	// ErrNotConfigured is returned when no geocoding API key is set.
	ErrNotConfigured = errors.New("geocode: api key is not configured")
	// ErrNoResults is returned when the provider knows no place at the coordinate.
	ErrNoResults = errors.New("geocode: no results")
)

// geocoder keeps its key in a package variable.
var apiKeyMu sync.Mutex

type reverseFunc func(geocoder.Location) ([]geocoder.Address, error)

// GoogleGeocoder reverse geocodes through the Google Geocoding API and asks
// a TimeZoneResolver for the zone, which that API does not return.
type GoogleGeocoder struct {
	apiKey  string
	reverse reverseFunc
	zones   weather.TimeZoneResolver
	logger  *slog.Logger
}

// NewGoogleGeocoder creates a geocoder. zones may be nil, in which case
// PlaceInfo.TimeZoneID is left empty.
func NewGoogleGeocoder(apiKey string, zones weather.TimeZoneResolver, logger *slog.Logger) *GoogleGeocoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &GoogleGeocoder{
		apiKey: apiKey,
		reverse: func(loc geocoder.Location) ([]geocoder.Address, error) {
			apiKeyMu.Lock()
			defer apiKeyMu.Unlock()
			geocoder.ApiKey = apiKey
			return geocoder.GeocodingReverse(loc)
		},
		zones:  zones,
		logger: logger.With(slog.String("component", "geocode")),
	}
}

func (g *GoogleGeocoder) ReverseGeocode(ctx context.Context, at weather.Coordinate) (weather.PlaceInfo, error) {
	if g.apiKey == "" {
		return weather.PlaceInfo{}, ErrNotConfigured
	}

	type result struct {
		addrs []geocoder.Address
		err   error
	}
	// The client takes no context, so the call is raced against ctx.
	done := make(chan result, 1)
	go func() {
		addrs, err := g.reverse(geocoder.Location{Latitude: at.Latitude, Longitude: at.Longitude})
		done <- result{addrs: addrs, err: err}
	}()

	var res result
	select {
	case <-ctx.Done():
		return weather.PlaceInfo{}, ctx.Err()
	case res = <-done:
	}
	if res.err != nil {
		if common.ErrorHasAny(res.err, "ZERO_RESULTS") {
			return weather.PlaceInfo{}, ErrNoResults
		}
		return weather.PlaceInfo{}, fmt.Errorf("geocode: reverse %.4f,%.4f: %w", at.Latitude, at.Longitude, res.err)
	}

	place, ok := placeFromAddresses(res.addrs)
	if !ok {
		return weather.PlaceInfo{}, ErrNoResults
	}

	if g.zones != nil {
		zone, err := g.zones.TimeZone(ctx, at)
		if err != nil {
			g.logger.WarnContext(ctx, "Time zone lookup failed", slog.Any("error", err))
		}
		place.TimeZoneID = zone
	}
	return place, nil
}

// placeFromAddresses picks the most specific locality name available.
func placeFromAddresses(addrs []geocoder.Address) (weather.PlaceInfo, bool) {
	for _, a := range addrs {
		name := firstNonEmpty(a.City, a.District, a.County, a.State)
		if name == "" {
			continue
		}
		return weather.PlaceInfo{
			Name:        name,
			CountryCode: strings.TrimSpace(a.Country),
		}, true
	}
	return weather.PlaceInfo{}, false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
