package sharedstate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/i474232898/weathersync/internal/store"
	"github.com/i474232898/weathersync/internal/weather"
)

// Flat keys written by the single-city format that predates KeyCities.
const (
	LegacyKeyCityName     = "cityName"
	LegacyKeyCountryCode  = "countryCode"
	LegacyKeyLatitude     = "latitude"
	LegacyKeyLongitude    = "longitude"
	LegacyKeyTimeZone     = "timeZone"
	LegacyKeyTemperatureF = "temperatureF"
	LegacyKeyLastUpdated  = "lastUpdated"
)

// errLegacyRead marks a backend failure while reading legacy keys, as opposed
// to legacy data that cannot be used.
var errLegacyRead = errors.New("legacy read failed")

type migration struct {
	mu   sync.Mutex
	done bool
}

// migrateLegacy synthesizes a primary city from the legacy keys when the
// canonical list has never been written. It runs its write at most once per
// process and is skipped for good once canonical data exists.
func (s *Store) migrateLegacy(ctx context.Context) {
	s.migration.mu.Lock()
	defer s.migration.mu.Unlock()

	if s.migration.done {
		return
	}

	_, err := s.kv.Get(ctx, KeyCities)
	switch {
	case err == nil:
		s.migration.done = true
		return
	case !errors.Is(err, store.ErrNotFound):
		// Backend trouble; try again on the next read.
		return
	}

	city, ok, err := s.readLegacyCity(ctx)
	if errors.Is(err, errLegacyRead) {
		s.logger.WarnContext(ctx, "Deferring legacy migration", slog.Any("error", err))
		return
	}
	if err != nil {
		s.logger.WarnContext(ctx, "Skipping legacy migration", slog.Any("error", err))
		s.migration.done = true
		return
	}
	if !ok {
		s.migration.done = true
		return
	}

	if !s.WriteCities(ctx, []weather.City{city}) {
		return
	}
	s.migration.done = true
	s.logger.InfoContext(ctx, "Migrated legacy city",
		slog.String("id", city.ID), slog.String("name", city.Name))
	s.ReloadDisplaySurface(ctx)
}

func (s *Store) readLegacyCity(ctx context.Context) (weather.City, bool, error) {
	name, ok, err := s.legacyString(ctx, LegacyKeyCityName)
	if err != nil || !ok || name == "" {
		return weather.City{}, false, err
	}

	lat, err := s.legacyFloat(ctx, LegacyKeyLatitude)
	if err != nil {
		return weather.City{}, false, err
	}
	lon, err := s.legacyFloat(ctx, LegacyKeyLongitude)
	if err != nil {
		return weather.City{}, false, err
	}
	if lat == nil || lon == nil || !(weather.Coordinate{Latitude: *lat, Longitude: *lon}).Valid() {
		return weather.City{}, false, fmt.Errorf("legacy city %q has no usable coordinate", name)
	}

	country, _, err := s.legacyString(ctx, LegacyKeyCountryCode)
	if err != nil {
		return weather.City{}, false, err
	}
	zone, _, err := s.legacyString(ctx, LegacyKeyTimeZone)
	if err != nil {
		return weather.City{}, false, err
	}
	temp, err := s.legacyFloat(ctx, LegacyKeyTemperatureF)
	if err != nil {
		return weather.City{}, false, err
	}

	city := weather.City{
		ID:           s.newID(),
		Name:         name,
		CountryCode:  country,
		Latitude:     *lat,
		Longitude:    *lon,
		TimeZoneID:   zone,
		TemperatureF: temp,
		IsPrimary:    true,
		SortOrder:    0,
	}

	// A temperature without a parseable timestamp is kept but left stale.
	raw, ok, err := s.legacyString(ctx, LegacyKeyLastUpdated)
	if err != nil {
		return weather.City{}, false, err
	}
	if ok && temp != nil {
		if ts, err := parseTime(raw); err == nil {
			city.LastUpdated = weather.Time(ts)
		}
	}

	return city, true, nil
}

func (s *Store) legacyString(ctx context.Context, key string) (string, bool, error) {
	b, err := s.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w: %s: %w", errLegacyRead, key, err)
	}
	return strings.TrimSpace(string(b)), true, nil
}

func (s *Store) legacyFloat(ctx context.Context, key string) (*float64, error) {
	raw, ok, err := s.legacyString(ctx, key)
	if err != nil || !ok || raw == "" {
		return nil, err
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("parse legacy %s: %w", key, err)
	}
	return &v, nil
}

// parseTime accepts either RFC3339 or Unix seconds.
func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts.UTC(), nil
	}
	if unix, err := strconv.ParseFloat(s, 64); err == nil {
		sec := int64(unix)
		return time.Unix(sec, int64((unix-float64(sec))*1e9)).UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339 or unix seconds")
}
