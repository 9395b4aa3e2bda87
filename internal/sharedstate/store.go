// Package sharedstate owns the cross-process copy of the city list and the
// last known location. It is the only writer of the shared KV; the display
// surface only reads it.
//
// Persistence is best effort: storage and serialization failures are logged
// and the write is dropped. Callers never see an error.
package sharedstate

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/google/uuid"

	"github.com/i474232898/weathersync/internal/metrics"
	"github.com/i474232898/weathersync/internal/store"
	"github.com/i474232898/weathersync/internal/surface"
	"github.com/i474232898/weathersync/internal/weather"
)

// Keys in the shared KV.
const (
	KeyCities   = "cities"
	KeyLocation = "location"
)

// DefaultReloadInterval is the minimum spacing between throttled repaints.
const DefaultReloadInterval = 5 * time.Second

var tracer = otel.Tracer("sharedstate")

// Options tunes a Store. Zero values pick defaults.
type Options struct {
	ReloadInterval time.Duration
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
	Now            func() time.Time
	NewID          func() string
}

// Store is the shared state store.
type Store struct {
	kv       store.KV
	reloader surface.Reloader
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
	newID    func() string

	// gate drops repaint requests that arrive within one interval of the
	// last one; it never queues them.
	gate *rate.Limiter

	migration migration
}

// New creates a Store over kv that signals repaints through reloader.
func New(kv store.KV, reloader surface.Reloader, opts Options) *Store {
	if opts.ReloadInterval <= 0 {
		opts.ReloadInterval = DefaultReloadInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if reloader == nil {
		reloader = surface.LogReloader{Logger: opts.Logger}
	}

	return &Store{
		kv:       kv,
		reloader: reloader,
		logger:   opts.Logger.With(slog.String("component", "sharedstate")),
		metrics:  opts.Metrics,
		now:      opts.Now,
		newID:    opts.NewID,
		gate:     rate.NewLimiter(rate.Every(opts.ReloadInterval), 1),
	}
}

// Cities returns the persisted cities ordered by SortOrder. Missing or
// corrupt data yields an empty list.
func (s *Store) Cities(ctx context.Context) []weather.City {
	s.migrateLegacy(ctx)
	return s.readCities(ctx)
}

// PrimaryCity returns the first city, which is the primary one when present.
func (s *Store) PrimaryCity(ctx context.Context) (weather.City, bool) {
	cities := s.Cities(ctx)
	if len(cities) == 0 {
		return weather.City{}, false
	}
	return cities[0], true
}

// Location returns the last known location if one is stored and valid.
func (s *Store) Location(ctx context.Context) (weather.SharedLocation, bool) {
	b, err := s.kv.Get(ctx, KeyLocation)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.WarnContext(ctx, "Failed to read shared location", slog.Any("error", err))
			s.metrics.StoreFailure("read")
		}
		return weather.SharedLocation{}, false
	}

	loc, err := decodeLocation(b)
	if err != nil {
		s.logger.WarnContext(ctx, "Discarding corrupt shared location", slog.Any("error", err))
		s.metrics.StoreFailure("decode")
		return weather.SharedLocation{}, false
	}
	if !loc.Valid() {
		return weather.SharedLocation{}, false
	}
	return loc, true
}

// SaveCities writes the full list and requests a throttled repaint.
func (s *Store) SaveCities(ctx context.Context, cities []weather.City) {
	if s.WriteCities(ctx, cities) {
		s.ReloadDisplaySurface(ctx)
	}
}

// WriteCities writes the full list without any repaint. It reports whether
// the write reached the backend.
func (s *Store) WriteCities(ctx context.Context, cities []weather.City) bool {
	b, err := encodeCities(cities)
	if err != nil {
		s.logger.ErrorContext(ctx, "Dropping city list write", slog.Any("error", err))
		s.metrics.StoreFailure("encode")
		return false
	}
	return s.put(ctx, KeyCities, b, attribute.Int("cities.count", len(cities)))
}

// UpdatePrimaryTemperature rewrites only the first city's temperature and
// timestamp. It does not repaint; the caller decides.
func (s *Store) UpdatePrimaryTemperature(ctx context.Context, temperatureF float64) {
	cities := s.readCities(ctx)
	if len(cities) == 0 {
		s.logger.DebugContext(ctx, "No primary city to update temperature for")
		return
	}
	cities[0].TemperatureF = weather.Float(temperatureF)
	cities[0].LastUpdated = weather.Time(s.now().UTC())
	s.WriteCities(ctx, cities)
}

// SaveLocation writes the last known location. It is independent of the city list.
func (s *Store) SaveLocation(ctx context.Context, loc weather.SharedLocation) {
	loc.Timestamp = loc.Timestamp.UTC()
	b, err := encodeLocation(loc)
	if err != nil {
		s.logger.ErrorContext(ctx, "Dropping location write", slog.Any("error", err))
		s.metrics.StoreFailure("encode")
		return
	}
	s.put(ctx, KeyLocation, b)
}

// ReloadDisplaySurface requests a repaint unless one was sent within the
// reload interval. It reports whether the request went out.
func (s *Store) ReloadDisplaySurface(ctx context.Context) bool {
	if !s.gate.AllowN(s.now(), 1) {
		s.metrics.Reload(metrics.ReloadThrottled)
		return false
	}
	return s.reload(ctx, metrics.ReloadSent)
}

// ForceReload requests a repaint regardless of the throttle.
func (s *Store) ForceReload(ctx context.Context) {
	s.reload(ctx, metrics.ReloadForced)
}

func (s *Store) reload(ctx context.Context, result string) bool {
	if err := s.reloader.Reload(ctx); err != nil {
		s.logger.WarnContext(ctx, "Display surface reload failed", slog.Any("error", err))
		s.metrics.Reload(metrics.ReloadFailed)
		return false
	}
	s.metrics.Reload(result)
	return true
}

func (s *Store) readCities(ctx context.Context) []weather.City {
	b, err := s.kv.Get(ctx, KeyCities)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.WarnContext(ctx, "Failed to read shared cities", slog.Any("error", err))
			s.metrics.StoreFailure("read")
		}
		return []weather.City{}
	}

	cities, err := decodeCities(b)
	if err != nil {
		s.logger.WarnContext(ctx, "Discarding corrupt shared cities", slog.Any("error", err))
		s.metrics.StoreFailure("decode")
		return []weather.City{}
	}
	return cities
}

func (s *Store) put(ctx context.Context, key string, value []byte, attrs ...attribute.KeyValue) bool {
	ctx, span := tracer.Start(ctx, "sharedstate.put",
		trace.WithAttributes(append(attrs, attribute.String("key", key))...))
	defer span.End()

	if err := s.kv.Put(ctx, key, value); err != nil {
		s.logger.ErrorContext(ctx, "Dropping shared state write",
			slog.String("key", key), slog.Any("error", err))
		s.metrics.StoreFailure("write")
		span.RecordError(err)
		span.SetStatus(codes.Error, "write dropped")
		return false
	}
	return true
}
