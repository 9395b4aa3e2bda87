// Package refresh resolves, fetches and commits city weather. The location
// change handler and the background job share this path, so the staleness
// policy lives in one place.
package refresh

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/i474232898/weathersync/internal/inflight"
	"github.com/i474232898/weathersync/internal/metrics"
	"github.com/i474232898/weathersync/internal/weather"
)

// Outcome describes what a refresh committed.
type Outcome string

const (
	// OutcomeUpdated means a fresh temperature was committed.
	OutcomeUpdated Outcome = "updated"
	// OutcomeStale means identity was committed but the fetch failed, so
	// the city carries the staleness sentinel.
	OutcomeStale Outcome = "stale"
	// OutcomeUnresolved means reverse geocoding failed and nothing but the
	// raw location was written.
	OutcomeUnresolved Outcome = "unresolved"
	// OutcomeCancelled means ctx ended before the fetch settled, so nothing
	// was committed.
	OutcomeCancelled Outcome = "cancelled"
)

// Committed reports whether the city list was written.
func (o Outcome) Committed() bool {
	return o == OutcomeUpdated || o == OutcomeStale
}

// Trigger paths, used as the metrics label.
const (
	PathLocation   = "location"
	PathSaved      = "saved"
	PathBackground = "background"
)

const defaultConcurrency = 4

// Cities is the part of the city collection a refresh writes through.
type Cities interface {
	Primary() (weather.City, bool)
	Saved() []weather.City
	UpdateCurrentLocation(ctx context.Context, c weather.City)
	UpdateWeather(ctx context.Context, id string, temperatureF float64)
	MarkStale(ctx context.Context, id string, at time.Time)
}

// LocationStore persists the raw last known location.
type LocationStore interface {
	SaveLocation(ctx context.Context, loc weather.SharedLocation)
}

// Options tunes a Service. Zero values pick defaults.
type Options struct {
	StaleThreshold time.Duration
	// Concurrency bounds parallel fetches in RefreshSaved.
	Concurrency int
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
	Now         func() time.Time
	NewID       func() string
}

// Service is the shared refresh path.
type Service struct {
	cities   Cities
	location LocationStore
	geocoder weather.ReverseGeocoder
	fetcher  weather.TemperatureFetcher
	flights  *inflight.Coordinator

	threshold   time.Duration
	concurrency int
	logger      *slog.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
	newID       func() string
	tracer      trace.Tracer
}

// New creates a Service. flights may be shared with other callers so that
// every path collapses onto the same in-flight fetches.
func New(
	cities Cities,
	location LocationStore,
	geocoder weather.ReverseGeocoder,
	fetcher weather.TemperatureFetcher,
	flights *inflight.Coordinator,
	opts Options,
) *Service {
	if opts.StaleThreshold <= 0 {
		opts.StaleThreshold = weather.DefaultStaleThreshold
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
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
	if flights == nil {
		flights = inflight.New(opts.Metrics, 0)
	}

	return &Service{
		cities:      cities,
		location:    location,
		geocoder:    geocoder,
		fetcher:     fetcher,
		flights:     flights,
		threshold:   opts.StaleThreshold,
		concurrency: opts.Concurrency,
		logger:      opts.Logger.With(slog.String("component", "refresh")),
		metrics:     opts.Metrics,
		now:         opts.Now,
		newID:       opts.NewID,
		tracer:      otel.Tracer("refresh"),
	}
}

// StaleThreshold returns the threshold the sentinel is computed from.
func (s *Service) StaleThreshold() time.Duration {
	return s.threshold
}

// fetch runs a deduplicated temperature fetch for the city id.
func (s *Service) fetch(ctx context.Context, cityID string, at weather.Coordinate) (float64, bool) {
	return s.flights.Fetch(ctx, cityID, func(ctx context.Context) (float64, bool) {
		ctx, span := s.tracer.Start(ctx, "refresh.fetch",
			trace.WithAttributes(attribute.String("city.id", cityID)))
		defer span.End()

		f, err := s.fetcher.FetchTemperatureF(ctx, at)
		if err != nil {
			span.RecordError(err)
			s.logger.WarnContext(ctx, "Temperature fetch failed",
				slog.String("city_id", cityID), slog.Any("error", err))
			return 0, false
		}
		return f, true
	})
}
