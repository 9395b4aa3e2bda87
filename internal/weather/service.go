package weather

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

var (
	// ErrNoProviders is returned when the service has nothing to fetch from.
	ErrNoProviders = errors.New("no weather providers configured")
	// ErrNoReadings is returned when every provider failed.
	ErrNoReadings = errors.New("no successful provider readings")
)

// Service fans a temperature request out to every configured provider and
// averages the readings that succeed. It satisfies TemperatureFetcher.
type Service struct {
	providers []Provider
	logger    *slog.Logger
}

// NewService creates a new Service.
func NewService(providers []Provider, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		providers: providers,
		logger:    logger.With(slog.String("component", "weather")),
	}
}

// Providers returns the names of the configured providers, sorted.
func (s *Service) Providers() []string {
	names := make([]string, 0, len(s.providers))
	for _, p := range s.providers {
		names = append(names, p.Name())
	}
	sort.Strings(names)
	return names
}

// FetchTemperatureF fetches from all providers concurrently and returns the
// average of the successful readings. Partial failure is logged, not returned.
func (s *Service) FetchTemperatureF(ctx context.Context, at Coordinate) (float64, error) {
	if len(s.providers) == 0 {
		return 0, ErrNoProviders
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		readings []ProviderReading
		errs     []error
	)

	for _, p := range s.providers {
		wg.Add(1)
		go func() {
			defer wg.Done()

			r, err := p.Fetch(ctx, at)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.logger.WarnContext(ctx, "Provider fetch failed",
					slog.String("provider", p.Name()),
					slog.Float64("lat", at.Latitude),
					slog.Float64("lon", at.Longitude),
					slog.Any("error", err))
				errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
				return
			}
			readings = append(readings, r)
		}()
	}

	wg.Wait()

	agg, ok := AggregateReadings(readings)
	if !ok {
		return 0, fmt.Errorf("%w: %w", ErrNoReadings, errors.Join(errs...))
	}
	return agg.TemperatureF, nil
}
