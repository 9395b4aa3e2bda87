package refresh

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/i474232898/weathersync/internal/weather"
)

const fallbackTimeZone = "UTC"

// HandleLocationChange records a raw coordinate and, when its city can be
// resolved, commits it as the primary city.
//
// The raw location is saved first and unconditionally. A reverse geocoding
// failure ends the call there. A weather failure still commits the city,
// keeping the previous temperature and backdating LastUpdated to the
// staleness sentinel.
func (s *Service) HandleLocationChange(ctx context.Context, at weather.Coordinate, ts time.Time) Outcome {
	return s.handleLocation(ctx, PathLocation, at, ts)
}

// RefreshPrimary runs the location change path for the background job.
func (s *Service) RefreshPrimary(ctx context.Context, at weather.Coordinate, ts time.Time) Outcome {
	return s.handleLocation(ctx, PathBackground, at, ts)
}

func (s *Service) handleLocation(ctx context.Context, path string, at weather.Coordinate, ts time.Time) Outcome {
	ctx, span := s.tracer.Start(ctx, "refresh.location",
		trace.WithAttributes(
			attribute.String("path", path),
			attribute.Float64("lat", at.Latitude),
			attribute.Float64("lon", at.Longitude),
		))
	defer span.End()

	if ts.IsZero() {
		ts = s.now()
	}
	s.location.SaveLocation(ctx, weather.SharedLocation{
		Latitude:  at.Latitude,
		Longitude: at.Longitude,
		Timestamp: ts.UTC(),
	})

	place, err := s.geocoder.ReverseGeocode(ctx, at)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reverse geocode failed")
		s.logger.WarnContext(ctx, "Reverse geocoding failed, keeping current city",
			slog.Float64("lat", at.Latitude),
			slog.Float64("lon", at.Longitude),
			slog.Any("error", err))
		s.metrics.Refresh(path, string(OutcomeUnresolved))
		return OutcomeUnresolved
	}

	previous, hasPrevious := s.cities.Primary()
	city := weather.City{
		ID:          s.newID(),
		Name:        place.Name,
		CountryCode: place.CountryCode,
		Latitude:    at.Latitude,
		Longitude:   at.Longitude,
		TimeZoneID:  place.TimeZoneID,
		IsPrimary:   true,
	}
	if hasPrevious {
		city.ID = previous.ID
	}
	if city.TimeZoneID == "" {
		city.TimeZoneID = fallbackTimeZone
		if hasPrevious && previous.TimeZoneID != "" {
			city.TimeZoneID = previous.TimeZoneID
		}
	}

	outcome := OutcomeUpdated
	if f, ok := s.fetch(ctx, city.ID, at); ok {
		city.TemperatureF = weather.Float(f)
		city.LastUpdated = weather.Time(s.now().UTC())
	} else if ctx.Err() != nil {
		// The caller gave up; a cancelled fetch says nothing about freshness.
		s.logger.InfoContext(ctx, "Location refresh cancelled before commit", slog.String("city", city.Name))
		s.metrics.Refresh(path, string(OutcomeCancelled))
		return OutcomeCancelled
	} else {
		outcome = OutcomeStale
		if hasPrevious && previous.TemperatureF != nil {
			city.TemperatureF = weather.Float(*previous.TemperatureF)
		}
		city.LastUpdated = weather.Time(weather.StaleSentinel(s.now(), s.threshold))
	}

	s.cities.UpdateCurrentLocation(ctx, city)
	s.metrics.Refresh(path, string(outcome))
	span.SetAttributes(attribute.String("outcome", string(outcome)))

	s.logger.InfoContext(ctx, "Committed current location",
		slog.String("city", city.Name),
		slog.String("outcome", string(outcome)))
	return outcome
}
