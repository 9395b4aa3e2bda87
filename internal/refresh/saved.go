package refresh

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/i474232898/weathersync/internal/weather"
)

// Summary counts what RefreshSaved committed.
type Summary struct {
	Updated int `json:"updated"`
	Stale   int `json:"stale"`
}

// RefreshSaved fetches every saved city with bounded concurrency. A city
// whose fetch fails keeps its temperature and is marked stale. Only ctx
// ending is reported as an error.
func (s *Service) RefreshSaved(ctx context.Context) (Summary, error) {
	ctx, span := s.tracer.Start(ctx, "refresh.saved")
	defer span.End()

	var (
		mu      sync.Mutex
		summary Summary
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, c := range s.cities.Saved() {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			outcome := s.refreshCity(gctx, c)

			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case OutcomeUpdated:
				summary.Updated++
			case OutcomeStale:
				summary.Stale++
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return summary, err
	}
	if err := ctx.Err(); err != nil {
		return summary, err
	}

	s.logger.DebugContext(ctx, "Refreshed saved cities",
		slog.Int("updated", summary.Updated), slog.Int("stale", summary.Stale))
	return summary, nil
}

func (s *Service) refreshCity(ctx context.Context, c weather.City) Outcome {
	if f, ok := s.fetch(ctx, c.ID, c.Coordinate()); ok {
		s.cities.UpdateWeather(ctx, c.ID, f)
		s.metrics.Refresh(PathSaved, string(OutcomeUpdated))
		return OutcomeUpdated
	}

	if ctx.Err() != nil {
		// Cancelled, not failed; leave the city as it is.
		return OutcomeCancelled
	}
	s.cities.MarkStale(ctx, c.ID, weather.StaleSentinel(s.now(), s.threshold))
	s.metrics.Refresh(PathSaved, string(OutcomeStale))
	return OutcomeStale
}
