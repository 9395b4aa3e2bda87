package geocode

import (
	"context"
	"errors"

	"github.com/i474232898/weathersync/internal/weather"
)

// ZoneChain asks each resolver in turn and returns the first zone found.
type ZoneChain []weather.TimeZoneResolver

func (z ZoneChain) TimeZone(ctx context.Context, at weather.Coordinate) (string, error) {
	var errs []error
	for _, r := range z {
		zone, err := r.TimeZone(ctx, at)
		if err == nil && zone != "" {
			return zone, nil
		}
		if err != nil {
			errs = append(errs, err)
		}
		if ctx.Err() != nil {
			break
		}
	}
	if len(errs) == 0 {
		return "", errors.New("geocode: no time zone resolver configured")
	}
	return "", errors.Join(errs...)
}
