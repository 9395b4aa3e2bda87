package geocode

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/i474232898/weathersync/internal/weather"
)

// CachedGeocoder memoizes successful lookups on coordinates rounded to three
// decimals, roughly 100m. Failures are never cached.
type CachedGeocoder struct {
	next  weather.ReverseGeocoder
	cache *cache.Cache
}

// NewCachedGeocoder wraps next with a TTL cache.
func NewCachedGeocoder(next weather.ReverseGeocoder, ttl time.Duration) *CachedGeocoder {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CachedGeocoder{
		next:  next,
		cache: cache.New(ttl, 2*ttl),
	}
}

func (c *CachedGeocoder) ReverseGeocode(ctx context.Context, at weather.Coordinate) (weather.PlaceInfo, error) {
	key := cacheKey(at)
	if cached, found := c.cache.Get(key); found {
		return cached.(weather.PlaceInfo), nil
	}

	place, err := c.next.ReverseGeocode(ctx, at)
	if err != nil {
		return weather.PlaceInfo{}, err
	}
	c.cache.Set(key, place, cache.DefaultExpiration)
	return place, nil
}

func cacheKey(at weather.Coordinate) string {
	return fmt.Sprintf("%.3f,%.3f", at.Latitude, at.Longitude)
}
