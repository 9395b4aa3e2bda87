package weather

import "time"

// DefaultStaleThreshold is how old LastUpdated may be before a city counts as
// stale. The display surface applies the same threshold when deciding whether
// to refresh on its own, so writers and readers must agree on it.
const DefaultStaleThreshold = 30 * time.Minute

// IsStale reports whether c should be treated as expired at now. A city that
// was never fetched is stale.
func IsStale(c City, now time.Time, threshold time.Duration) bool {
	if c.LastUpdated == nil {
		return true
	}
	return now.Sub(*c.LastUpdated) > threshold
}

// StaleSentinel returns the LastUpdated value written when a refresh fails.
// It sits one minute past the threshold so IsStale holds immediately, without
// a separate stale flag in the persisted schema.
func StaleSentinel(now time.Time, threshold time.Duration) time.Time {
	return now.Add(-threshold - time.Minute).UTC()
}
