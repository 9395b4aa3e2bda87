package weather

import "time"

// Aggregate is the combination of several provider readings for one coordinate.
type Aggregate struct {
	TemperatureF float64
	Timestamp    time.Time
	Providers    []string
}

// AggregateReadings combines multiple provider readings into one value.
// Temperatures are averaged and the newest provider timestamp wins.
func AggregateReadings(readings []ProviderReading) (Aggregate, bool) {
	if len(readings) == 0 {
		return Aggregate{}, false
	}

	var (
		sumTemp  float64
		newestTS time.Time
	)
	providers := make([]string, 0, len(readings))

	for _, r := range readings {
		sumTemp += r.TemperatureF
		if r.Timestamp.After(newestTS) {
			newestTS = r.Timestamp
		}
		providers = append(providers, r.ProviderName)
	}

	if newestTS.IsZero() {
		newestTS = time.Now().UTC()
	}

	return Aggregate{
		TemperatureF: sumTemp / float64(len(readings)),
		Timestamp:    newestTS,
		Providers:    providers,
	}, true
}
