package weather

import (
	"context"
	"time"
)

// ProviderReading is a single provider's normalized reading that can be
// aggregated with others.
type ProviderReading struct {
	ProviderName string
	Timestamp    time.Time

	TemperatureF float64
}

// Provider abstracts a weather data source (e.g. OpenWeatherMap, WeatherAPI, Open-Meteo).
type Provider interface {
	Name() string
	Fetch(ctx context.Context, at Coordinate) (ProviderReading, error)
}

// TemperatureFetcher returns the current temperature in Fahrenheit for a coordinate.
type TemperatureFetcher interface {
	FetchTemperatureF(ctx context.Context, at Coordinate) (float64, error)
}

// ReverseGeocoder resolves the identity of the place at a coordinate.
type ReverseGeocoder interface {
	ReverseGeocode(ctx context.Context, at Coordinate) (PlaceInfo, error)
}

// TimeZoneResolver returns the IANA time zone identifier for a coordinate.
type TimeZoneResolver interface {
	TimeZone(ctx context.Context, at Coordinate) (string, error)
}

// Authorization is the level of location access granted to the process.
type Authorization int

const (
	AuthorizationDenied Authorization = iota
	AuthorizationWhenInUse
	AuthorizationAlways
)

func (a Authorization) String() string {
	switch a {
	case AuthorizationAlways:
		return "always"
	case AuthorizationWhenInUse:
		return "when_in_use"
	default:
		return "denied"
	}
}

// LocationSource produces one-shot location fixes.
type LocationSource interface {
	Authorization() Authorization
	// CurrentCoordinate blocks until a fix is available or ctx is done.
	CurrentCoordinate(ctx context.Context) (Coordinate, error)
}
