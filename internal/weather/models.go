package weather

import (
	"time"
)

// Coordinate is a WGS84 position in degrees.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Valid reports whether both components are non-zero. A zero component is how
// an unset coordinate looks once it has been through the shared store.
func (c Coordinate) Valid() bool {
	return c.Latitude != 0 && c.Longitude != 0
}

// PlaceInfo is the identity a reverse geocoder resolves for a coordinate.
type PlaceInfo struct {
	Name        string `json:"name"`
	CountryCode string `json:"countryCode"`
	TimeZoneID  string `json:"timeZoneId"`
}

// City is a tracked location as persisted in shared state and read by the
// display surface.
//
// At most one city is Primary and it always sits at SortOrder 0. SortOrder is
// dense and zero based across the collection.
type City struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	CountryCode string  `json:"countryCode"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	TimeZoneID  string  `json:"timeZoneId"`

	// TemperatureF and LastUpdated are nil until the first fetch.
	TemperatureF *float64   `json:"temperatureF,omitempty"`
	LastUpdated  *time.Time `json:"lastUpdated,omitempty"`

	IsPrimary bool `json:"isPrimary"`
	SortOrder int  `json:"sortOrder"`
}

// Coordinate returns the city's position.
func (c City) Coordinate() Coordinate {
	return Coordinate{Latitude: c.Latitude, Longitude: c.Longitude}
}

// Clone returns a copy that shares no pointers with c.
func (c City) Clone() City {
	dup := c
	if c.TemperatureF != nil {
		t := *c.TemperatureF
		dup.TemperatureF = &t
	}
	if c.LastUpdated != nil {
		ts := *c.LastUpdated
		dup.LastUpdated = &ts
	}
	return dup
}

// SharedLocation is the last known device coordinate. Any process may write it;
// the last writer wins.
type SharedLocation struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Timestamp time.Time `json:"timestamp"` // always UTC
}

// Valid reports whether the location carries a usable coordinate.
func (l SharedLocation) Valid() bool {
	return l.Coordinate().Valid()
}

// Coordinate returns the location's position.
func (l SharedLocation) Coordinate() Coordinate {
	return Coordinate{Latitude: l.Latitude, Longitude: l.Longitude}
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}

// Time returns a pointer to t.
func Time(t time.Time) *time.Time {
	return &t
}
