package sharedstate

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/i474232898/weathersync/internal/weather"
)

func encodeCities(cities []weather.City) ([]byte, error) {
	if cities == nil {
		cities = []weather.City{}
	}
	b, err := json.Marshal(cities)
	if err != nil {
		return nil, fmt.Errorf("encode cities: %w", err)
	}
	return b, nil
}

// decodeCities returns the cities ordered by SortOrder.
func decodeCities(b []byte) ([]weather.City, error) {
	var cities []weather.City
	if err := json.Unmarshal(b, &cities); err != nil {
		return nil, fmt.Errorf("decode cities: %w", err)
	}
	sort.SliceStable(cities, func(i, j int) bool {
		return cities[i].SortOrder < cities[j].SortOrder
	})
	return cities, nil
}

func encodeLocation(loc weather.SharedLocation) ([]byte, error) {
	b, err := json.Marshal(loc)
	if err != nil {
		return nil, fmt.Errorf("encode location: %w", err)
	}
	return b, nil
}

func decodeLocation(b []byte) (weather.SharedLocation, error) {
	var loc weather.SharedLocation
	if err := json.Unmarshal(b, &loc); err != nil {
		return weather.SharedLocation{}, fmt.Errorf("decode location: %w", err)
	}
	return loc, nil
}
