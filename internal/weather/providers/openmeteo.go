package providers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/i474232898/weathersync/internal/weather"
	"github.com/sony/gobreaker"
)

// OpenMeteoProvider implements weather.Provider and weather.TimeZoneResolver
// for Open-Meteo. It needs no API key.
type OpenMeteoProvider struct {
	name    string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewOpenMeteoProvider(client *http.Client) *OpenMeteoProvider {
	return &OpenMeteoProvider{
		name:    "openmeteo",
		baseURL: "https://api.open-meteo.com/v1/forecast",
		httpCfg: HTTPClientConfig{Client: client, Backoff: defaultBackoff},
		circuit: newCircuitBreaker("openmeteo"),
	}
}

func (p *OpenMeteoProvider) Name() string {
	return p.name
}

type openMeteoPayload struct {
	Timezone       string `json:"timezone"`
	CurrentWeather struct {
		Temperature float64 `json:"temperature"`
		Time        string  `json:"time"`
	} `json:"current_weather"`
}

func (p *OpenMeteoProvider) Fetch(ctx context.Context, at weather.Coordinate) (weather.ProviderReading, error) {
	payload, err := p.current(ctx, at)
	if err != nil {
		return weather.ProviderReading{}, err
	}

	return weather.ProviderReading{
		ProviderName: p.name,
		Timestamp:    parseOpenMeteoTime(payload.CurrentWeather.Time),
		TemperatureF: payload.CurrentWeather.Temperature,
	}, nil
}

// TimeZone returns the IANA zone Open-Meteo reports for the coordinate.
func (p *OpenMeteoProvider) TimeZone(ctx context.Context, at weather.Coordinate) (string, error) {
	payload, err := p.current(ctx, at)
	if err != nil {
		return "", err
	}
	if payload.Timezone == "" {
		return "", errors.New("openmeteo returned no timezone")
	}
	return payload.Timezone, nil
}

func (p *OpenMeteoProvider) current(ctx context.Context, at weather.Coordinate) (openMeteoPayload, error) {
	query := url.Values{
		"latitude":         {coordinate(at.Latitude)},
		"longitude":        {coordinate(at.Longitude)},
		"current_weather":  {"true"},
		"temperature_unit": {"fahrenheit"},
		"timezone":         {"auto"},
	}
	var payload openMeteoPayload
	err := getJSON(ctx, p.httpCfg, p.circuit, p.baseURL, query, &payload)
	return payload, err
}

// parseOpenMeteoTime accepts the minute-precision local format Open-Meteo
// uses as well as RFC3339.
func parseOpenMeteoTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC()
		}
	}
	return time.Now().UTC()
}
