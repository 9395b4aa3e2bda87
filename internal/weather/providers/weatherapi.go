package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/i474232898/weathersync/internal/weather"
	"github.com/sony/gobreaker"
)

// WeatherAPIProvider implements weather.Provider and weather.TimeZoneResolver
// for WeatherAPI.com.
type WeatherAPIProvider struct {
	name    string
	apiKey  string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewWeatherAPIProvider(client *http.Client, apiKey string) *WeatherAPIProvider {
	return &WeatherAPIProvider{
		name:    "weatherapi",
		apiKey:  apiKey,
		baseURL: "https://api.weatherapi.com/v1/current.json",
		httpCfg: HTTPClientConfig{Client: client, Backoff: defaultBackoff},
		circuit: newCircuitBreaker("weatherapi"),
	}
}

func (p *WeatherAPIProvider) Name() string {
	return p.name
}

type weatherAPIPayload struct {
	Location struct {
		TzID           string `json:"tz_id"`
		LocaltimeEpoch int64  `json:"localtime_epoch"`
	} `json:"location"`
	Current struct {
		TempF float64 `json:"temp_f"`
	} `json:"current"`
}

func (p *WeatherAPIProvider) Fetch(ctx context.Context, at weather.Coordinate) (weather.ProviderReading, error) {
	payload, err := p.current(ctx, at)
	if err != nil {
		return weather.ProviderReading{}, err
	}

	ts := time.Now().UTC()
	if payload.Location.LocaltimeEpoch > 0 {
		ts = time.Unix(payload.Location.LocaltimeEpoch, 0).UTC()
	}

	return weather.ProviderReading{
		ProviderName: p.name,
		Timestamp:    ts,
		TemperatureF: payload.Current.TempF,
	}, nil
}

// TimeZone returns the tz_id WeatherAPI reports for the coordinate.
func (p *WeatherAPIProvider) TimeZone(ctx context.Context, at weather.Coordinate) (string, error) {
	payload, err := p.current(ctx, at)
	if err != nil {
		return "", err
	}
	if payload.Location.TzID == "" {
		return "", errors.New("weatherapi returned no tz_id")
	}
	return payload.Location.TzID, nil
}

func (p *WeatherAPIProvider) current(ctx context.Context, at weather.Coordinate) (weatherAPIPayload, error) {
	if p.apiKey == "" {
		return weatherAPIPayload{}, fmt.Errorf("weatherapi: %w", errMissingAPIKey)
	}

	// WeatherAPI takes the location as "lat,lon" in q.
	query := url.Values{
		"key": {p.apiKey},
		"q":   {coordinate(at.Latitude) + "," + coordinate(at.Longitude)},
	}
	var payload weatherAPIPayload
	err := getJSON(ctx, p.httpCfg, p.circuit, p.baseURL, query, &payload)
	return payload, err
}
