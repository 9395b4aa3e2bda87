package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/i474232898/weathersync/internal/weather"
	"github.com/sony/gobreaker"
)

// OpenWeatherProvider reads current conditions from OpenWeatherMap in
// imperial units.
type OpenWeatherProvider struct {
	name    string
	apiKey  string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewOpenWeatherProvider(client *http.Client, apiKey string) *OpenWeatherProvider {
	return &OpenWeatherProvider{
		name:    "openweathermap",
		apiKey:  apiKey,
		baseURL: "https://api.openweathermap.org/data/2.5/weather",
		httpCfg: HTTPClientConfig{Client: client, Backoff: defaultBackoff},
		circuit: newCircuitBreaker("openweather"),
	}
}

func (p *OpenWeatherProvider) Name() string {
	return p.name
}

type openWeatherPayload struct {
	Dt   int64 `json:"dt"`
	Main struct {
		Temp float64 `json:"temp"`
	} `json:"main"`
}

func (p *OpenWeatherProvider) Fetch(ctx context.Context, at weather.Coordinate) (weather.ProviderReading, error) {
	if p.apiKey == "" {
		return weather.ProviderReading{}, fmt.Errorf("openweather: %w", errMissingAPIKey)
	}

	query := url.Values{
		"appid": {p.apiKey},
		"units": {"imperial"},
		"lat":   {coordinate(at.Latitude)},
		"lon":   {coordinate(at.Longitude)},
	}
	var payload openWeatherPayload
	if err := getJSON(ctx, p.httpCfg, p.circuit, p.baseURL, query, &payload); err != nil {
		return weather.ProviderReading{}, err
	}

	observed := time.Now().UTC()
	if payload.Dt > 0 {
		observed = time.Unix(payload.Dt, 0).UTC()
	}
	return weather.ProviderReading{
		ProviderName: p.name,
		Timestamp:    observed,
		TemperatureF: payload.Main.Temp,
	}, nil
}
