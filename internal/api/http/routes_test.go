package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/weathersync/internal/cities"
	"github.com/i474232898/weathersync/internal/inflight"
	"github.com/i474232898/weathersync/internal/metrics"
	"github.com/i474232898/weathersync/internal/refresh"
	"github.com/i474232898/weathersync/internal/sharedstate"
	"github.com/i474232898/weathersync/internal/store"
	"github.com/i474232898/weathersync/internal/weather"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type fixedGeocoder struct{}

func (fixedGeocoder) ReverseGeocode(_ context.Context, at weather.Coordinate) (weather.PlaceInfo, error) {
	if at.Latitude > 50 {
		return weather.PlaceInfo{}, errors.New("unknown place")
	}
	return weather.PlaceInfo{Name: "Chandler", CountryCode: "US", TimeZoneID: "America/Phoenix"}, nil
}

type fixedFetcher struct{}

func (fixedFetcher) FetchTemperatureF(context.Context, weather.Coordinate) (float64, error) {
	return 98.6, nil
}

type testEnv struct {
	app    *fiber.App
	shared *sharedstate.Store
	cities *cities.Manager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	now := func() time.Time { return testNow }
	m := metrics.New()
	shared := sharedstate.New(store.NewMemoryStore(), nil, sharedstate.Options{Now: now, Metrics: m})
	mgr := cities.New(context.Background(), shared, cities.Options{Now: now, MaxCities: 3})
	svc := refresh.New(mgr, shared, fixedGeocoder{}, fixedFetcher{}, inflight.New(m, 0), refresh.Options{Now: now, Metrics: m})

	app := NewApp("weathersync-test")
	ids := 0
	RegisterRoutes(app, Deps{
		Display: shared,
		Cities:  mgr,
		Refresh: svc,
		Metrics: m,
		Now:     now,
		NewID: func() string {
			ids++
			return fmt.Sprintf("id-%d", ids)
		},
	})
	return &testEnv{app: app, shared: shared, cities: mgr}
}

func (e *testEnv) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := e.app.Test(req)
	require.NoError(t, err)
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, b
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	resp, body := env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok","service":"weathersync"}`, string(body))
}

func TestDisplayEndpointsEmpty(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodGet, "/api/v1/display/cities", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"cities":[]}`, string(body))

	resp, body = env.do(t, http.MethodGet, "/api/v1/display/primary", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(body), `"error":true`)

	resp, _ = env.do(t, http.MethodGet, "/api/v1/display/location", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPostLocationCommitsPrimary(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPost, "/api/v1/location",
		`{"latitude":33.3062,"longitude":-111.8413,"timestamp":"2024-06-01T11:59:00Z"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.JSONEq(t, `{"outcome":"updated"}`, string(body))

	resp, body = env.do(t, http.MethodGet, "/api/v1/display/primary", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var view struct {
		ID           string  `json:"id"`
		Name         string  `json:"name"`
		IsPrimary    bool    `json:"isPrimary"`
		TemperatureF float64 `json:"temperatureF"`
		Stale        bool    `json:"stale"`
	}
	require.NoError(t, json.Unmarshal(body, &view))
	assert.Equal(t, "Chandler", view.Name)
	assert.True(t, view.IsPrimary)
	assert.Equal(t, 98.6, view.TemperatureF)
	assert.False(t, view.Stale)

	resp, body = env.do(t, http.MethodGet, "/api/v1/display/location", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "33.3062")
}

func TestPostLocationUnresolvedStillStoresLocation(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPost, "/api/v1/location", `{"latitude":60.1,"longitude":24.9}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.JSONEq(t, `{"outcome":"unresolved"}`, string(body))

	loc, ok := env.shared.Location(context.Background())
	require.True(t, ok)
	assert.Equal(t, 60.1, loc.Latitude)
	assert.True(t, loc.Timestamp.Equal(testNow))
	assert.Empty(t, env.shared.Cities(context.Background()))
}

func TestPostLocationValidation(t *testing.T) {
	env := newTestEnv(t)

	for _, body := range []string{
		`not json`,
		`{"latitude":0,"longitude":0}`,
		`{"latitude":91,"longitude":10}`,
		`{"latitude":10,"longitude":10,"timestamp":"yesterday"}`,
	} {
		resp, _ := env.do(t, http.MethodPost, "/api/v1/location", body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
	}
}

func TestCityLifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/v1/location", `{"latitude":33.3062,"longitude":-111.8413}`)

	resp, body := env.do(t, http.MethodPost, "/api/v1/cities",
		`{"name":"Tokyo","countryCode":"JP","latitude":35.6762,"longitude":139.6503,"timeZoneId":"Asia/Tokyo"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	// Within 1000m of Tokyo.
	resp, _ = env.do(t, http.MethodPost, "/api/v1/cities",
		`{"name":"Tokyo Station","latitude":35.6812,"longitude":139.6503}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, "/api/v1/cities", `{"name":"London","latitude":51.5072,"longitude":-0.1276}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// MaxCities is 3.
	resp, _ = env.do(t, http.MethodPost, "/api/v1/cities", `{"name":"Paris","latitude":48.8566,"longitude":2.3522}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	all := env.cities.Cities()
	require.Len(t, all, 3)
	primaryID := all[0].ID
	tokyoID := all[1].ID

	resp, _ = env.do(t, http.MethodPost, "/api/v1/cities/move", `{"source":[0],"destination":1}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = env.do(t, http.MethodPost, "/api/v1/cities/move", `{"source":[2],"destination":1}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "London")
	assert.Equal(t, "London", env.cities.Cities()[1].Name)

	resp, _ = env.do(t, http.MethodPost, "/api/v1/cities/move", `{"source":[]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.do(t, http.MethodDelete, "/api/v1/cities/"+primaryID, "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = env.do(t, http.MethodDelete, "/api/v1/cities/nope", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = env.do(t, http.MethodDelete, "/api/v1/cities/"+tokyoID, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Len(t, env.cities.Cities(), 2)

	resp, _ = env.do(t, http.MethodDelete, "/api/v1/cities", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	remaining := env.shared.Cities(context.Background())
	require.Len(t, remaining, 1)
	assert.True(t, remaining[0].IsPrimary)
}

func TestRefreshAll(t *testing.T) {
	env := newTestEnv(t)
	resp, _ := env.do(t, http.MethodPost, "/api/v1/cities", `{"name":"Tokyo","latitude":35.6762,"longitude":139.6503}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := env.do(t, http.MethodPost, "/api/v1/refresh", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"updated":1,"stale":0}`, string(body))

	resp, body = env.do(t, http.MethodGet, "/api/v1/display/cities", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"stale":false`)
	assert.Contains(t, string(body), `"temperatureF":98.6`)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/v1/location", `{"latitude":33.3062,"longitude":-111.8413}`)

	resp, body := env.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `weathersync_refreshes_total{outcome="updated",path="location"} 1`)
}
