package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var keys = []string{
	"PORT", "HTTP_TIMEOUT", "LOG_LEVEL", "STATE_BACKEND", "STATE_DIR", "DYNAMODB_TABLE",
	"NATS_URL", "NATS_SUBJECT", "MAX_CITIES", "DUPLICATE_DISTANCE_METERS", "STALE_THRESHOLD",
	"RELOAD_THROTTLE", "BACKGROUND_INTERVAL", "BACKGROUND_BUDGET", "LOCATION_TIMEOUT", "GEOCODE_CACHE_TTL",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestFromEnvDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 10*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, BackendFile, cfg.StateBackend)
	assert.Equal(t, "./data", cfg.StateDir)
	assert.Equal(t, "weathersync-state", cfg.DynamoDBTable)
	assert.Equal(t, "weathersync.reload", cfg.NATSSubject)
	assert.Empty(t, cfg.NATSURL)
	assert.Equal(t, 10, cfg.MaxCities)
	assert.Equal(t, 1000.0, cfg.DuplicateDistance)
	assert.Equal(t, 30*time.Minute, cfg.StaleThreshold)
	assert.Equal(t, 5*time.Second, cfg.ReloadThrottle)
	assert.Equal(t, 15*time.Minute, cfg.BackgroundInterval)
	assert.Equal(t, 30*time.Second, cfg.BackgroundBudget)
	assert.Equal(t, 10*time.Second, cfg.LocationTimeout)
	assert.Equal(t, time.Hour, cfg.GeocodeCacheTTL)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
}

func TestFromEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("STATE_BACKEND", "DynamoDB")
	t.Setenv("MAX_CITIES", "4")
	t.Setenv("DUPLICATE_DISTANCE_METERS", "250.5")
	t.Setenv("STALE_THRESHOLD", "45m")
	t.Setenv("NATS_URL", "nats://localhost:4222")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, BackendDynamoDB, cfg.StateBackend)
	assert.Equal(t, 4, cfg.MaxCities)
	assert.Equal(t, 250.5, cfg.DuplicateDistance)
	assert.Equal(t, 45*time.Minute, cfg.StaleThreshold)
	assert.Equal(t, "nats://localhost:4222", cfg.NATSURL)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
}

func TestFromEnvRejectsInvalidValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("STALE_THRESHOLD", "soon")
	t.Setenv("RELOAD_THROTTLE", "-5s")
	t.Setenv("MAX_CITIES", "0")
	t.Setenv("STATE_BACKEND", "redis")

	_, err := FromEnv()
	require.Error(t, err)
	assert.ErrorContains(t, err, "STALE_THRESHOLD")
	assert.ErrorContains(t, err, "RELOAD_THROTTLE")
	assert.ErrorContains(t, err, "MAX_CITIES")
	assert.ErrorContains(t, err, "STATE_BACKEND")
}
