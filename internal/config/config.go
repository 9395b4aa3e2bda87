package config

import (
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// State backends.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendDynamoDB = "dynamodb"
)

type AppConfig struct {
	Port        string
	HTTPTimeout time.Duration
	LogLevel    slog.Level

	OpenWeatherAPIKey string
	WeatherAPIKey     string
	GeocoderAPIKey    string

	// Shared state backend.
	StateBackend  string
	StateDir      string
	DynamoDBTable string
	AWSRegion     string

	// Repaint signal transport. Empty NATSURL logs repaints instead.
	NATSURL     string
	NATSSubject string

	MaxCities         int
	DuplicateDistance float64 // meters
	StaleThreshold    time.Duration
	ReloadThrottle    time.Duration

	BackgroundInterval time.Duration
	BackgroundBudget   time.Duration
	LocationTimeout    time.Duration
	GeocodeCacheTTL    time.Duration
}

// Load reads configuration from the environment, after a .env file if one
// exists, with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	return FromEnv()
}

// FromEnv reads configuration from the environment only.
func FromEnv() (*AppConfig, error) {
	var errs []error
	cfg := &AppConfig{
		Port:              getenvDefault("PORT", "8080"),
		OpenWeatherAPIKey: os.Getenv("OPENWEATHER_API_KEY"),
		WeatherAPIKey:     os.Getenv("WEATHERAPI_API_KEY"),
		GeocoderAPIKey:    os.Getenv("GEOCODER_API_KEY"),
		StateBackend:      strings.ToLower(getenvDefault("STATE_BACKEND", BackendFile)),
		StateDir:          getenvDefault("STATE_DIR", "./data"),
		DynamoDBTable:     getenvDefault("DYNAMODB_TABLE", "weathersync-state"),
		AWSRegion:         os.Getenv("AWS_REGION"),
		NATSURL:           os.Getenv("NATS_URL"),
		NATSSubject:       getenvDefault("NATS_SUBJECT", "weathersync.reload"),
	}

	cfg.HTTPTimeout = getenvDuration("HTTP_TIMEOUT", 10*time.Second, &errs)
	cfg.StaleThreshold = getenvDuration("STALE_THRESHOLD", 30*time.Minute, &errs)
	cfg.ReloadThrottle = getenvDuration("RELOAD_THROTTLE", 5*time.Second, &errs)
	cfg.BackgroundInterval = getenvDuration("BACKGROUND_INTERVAL", 15*time.Minute, &errs)
	cfg.BackgroundBudget = getenvDuration("BACKGROUND_BUDGET", 30*time.Second, &errs)
	cfg.LocationTimeout = getenvDuration("LOCATION_TIMEOUT", 10*time.Second, &errs)
	cfg.GeocodeCacheTTL = getenvDuration("GEOCODE_CACHE_TTL", time.Hour, &errs)
	cfg.MaxCities = getenvInt("MAX_CITIES", 10, &errs)
	cfg.DuplicateDistance = getenvFloat("DUPLICATE_DISTANCE_METERS", 1000, &errs)

	if err := cfg.LogLevel.UnmarshalText([]byte(getenvDefault("LOG_LEVEL", "info"))); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL: %w", err))
	}

	switch cfg.StateBackend {
	case BackendMemory, BackendFile, BackendDynamoDB:
	default:
		errs = append(errs, fmt.Errorf("invalid STATE_BACKEND %q: want memory, file or dynamodb", cfg.StateBackend))
	}
	if cfg.MaxCities < 1 {
		errs = append(errs, fmt.Errorf("invalid MAX_CITIES %d: must be at least 1", cfg.MaxCities))
	}
	if cfg.DuplicateDistance < 0 {
		errs = append(errs, fmt.Errorf("invalid DUPLICATE_DISTANCE_METERS %g: must not be negative", cfg.DuplicateDistance))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int, errs *[]error) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return n
}

func getenvFloat(key string, def float64, errs *[]error) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return f
}

func getenvDuration(key string, def time.Duration, errs *[]error) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	if d <= 0 {
		*errs = append(*errs, fmt.Errorf("invalid %s: must be positive", key))
		return def
	}
	return d
}
