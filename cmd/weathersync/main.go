package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	httpapi "github.com/i474232898/weathersync/internal/api/http"
	"github.com/i474232898/weathersync/internal/cities"
	"github.com/i474232898/weathersync/internal/config"
	"github.com/i474232898/weathersync/internal/geocode"
	"github.com/i474232898/weathersync/internal/inflight"
	"github.com/i474232898/weathersync/internal/metrics"
	"github.com/i474232898/weathersync/internal/refresh"
	"github.com/i474232898/weathersync/internal/scheduler"
	"github.com/i474232898/weathersync/internal/sharedstate"
	"github.com/i474232898/weathersync/internal/store"
	"github.com/i474232898/weathersync/internal/surface"
	"github.com/i474232898/weathersync/internal/weather"
	"github.com/i474232898/weathersync/internal/weather/providers"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	slogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(slogger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	kv, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to open %s state store: %v", cfg.StateBackend, err)
	}

	// Repaint signal: always logged, published over NATS when configured.
	reloaders := surface.Multi{surface.LogReloader{Logger: slogger}}
	if cfg.NATSURL != "" {
		nc, err := surface.ConnectNATS(surface.NATSConfig{
			URL:            cfg.NATSURL,
			MaxReconnects:  -1,
			ReconnectWait:  2 * time.Second,
			ConnectTimeout: 5 * time.Second,
		}, slogger)
		if err != nil {
			log.Fatalf("failed to connect to NATS: %v", err)
		}
		defer nc.Drain()
		reloaders = append(reloaders, surface.NewNATSReloader(nc, cfg.NATSSubject))
	}

	shared := sharedstate.New(kv, reloaders, sharedstate.Options{
		ReloadInterval: cfg.ReloadThrottle,
		Logger:         slogger,
		Metrics:        m,
	})

	collection := cities.New(ctx, shared, cities.Options{
		MaxCities:         cfg.MaxCities,
		DuplicateDistance: cfg.DuplicateDistance,
		Logger:            slogger,
	})

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	// Providers with resilience (backoff + circuit breaker). Open-Meteo needs
	// no key; the others are used only when their key is set.
	openMeteo := providers.NewOpenMeteoProvider(httpClient)
	provs := []weather.Provider{openMeteo}
	zones := geocode.ZoneChain{openMeteo}
	if cfg.OpenWeatherAPIKey != "" {
		provs = append(provs, providers.NewOpenWeatherProvider(httpClient, cfg.OpenWeatherAPIKey))
	}
	if cfg.WeatherAPIKey != "" {
		weatherAPI := providers.NewWeatherAPIProvider(httpClient, cfg.WeatherAPIKey)
		provs = append(provs, weatherAPI)
		zones = append(zones, weatherAPI)
	}
	temperatures := weather.NewService(provs, slogger)

	if cfg.GeocoderAPIKey == "" {
		slogger.Warn("GEOCODER_API_KEY is not set; location changes will only record the raw coordinate")
	}
	geocoder := geocode.NewCachedGeocoder(
		geocode.NewGoogleGeocoder(cfg.GeocoderAPIKey, zones, slogger),
		cfg.GeocodeCacheTTL,
	)

	refresher := refresh.New(collection, shared, geocoder, temperatures, inflight.New(m, cfg.BackgroundBudget), refresh.Options{
		StaleThreshold: cfg.StaleThreshold,
		Logger:         slogger,
		Metrics:        m,
	})

	// Background job. No device location source runs on a server, so the job
	// refreshes from the last location posted to the API.
	host := scheduler.NewGocronHost(cfg.BackgroundBudget, slogger)
	sched := scheduler.New(host, refresher, nil, shared, scheduler.Options{
		Interval:        cfg.BackgroundInterval,
		LocationTimeout: cfg.LocationTimeout,
		Logger:          slogger,
		Metrics:         m,
	})
	if err := sched.Start(); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	host.Start()
	defer host.Stop()

	app := httpapi.NewApp("weathersync")

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	httpapi.RegisterRoutes(app, httpapi.Deps{
		Display: shared,
		Cities:  collection,
		Refresh: refresher,
		Metrics: m,
	})

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()
	slogger.Info("weathersync started",
		slog.String("port", cfg.Port),
		slog.String("state_backend", cfg.StateBackend),
		slog.Any("providers", temperatures.Providers()))

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
}

func openStore(ctx context.Context, cfg *config.AppConfig) (store.KV, error) {
	switch cfg.StateBackend {
	case config.BackendMemory:
		return store.NewMemoryStore(), nil
	case config.BackendDynamoDB:
		client, err := store.NewDynamoDBClient(ctx, cfg.AWSRegion)
		if err != nil {
			return nil, err
		}
		return store.NewDynamoDBStore(client, cfg.DynamoDBTable), nil
	default:
		return store.NewFileStore(cfg.StateDir)
	}
}
