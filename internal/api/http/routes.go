package httpapi

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/i474232898/weathersync/internal/cities"
	"github.com/i474232898/weathersync/internal/metrics"
	"github.com/i474232898/weathersync/internal/refresh"
	"github.com/i474232898/weathersync/internal/weather"
)

var validate = validator.New()

// Display is the read side the display surface consumes.
type Display interface {
	Cities(ctx context.Context) []weather.City
	PrimaryCity(ctx context.Context) (weather.City, bool)
	Location(ctx context.Context) (weather.SharedLocation, bool)
}

// Collection is the validated city list.
type Collection interface {
	Add(ctx context.Context, c weather.City) error
	Remove(ctx context.Context, id string) error
	Move(ctx context.Context, source []int, destination int) error
	ClearSavedCities(ctx context.Context)
	Cities() []weather.City
}

// Refresher is the refresh path.
type Refresher interface {
	HandleLocationChange(ctx context.Context, at weather.Coordinate, ts time.Time) refresh.Outcome
	RefreshSaved(ctx context.Context) (refresh.Summary, error)
	StaleThreshold() time.Duration
}

// Deps are the services the routes call.
type Deps struct {
	Display Display
	Cities  Collection
	Refresh Refresher
	Metrics *metrics.Metrics
	Now     func() time.Time
	NewID   func() string
}

// NewApp returns a Fiber app with the centralized JSON error handler.
func NewApp(name string) *fiber.App {
	return fiber.New(fiber.Config{
		AppName:               name,
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, deps Deps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "weathersync",
		})
	})

	if deps.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(deps.Metrics.Registry, promhttp.HandlerOpts{})))
	}

	v1 := app.Group("/api/v1")

	display := v1.Group("/display")
	display.Get("/cities", func(c *fiber.Ctx) error {
		now := deps.Now()
		list := deps.Display.Cities(c.UserContext())
		views := make([]cityView, 0, len(list))
		for _, city := range list {
			views = append(views, newCityView(city, now, deps.Refresh.StaleThreshold()))
		}
		return c.JSON(fiber.Map{"cities": views})
	})

	display.Get("/primary", func(c *fiber.Ctx) error {
		city, ok := deps.Display.PrimaryCity(c.UserContext())
		if !ok {
			return fiber.NewError(fiber.StatusNotFound, "no primary city")
		}
		return c.JSON(newCityView(city, deps.Now(), deps.Refresh.StaleThreshold()))
	})

	display.Get("/location", func(c *fiber.Ctx) error {
		loc, ok := deps.Display.Location(c.UserContext())
		if !ok {
			return fiber.NewError(fiber.StatusNotFound, "no location recorded")
		}
		return c.JSON(loc)
	})

	v1.Post("/location", func(c *fiber.Ctx) error {
		var req locationRequest
		if err := bindJSON(c, &req); err != nil {
			return err
		}
		ts := deps.Now()
		if req.Timestamp != "" {
			parsed, err := parseTime(req.Timestamp)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
			ts = parsed
		}

		at := weather.Coordinate{Latitude: req.Latitude, Longitude: req.Longitude}
		outcome := deps.Refresh.HandleLocationChange(c.UserContext(), at, ts)
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"outcome": outcome})
	})

	v1.Post("/cities", func(c *fiber.Ctx) error {
		var req addCityRequest
		if err := bindJSON(c, &req); err != nil {
			return err
		}

		city := req.toCity(deps.NewID())
		if err := deps.Cities.Add(c.UserContext(), city); err != nil {
			return collectionError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(city)
	})

	v1.Delete("/cities/:id", func(c *fiber.Ctx) error {
		if err := deps.Cities.Remove(c.UserContext(), c.Params("id")); err != nil {
			return collectionError(err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	v1.Post("/cities/move", func(c *fiber.Ctx) error {
		var req moveRequest
		if err := bindJSON(c, &req); err != nil {
			return err
		}
		if err := deps.Cities.Move(c.UserContext(), req.Source, *req.Destination); err != nil {
			return collectionError(err)
		}
		return c.JSON(fiber.Map{"cities": deps.Cities.Cities()})
	})

	v1.Delete("/cities", func(c *fiber.Ctx) error {
		deps.Cities.ClearSavedCities(c.UserContext())
		return c.SendStatus(fiber.StatusNoContent)
	})

	v1.Post("/refresh", func(c *fiber.Ctx) error {
		summary, err := deps.Refresh.RefreshSaved(c.UserContext())
		if err != nil {
			return fiber.NewError(fiber.StatusServiceUnavailable, "refresh interrupted")
		}
		return c.JSON(summary)
	})
}

// cityView is a city as the display surface sees it.
type cityView struct {
	weather.City
	Stale bool `json:"stale"`
}

func newCityView(c weather.City, now time.Time, threshold time.Duration) cityView {
	return cityView{City: c, Stale: weather.IsStale(c, now, threshold)}
}

type locationRequest struct {
	Latitude  float64 `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude float64 `json:"longitude" validate:"required,gte=-180,lte=180"`
	// RFC3339 or unix seconds; defaults to now.
	Timestamp string `json:"timestamp"`
}

type addCityRequest struct {
	Name        string  `json:"name" validate:"required"`
	CountryCode string  `json:"countryCode"`
	Latitude    float64 `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude   float64 `json:"longitude" validate:"required,gte=-180,lte=180"`
	TimeZoneID  string  `json:"timeZoneId"`
}

func (r addCityRequest) toCity(id string) weather.City {
	return weather.City{
		ID:          id,
		Name:        r.Name,
		CountryCode: r.CountryCode,
		Latitude:    r.Latitude,
		Longitude:   r.Longitude,
		TimeZoneID:  r.TimeZoneID,
	}
}

type moveRequest struct {
	Source      []int `json:"source" validate:"required,min=1,dive,gte=0"`
	Destination *int  `json:"destination" validate:"required,gte=0"`
}

func bindJSON(c *fiber.Ctx, out interface{}) error {
	if err := c.BodyParser(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return nil
}

func collectionError(err error) error {
	switch {
	case errors.Is(err, cities.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, cities.ErrAtCapacity),
		errors.Is(err, cities.ErrDuplicate),
		errors.Is(err, cities.ErrPrimaryLocked):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, cities.ErrInvalidMove), errors.Is(err, cities.ErrInvalidCity):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, "city update failed")
	}
}

// parseTime tries to parse either RFC3339 or Unix seconds.
func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339 or unix seconds")
}
