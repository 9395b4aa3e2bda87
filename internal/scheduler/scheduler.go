// Package scheduler runs the time-boxed background refresh job. The next
// run is scheduled before any work starts, and every run reports completion
// exactly once, whether it succeeds, fails or runs out of budget.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/i474232898/weathersync/internal/metrics"
	"github.com/i474232898/weathersync/internal/refresh"
	"github.com/i474232898/weathersync/internal/weather"
)

// ErrNoLocation means neither a fix nor a stored location was available.
var ErrNoLocation = errors.New("scheduler: no location available")

const (
	DefaultJobID           = "weathersync.refresh"
	DefaultInterval        = 15 * time.Minute
	DefaultLocationTimeout = 10 * time.Second
)

// Job outcomes, used as the metrics label.
const (
	outcomeSuccess    = "success"
	outcomeNoLocation = "no_location"
	outcomeExpired    = "expired"
)

// Refresher is the refresh path the job delegates to.
type Refresher interface {
	RefreshPrimary(ctx context.Context, at weather.Coordinate, ts time.Time) refresh.Outcome
	RefreshSaved(ctx context.Context) (refresh.Summary, error)
}

// LastKnown returns the stored location.
type LastKnown interface {
	Location(ctx context.Context) (weather.SharedLocation, bool)
}

// Options tunes a Scheduler. Zero values pick defaults.
type Options struct {
	JobID           string
	Interval        time.Duration
	LocationTimeout time.Duration
	Logger          *slog.Logger
	Metrics         *metrics.Metrics
	Now             func() time.Time
}

// Scheduler is the background refresh job.
type Scheduler struct {
	host      Host
	refresher Refresher
	source    weather.LocationSource
	lastKnown LastKnown

	jobID           string
	interval        time.Duration
	locationTimeout time.Duration
	logger          *slog.Logger
	metrics         *metrics.Metrics
	now             func() time.Time
	tracer          trace.Tracer
}

// New creates a Scheduler. source may be nil, in which case the job always
// uses the stored location.
func New(host Host, refresher Refresher, source weather.LocationSource, lastKnown LastKnown, opts Options) *Scheduler {
	if opts.JobID == "" {
		opts.JobID = DefaultJobID
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.LocationTimeout <= 0 {
		opts.LocationTimeout = DefaultLocationTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Scheduler{
		host:            host,
		refresher:       refresher,
		source:          source,
		lastKnown:       lastKnown,
		jobID:           opts.JobID,
		interval:        opts.Interval,
		locationTimeout: opts.LocationTimeout,
		logger:          opts.Logger.With(slog.String("component", "scheduler"), slog.String("job", opts.JobID)),
		metrics:         opts.Metrics,
		now:             opts.Now,
		tracer:          otel.Tracer("scheduler"),
	}
}

// JobID returns the id the job is registered under.
func (s *Scheduler) JobID() string {
	return s.jobID
}

// Start registers the job and schedules its first run.
func (s *Scheduler) Start() error {
	if err := s.host.Register(s.jobID, s.Run); err != nil {
		return err
	}
	return s.host.ScheduleNext(s.jobID, s.interval)
}

// Stop cancels every pending run.
func (s *Scheduler) Stop() {
	s.host.CancelAll()
}

// Run executes one invocation of the job.
func (s *Scheduler) Run(task Task) {
	start := s.now()

	if err := s.host.ScheduleNext(s.jobID, s.interval); err != nil {
		s.logger.Error("Failed to schedule next run", slog.Any("error", err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx, span := s.tracer.Start(ctx, "scheduler.run",
		trace.WithAttributes(attribute.String("task.id", task.ID())))
	defer span.End()

	done := make(chan string, 1)
	go func() {
		done <- s.execute(ctx)
	}()

	var outcome string
	select {
	case outcome = <-done:
	case <-task.Expired():
		cancel()
		outcome = outcomeExpired
		s.logger.WarnContext(ctx, "Background budget expired, cancelling refresh")
	}

	task.Complete(outcome == outcomeSuccess)

	span.SetAttributes(attribute.String("outcome", outcome))
	s.metrics.Job(outcome, s.now().Sub(start).Seconds())
}

func (s *Scheduler) execute(ctx context.Context) string {
	at, ts, err := s.acquireLocation(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "Background refresh has no location", slog.Any("error", err))
		return outcomeNoLocation
	}

	outcome := s.refresher.RefreshPrimary(ctx, at, ts)
	s.logger.InfoContext(ctx, "Background refresh of current location finished",
		slog.String("outcome", string(outcome)))

	if ctx.Err() == nil {
		if _, err := s.refresher.RefreshSaved(ctx); err != nil {
			s.logger.WarnContext(ctx, "Background refresh of saved cities interrupted", slog.Any("error", err))
		}
	}

	if ctx.Err() != nil {
		return outcomeExpired
	}
	return outcomeSuccess
}

// acquireLocation tries a fresh fix when the process may locate in the
// background and falls back to the stored location.
func (s *Scheduler) acquireLocation(ctx context.Context) (weather.Coordinate, time.Time, error) {
	if s.source != nil && s.source.Authorization() == weather.AuthorizationAlways {
		at, err := s.currentFix(ctx)
		if err == nil {
			return at, s.now(), nil
		}
		s.logger.InfoContext(ctx, "Location fix unavailable, using last known location", slog.Any("error", err))
	}

	if loc, ok := s.lastKnown.Location(ctx); ok {
		return loc.Coordinate(), loc.Timestamp, nil
	}
	return weather.Coordinate{}, time.Time{}, ErrNoLocation
}

// currentFix races the location source against the fix timeout.
func (s *Scheduler) currentFix(ctx context.Context) (weather.Coordinate, error) {
	ctx, cancel := context.WithTimeout(ctx, s.locationTimeout)
	defer cancel()

	type fix struct {
		at  weather.Coordinate
		err error
	}
	ch := make(chan fix, 1)
	go func() {
		at, err := s.source.CurrentCoordinate(ctx)
		ch <- fix{at: at, err: err}
	}()

	select {
	case <-ctx.Done():
		return weather.Coordinate{}, ctx.Err()
	case f := <-ch:
		if f.err != nil {
			return weather.Coordinate{}, f.err
		}
		if !f.at.Valid() {
			return weather.Coordinate{}, errors.New("location fix has zero coordinates")
		}
		return f.at, nil
	}
}
