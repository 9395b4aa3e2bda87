// Package surface carries the repaint signal to the display surface. The
// signal has no payload: the surface always re-reads shared state.
package surface

import (
	"context"
	"log/slog"
)

// Reloader asks the display surface to re-render from shared state.
type Reloader interface {
	Reload(ctx context.Context) error
}

// ReloaderFunc adapts a function to Reloader.
type ReloaderFunc func(ctx context.Context) error

func (f ReloaderFunc) Reload(ctx context.Context) error {
	return f(ctx)
}

// LogReloader only records the request. It is used when no transport to the
// display surface is configured.
type LogReloader struct {
	Logger *slog.Logger
}

func (r LogReloader) Reload(ctx context.Context) error {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.DebugContext(ctx, "Display surface reload requested")
	return nil
}

// Multi fans a reload out to several transports and returns the first error.
type Multi []Reloader

func (m Multi) Reload(ctx context.Context) error {
	var first error
	for _, r := range m {
		if err := r.Reload(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}
