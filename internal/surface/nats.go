package surface

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultSubject is where repaint signals are published.
const DefaultSubject = "weathersync.reload"

// Publisher is satisfied by *nats.Conn.
type Publisher interface {
	Publish(subj string, data []byte) error
}

// NATSReloader publishes an empty message per repaint request.
type NATSReloader struct {
	pub     Publisher
	subject string
}

// NewNATSReloader creates a reloader publishing on subject.
func NewNATSReloader(pub Publisher, subject string) *NATSReloader {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSReloader{pub: pub, subject: subject}
}

func (r *NATSReloader) Reload(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.pub.Publish(r.subject, nil); err != nil {
		return fmt.Errorf("publish reload on %s: %w", r.subject, err)
	}
	return nil
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL            string
	MaxReconnects  int
	ReconnectWait  time.Duration
	ConnectTimeout time.Duration
}

// ConnectNATS opens a connection that logs its lifecycle transitions.
func ConnectNATS(cfg NATSConfig, logger *slog.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = slog.Default()
	}
	options := []nats.Option{
		nats.Name("weathersync"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.ConnectTimeout),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", slog.Any("error", err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", slog.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	}

	nc, err := nats.Connect(cfg.URL, options...)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to NATS: %w", err)
	}
	return nc, nil
}
