package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSPublisher delivers security events over NATS. Subjects are derived from
// the event type: "security.2fa.enabled" publishes as-is under the service's
// subject root.
type NATSPublisher struct {
	nc     *nats.Conn
	logger *slog.Logger
}

// NewNATSPublisher connects to the broker with retry-on-failure semantics so
// a late-starting broker does not take the service down.
func NewNATSPublisher(url string, logger *slog.Logger) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected",
					"module", "events",
					"layer", "adapter",
					"operation", "connection",
					"outcome", "disconnected",
					"error", err,
				)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected",
				"module", "events",
				"layer", "adapter",
				"operation", "connection",
				"outcome", "reconnected",
			)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATSPublisher{nc: nc, logger: logger}, nil
}

func (p *NATSPublisher) Publish(_ context.Context, eventType string, payload []byte) error {
	if err := p.nc.Publish(eventType, payload); err != nil {
		return fmt.Errorf("publish %s: %w", eventType, err)
	}
	return nil
}

// Close drains in-flight messages and shuts the connection down.
func (p *NATSPublisher) Close() {
	if p.nc != nil {
		_ = p.nc.Drain()
	}
}
