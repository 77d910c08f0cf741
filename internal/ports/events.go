package ports

import "context"

// EventPublisher emits security events to the platform bus.
// Delivery is best-effort from the caller's perspective: publish failures are
// logged by adapters and never fail the operation that produced the event.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload []byte) error
}
