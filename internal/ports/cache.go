package ports

import (
	"context"
	"time"
)

// ActivityCounterStore tracks suspicious-activity observations per IP and
// activity type over a rolling window. It backs automatic blacklist
// escalation and is cache-backed to avoid hot writes on the request path.
type ActivityCounterStore interface {
	// Increment records one observation and returns the updated count inside
	// the window.
	Increment(ctx context.Context, ip string, activity string, window time.Duration) (int64, error)
	Get(ctx context.Context, ip string, activity string) (int64, error)
	Reset(ctx context.Context, ip string, activity string) error
}
