// Package audit funnels audit and security events through a bounded queue so
// request handlers never wait on the log store.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M14-account-security-service/internal/domain"
	"github.com/viralforge/mesh/services/trust-compliance/M14-account-security-service/internal/ports"
)

// DefaultQueueSize bounds the in-flight event buffer. When the queue is full
// the event is dropped and counted; recording is best-effort by contract.
const DefaultQueueSize = 1024

type record struct {
	audit    *domain.AuditLogEntry
	security *domain.SecurityLogEntry
}

// Recorder accepts events without blocking and drains them to the repositories
// from a single background goroutine.
type Recorder struct {
	auditRepo    ports.AuditLogRepository
	securityRepo ports.SecurityLogRepository
	logger       *slog.Logger
	nowFn        func() time.Time
	queue        chan record
}

// Option mutates recorder construction.
type Option func(*Recorder)

// WithQueueSize overrides the bounded buffer length.
func WithQueueSize(size int) Option {
	return func(r *Recorder) {
		if size > 0 {
			r.queue = make(chan record, size)
		}
	}
}

// WithClock injects the time source for deterministic timestamps in tests.
func WithClock(nowFn func() time.Time) Option {
	return func(r *Recorder) {
		if nowFn != nil {
			r.nowFn = nowFn
		}
	}
}

// NewRecorder constructs a recorder; call Run to start draining.
func NewRecorder(auditRepo ports.AuditLogRepository, securityRepo ports.SecurityLogRepository, logger *slog.Logger, opts ...Option) *Recorder {
	r := &Recorder{
		auditRepo:    auditRepo,
		securityRepo: securityRepo,
		logger:       logger,
		nowFn:        time.Now,
		queue:        make(chan record, DefaultQueueSize),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record enqueues an audit entry. It never blocks: a full queue drops the
// entry with an error log instead of stalling the caller.
func (r *Recorder) Record(entry domain.AuditLogEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = r.nowFn()
	}
	select {
	case r.queue <- record{audit: &entry}:
	default:
		r.logger.Error("audit queue full, entry dropped",
			"module", "audit",
			"layer", "core",
			"operation", "record",
			"outcome", "dropped",
			"action", entry.Action,
		)
	}
}

// RecordSecurityEvent enqueues a security event, same non-blocking contract.
func (r *Recorder) RecordSecurityEvent(entry domain.SecurityLogEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = r.nowFn()
	}
	select {
	case r.queue <- record{security: &entry}:
	default:
		r.logger.Error("audit queue full, security event dropped",
			"module", "audit",
			"layer", "core",
			"operation", "record_security",
			"outcome", "dropped",
			"event_type", entry.EventType,
		)
	}
}

// Run drains the queue until the context is cancelled, then flushes whatever
// is still buffered before returning.
func (r *Recorder) Run(ctx context.Context) {
	r.logger.Info("audit recorder started",
		"module", "audit",
		"layer", "core",
		"operation", "run",
		"queue_size", cap(r.queue),
	)
	for {
		select {
		case <-ctx.Done():
			r.flush()
			r.logger.Info("audit recorder stopped",
				"module", "audit",
				"layer", "core",
				"operation", "run",
				"outcome", "shutdown",
			)
			return
		case rec := <-r.queue:
			r.persist(rec)
		}
	}
}

func (r *Recorder) flush() {
	// Persist with a fresh context; the run context is already cancelled.
	for {
		select {
		case rec := <-r.queue:
			r.persist(rec)
		default:
			return
		}
	}
}

func (r *Recorder) persist(rec record) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var err error
	switch {
	case rec.audit != nil:
		err = r.auditRepo.Insert(ctx, *rec.audit)
	case rec.security != nil:
		err = r.securityRepo.Insert(ctx, *rec.security)
	default:
		return
	}
	if err != nil {
		r.logger.Error("audit persist failed",
			"module", "audit",
			"layer", "core",
			"operation", "persist",
			"outcome", "failure",
			"error", err,
		)
	}
}

// Query lists audit entries for a user or the whole system, newest first.
func (r *Recorder) Query(ctx context.Context, q ports.AuditQuery, limit, offset int) ([]domain.AuditLogEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	entries, err := r.auditRepo.List(ctx, q, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	return entries, nil
}

// SecurityEvents lists security-log entries, newest first. A nil userID
// returns system-wide events.
func (r *Recorder) SecurityEvents(ctx context.Context, userID *uuid.UUID, limit, offset int) ([]domain.SecurityLogEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	entries, err := r.securityRepo.List(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	return entries, nil
}

// UserEventCount counts one user's security events since the cutoff. It backs
// the frequency gate on anomaly-driven escalation.
func (r *Recorder) UserEventCount(ctx context.Context, userID uuid.UUID, since time.Time) (int64, error) {
	count, err := r.securityRepo.CountRecentByUser(ctx, userID, since)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	return count, nil
}

// Stats aggregates audit activity over the trailing window.
// Success rate is a percentage; an empty window reports zero, not NaN.
func (r *Recorder) Stats(ctx context.Context, windowDays int) (domain.AuditStats, error) {
	if windowDays <= 0 {
		windowDays = 30
	}
	since := r.nowFn().AddDate(0, 0, -windowDays)

	total, failed, err := r.auditRepo.Stats(ctx, since)
	if err != nil {
		return domain.AuditStats{}, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	securityCount, err := r.securityRepo.CountSince(ctx, since)
	if err != nil {
		return domain.AuditStats{}, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}

	stats := domain.AuditStats{
		TotalActions:   total,
		FailedActions:  failed,
		SecurityEvents: securityCount,
	}
	if total > 0 {
		stats.SuccessRate = float64(total-failed) / float64(total) * 100
	}
	return stats, nil
}

// Cleanup deletes audit and security entries older than the retention window.
func (r *Recorder) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		retentionDays = 90
	}
	cutoff := r.nowFn().AddDate(0, 0, -retentionDays)

	auditDeleted, err := r.auditRepo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	securityDeleted, err := r.securityRepo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return auditDeleted, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}

	total := auditDeleted + securityDeleted
	if total > 0 {
		r.logger.Info("audit retention cleanup completed",
			"module", "audit",
			"layer", "core",
			"operation", "cleanup",
			"outcome", "success",
			"deleted_count", total,
		)
	}
	return total, nil
}

// RunCleaner loops Cleanup on the given interval until context cancellation.
func (r *Recorder) RunCleaner(ctx context.Context, interval time.Duration, retentionDays int) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Cleanup(ctx, retentionDays); err != nil {
				r.logger.Error("audit retention cleanup failed",
					"module", "audit",
					"layer", "core",
					"operation", "cleanup",
					"outcome", "failure",
					"error", err,
				)
			}
		}
	}
}
