// Package blacklist keeps an in-memory mirror of the persisted IP blacklist
// so the request gate never touches network or disk.
package blacklist

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/viralforge/mesh/services/trust-compliance/M14-account-security-service/internal/domain"
	"github.com/viralforge/mesh/services/trust-compliance/M14-account-security-service/internal/ports"
)

// EscalationRule maps an activity type to the threshold that triggers an
// automatic entry and the ban duration applied when it does.
type EscalationRule struct {
	Threshold int
	Duration  time.Duration
}

// DefaultEscalationRules returns the shipped escalation policy.
func DefaultEscalationRules() map[domain.ActivityType]EscalationRule {
	return map[domain.ActivityType]EscalationRule{
		domain.ActivityFailedLogin:        {Threshold: 5, Duration: 30 * time.Minute},
		domain.ActivityRateLimitViolation: {Threshold: 10, Duration: 60 * time.Minute},
		domain.ActivityUnauthorizedAccess: {Threshold: 3, Duration: 120 * time.Minute},
		domain.ActivityUploadViolation:    {Threshold: 3, Duration: 240 * time.Minute},
	}
}

// SecuritySink accepts security events without failing the caller.
type SecuritySink interface {
	RecordSecurityEvent(entry domain.SecurityLogEntry)
}

// Cache is the process-local reputation mirror. It owns no data of record:
// the persisted store is authoritative and the map is rebuilt by Initialize.
type Cache struct {
	repo   ports.BlacklistRepository
	rules  map[domain.ActivityType]EscalationRule
	sink   SecuritySink
	logger *slog.Logger
	nowFn  func() time.Time

	mu      sync.RWMutex
	entries map[string]domain.BlacklistEntry
}

// Option mutates cache construction.
type Option func(*Cache)

// WithEscalationRules overrides the automatic-escalation policy.
func WithEscalationRules(rules map[domain.ActivityType]EscalationRule) Option {
	return func(c *Cache) {
		if len(rules) > 0 {
			c.rules = rules
		}
	}
}

// WithClock injects the time source for deterministic expiry tests.
func WithClock(nowFn func() time.Time) Option {
	return func(c *Cache) {
		if nowFn != nil {
			c.nowFn = nowFn
		}
	}
}

// WithSecuritySink attaches the security-event sink for escalation events.
func WithSecuritySink(sink SecuritySink) Option {
	return func(c *Cache) {
		c.sink = sink
	}
}

// NewCache constructs an empty mirror over the persisted store.
func NewCache(repo ports.BlacklistRepository, logger *slog.Logger, opts ...Option) *Cache {
	c := &Cache{
		repo:    repo,
		rules:   DefaultEscalationRules(),
		logger:  logger,
		nowFn:   time.Now,
		entries: make(map[string]domain.BlacklistEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Initialize loads every non-expired entry from the store into the map.
// Safe to re-run after a crash: the map is replaced wholesale.
func (c *Cache) Initialize(ctx context.Context) error {
	entries, err := c.repo.ListActive(ctx, c.nowFn())
	if err != nil {
		return fmt.Errorf("load blacklist: %w", err)
	}

	fresh := make(map[string]domain.BlacklistEntry, len(entries))
	for _, entry := range entries {
		fresh[entry.IPAddress] = entry
	}

	c.mu.Lock()
	c.entries = fresh
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "blacklist cache initialized",
		"module", "blacklist",
		"layer", "core",
		"operation", "initialize",
		"outcome", "success",
		"entry_count", len(fresh),
	)
	return nil
}

// IsBlacklisted answers the request gate. It consults only the map; an entry
// whose expiry has passed is lazily evicted and treated as absent.
func (c *Cache) IsBlacklisted(ip string) bool {
	return c.lookup(ip) != nil
}

// Reason returns the (non-sensitive) reason string for a blocked IP, or ""
// when the IP is not blocked.
func (c *Cache) Reason(ip string) string {
	if entry := c.lookup(ip); entry != nil {
		return entry.Reason
	}
	return ""
}

// Add writes through to the persisted store and then updates the map.
// A nil duration means the entry is permanent. The map is intentionally not
// touched when the persisted write fails, keeping mirror and store coherent.
func (c *Cache) Add(ctx context.Context, ip, reason string, duration *time.Duration, source domain.BlacklistSource, details string) error {
	now := c.nowFn()
	entry := domain.BlacklistEntry{
		IPAddress: ip,
		Reason:    reason,
		Source:    source,
		Details:   details,
		CreatedAt: now,
	}
	if duration != nil {
		expiresAt := now.Add(*duration)
		entry.ExpiresAt = &expiresAt
	}

	if err := c.repo.Upsert(ctx, entry); err != nil {
		c.logger.ErrorContext(ctx, "blacklist persist failed",
			"module", "blacklist",
			"layer", "core",
			"operation", "add",
			"outcome", "failure",
			"ip", ip,
			"error", err,
		)
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}

	c.mu.Lock()
	c.entries[ip] = entry
	c.mu.Unlock()
	return nil
}

// Remove deletes from the store first and only then from the map.
func (c *Cache) Remove(ctx context.Context, ip string) error {
	if err := c.repo.Delete(ctx, ip); err != nil {
		c.logger.ErrorContext(ctx, "blacklist delete failed",
			"module", "blacklist",
			"layer", "core",
			"operation", "remove",
			"outcome", "failure",
			"ip", ip,
			"error", err,
		)
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}

	c.mu.Lock()
	delete(c.entries, ip)
	c.mu.Unlock()
	return nil
}

// List snapshots the current non-expired entries, for the admin surface.
func (c *Cache) List() []domain.BlacklistEntry {
	now := c.nowFn()
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.BlacklistEntry, 0, len(c.entries))
	for _, entry := range c.entries {
		if !entry.Expired(now) {
			out = append(out, entry)
		}
	}
	return out
}

// HandleSuspiciousActivity applies automatic escalation: once the observed
// count reaches the activity's threshold, the IP is banned for the activity's
// configured duration and a HIGH security event is emitted. Returns whether
// an entry was created.
func (c *Cache) HandleSuspiciousActivity(ctx context.Context, ip string, activity domain.ActivityType, observedCount int) (bool, error) {
	rule, ok := c.rules[activity]
	if !ok || observedCount < rule.Threshold {
		return false, nil
	}

	duration := rule.Duration
	reason := fmt.Sprintf("Automatic: %s threshold reached (%d observations)", activity, observedCount)
	if err := c.Add(ctx, ip, reason, &duration, domain.BlacklistSourceAutomatic, ""); err != nil {
		return false, err
	}

	if c.sink != nil {
		c.sink.RecordSecurityEvent(domain.SecurityLogEntry{
			EventType: "IP_AUTO_BLACKLISTED",
			Severity:  domain.SeverityHigh,
			Details:   reason,
			IPAddress: ip,
			Timestamp: c.nowFn(),
		})
	}
	return true, nil
}

// Threshold exposes the configured threshold for an activity type.
func (c *Cache) Threshold(activity domain.ActivityType) int {
	return c.rules[activity].Threshold
}

// Sweep purges expired entries from the persisted store and the map.
// Only already-expired rows are touched, so it is safe beside live traffic.
func (c *Cache) Sweep(ctx context.Context) (int64, error) {
	now := c.nowFn()
	deleted, err := c.repo.DeleteExpired(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}

	c.mu.Lock()
	for ip, entry := range c.entries {
		if entry.Expired(now) {
			delete(c.entries, ip)
		}
	}
	c.mu.Unlock()

	if deleted > 0 {
		c.logger.InfoContext(ctx, "blacklist sweep completed",
			"module", "blacklist",
			"layer", "core",
			"operation", "sweep",
			"outcome", "success",
			"deleted_count", deleted,
		)
	}
	return deleted, nil
}

// RunSweeper loops Sweep on the given interval until context cancellation.
func (c *Cache) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.Sweep(ctx); err != nil {
				c.logger.ErrorContext(ctx, "blacklist sweep failed",
					"module", "blacklist",
					"layer", "core",
					"operation", "sweep",
					"outcome", "failure",
					"error", err,
				)
			}
		}
	}
}

func (c *Cache) lookup(ip string) *domain.BlacklistEntry {
	c.mu.RLock()
	entry, ok := c.entries[ip]
	c.mu.RUnlock()
	if !ok {
		return nil
	}
	if entry.Expired(c.nowFn()) {
		c.mu.Lock()
		// Re-check under the write lock: another goroutine may have replaced
		// the entry with a fresh ban since the read.
		if current, still := c.entries[ip]; still && current.Expired(c.nowFn()) {
			delete(c.entries, ip)
		}
		c.mu.Unlock()
		return nil
	}
	return &entry
}
