// Package geo resolves IP addresses to locations through a pluggable
// provider, fronted by a TTL cache and a private-address shortcut.
package geo

import (
	"context"
	"log/slog"
	"math"
	"net"
	"sync"
	"time"

	"github.com/viralforge/mesh/services/trust-compliance/M14-account-security-service/internal/domain"
	"github.com/viralforge/mesh/services/trust-compliance/M14-account-security-service/internal/ports"
)

// DefaultCacheTTL keeps resolved locations for a day; IP-to-location mappings
// drift slowly enough that anything fresher is wasted provider quota.
const DefaultCacheTTL = 24 * time.Hour

type cacheEntry struct {
	location domain.GeoLocation
	storedAt time.Time
}

// Resolver answers location queries with cache-first semantics.
// Provider failures are soft: Resolve returns nil without error so callers
// degrade to "no location signal" instead of blocking the login path.
type Resolver struct {
	provider ports.GeoProvider
	logger   *slog.Logger
	ttl      time.Duration
	nowFn    func() time.Time

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// Option mutates resolver construction.
type Option func(*Resolver)

// WithTTL overrides the cache entry lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(r *Resolver) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithClock injects the time source for deterministic expiry tests.
func WithClock(nowFn func() time.Time) Option {
	return func(r *Resolver) {
		if nowFn != nil {
			r.nowFn = nowFn
		}
	}
}

// NewResolver constructs a resolver over the given provider.
func NewResolver(provider ports.GeoProvider, logger *slog.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		provider: provider,
		logger:   logger,
		ttl:      DefaultCacheTTL,
		nowFn:    time.Now,
		cache:    make(map[string]cacheEntry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve maps an IP to a location. Local/private addresses return the
// synthetic local location without touching cache or provider. A provider
// failure returns (nil, nil) after a warn log; results are cached only on
// success.
func (r *Resolver) Resolve(ctx context.Context, ip string) (*domain.GeoLocation, error) {
	if IsLocalIP(ip) {
		return domain.LocalLocation(ip), nil
	}

	now := r.nowFn()
	r.mu.RLock()
	entry, ok := r.cache[ip]
	r.mu.RUnlock()
	if ok && now.Sub(entry.storedAt) < r.ttl {
		loc := entry.location
		return &loc, nil
	}

	location, err := r.provider.Lookup(ctx, ip)
	if err != nil || location == nil {
		r.logger.WarnContext(ctx, "geolocation lookup failed",
			"module", "geo",
			"layer", "core",
			"operation", "resolve",
			"outcome", "soft_failure",
			"ip", ip,
			"error", err,
		)
		return nil, nil
	}

	r.mu.Lock()
	r.cache[ip] = cacheEntry{location: *location, storedAt: now}
	r.mu.Unlock()
	return location, nil
}

// Clear drops every cached entry.
func (r *Resolver) Clear() {
	r.mu.Lock()
	r.cache = make(map[string]cacheEntry)
	r.mu.Unlock()
}

// CacheStats reports cache occupancy for operational introspection.
type CacheStats struct {
	Size int      `json:"size"`
	Keys []string `json:"keys"`
}

// Stats returns a snapshot of cache size and keys.
func (r *Resolver) Stats() CacheStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.cache))
	for key := range r.cache {
		keys = append(keys, key)
	}
	return CacheStats{Size: len(r.cache), Keys: keys}
}

// IsLocalIP reports whether the address belongs to a range that never leaves
// the local network: loopback, RFC1918 private blocks, link-local, and their
// IPv6 equivalents. Unparseable addresses are treated as local so junk input
// never triggers a provider call.
func IsLocalIP(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return true
	}
	return parsed.IsLoopback() ||
		parsed.IsPrivate() ||
		parsed.IsLinkLocalUnicast() ||
		parsed.IsLinkLocalMulticast() ||
		parsed.IsUnspecified()
}

const earthRadiusKm = 6371.0

// Distance computes the great-circle distance in kilometers between two
// coordinate pairs using the haversine formula.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := radians(lat2 - lat1)
	dLon := radians(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

func radians(degrees float64) float64 {
	return degrees * math.Pi / 180
}
