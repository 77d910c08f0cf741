// Package anomaly compares a login's resolved location against the user's
// history and emits scored risk signals.
package anomaly

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M14-account-security-service/internal/domain"
	"github.com/viralforge/mesh/services/trust-compliance/M14-account-security-service/internal/ports"
)

// LocationResolver is the slice of the geo resolver the detector needs.
type LocationResolver interface {
	Resolve(ctx context.Context, ip string) (*domain.GeoLocation, error)
}

// SecuritySink accepts security events without ever failing the caller.
type SecuritySink interface {
	RecordSecurityEvent(entry domain.SecurityLogEntry)
}

// Detector evaluates login attempts against historical locations.
// It is a heuristic: resolution failures and empty history yield no signal
// rather than an error, so detection never blocks a login.
type Detector struct {
	cfg      Config
	resolver LocationResolver
	history  ports.AuditLogRepository
	sink     SecuritySink
	logger   *slog.Logger
	nowFn    func() time.Time
}

// NewDetector wires the detector. The sink may be nil when callers only want
// the anomaly list without security-log persistence.
func NewDetector(cfg Config, resolver LocationResolver, history ports.AuditLogRepository, sink SecuritySink, logger *slog.Logger) *Detector {
	if cfg.HistoryDepth <= 0 {
		cfg.HistoryDepth = 5
	}
	if cfg.Policies == nil {
		cfg.Policies = DefaultPolicyTable()
	}
	return &Detector{
		cfg:      cfg,
		resolver: resolver,
		history:  history,
		sink:     sink,
		logger:   logger,
		nowFn:    time.Now,
	}
}

// WithClock injects the time source; used by tests for the quiet-hour rule.
func (d *Detector) WithClock(nowFn func() time.Time) *Detector {
	if nowFn != nil {
		d.nowFn = nowFn
	}
	return d
}

// Detect runs the full rule set for one login attempt. Anomalies are
// independent: several may co-occur. Every emitted anomaly is also written
// into the security log at a severity-mapped level.
func (d *Detector) Detect(ctx context.Context, userID uuid.UUID, currentIP string) ([]domain.LocationAnomaly, error) {
	current, err := d.resolver.Resolve(ctx, currentIP)
	if err != nil || current == nil {
		// No location data means no anomaly can be asserted.
		return nil, nil
	}

	previous := d.lastKnownLocation(ctx, userID)

	anomalies := make([]domain.LocationAnomaly, 0, 4)
	if previous != nil {
		if current.CountryCode != previous.CountryCode {
			anomalies = append(anomalies, d.newAnomaly(
				domain.AnomalyCountryChange,
				fmt.Sprintf("Login from %s, previous login from %s", current.Country, previous.Country),
				current, previous,
			))
		} else if current.RegionCode != previous.RegionCode {
			anomalies = append(anomalies, d.newAnomaly(
				domain.AnomalyRegionChange,
				fmt.Sprintf("Login from %s, previous login from %s", current.Region, previous.Region),
				current, previous,
			))
		}
	}

	if current.Proxy || current.VPN {
		anomalies = append(anomalies, d.newAnomaly(
			domain.AnomalySuspiciousProxy,
			"Login through a proxy or VPN connection",
			current, previous,
		))
	}

	if d.cfg.HighRiskCountries[current.CountryCode] {
		anomalies = append(anomalies, d.newAnomaly(
			domain.AnomalyHighRiskCountry,
			fmt.Sprintf("Login from high-risk country %s", current.Country),
			current, previous,
		))
	}

	if previous != nil && d.cfg.unusualHour(d.localTime(current)) {
		anomalies = append(anomalies, d.newAnomaly(
			domain.AnomalyUnusualTime,
			"Login at an unusual hour for the account's location",
			current, previous,
		))
	}

	// First observed login: only baseline-free checks would have fired, and
	// with no history there is no pattern to deviate from.
	if previous == nil {
		return nil, nil
	}

	for _, a := range anomalies {
		d.record(ctx, userID, currentIP, a)
	}
	return anomalies, nil
}

// LocationStats aggregates the user's resolved login history. Missing history
// yields zeroed counters with "Unknown" placeholders rather than an error.
func (d *Detector) LocationStats(ctx context.Context, userID uuid.UUID) (domain.LocationStats, error) {
	stats := domain.LocationStats{
		MostFrequentCountry: "Unknown",
		MostFrequentCity:    "Unknown",
	}

	total, err := d.history.CountLogins(ctx, userID)
	if err != nil {
		return stats, err
	}
	stats.TotalLogins = int(total)
	if total == 0 {
		return stats, nil
	}

	ips, err := d.history.RecentLoginIPs(ctx, userID, 50)
	if err != nil {
		return stats, err
	}

	countries := make(map[string]int)
	cities := make(map[string]int)
	for i, ip := range ips {
		loc, resolveErr := d.resolver.Resolve(ctx, ip)
		if resolveErr != nil || loc == nil {
			continue
		}
		if i == 0 {
			stats.LastLoginLocation = loc
		}
		if loc.Country != "" {
			countries[loc.Country]++
		}
		if loc.City != "" {
			cities[loc.City]++
		}
	}

	stats.UniqueCountries = len(countries)
	stats.UniqueCities = len(cities)
	if country := mostFrequent(countries); country != "" {
		stats.MostFrequentCountry = country
	}
	if city := mostFrequent(cities); city != "" {
		stats.MostFrequentCity = city
	}
	return stats, nil
}

// Policy exposes the active policy for an anomaly type.
func (d *Detector) Policy(anomalyType domain.AnomalyType) Policy {
	return d.cfg.Policies[anomalyType]
}

// lastKnownLocation resolves the most recent historical login IP that still
// resolves. A user without resolvable history has no baseline.
func (d *Detector) lastKnownLocation(ctx context.Context, userID uuid.UUID) *domain.GeoLocation {
	ips, err := d.history.RecentLoginIPs(ctx, userID, d.cfg.HistoryDepth)
	if err != nil {
		d.logger.WarnContext(ctx, "login history unavailable",
			"module", "anomaly",
			"layer", "core",
			"operation", "load_history",
			"outcome", "soft_failure",
			"user_id", userID,
			"error", err,
		)
		return nil
	}
	for _, ip := range ips {
		loc, resolveErr := d.resolver.Resolve(ctx, ip)
		if resolveErr == nil && loc != nil {
			return loc
		}
	}
	return nil
}

func (d *Detector) newAnomaly(anomalyType domain.AnomalyType, description string, current, previous *domain.GeoLocation) domain.LocationAnomaly {
	policy := d.cfg.Policies[anomalyType]
	return domain.LocationAnomaly{
		Type:        anomalyType,
		Severity:    policy.Severity,
		Description: description,
		Details: domain.AnomalyDetails{
			CurrentLocation:  current,
			PreviousLocation: previous,
			RiskScore:        policy.RiskScore,
		},
	}
}

func (d *Detector) record(ctx context.Context, userID uuid.UUID, ip string, a domain.LocationAnomaly) {
	level := slog.LevelInfo
	switch a.Severity {
	case domain.SeverityHigh:
		level = slog.LevelWarn
	case domain.SeverityCritical:
		level = slog.LevelError
	}
	d.logger.Log(ctx, level, "login anomaly detected",
		"module", "anomaly",
		"layer", "core",
		"operation", "detect",
		"outcome", "anomaly",
		"user_id", userID,
		"ip", ip,
		"anomaly_type", string(a.Type),
		"severity", string(a.Severity),
		"risk_score", a.Details.RiskScore,
	)

	if d.sink == nil {
		return
	}
	uid := userID
	d.sink.RecordSecurityEvent(domain.SecurityLogEntry{
		UserID:    &uid,
		EventType: "ANOMALY_" + string(a.Type),
		Severity:  a.Severity,
		Details:   a.Description,
		IPAddress: ip,
		Timestamp: d.nowFn(),
	})
}

// localTime shifts now into the resolved location's timezone when it parses;
// otherwise the server clock is used as-is.
func (d *Detector) localTime(loc *domain.GeoLocation) time.Time {
	now := d.nowFn()
	if loc.Timezone == "" {
		return now
	}
	tz, err := time.LoadLocation(loc.Timezone)
	if err != nil {
		return now
	}
	return now.In(tz)
}

func mostFrequent(counts map[string]int) string {
	best := ""
	bestCount := 0
	for value, count := range counts {
		if count > bestCount || (count == bestCount && value < best) {
			best = value
			bestCount = count
		}
	}
	return best
}
