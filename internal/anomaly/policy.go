package anomaly

import (
	"time"

	"github.com/viralforge/mesh/services/trust-compliance/M14-account-security-service/internal/domain"
)

// Policy binds an anomaly type to its severity, normalized risk score, and
// blacklist-escalation behavior. Keeping the table explicit lets operators
// retune scoring without touching detection logic.
type Policy struct {
	Severity  domain.Severity
	RiskScore float64
	// Escalates marks anomaly types that count toward automatic blacklisting.
	Escalates bool
}

// PolicyTable maps every anomaly type to its policy.
type PolicyTable map[domain.AnomalyType]Policy

// DefaultPolicyTable returns the shipped scoring policy.
func DefaultPolicyTable() PolicyTable {
	return PolicyTable{
		domain.AnomalyCountryChange:   {Severity: domain.SeverityHigh, RiskScore: 0.8, Escalates: true},
		domain.AnomalyRegionChange:    {Severity: domain.SeverityMedium, RiskScore: 0.6},
		domain.AnomalyCityChange:      {Severity: domain.SeverityLow, RiskScore: 0.4},
		domain.AnomalySuspiciousProxy: {Severity: domain.SeverityMedium, RiskScore: 0.7},
		domain.AnomalyHighRiskCountry: {Severity: domain.SeverityCritical, RiskScore: 0.9, Escalates: true},
		domain.AnomalyUnusualTime:     {Severity: domain.SeverityLow, RiskScore: 0.3},
	}
}

// Config tunes detection behavior.
type Config struct {
	// HighRiskCountries is the set of ISO country codes treated as critical.
	HighRiskCountries map[string]bool
	// HistoryDepth bounds how many recent distinct login IPs form the baseline.
	HistoryDepth int
	// QuietHourStart/QuietHourEnd bracket the "unusual time" window: logins
	// before QuietHourEnd or at/after QuietHourStart are flagged.
	QuietHourStart int
	QuietHourEnd   int
	Policies       PolicyTable
}

// DefaultConfig returns detection defaults matching product policy.
func DefaultConfig() Config {
	return Config{
		HighRiskCountries: map[string]bool{},
		HistoryDepth:      5,
		QuietHourStart:    23,
		QuietHourEnd:      6,
		Policies:          DefaultPolicyTable(),
	}
}

// unusualHour reports whether the local hour falls in the quiet window.
func (c Config) unusualHour(t time.Time) bool {
	hour := t.Hour()
	return hour < c.QuietHourEnd || hour >= c.QuietHourStart
}
