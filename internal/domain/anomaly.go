package domain

// AnomalyType classifies a deviation between the current login and history.
type AnomalyType string

const (
	AnomalyCountryChange   AnomalyType = "COUNTRY_CHANGE"
	AnomalyRegionChange    AnomalyType = "REGION_CHANGE"
	AnomalyCityChange      AnomalyType = "CITY_CHANGE"
	AnomalySuspiciousProxy AnomalyType = "SUSPICIOUS_PROXY"
	AnomalyUnusualTime     AnomalyType = "UNUSUAL_TIME"
	AnomalyHighRiskCountry AnomalyType = "HIGH_RISK_COUNTRY"
)

// Severity orders anomaly and security-event impact.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// LocationAnomaly is a transient per-login risk signal.
// It is not persisted as its own entity; occurrences land in the security log.
type LocationAnomaly struct {
	Type        AnomalyType     `json:"type"`
	Severity    Severity        `json:"severity"`
	Description string          `json:"description"`
	Details     AnomalyDetails  `json:"details"`
}

// AnomalyDetails carries the evidence behind a detected anomaly.
// RiskScore is normalized to [0,1].
type AnomalyDetails struct {
	CurrentLocation  *GeoLocation `json:"current_location"`
	PreviousLocation *GeoLocation `json:"previous_location,omitempty"`
	RiskScore        float64      `json:"risk_score"`
}

// LocationStats aggregates a user's resolved login history.
type LocationStats struct {
	TotalLogins         int          `json:"total_logins"`
	UniqueCountries     int          `json:"unique_countries"`
	UniqueCities        int          `json:"unique_cities"`
	MostFrequentCountry string       `json:"most_frequent_country"`
	MostFrequentCity    string       `json:"most_frequent_city"`
	LastLoginLocation   *GeoLocation `json:"last_login_location,omitempty"`
}
