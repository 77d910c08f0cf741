package application

import (
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M14-account-security-service/internal/domain"
)

type Config struct {
	Issuer          string
	BackupCodeCount int
	AuditWindowDays int
	// ActivityWindow bounds the rolling window of the suspicious-activity
	// counters that feed automatic blacklist escalation.
	ActivityWindow time.Duration
	// AnomalyEscalationThreshold is the number of security events, recent plus
	// current, at which escalating anomalies start feeding the counters.
	AnomalyEscalationThreshold int
	// AnomalyEscalationWindow bounds how far back the frequency gate looks.
	AnomalyEscalationWindow time.Duration
}

// RequestMeta carries transport-level attribution into audit entries.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

type TwoFASetupResponse struct {
	Secret      string   `json:"secret"`
	QRCodeURL   string   `json:"qr_code_url"`
	BackupCodes []string `json:"backup_codes"`
}

type TwoFAEnableRequest struct {
	Secret string `json:"secret"`
	Code   string `json:"code"`
}

type TwoFAEnableResponse struct {
	Enabled     bool     `json:"enabled"`
	BackupCodes []string `json:"backup_codes"`
}

type TwoFADisableRequest struct {
	Code string `json:"code"`
}

type TwoFAVerifyRequest struct {
	Code string `json:"code"`
}

type TwoFAVerifyResponse struct {
	Success      bool `json:"success"`
	IsBackupCode bool `json:"is_backup_code"`
}

type BackupCodesResponse struct {
	BackupCodes []string `json:"backup_codes"`
}

type SettingsResponse struct {
	TwoFactorEnabled     bool                 `json:"two_factor_enabled"`
	EmailVerified        bool                 `json:"email_verified"`
	LoginAlertsEnabled   bool                 `json:"login_alerts_enabled"`
	AnomalyChecks        bool                 `json:"anomaly_checks"`
	RemainingBackupCodes int                  `json:"remaining_backup_codes"`
	SecurityScore        int                  `json:"security_score"`
	LocationStats        domain.LocationStats `json:"location_stats"`
}

type SettingsUpdateRequest struct {
	LoginAlertsEnabled *bool `json:"login_alerts_enabled"`
	AnomalyChecks      *bool `json:"anomaly_checks"`
}

type ActivityQuery struct {
	Page   int
	Limit  int
	Days   int
	Action string
}

type ActivityItem struct {
	ID        int64     `json:"id"`
	Action    string    `json:"action"`
	Resource  string    `json:"resource,omitempty"`
	Details   string    `json:"details,omitempty"`
	IPAddress string    `json:"ip_address,omitempty"`
	Success   bool      `json:"success"`
	Timestamp time.Time `json:"timestamp"`
}

type AssessLoginRequest struct {
	UserID    uuid.UUID `json:"user_id"`
	IPAddress string    `json:"ip_address"`
	UserAgent string    `json:"user_agent"`
	Success   bool      `json:"success"`
}

type AssessLoginResponse struct {
	Anomalies   []domain.LocationAnomaly `json:"anomalies"`
	RiskScore   float64                  `json:"risk_score"`
	Location    *domain.GeoLocation      `json:"location,omitempty"`
	Blacklisted bool                     `json:"blacklisted"`
}

type BlacklistAddRequest struct {
	IPAddress       string `json:"ip_address"`
	Reason          string `json:"reason"`
	DurationMinutes *int   `json:"duration_minutes"`
	Details         string `json:"details,omitempty"`
}

type BlacklistListResponse struct {
	Entries []domain.BlacklistEntry `json:"entries"`
}
