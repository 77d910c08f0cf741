package domain

import "time"

// BlacklistSource records how an entry was created.
type BlacklistSource string

const (
	BlacklistSourceManual    BlacklistSource = "MANUAL"
	BlacklistSourceAutomatic BlacklistSource = "AUTOMATIC"
	BlacklistSourceSystem    BlacklistSource = "SYSTEM"
)

// ActivityType keys automatic escalation thresholds and durations.
type ActivityType string

const (
	ActivityFailedLogin        ActivityType = "FAILED_LOGIN"
	ActivityRateLimitViolation ActivityType = "RATE_LIMIT_VIOLATION"
	ActivityUnauthorizedAccess ActivityType = "UNAUTHORIZED_ACCESS"
	ActivityUploadViolation    ActivityType = "UPLOAD_VIOLATION"
)

// BlacklistEntry denies service to one IP address, optionally until ExpiresAt.
// A nil ExpiresAt means the entry is permanent.
type BlacklistEntry struct {
	IPAddress string          `json:"ip_address"`
	Reason    string          `json:"reason"`
	Source    BlacklistSource `json:"source"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`
	Details   string          `json:"details,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Expired reports whether the entry has lapsed relative to now.
func (e BlacklistEntry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && !e.ExpiresAt.After(now)
}
