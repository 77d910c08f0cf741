package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditLogEntry records a user-attributed action. Append-only: never updated
// after creation, only bulk-deleted by retention cleanup.
type AuditLogEntry struct {
	ID           int64
	UserID       *uuid.UUID
	Action       string
	Resource     string
	ResourceID   string
	Details      string
	IPAddress    string
	UserAgent    string
	Success      bool
	ErrorMessage string
	Timestamp    time.Time
}

// SecurityLogEntry records a security-relevant event, not necessarily tied to a user.
type SecurityLogEntry struct {
	ID        int64
	UserID    *uuid.UUID
	EventType string
	Severity  Severity
	Details   string
	IPAddress string
	UserAgent string
	Timestamp time.Time
}

// Well-known audit actions written by this service. The set is open: callers
// may record product-specific actions through the same sink.
const (
	ActionLoginSuccess          = "LOGIN_SUCCESS"
	ActionLoginFailed           = "LOGIN_FAILED"
	ActionTwoFactorEnabled      = "2FA_ENABLED"
	ActionTwoFactorDisabled     = "2FA_DISABLED"
	ActionTwoFactorVerified     = "2FA_VERIFIED"
	ActionBackupCodesRegenerate = "2FA_BACKUP_CODES_REGENERATED"
	ActionSettingsUpdated       = "SECURITY_SETTINGS_UPDATED"
	ActionBlacklistAdded        = "BLACKLIST_ENTRY_ADDED"
	ActionBlacklistRemoved      = "BLACKLIST_ENTRY_REMOVED"
)

// AuditStats summarizes log volume over a trailing window.
type AuditStats struct {
	TotalActions   int64   `json:"total_actions"`
	FailedActions  int64   `json:"failed_actions"`
	SecurityEvents int64   `json:"security_events"`
	SuccessRate    float64 `json:"success_rate"`
}
