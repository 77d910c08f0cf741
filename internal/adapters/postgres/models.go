package postgres

import (
	"time"

	"github.com/google/uuid"
)

type twoFactorCredentialModel struct {
	UserID          uuid.UUID  `gorm:"column:user_id;type:uuid;primaryKey"`
	SecretEncrypted []byte     `gorm:"column:secret_encrypted"`
	Enabled         bool       `gorm:"column:enabled"`
	EnabledAt       *time.Time `gorm:"column:enabled_at"`
	DisabledAt      *time.Time `gorm:"column:disabled_at"`
	CreatedAt       time.Time  `gorm:"column:created_at"`
	UpdatedAt       time.Time  `gorm:"column:updated_at"`
}

func (twoFactorCredentialModel) TableName() string { return "two_factor_credentials" }

type backupCodeModel struct {
	BackupCodeID uuid.UUID  `gorm:"column:backup_code_id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID       uuid.UUID  `gorm:"column:user_id"`
	CodeHash     string     `gorm:"column:code_hash"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	UsedAt       *time.Time `gorm:"column:used_at"`
}

func (backupCodeModel) TableName() string { return "backup_codes" }

type blacklistEntryModel struct {
	IPAddress string     `gorm:"column:ip_address;primaryKey"`
	Reason    string     `gorm:"column:reason"`
	Source    string     `gorm:"column:source"`
	ExpiresAt *time.Time `gorm:"column:expires_at"`
	Details   string     `gorm:"column:details"`
	CreatedAt time.Time  `gorm:"column:created_at"`
}

func (blacklistEntryModel) TableName() string { return "ip_blacklist" }

type securitySettingsModel struct {
	UserID             uuid.UUID `gorm:"column:user_id;type:uuid;primaryKey"`
	Email              string    `gorm:"column:email"`
	EmailVerified      bool      `gorm:"column:email_verified"`
	LoginAlertsEnabled bool      `gorm:"column:login_alerts_enabled"`
	AnomalyChecks      bool      `gorm:"column:anomaly_checks"`
	CreatedAt          time.Time `gorm:"column:created_at"`
	UpdatedAt          time.Time `gorm:"column:updated_at"`
}

func (securitySettingsModel) TableName() string { return "security_settings" }

type auditLogModel struct {
	ID           int64      `gorm:"column:id;primaryKey"`
	UserID       *uuid.UUID `gorm:"column:user_id"`
	Action       string     `gorm:"column:action"`
	Resource     string     `gorm:"column:resource"`
	ResourceID   string     `gorm:"column:resource_id"`
	Details      string     `gorm:"column:details"`
	IPAddress    *string    `gorm:"column:ip_address"`
	UserAgent    string     `gorm:"column:user_agent"`
	Success      bool       `gorm:"column:success"`
	ErrorMessage string     `gorm:"column:error_message"`
	Timestamp    time.Time  `gorm:"column:timestamp"`
}

func (auditLogModel) TableName() string { return "audit_logs" }

type securityLogModel struct {
	ID        int64      `gorm:"column:id;primaryKey"`
	UserID    *uuid.UUID `gorm:"column:user_id"`
	EventType string     `gorm:"column:event_type"`
	Severity  string     `gorm:"column:severity"`
	Details   string     `gorm:"column:details"`
	IPAddress *string    `gorm:"column:ip_address"`
	UserAgent string     `gorm:"column:user_agent"`
	Timestamp time.Time  `gorm:"column:timestamp"`
}

func (securityLogModel) TableName() string { return "security_logs" }
