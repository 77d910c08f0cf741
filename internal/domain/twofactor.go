package domain

import (
	"time"

	"github.com/google/uuid"
)

// TwoFactorCredential is the 1:1 second-factor state for a user.
// The secret is symmetric-encrypted at rest; a disabled credential keeps no secret.
type TwoFactorCredential struct {
	UserID          uuid.UUID
	SecretEncrypted []byte
	Enabled         bool
	EnabledAt       *time.Time
	DisabledAt      *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// BackupCode is a single-use recovery credential stored as a salted hash.
type BackupCode struct {
	BackupCodeID uuid.UUID
	UserID       uuid.UUID
	CodeHash     string
	CreatedAt    time.Time
	UsedAt       *time.Time
}
