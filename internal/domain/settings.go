package domain

import (
	"time"

	"github.com/google/uuid"
)

// SecuritySettings holds per-user security preferences and identity mirrors.
// EmailVerified is owned by the identity service; the value here is a mirror
// refreshed through settings updates, never authoritative.
type SecuritySettings struct {
	UserID             uuid.UUID
	Email              string
	EmailVerified      bool
	LoginAlertsEnabled bool
	AnomalyChecks      bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
