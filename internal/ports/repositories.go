package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M14-account-security-service/internal/domain"
)

// CredentialRepository manages 2FA credential state.
// The invariant it protects: a credential is fully enabled (secret present)
// or fully disabled (secret cleared); there is no half-enabled row.
type CredentialRepository interface {
	Get(ctx context.Context, userID uuid.UUID) (domain.TwoFactorCredential, error)
	Enable(ctx context.Context, userID uuid.UUID, secretEncrypted []byte, enabledAt time.Time) error
	Disable(ctx context.Context, userID uuid.UUID, disabledAt time.Time) error
}

// BackupCodeRepository owns single-use recovery codes.
// Replace is atomic so regeneration can never leave a mixed old/new set, and
// Consume marks exactly one unused hash as spent.
type BackupCodeRepository interface {
	Replace(ctx context.Context, userID uuid.UUID, codeHashes []string, createdAt time.Time) error
	ListUnused(ctx context.Context, userID uuid.UUID) ([]domain.BackupCode, error)
	Consume(ctx context.Context, userID uuid.UUID, backupCodeID uuid.UUID, usedAt time.Time) (bool, error)
	CountUnused(ctx context.Context, userID uuid.UUID) (int, error)
	DeleteAll(ctx context.Context, userID uuid.UUID) error
}

// BlacklistRepository is the persisted source of truth the in-memory
// reputation cache mirrors. ListActive feeds cache initialization;
// DeleteExpired backs the periodic sweep.
type BlacklistRepository interface {
	Upsert(ctx context.Context, entry domain.BlacklistEntry) error
	Delete(ctx context.Context, ipAddress string) error
	ListActive(ctx context.Context, now time.Time) ([]domain.BlacklistEntry, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// SettingsRepository stores per-user security preferences.
type SettingsRepository interface {
	Get(ctx context.Context, userID uuid.UUID) (domain.SecuritySettings, error)
	Upsert(ctx context.Context, settings domain.SecuritySettings) error
}

// AuditQuery filters audit-log reads. Zero values mean "no constraint".
type AuditQuery struct {
	UserID  *uuid.UUID
	Action  string
	Success *bool
	Since   *time.Time
}

// AuditLogRepository persists append-only audit entries.
// Entries are immutable once inserted; the only delete path is retention cleanup.
type AuditLogRepository interface {
	Insert(ctx context.Context, entry domain.AuditLogEntry) error
	List(ctx context.Context, q AuditQuery, limit, offset int) ([]domain.AuditLogEntry, error)
	// RecentLoginIPs returns the most recent distinct source IPs of successful
	// logins, newest first, bounded by limit.
	RecentLoginIPs(ctx context.Context, userID uuid.UUID, limit int) ([]string, error)
	CountLogins(ctx context.Context, userID uuid.UUID) (int64, error)
	Stats(ctx context.Context, since time.Time) (total int64, failed int64, err error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// SecurityLogRepository persists security events (may lack a user attribution).
type SecurityLogRepository interface {
	Insert(ctx context.Context, entry domain.SecurityLogEntry) error
	List(ctx context.Context, userID *uuid.UUID, limit, offset int) ([]domain.SecurityLogEntry, error)
	CountSince(ctx context.Context, since time.Time) (int64, error)
	CountRecentByUser(ctx context.Context, userID uuid.UUID, since time.Time) (int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
