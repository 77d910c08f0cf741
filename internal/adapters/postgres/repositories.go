package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M14-account-security-service/internal/domain"
	"github.com/viralforge/mesh/services/trust-compliance/M14-account-security-service/internal/ports"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repositories struct {
	Credentials  ports.CredentialRepository
	BackupCodes  ports.BackupCodeRepository
	Blacklist    ports.BlacklistRepository
	Settings     ports.SettingsRepository
	AuditLogs    ports.AuditLogRepository
	SecurityLogs ports.SecurityLogRepository
}

func NewRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Credentials:  &credentialRepository{db: db},
		BackupCodes:  &backupCodeRepository{db: db},
		Blacklist:    &blacklistRepository{db: db},
		Settings:     &settingsRepository{db: db},
		AuditLogs:    &auditLogRepository{db: db},
		SecurityLogs: &securityLogRepository{db: db},
	}
}

type credentialRepository struct {
	db *gorm.DB
}

func (r *credentialRepository) Get(ctx context.Context, userID uuid.UUID) (domain.TwoFactorCredential, error) {
	var rec twoFactorCredentialModel
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.TwoFactorCredential{}, domain.ErrNotFound
		}
		return domain.TwoFactorCredential{}, err
	}
	return toDomainCredential(rec), nil
}

func (r *credentialRepository) Enable(ctx context.Context, userID uuid.UUID, secretEncrypted []byte, enabledAt time.Time) error {
	rec := twoFactorCredentialModel{
		UserID:          userID,
		SecretEncrypted: secretEncrypted,
		Enabled:         true,
		EnabledAt:       &enabledAt,
		DisabledAt:      nil,
		CreatedAt:       enabledAt,
		UpdatedAt:       enabledAt,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"secret_encrypted": rec.SecretEncrypted,
			"enabled":          true,
			"enabled_at":       rec.EnabledAt,
			"disabled_at":      nil,
			"updated_at":       rec.UpdatedAt,
		}),
	}).Create(&rec).Error
}

func (r *credentialRepository) Disable(ctx context.Context, userID uuid.UUID, disabledAt time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&twoFactorCredentialModel{}).
		Where("user_id = ?", userID).
		Where("enabled = TRUE").
		Updates(map[string]any{
			"secret_encrypted": nil,
			"enabled":          false,
			"disabled_at":      disabledAt,
			"updated_at":       disabledAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

type backupCodeRepository struct {
	db *gorm.DB
}

func (r *backupCodeRepository) Replace(ctx context.Context, userID uuid.UUID, codeHashes []string, createdAt time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&backupCodeModel{}).Error; err != nil {
			return err
		}
		if len(codeHashes) == 0 {
			return nil
		}
		records := make([]backupCodeModel, 0, len(codeHashes))
		for _, hash := range codeHashes {
			records = append(records, backupCodeModel{
				UserID:    userID,
				CodeHash:  hash,
				CreatedAt: createdAt,
			})
		}
		return tx.Create(&records).Error
	})
}

func (r *backupCodeRepository) ListUnused(ctx context.Context, userID uuid.UUID) ([]domain.BackupCode, error) {
	var rows []backupCodeModel
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("used_at IS NULL").
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]domain.BackupCode, 0, len(rows))
	for _, row := range rows {
		result = append(result, domain.BackupCode{
			BackupCodeID: row.BackupCodeID,
			UserID:       row.UserID,
			CodeHash:     row.CodeHash,
			CreatedAt:    row.CreatedAt,
			UsedAt:       row.UsedAt,
		})
	}
	return result, nil
}

func (r *backupCodeRepository) Consume(ctx context.Context, userID uuid.UUID, backupCodeID uuid.UUID, usedAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&backupCodeModel{}).
		Where("backup_code_id = ?", backupCodeID).
		Where("user_id = ?", userID).
		Where("used_at IS NULL").
		Update("used_at", usedAt)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *backupCodeRepository) CountUnused(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&backupCodeModel{}).
		Where("user_id = ?", userID).
		Where("used_at IS NULL").
		Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

func (r *backupCodeRepository) DeleteAll(ctx context.Context, userID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&backupCodeModel{}).Error
}

type blacklistRepository struct {
	db *gorm.DB
}

func (r *blacklistRepository) Upsert(ctx context.Context, entry domain.BlacklistEntry) error {
	rec := blacklistEntryModel{
		IPAddress: entry.IPAddress,
		Reason:    entry.Reason,
		Source:    string(entry.Source),
		ExpiresAt: entry.ExpiresAt,
		Details:   entry.Details,
		CreatedAt: entry.CreatedAt,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "ip_address"}},
		DoUpdates: clause.Assignments(map[string]any{
			"reason":     rec.Reason,
			"source":     rec.Source,
			"expires_at": rec.ExpiresAt,
			"details":    rec.Details,
			"created_at": rec.CreatedAt,
		}),
	}).Create(&rec).Error
}

func (r *blacklistRepository) Delete(ctx context.Context, ipAddress string) error {
	return r.db.WithContext(ctx).Where("ip_address = ?", ipAddress).Delete(&blacklistEntryModel{}).Error
}

func (r *blacklistRepository) ListActive(ctx context.Context, now time.Time) ([]domain.BlacklistEntry, error) {
	var rows []blacklistEntryModel
	if err := r.db.WithContext(ctx).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]domain.BlacklistEntry, 0, len(rows))
	for _, row := range rows {
		result = append(result, domain.BlacklistEntry{
			IPAddress: row.IPAddress,
			Reason:    row.Reason,
			Source:    domain.BlacklistSource(row.Source),
			ExpiresAt: row.ExpiresAt,
			Details:   row.Details,
			CreatedAt: row.CreatedAt,
		})
	}
	return result, nil
}

func (r *blacklistRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at IS NOT NULL").
		Where("expires_at <= ?", now).
		Delete(&blacklistEntryModel{})
	return res.RowsAffected, res.Error
}

type settingsRepository struct {
	db *gorm.DB
}

func (r *settingsRepository) Get(ctx context.Context, userID uuid.UUID) (domain.SecuritySettings, error) {
	var rec securitySettingsModel
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.SecuritySettings{}, domain.ErrNotFound
		}
		return domain.SecuritySettings{}, err
	}
	return domain.SecuritySettings{
		UserID:             rec.UserID,
		Email:              rec.Email,
		EmailVerified:      rec.EmailVerified,
		LoginAlertsEnabled: rec.LoginAlertsEnabled,
		AnomalyChecks:      rec.AnomalyChecks,
		CreatedAt:          rec.CreatedAt,
		UpdatedAt:          rec.UpdatedAt,
	}, nil
}

func (r *settingsRepository) Upsert(ctx context.Context, settings domain.SecuritySettings) error {
	rec := securitySettingsModel{
		UserID:             settings.UserID,
		Email:              settings.Email,
		EmailVerified:      settings.EmailVerified,
		LoginAlertsEnabled: settings.LoginAlertsEnabled,
		AnomalyChecks:      settings.AnomalyChecks,
		CreatedAt:          settings.CreatedAt,
		UpdatedAt:          settings.UpdatedAt,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"email":                rec.Email,
			"email_verified":       rec.EmailVerified,
			"login_alerts_enabled": rec.LoginAlertsEnabled,
			"anomaly_checks":       rec.AnomalyChecks,
			"updated_at":           rec.UpdatedAt,
		}),
	}).Create(&rec).Error
}

type auditLogRepository struct {
	db *gorm.DB
}

func (r *auditLogRepository) Insert(ctx context.Context, entry domain.AuditLogEntry) error {
	rec := auditLogModel{
		UserID:       entry.UserID,
		Action:       entry.Action,
		Resource:     entry.Resource,
		ResourceID:   entry.ResourceID,
		Details:      entry.Details,
		IPAddress:    nullableString(entry.IPAddress),
		UserAgent:    entry.UserAgent,
		Success:      entry.Success,
		ErrorMessage: entry.ErrorMessage,
		Timestamp:    entry.Timestamp,
	}
	return r.db.WithContext(ctx).Create(&rec).Error
}

func (r *auditLogRepository) List(ctx context.Context, q ports.AuditQuery, limit, offset int) ([]domain.AuditLogEntry, error) {
	query := r.db.WithContext(ctx).Model(&auditLogModel{})
	if q.UserID != nil {
		query = query.Where("user_id = ?", *q.UserID)
	}
	if strings.TrimSpace(q.Action) != "" {
		query = query.Where("action = ?", strings.TrimSpace(q.Action))
	}
	if q.Success != nil {
		query = query.Where("success = ?", *q.Success)
	}
	if q.Since != nil {
		query = query.Where("timestamp >= ?", *q.Since)
	}

	var rows []auditLogModel
	if err := query.Order("timestamp DESC").Limit(limit).Offset(offset).Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]domain.AuditLogEntry, 0, len(rows))
	for _, row := range rows {
		result = append(result, toDomainAuditEntry(row))
	}
	return result, nil
}

func (r *auditLogRepository) RecentLoginIPs(ctx context.Context, userID uuid.UUID, limit int) ([]string, error) {
	type ipRow struct {
		IPAddress string    `gorm:"column:ip_address"`
		LastAt    time.Time `gorm:"column:last_at"`
	}
	var rows []ipRow
	if err := r.db.WithContext(ctx).
		Model(&auditLogModel{}).
		Select("ip_address, MAX(timestamp) AS last_at").
		Where("user_id = ?", userID).
		Where("action = ?", domain.ActionLoginSuccess).
		Where("success = TRUE").
		Where("ip_address IS NOT NULL").
		Group("ip_address").
		Order("last_at DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	ips := make([]string, 0, len(rows))
	for _, row := range rows {
		ips = append(ips, row.IPAddress)
	}
	return ips, nil
}

func (r *auditLogRepository) CountLogins(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&auditLogModel{}).
		Where("user_id = ?", userID).
		Where("action = ?", domain.ActionLoginSuccess).
		Where("success = TRUE").
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *auditLogRepository) Stats(ctx context.Context, since time.Time) (int64, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).
		Model(&auditLogModel{}).
		Where("timestamp >= ?", since).
		Count(&total).Error; err != nil {
		return 0, 0, err
	}
	var failed int64
	if err := r.db.WithContext(ctx).
		Model(&auditLogModel{}).
		Where("timestamp >= ?", since).
		Where("success = FALSE").
		Count(&failed).Error; err != nil {
		return 0, 0, err
	}
	return total, failed, nil
}

func (r *auditLogRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("timestamp < ?", cutoff).
		Delete(&auditLogModel{})
	return res.RowsAffected, res.Error
}

type securityLogRepository struct {
	db *gorm.DB
}

func (r *securityLogRepository) Insert(ctx context.Context, entry domain.SecurityLogEntry) error {
	rec := securityLogModel{
		UserID:    entry.UserID,
		EventType: entry.EventType,
		Severity:  string(entry.Severity),
		Details:   entry.Details,
		IPAddress: nullableString(entry.IPAddress),
		UserAgent: entry.UserAgent,
		Timestamp: entry.Timestamp,
	}
	return r.db.WithContext(ctx).Create(&rec).Error
}

func (r *securityLogRepository) List(ctx context.Context, userID *uuid.UUID, limit, offset int) ([]domain.SecurityLogEntry, error) {
	query := r.db.WithContext(ctx).Model(&securityLogModel{})
	if userID != nil {
		query = query.Where("user_id = ?", *userID)
	}
	var rows []securityLogModel
	if err := query.Order("timestamp DESC").Limit(limit).Offset(offset).Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]domain.SecurityLogEntry, 0, len(rows))
	for _, row := range rows {
		result = append(result, toDomainSecurityEntry(row))
	}
	return result, nil
}

func (r *securityLogRepository) CountSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&securityLogModel{}).
		Where("timestamp >= ?", since).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *securityLogRepository) CountRecentByUser(ctx context.Context, userID uuid.UUID, since time.Time) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&securityLogModel{}).
		Where("user_id = ?", userID).
		Where("timestamp >= ?", since).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *securityLogRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("timestamp < ?", cutoff).
		Delete(&securityLogModel{})
	return res.RowsAffected, res.Error
}

func toDomainCredential(row twoFactorCredentialModel) domain.TwoFactorCredential {
	return domain.TwoFactorCredential{
		UserID:          row.UserID,
		SecretEncrypted: row.SecretEncrypted,
		Enabled:         row.Enabled,
		EnabledAt:       row.EnabledAt,
		DisabledAt:      row.DisabledAt,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
	}
}

func toDomainAuditEntry(row auditLogModel) domain.AuditLogEntry {
	ip := ""
	if row.IPAddress != nil {
		ip = *row.IPAddress
	}
	return domain.AuditLogEntry{
		ID:           row.ID,
		UserID:       row.UserID,
		Action:       row.Action,
		Resource:     row.Resource,
		ResourceID:   row.ResourceID,
		Details:      row.Details,
		IPAddress:    ip,
		UserAgent:    row.UserAgent,
		Success:      row.Success,
		ErrorMessage: row.ErrorMessage,
		Timestamp:    row.Timestamp,
	}
}

func toDomainSecurityEntry(row securityLogModel) domain.SecurityLogEntry {
	ip := ""
	if row.IPAddress != nil {
		ip = *row.IPAddress
	}
	return domain.SecurityLogEntry{
		ID:        row.ID,
		UserID:    row.UserID,
		EventType: row.EventType,
		Severity:  domain.Severity(row.Severity),
		Details:   row.Details,
		IPAddress: ip,
		UserAgent: row.UserAgent,
		Timestamp: row.Timestamp,
	}
}

func nullableString(v string) *string {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
