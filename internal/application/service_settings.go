package application

import (
	"context"
	"errors"

	"github.com/viralforge/mesh/services/trust-compliance/M14-account-security-service/internal/domain"
	"github.com/viralforge/mesh/services/trust-compliance/M14-account-security-service/internal/ports"
)

// GetSettings assembles the security overview: 2FA status, preference flags,
// remaining backup codes, location stats and the derived score.
func (s *Service) GetSettings(ctx context.Context, claims ports.AuthClaims) (SettingsResponse, error) {
	settings, err := s.settings.Get(ctx, claims.UserID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return SettingsResponse{}, err
		}
		// A user without a settings row gets the defaults; the row is created
		// lazily on first update.
		settings = domain.SecuritySettings{
			UserID:             claims.UserID,
			Email:              claims.Email,
			LoginAlertsEnabled: true,
			AnomalyChecks:      true,
		}
	}

	credential, err := s.credentials.Get(ctx, claims.UserID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return SettingsResponse{}, err
	}

	remaining := 0
	if credential.Enabled {
		remaining, err = s.backupCodes.CountUnused(ctx, claims.UserID)
		if err != nil {
			return SettingsResponse{}, err
		}
	}

	stats, err := s.detector.LocationStats(ctx, claims.UserID)
	if err != nil {
		return SettingsResponse{}, err
	}

	resp := SettingsResponse{
		TwoFactorEnabled:     credential.Enabled,
		EmailVerified:        settings.EmailVerified,
		LoginAlertsEnabled:   settings.LoginAlertsEnabled,
		AnomalyChecks:        settings.AnomalyChecks,
		RemainingBackupCodes: remaining,
		LocationStats:        stats,
	}
	resp.SecurityScore = securityScore(resp)
	return resp, nil
}

// UpdateSettings applies partial preference changes; nil fields are left as-is.
func (s *Service) UpdateSettings(ctx context.Context, claims ports.AuthClaims, req SettingsUpdateRequest, meta RequestMeta) (SettingsResponse, error) {
	settings, err := s.settings.Get(ctx, claims.UserID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return SettingsResponse{}, err
		}
		settings = domain.SecuritySettings{
			UserID:             claims.UserID,
			Email:              claims.Email,
			LoginAlertsEnabled: true,
			AnomalyChecks:      true,
			CreatedAt:          s.nowFn(),
		}
	}

	if req.LoginAlertsEnabled != nil {
		settings.LoginAlertsEnabled = *req.LoginAlertsEnabled
	}
	if req.AnomalyChecks != nil {
		settings.AnomalyChecks = *req.AnomalyChecks
	}
	settings.UpdatedAt = s.nowFn()

	if err := s.settings.Upsert(ctx, settings); err != nil {
		return SettingsResponse{}, err
	}

	s.audit(claims.UserID, domain.ActionSettingsUpdated, "", meta, true, "")
	return s.GetSettings(ctx, claims)
}

// securityScore derives a 0-100 posture indicator from the assembled
// settings. The weights sum to exactly 100 for a fully hardened account.
func securityScore(resp SettingsResponse) int {
	score := 20
	if resp.TwoFactorEnabled {
		score += 40
	}
	if resp.EmailVerified {
		score += 15
	}
	if resp.LoginAlertsEnabled {
		score += 10
	}
	if resp.AnomalyChecks {
		score += 10
	}
	if resp.RemainingBackupCodes >= 5 {
		score += 5
	}
	if score > 100 {
		score = 100
	}
	return score
}
