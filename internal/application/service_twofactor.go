package application

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/viralforge/mesh/services/trust-compliance/M14-account-security-service/internal/domain"
	"github.com/viralforge/mesh/services/trust-compliance/M14-account-security-service/internal/ports"
	"github.com/viralforge/mesh/services/trust-compliance/M14-account-security-service/internal/totp"
)

// Setup2FA issues a fresh secret, its provisioning URI and a preview of
// backup codes. Nothing is persisted yet; enrollment completes in Enable2FA
// once the user proves possession of the secret.
func (s *Service) Setup2FA(ctx context.Context, claims ports.AuthClaims) (TwoFASetupResponse, error) {
	credential, err := s.credentials.Get(ctx, claims.UserID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return TwoFASetupResponse{}, err
	}
	if credential.Enabled {
		return TwoFASetupResponse{}, domain.ErrTwoFactorAlreadyEnabled
	}

	secret, err := totp.GenerateSecret()
	if err != nil {
		return TwoFASetupResponse{}, fmt.Errorf("generate secret: %w", err)
	}
	codes, err := totp.GenerateBackupCodes(s.cfg.BackupCodeCount)
	if err != nil {
		return TwoFASetupResponse{}, fmt.Errorf("generate backup codes: %w", err)
	}

	return TwoFASetupResponse{
		Secret:      secret,
		QRCodeURL:   totp.ProvisioningURI(secret, s.cfg.Issuer, claims.Email),
		BackupCodes: codes,
	}, nil
}

// Enable2FA completes enrollment: the submitted code must verify against the
// submitted secret, then the secret is encrypted and persisted together with
// a fresh set of hashed backup codes.
func (s *Service) Enable2FA(ctx context.Context, claims ports.AuthClaims, req TwoFAEnableRequest, meta RequestMeta) (TwoFAEnableResponse, error) {
	secret := strings.TrimSpace(req.Secret)
	if secret == "" {
		return TwoFAEnableResponse{}, fmt.Errorf("%w: secret is required", domain.ErrInvalidInput)
	}

	credential, err := s.credentials.Get(ctx, claims.UserID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return TwoFAEnableResponse{}, err
	}
	if credential.Enabled {
		return TwoFAEnableResponse{}, domain.ErrTwoFactorAlreadyEnabled
	}

	ok, err := s.engine.VerifyCode(secret, req.Code)
	if err != nil {
		return TwoFAEnableResponse{}, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if !ok {
		s.audit(claims.UserID, domain.ActionTwoFactorEnabled, "", meta, false, "code verification failed")
		return TwoFAEnableResponse{}, domain.ErrInvalidCode
	}

	encrypted, err := s.cipher.Encrypt([]byte(secret))
	if err != nil {
		return TwoFAEnableResponse{}, fmt.Errorf("encrypt secret: %w", err)
	}

	now := s.nowFn()
	if err := s.credentials.Enable(ctx, claims.UserID, encrypted, now); err != nil {
		return TwoFAEnableResponse{}, err
	}

	codes, err := s.replaceBackupCodes(ctx, claims)
	if err != nil {
		return TwoFAEnableResponse{}, err
	}

	s.audit(claims.UserID, domain.ActionTwoFactorEnabled, "", meta, true, "")
	s.publish(ctx, "security.2fa.enabled", map[string]any{
		"user_id":    claims.UserID,
		"enabled_at": now,
	})

	return TwoFAEnableResponse{Enabled: true, BackupCodes: codes}, nil
}

// Disable2FA turns the second factor off after the caller proves it once
// more. The stored secret and every backup code are discarded.
func (s *Service) Disable2FA(ctx context.Context, claims ports.AuthClaims, req TwoFADisableRequest, meta RequestMeta) error {
	_, _, err := s.verifyAgainstCredential(ctx, claims, req.Code)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCode) {
			s.audit(claims.UserID, domain.ActionTwoFactorDisabled, "", meta, false, "code verification failed")
		}
		return err
	}

	now := s.nowFn()
	if err := s.credentials.Disable(ctx, claims.UserID, now); err != nil {
		return err
	}
	if err := s.backupCodes.DeleteAll(ctx, claims.UserID); err != nil {
		return err
	}

	s.audit(claims.UserID, domain.ActionTwoFactorDisabled, "", meta, true, "")
	s.publish(ctx, "security.2fa.disabled", map[string]any{
		"user_id":     claims.UserID,
		"disabled_at": now,
	})
	return nil
}

// Verify2FA checks a submitted code against the TOTP secret first, then the
// unused backup codes. The failure response never says which check rejected.
func (s *Service) Verify2FA(ctx context.Context, claims ports.AuthClaims, req TwoFAVerifyRequest, meta RequestMeta) (TwoFAVerifyResponse, error) {
	valid, usedBackup, err := s.verifyAgainstCredential(ctx, claims, req.Code)
	if err != nil && !errors.Is(err, domain.ErrInvalidCode) {
		return TwoFAVerifyResponse{}, err
	}
	if !valid {
		s.audit(claims.UserID, domain.ActionTwoFactorVerified, "", meta, false, "code verification failed")
		return TwoFAVerifyResponse{}, domain.ErrInvalidCode
	}

	details := ""
	if usedBackup {
		details = "backup code consumed"
	}
	s.audit(claims.UserID, domain.ActionTwoFactorVerified, details, meta, true, "")
	return TwoFAVerifyResponse{Success: true, IsBackupCode: usedBackup}, nil
}

// RegenerateBackupCodes atomically replaces the full set; previously issued
// codes stop working the moment the new set is stored.
func (s *Service) RegenerateBackupCodes(ctx context.Context, claims ports.AuthClaims, meta RequestMeta) (BackupCodesResponse, error) {
	credential, err := s.credentials.Get(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return BackupCodesResponse{}, domain.ErrTwoFactorNotEnabled
		}
		return BackupCodesResponse{}, err
	}
	if !credential.Enabled {
		return BackupCodesResponse{}, domain.ErrTwoFactorNotEnabled
	}

	codes, err := s.replaceBackupCodes(ctx, claims)
	if err != nil {
		return BackupCodesResponse{}, err
	}

	s.audit(claims.UserID, domain.ActionBackupCodesRegenerate, "", meta, true, "")
	return BackupCodesResponse{BackupCodes: codes}, nil
}

// verifyAgainstCredential runs the shared TOTP-then-backup check against the
// stored credential. Returns (valid, usedBackupCode, err); an enabled
// credential with a non-matching code yields (false, false, ErrInvalidCode).
func (s *Service) verifyAgainstCredential(ctx context.Context, claims ports.AuthClaims, code string) (bool, bool, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return false, false, fmt.Errorf("%w: code is required", domain.ErrInvalidInput)
	}

	credential, err := s.credentials.Get(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, false, domain.ErrTwoFactorNotEnabled
		}
		return false, false, err
	}
	if !credential.Enabled {
		return false, false, domain.ErrTwoFactorNotEnabled
	}

	secret, err := s.cipher.Decrypt(credential.SecretEncrypted)
	if err != nil {
		return false, false, fmt.Errorf("decrypt secret: %w", err)
	}

	ok, err := s.engine.VerifyCode(string(secret), code)
	if err != nil {
		return false, false, err
	}
	if ok {
		return true, false, nil
	}

	consumed, err := s.consumeBackupCode(ctx, claims, code)
	if err != nil {
		return false, false, err
	}
	if consumed {
		return true, true, nil
	}
	return false, false, domain.ErrInvalidCode
}

func (s *Service) consumeBackupCode(ctx context.Context, claims ports.AuthClaims, code string) (bool, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	unused, err := s.backupCodes.ListUnused(ctx, claims.UserID)
	if err != nil {
		return false, err
	}
	for _, candidate := range unused {
		if compareErr := s.hasher.Compare(candidate.CodeHash, normalized); compareErr != nil {
			continue
		}
		return s.backupCodes.Consume(ctx, claims.UserID, candidate.BackupCodeID, s.nowFn())
	}
	return false, nil
}

func (s *Service) replaceBackupCodes(ctx context.Context, claims ports.AuthClaims) ([]string, error) {
	codes, err := totp.GenerateBackupCodes(s.cfg.BackupCodeCount)
	if err != nil {
		return nil, fmt.Errorf("generate backup codes: %w", err)
	}
	hashes := make([]string, 0, len(codes))
	for _, code := range codes {
		hash, hashErr := s.hasher.Hash(code)
		if hashErr != nil {
			return nil, fmt.Errorf("hash backup code: %w", hashErr)
		}
		hashes = append(hashes, hash)
	}
	if err := s.backupCodes.Replace(ctx, claims.UserID, hashes, s.nowFn()); err != nil {
		return nil, err
	}
	return codes, nil
}
