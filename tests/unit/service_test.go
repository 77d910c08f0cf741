package unit

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M14-account-security-service/internal/application"
	"github.com/viralforge/mesh/services/trust-compliance/M14-account-security-service/internal/domain"
)

func TestSetupAndEnable2FA(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	claims := userClaims("user@example.com")

	setupRes, err := f.service.Setup2FA(ctx, claims)
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	if setupRes.Secret == "" {
		t.Fatalf("setup returned empty secret")
	}
	if len(setupRes.BackupCodes) != 10 {
		t.Fatalf("expected 10 preview backup codes, got %d", len(setupRes.BackupCodes))
	}
	if !strings.Contains(setupRes.QRCodeURL, "otpauth://totp/") ||
		!strings.Contains(setupRes.QRCodeURL, "user@example.com") {
		t.Fatalf("unexpected provisioning uri: %s", setupRes.QRCodeURL)
	}

	code, err := f.engine.GenerateCode(setupRes.Secret)
	if err != nil {
		t.Fatalf("generate code failed: %v", err)
	}

	enableRes, err := f.service.Enable2FA(ctx, claims, application.TwoFAEnableRequest{
		Secret: setupRes.Secret,
		Code:   code,
	}, testMeta())
	if err != nil {
		t.Fatalf("enable failed: %v", err)
	}
	if !enableRes.Enabled {
		t.Fatalf("enable response not enabled")
	}
	if len(enableRes.BackupCodes) != 10 {
		t.Fatalf("expected 10 backup codes, got %d", len(enableRes.BackupCodes))
	}

	credential, err := f.credentials.Get(ctx, claims.UserID)
	if err != nil {
		t.Fatalf("credential missing after enable: %v", err)
	}
	if !credential.Enabled {
		t.Fatalf("credential not marked enabled")
	}
	if string(credential.SecretEncrypted) != "enc:"+setupRes.Secret {
		t.Fatalf("secret stored unencrypted: %q", credential.SecretEncrypted)
	}

	if _, err := f.service.Setup2FA(ctx, claims); !errors.Is(err, domain.ErrTwoFactorAlreadyEnabled) {
		t.Fatalf("expected already-enabled on repeated setup, got %v", err)
	}
	if _, err := f.service.Enable2FA(ctx, claims, application.TwoFAEnableRequest{
		Secret: setupRes.Secret,
		Code:   code,
	}, testMeta()); !errors.Is(err, domain.ErrTwoFactorAlreadyEnabled) {
		t.Fatalf("expected already-enabled on repeated enable, got %v", err)
	}
}

func TestEnable2FARejectsWrongCode(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	claims := userClaims("user@example.com")

	setupRes, err := f.service.Setup2FA(ctx, claims)
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	_, err = f.service.Enable2FA(ctx, claims, application.TwoFAEnableRequest{
		Secret: setupRes.Secret,
		Code:   "000000",
	}, testMeta())
	if !errors.Is(err, domain.ErrInvalidCode) {
		t.Fatalf("expected invalid code, got %v", err)
	}
	if _, err := f.credentials.Get(ctx, claims.UserID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("credential persisted despite failed verification")
	}
}

func TestVerify2FAWithTOTPAndBackupCode(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	claims := userClaims("user@example.com")
	secret, backupCodes := f.enable2FA(t, claims)

	code, err := f.engine.GenerateCode(secret)
	if err != nil {
		t.Fatalf("generate code failed: %v", err)
	}
	verifyRes, err := f.service.Verify2FA(ctx, claims, application.TwoFAVerifyRequest{Code: code}, testMeta())
	if err != nil {
		t.Fatalf("verify with totp failed: %v", err)
	}
	if !verifyRes.Success || verifyRes.IsBackupCode {
		t.Fatalf("unexpected totp verify result: %+v", verifyRes)
	}

	// Backup codes are case-insensitive on input and single-use.
	verifyRes, err = f.service.Verify2FA(ctx, claims, application.TwoFAVerifyRequest{
		Code: strings.ToLower(backupCodes[0]),
	}, testMeta())
	if err != nil {
		t.Fatalf("verify with backup code failed: %v", err)
	}
	if !verifyRes.Success || !verifyRes.IsBackupCode {
		t.Fatalf("unexpected backup verify result: %+v", verifyRes)
	}

	if _, err := f.service.Verify2FA(ctx, claims, application.TwoFAVerifyRequest{
		Code: backupCodes[0],
	}, testMeta()); !errors.Is(err, domain.ErrInvalidCode) {
		t.Fatalf("expected consumed backup code to be rejected, got %v", err)
	}

	if _, err := f.service.Verify2FA(ctx, claims, application.TwoFAVerifyRequest{
		Code: "999999",
	}, testMeta()); !errors.Is(err, domain.ErrInvalidCode) {
		t.Fatalf("expected wrong code rejection, got %v", err)
	}

	remaining, err := f.backupCodes.CountUnused(ctx, claims.UserID)
	if err != nil {
		t.Fatalf("count unused failed: %v", err)
	}
	if remaining != 9 {
		t.Fatalf("expected 9 unused backup codes, got %d", remaining)
	}
}

func TestDisable2FAClearsCredentialAndCodes(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	claims := userClaims("user@example.com")
	secret, _ := f.enable2FA(t, claims)

	code, err := f.engine.GenerateCode(secret)
	if err != nil {
		t.Fatalf("generate code failed: %v", err)
	}
	if err := f.service.Disable2FA(ctx, claims, application.TwoFADisableRequest{Code: code}, testMeta()); err != nil {
		t.Fatalf("disable failed: %v", err)
	}

	credential, err := f.credentials.Get(ctx, claims.UserID)
	if err != nil {
		t.Fatalf("credential lookup failed: %v", err)
	}
	if credential.Enabled || credential.SecretEncrypted != nil {
		t.Fatalf("credential not cleared: %+v", credential)
	}
	remaining, err := f.backupCodes.CountUnused(ctx, claims.UserID)
	if err != nil {
		t.Fatalf("count unused failed: %v", err)
	}
	if remaining != 0 {
		t.Fatalf("backup codes survived disable: %d", remaining)
	}

	if _, err := f.service.Verify2FA(ctx, claims, application.TwoFAVerifyRequest{Code: code}, testMeta()); !errors.Is(err, domain.ErrTwoFactorNotEnabled) {
		t.Fatalf("expected not-enabled after disable, got %v", err)
	}
}

func TestRegenerateBackupCodesRequiresEnabled2FA(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	claims := userClaims("user@example.com")

	if _, err := f.service.RegenerateBackupCodes(ctx, claims, testMeta()); !errors.Is(err, domain.ErrTwoFactorNotEnabled) {
		t.Fatalf("expected not-enabled, got %v", err)
	}

	_, oldCodes := f.enable2FA(t, claims)

	regenRes, err := f.service.RegenerateBackupCodes(ctx, claims, testMeta())
	if err != nil {
		t.Fatalf("regenerate failed: %v", err)
	}
	if len(regenRes.BackupCodes) != 10 {
		t.Fatalf("expected 10 regenerated codes, got %d", len(regenRes.BackupCodes))
	}

	// The old set stops working the moment the new one is stored.
	if _, err := f.service.Verify2FA(ctx, claims, application.TwoFAVerifyRequest{
		Code: oldCodes[0],
	}, testMeta()); !errors.Is(err, domain.ErrInvalidCode) {
		t.Fatalf("expected replaced code rejection, got %v", err)
	}
	if _, err := f.service.Verify2FA(ctx, claims, application.TwoFAVerifyRequest{
		Code: regenRes.BackupCodes[0],
	}, testMeta()); err != nil {
		t.Fatalf("new backup code rejected: %v", err)
	}
}

func TestSettingsDefaultsAndSecurityScore(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	claims := userClaims("user@example.com")

	res, err := f.service.GetSettings(ctx, claims)
	if err != nil {
		t.Fatalf("get settings failed: %v", err)
	}
	if res.TwoFactorEnabled || !res.LoginAlertsEnabled || !res.AnomalyChecks {
		t.Fatalf("unexpected defaults: %+v", res)
	}
	if res.SecurityScore != 40 {
		t.Fatalf("expected base score 40, got %d", res.SecurityScore)
	}

	f.enable2FA(t, claims)
	res, err = f.service.GetSettings(ctx, claims)
	if err != nil {
		t.Fatalf("get settings failed: %v", err)
	}
	if !res.TwoFactorEnabled || res.RemainingBackupCodes != 10 {
		t.Fatalf("unexpected post-enable settings: %+v", res)
	}
	if res.SecurityScore != 85 {
		t.Fatalf("expected score 85 with 2fa and full codes, got %d", res.SecurityScore)
	}

	off := false
	res, err = f.service.UpdateSettings(ctx, claims, application.SettingsUpdateRequest{
		LoginAlertsEnabled: &off,
	}, testMeta())
	if err != nil {
		t.Fatalf("update settings failed: %v", err)
	}
	if res.LoginAlertsEnabled {
		t.Fatalf("login alerts still enabled after update")
	}
	if res.SecurityScore != 75 {
		t.Fatalf("expected score 75 after disabling alerts, got %d", res.SecurityScore)
	}

	stored, err := f.settings.Get(ctx, claims.UserID)
	if err != nil {
		t.Fatalf("settings row not persisted: %v", err)
	}
	if stored.LoginAlertsEnabled || !stored.AnomalyChecks {
		t.Fatalf("persisted settings wrong: %+v", stored)
	}
}

func TestAssessLoginFailureEscalatesToBlacklist(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	userID := uuid.New()
	const attackerIP = "192.0.2.9"

	for i := 0; i < 4; i++ {
		res, err := f.service.AssessLogin(ctx, serviceClaims(), application.AssessLoginRequest{
			UserID:    userID,
			IPAddress: attackerIP,
			Success:   false,
		}, testMeta())
		if err != nil {
			t.Fatalf("assess attempt %d failed: %v", i+1, err)
		}
		if res.Blacklisted {
			t.Fatalf("blacklisted before threshold at attempt %d", i+1)
		}
	}

	res, err := f.service.AssessLogin(ctx, serviceClaims(), application.AssessLoginRequest{
		UserID:    userID,
		IPAddress: attackerIP,
		Success:   false,
	}, testMeta())
	if err != nil {
		t.Fatalf("assess threshold attempt failed: %v", err)
	}
	if !res.Blacklisted {
		t.Fatalf("expected blacklist at failed-login threshold")
	}
	if !f.blacklistCache.IsBlacklisted(attackerIP) {
		t.Fatalf("cache does not report the banned ip")
	}

	entry, ok := f.blacklistRepo.get(attackerIP)
	if !ok {
		t.Fatalf("ban not persisted")
	}
	if entry.Source != domain.BlacklistSourceAutomatic {
		t.Fatalf("expected automatic source, got %s", entry.Source)
	}
	if entry.ExpiresAt == nil {
		t.Fatalf("automatic ban should carry an expiry")
	}
	if !f.publisher.has("security.ip.blacklisted") {
		t.Fatalf("blacklist event not published")
	}
}

func TestAssessLoginDetectsCountryChange(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	userID := uuid.New()

	f.resolver.set("203.0.113.10", &domain.GeoLocation{
		IP: "203.0.113.10", Country: "United States", CountryCode: "US",
		Region: "New York", RegionCode: "NY", Timezone: "UTC",
	})
	f.resolver.set("198.51.100.7", &domain.GeoLocation{
		IP: "198.51.100.7", Country: "France", CountryCode: "FR",
		Region: "Ile-de-France", RegionCode: "IDF", Timezone: "UTC",
	})
	f.seedLogin(t, userID, "203.0.113.10")

	res, err := f.service.AssessLogin(ctx, serviceClaims(), application.AssessLoginRequest{
		UserID:    userID,
		IPAddress: "198.51.100.7",
		Success:   true,
	}, testMeta())
	if err != nil {
		t.Fatalf("assess failed: %v", err)
	}
	if len(res.Anomalies) != 1 {
		t.Fatalf("expected one anomaly, got %d: %+v", len(res.Anomalies), res.Anomalies)
	}
	if res.Anomalies[0].Type != domain.AnomalyCountryChange {
		t.Fatalf("expected country change, got %s", res.Anomalies[0].Type)
	}
	if res.RiskScore != 0.8 {
		t.Fatalf("expected risk score 0.8, got %v", res.RiskScore)
	}
	if res.Location == nil || res.Location.CountryCode != "FR" {
		t.Fatalf("expected resolved current location, got %+v", res.Location)
	}
	if !f.publisher.has("security.anomaly.detected") {
		t.Fatalf("anomaly event not published")
	}
	// A one-off anomaly stays below the frequency gate and must not feed the
	// escalation counters at all.
	if n, _ := f.counters.Get(ctx, "198.51.100.7", string(domain.ActivityUnauthorizedAccess)); n != 0 {
		t.Fatalf("one-off anomaly fed the escalation counter: %d", n)
	}
	if f.blacklistCache.IsBlacklisted("198.51.100.7") {
		t.Fatalf("single anomaly must not ban the ip")
	}
}

func TestAssessLoginRequiresServiceRole(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	user := userClaims("user@example.com")

	if _, err := f.service.AssessLogin(ctx, user, application.AssessLoginRequest{
		UserID:    user.UserID,
		IPAddress: "198.51.100.7",
		Success:   true,
	}, testMeta()); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden for end-user token, got %v", err)
	}
	if _, err := f.service.ReportSuspiciousActivity(ctx, user, "198.51.100.50", domain.ActivityUnauthorizedAccess); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden for end-user token, got %v", err)
	}
	if f.blacklistCache.IsBlacklisted("198.51.100.50") {
		t.Fatalf("forbidden report still reached the blacklist")
	}
	if n, _ := f.counters.Get(ctx, "198.51.100.50", string(domain.ActivityUnauthorizedAccess)); n != 0 {
		t.Fatalf("forbidden report fed the escalation counter: %d", n)
	}
}

func TestRepeatedAnomaliesEscalateToBlacklist(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	userID := uuid.New()
	const travelIP = "198.51.100.7"

	f.resolver.set("203.0.113.10", &domain.GeoLocation{
		IP: "203.0.113.10", Country: "United States", CountryCode: "US", Timezone: "UTC",
	})
	f.resolver.set(travelIP, &domain.GeoLocation{
		IP: travelIP, Country: "France", CountryCode: "FR", Timezone: "UTC",
	})
	f.seedLogin(t, userID, "203.0.113.10")

	// Two recent security events push every further escalating anomaly over
	// the frequency gate.
	for i := 0; i < 2; i++ {
		uid := userID
		if err := f.securityLogs.Insert(ctx, domain.SecurityLogEntry{
			UserID:    &uid,
			EventType: "ANOMALY_COUNTRY_CHANGE",
			Severity:  domain.SeverityHigh,
			IPAddress: travelIP,
			Timestamp: time.Now().UTC().Add(-time.Hour),
		}); err != nil {
			t.Fatalf("seed security event: %v", err)
		}
	}

	for i := 0; i < 2; i++ {
		res, err := f.service.AssessLogin(ctx, serviceClaims(), application.AssessLoginRequest{
			UserID:    userID,
			IPAddress: travelIP,
			Success:   true,
		}, testMeta())
		if err != nil {
			t.Fatalf("assess %d failed: %v", i+1, err)
		}
		if len(res.Anomalies) == 0 {
			t.Fatalf("assess %d detected no anomalies", i+1)
		}
		if res.Blacklisted {
			t.Fatalf("banned before the unauthorized-access threshold at assess %d", i+1)
		}
	}

	res, err := f.service.AssessLogin(ctx, serviceClaims(), application.AssessLoginRequest{
		UserID:    userID,
		IPAddress: travelIP,
		Success:   true,
	}, testMeta())
	if err != nil {
		t.Fatalf("threshold assess failed: %v", err)
	}
	if !res.Blacklisted {
		t.Fatalf("expected ban once repeated anomalies crossed the threshold")
	}
	if !f.blacklistCache.IsBlacklisted(travelIP) {
		t.Fatalf("cache does not report the banned ip")
	}
}

func TestSecurityEventsFeedRequiresAdmin(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	if _, err := f.service.SecurityEvents(ctx, userClaims("user@example.com"), nil, 10, 0); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}

	userID := uuid.New()
	other := uuid.New()
	now := time.Now().UTC()
	for i, uid := range []uuid.UUID{userID, userID, other} {
		id := uid
		if err := f.securityLogs.Insert(ctx, domain.SecurityLogEntry{
			UserID:    &id,
			EventType: "ANOMALY_COUNTRY_CHANGE",
			Severity:  domain.SeverityHigh,
			Timestamp: now.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("seed security event: %v", err)
		}
	}

	all, err := f.service.SecurityEvents(ctx, adminClaims(), nil, 10, 0)
	if err != nil {
		t.Fatalf("system-wide feed failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 events, got %d", len(all))
	}
	if !all[0].Timestamp.After(all[1].Timestamp) {
		t.Fatalf("events not newest-first")
	}

	scoped, err := f.service.SecurityEvents(ctx, adminClaims(), &userID, 10, 0)
	if err != nil {
		t.Fatalf("scoped feed failed: %v", err)
	}
	if len(scoped) != 2 {
		t.Fatalf("expected 2 events for the user, got %d", len(scoped))
	}
}

func TestActivityCountsAdminDiagnostic(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	const noisyIP = "192.0.2.33"

	for i := 0; i < 2; i++ {
		if _, err := f.service.ReportSuspiciousActivity(ctx, serviceClaims(), noisyIP, domain.ActivityRateLimitViolation); err != nil {
			t.Fatalf("report %d failed: %v", i+1, err)
		}
	}

	if _, err := f.service.ActivityCounts(ctx, userClaims("user@example.com"), noisyIP); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if _, err := f.service.ActivityCounts(ctx, adminClaims(), "not-an-ip"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid ip rejection, got %v", err)
	}

	counts, err := f.service.ActivityCounts(ctx, adminClaims(), noisyIP)
	if err != nil {
		t.Fatalf("activity counts failed: %v", err)
	}
	if counts[string(domain.ActivityRateLimitViolation)] != 2 {
		t.Fatalf("expected 2 rate-limit observations, got %+v", counts)
	}
	if counts[string(domain.ActivityFailedLogin)] != 0 {
		t.Fatalf("expected zero failed-login observations, got %+v", counts)
	}
}

func TestAssessLoginFirstLoginHasNoAnomalies(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	userID := uuid.New()

	f.resolver.set("198.51.100.7", &domain.GeoLocation{
		IP: "198.51.100.7", Country: "France", CountryCode: "FR", Timezone: "UTC",
	})

	res, err := f.service.AssessLogin(ctx, serviceClaims(), application.AssessLoginRequest{
		UserID:    userID,
		IPAddress: "198.51.100.7",
		Success:   true,
	}, testMeta())
	if err != nil {
		t.Fatalf("assess failed: %v", err)
	}
	if len(res.Anomalies) != 0 {
		t.Fatalf("first login produced anomalies: %+v", res.Anomalies)
	}
}

func TestAssessLoginHonorsAnomalyOptOut(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	claims := userClaims("user@example.com")

	f.resolver.set("203.0.113.10", &domain.GeoLocation{
		IP: "203.0.113.10", Country: "United States", CountryCode: "US", Timezone: "UTC",
	})
	f.resolver.set("198.51.100.7", &domain.GeoLocation{
		IP: "198.51.100.7", Country: "France", CountryCode: "FR", Timezone: "UTC",
	})
	f.seedLogin(t, claims.UserID, "203.0.113.10")

	off := false
	if _, err := f.service.UpdateSettings(ctx, claims, application.SettingsUpdateRequest{
		AnomalyChecks: &off,
	}, testMeta()); err != nil {
		t.Fatalf("update settings failed: %v", err)
	}

	res, err := f.service.AssessLogin(ctx, serviceClaims(), application.AssessLoginRequest{
		UserID:    claims.UserID,
		IPAddress: "198.51.100.7",
		Success:   true,
	}, testMeta())
	if err != nil {
		t.Fatalf("assess failed: %v", err)
	}
	if len(res.Anomalies) != 0 {
		t.Fatalf("opt-out ignored: %+v", res.Anomalies)
	}
}

func TestReportSuspiciousActivity(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	if _, err := f.service.ReportSuspiciousActivity(ctx, serviceClaims(), "not-an-ip", domain.ActivityRateLimitViolation); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid ip rejection, got %v", err)
	}
	if _, err := f.service.ReportSuspiciousActivity(ctx, serviceClaims(), "192.0.2.20", domain.ActivityType("WEIRD")); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected unknown activity rejection, got %v", err)
	}

	const noisyIP = "192.0.2.20"
	for i := 0; i < 9; i++ {
		banned, err := f.service.ReportSuspiciousActivity(ctx, serviceClaims(), noisyIP, domain.ActivityRateLimitViolation)
		if err != nil {
			t.Fatalf("report %d failed: %v", i+1, err)
		}
		if banned {
			t.Fatalf("banned before rate-limit threshold at report %d", i+1)
		}
	}
	banned, err := f.service.ReportSuspiciousActivity(ctx, serviceClaims(), noisyIP, domain.ActivityRateLimitViolation)
	if err != nil {
		t.Fatalf("threshold report failed: %v", err)
	}
	if !banned {
		t.Fatalf("expected ban at rate-limit threshold")
	}
}

func TestAdminBlacklistOperations(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	admin := adminClaims()
	user := userClaims("user@example.com")

	if _, err := f.service.ListBlacklist(ctx, user); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden for non-admin, got %v", err)
	}

	minutes := 60
	if err := f.service.AddBlacklistEntry(ctx, admin, application.BlacklistAddRequest{
		IPAddress:       "203.0.113.50",
		Reason:          "manual abuse report",
		DurationMinutes: &minutes,
	}, testMeta()); err != nil {
		t.Fatalf("add entry failed: %v", err)
	}

	if err := f.service.AddBlacklistEntry(ctx, admin, application.BlacklistAddRequest{
		IPAddress: "not-an-ip",
		Reason:    "x",
	}, testMeta()); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid ip rejection, got %v", err)
	}

	listRes, err := f.service.ListBlacklist(ctx, admin)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(listRes.Entries) != 1 || listRes.Entries[0].IPAddress != "203.0.113.50" {
		t.Fatalf("unexpected list: %+v", listRes.Entries)
	}
	if !f.blacklistCache.IsBlacklisted("203.0.113.50") {
		t.Fatalf("manual entry not active in cache")
	}

	if err := f.service.RemoveBlacklistEntry(ctx, admin, "203.0.113.50", testMeta()); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if f.blacklistCache.IsBlacklisted("203.0.113.50") {
		t.Fatalf("entry still active after removal")
	}
}

func TestListActivityPaginatesOwnEntries(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	claims := userClaims("user@example.com")
	other := uuid.New()

	base := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 25; i++ {
		uid := claims.UserID
		f.auditLogs.mustInsert(t, domain.AuditLogEntry{
			UserID:    &uid,
			Action:    domain.ActionLoginSuccess,
			IPAddress: "203.0.113.10",
			Success:   true,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
	}
	f.auditLogs.mustInsert(t, domain.AuditLogEntry{
		UserID:    &other,
		Action:    domain.ActionLoginSuccess,
		Success:   true,
		Timestamp: base,
	})

	page1, err := f.service.ListActivity(ctx, claims, application.ActivityQuery{Page: 1, Limit: 20})
	if err != nil {
		t.Fatalf("list page 1 failed: %v", err)
	}
	if len(page1) != 20 {
		t.Fatalf("expected 20 entries, got %d", len(page1))
	}
	if !page1[0].Timestamp.After(page1[1].Timestamp) {
		t.Fatalf("entries not newest-first")
	}

	page2, err := f.service.ListActivity(ctx, claims, application.ActivityQuery{Page: 2, Limit: 20})
	if err != nil {
		t.Fatalf("list page 2 failed: %v", err)
	}
	if len(page2) != 5 {
		t.Fatalf("expected 5 entries on page 2, got %d", len(page2))
	}
}

func TestAuditStatsRequiresAdmin(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	if _, err := f.service.AuditStats(ctx, userClaims("user@example.com")); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}

	uid := uuid.New()
	now := time.Now().UTC()
	f.auditLogs.mustInsert(t, domain.AuditLogEntry{UserID: &uid, Action: domain.ActionLoginSuccess, Success: true, Timestamp: now})
	f.auditLogs.mustInsert(t, domain.AuditLogEntry{UserID: &uid, Action: domain.ActionLoginFailed, Success: false, Timestamp: now})

	stats, err := f.service.AuditStats(ctx, adminClaims())
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.TotalActions != 2 || stats.FailedActions != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.SuccessRate != 50 {
		t.Fatalf("expected 50%% success rate, got %v", stats.SuccessRate)
	}
}
