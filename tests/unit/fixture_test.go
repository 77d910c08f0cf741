package unit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M14-account-security-service/internal/anomaly"
	"github.com/viralforge/mesh/services/trust-compliance/M14-account-security-service/internal/application"
	"github.com/viralforge/mesh/services/trust-compliance/M14-account-security-service/internal/audit"
	"github.com/viralforge/mesh/services/trust-compliance/M14-account-security-service/internal/blacklist"
	"github.com/viralforge/mesh/services/trust-compliance/M14-account-security-service/internal/domain"
	"github.com/viralforge/mesh/services/trust-compliance/M14-account-security-service/internal/ports"
	"github.com/viralforge/mesh/services/trust-compliance/M14-account-security-service/internal/totp"
)

type fixture struct {
	service        *application.Service
	credentials    *fakeCredentials
	backupCodes    *fakeBackupCodes
	settings       *fakeSettings
	blacklistCache *blacklist.Cache
	blacklistRepo  *fakeBlacklistRepo
	counters       *fakeCounters
	resolver       *fakeResolver
	auditLogs      *fakeAuditLogs
	securityLogs   *fakeSecurityLogs
	publisher      *fakePublisher
	engine         *totp.Engine
}

func newFixture() *fixture {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	credentials := &fakeCredentials{rows: map[uuid.UUID]domain.TwoFactorCredential{}}
	backupCodes := &fakeBackupCodes{rows: map[uuid.UUID][]domain.BackupCode{}}
	settings := &fakeSettings{rows: map[uuid.UUID]domain.SecuritySettings{}}
	blacklistRepo := &fakeBlacklistRepo{entries: map[string]domain.BlacklistEntry{}}
	counters := &fakeCounters{counts: map[string]int64{}}
	resolver := &fakeResolver{locations: map[string]*domain.GeoLocation{}}
	auditLogs := &fakeAuditLogs{}
	securityLogs := &fakeSecurityLogs{}
	publisher := &fakePublisher{}

	recorder := audit.NewRecorder(auditLogs, securityLogs, logger)
	cache := blacklist.NewCache(blacklistRepo, logger, blacklist.WithSecuritySink(recorder))

	// Fix the detection clock at midday so the quiet-hour rule stays silent.
	noon := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	detectorCfg := anomaly.DefaultConfig()
	detector := anomaly.NewDetector(detectorCfg, resolver, auditLogs, recorder, logger).
		WithClock(func() time.Time { return noon })

	engine := totp.NewEngine()
	svc := application.NewService(application.Dependencies{
		Config: application.Config{
			Issuer:          "ViralForge",
			BackupCodeCount: 10,
			AuditWindowDays: 30,
			ActivityWindow:  time.Hour,
		},
		Credentials: credentials,
		BackupCodes: backupCodes,
		Settings:    settings,
		Blacklist:   cache,
		Counters:    counters,
		Resolver:    resolver,
		Detector:    detector,
		Recorder:    recorder,
		Engine:      engine,
		Cipher:      &fakeCipher{},
		Hasher:      &fakeHasher{},
		Publisher:   publisher,
	})

	return &fixture{
		service:        svc,
		credentials:    credentials,
		backupCodes:    backupCodes,
		settings:       settings,
		blacklistCache: cache,
		blacklistRepo:  blacklistRepo,
		counters:       counters,
		resolver:       resolver,
		auditLogs:      auditLogs,
		securityLogs:   securityLogs,
		publisher:      publisher,
		engine:         engine,
	}
}

func (f *fixture) enable2FA(t *testing.T, claims ports.AuthClaims) (string, []string) {
	t.Helper()
	ctx := context.Background()

	setupRes, err := f.service.Setup2FA(ctx, claims)
	if err != nil {
		t.Fatalf("setup 2fa failed: %v", err)
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
		t.Fatalf("enable 2fa failed: %v", err)
	}
	return setupRes.Secret, enableRes.BackupCodes
}

func (f *fixture) seedLogin(t *testing.T, userID uuid.UUID, ip string) {
	t.Helper()
	uid := userID
	f.auditLogs.mustInsert(t, domain.AuditLogEntry{
		UserID:    &uid,
		Action:    domain.ActionLoginSuccess,
		IPAddress: ip,
		Success:   true,
		Timestamp: time.Date(2025, 6, 14, 12, 0, 0, 0, time.UTC),
	})
}

func userClaims(email string) ports.AuthClaims {
	return ports.AuthClaims{
		UserID: uuid.New(),
		Email:  email,
		Role:   "INFLUENCER",
	}
}

func serviceClaims() ports.AuthClaims {
	return ports.AuthClaims{
		UserID: uuid.New(),
		Email:  "m01-authentication@internal",
		Role:   "SERVICE",
	}
}

func adminClaims() ports.AuthClaims {
	return ports.AuthClaims{
		UserID: uuid.New(),
		Email:  "admin@example.com",
		Role:   "ADMIN",
	}
}

func testMeta() application.RequestMeta {
	return application.RequestMeta{IPAddress: "127.0.0.1", UserAgent: "unit-test"}
}

type fakeCredentials struct {
	mu   sync.Mutex
	rows map[uuid.UUID]domain.TwoFactorCredential
}

func (f *fakeCredentials) Get(_ context.Context, userID uuid.UUID) (domain.TwoFactorCredential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[userID]
	if !ok {
		return domain.TwoFactorCredential{}, domain.ErrNotFound
	}
	return row, nil
}

func (f *fakeCredentials) Enable(_ context.Context, userID uuid.UUID, secretEncrypted []byte, enabledAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	at := enabledAt
	f.rows[userID] = domain.TwoFactorCredential{
		UserID:          userID,
		SecretEncrypted: secretEncrypted,
		Enabled:         true,
		EnabledAt:       &at,
		CreatedAt:       enabledAt,
		UpdatedAt:       enabledAt,
	}
	return nil
}

func (f *fakeCredentials) Disable(_ context.Context, userID uuid.UUID, disabledAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[userID]
	if !ok || !row.Enabled {
		return domain.ErrNotFound
	}
	at := disabledAt
	row.Enabled = false
	row.SecretEncrypted = nil
	row.DisabledAt = &at
	row.UpdatedAt = disabledAt
	f.rows[userID] = row
	return nil
}

type fakeBackupCodes struct {
	mu   sync.Mutex
	rows map[uuid.UUID][]domain.BackupCode
}

func (f *fakeBackupCodes) Replace(_ context.Context, userID uuid.UUID, codeHashes []string, createdAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	fresh := make([]domain.BackupCode, 0, len(codeHashes))
	for _, hash := range codeHashes {
		fresh = append(fresh, domain.BackupCode{
			BackupCodeID: uuid.New(),
			UserID:       userID,
			CodeHash:     hash,
			CreatedAt:    createdAt,
		})
	}
	f.rows[userID] = fresh
	return nil
}

func (f *fakeBackupCodes) ListUnused(_ context.Context, userID uuid.UUID) ([]domain.BackupCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.BackupCode, 0)
	for _, code := range f.rows[userID] {
		if code.UsedAt == nil {
			out = append(out, code)
		}
	}
	return out, nil
}

func (f *fakeBackupCodes) Consume(_ context.Context, userID uuid.UUID, backupCodeID uuid.UUID, usedAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	codes := f.rows[userID]
	for i := range codes {
		if codes[i].BackupCodeID == backupCodeID && codes[i].UsedAt == nil {
			at := usedAt
			codes[i].UsedAt = &at
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeBackupCodes) CountUnused(ctx context.Context, userID uuid.UUID) (int, error) {
	unused, err := f.ListUnused(ctx, userID)
	if err != nil {
		return 0, err
	}
	return len(unused), nil
}

func (f *fakeBackupCodes) DeleteAll(_ context.Context, userID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, userID)
	return nil
}

type fakeSettings struct {
	mu   sync.Mutex
	rows map[uuid.UUID]domain.SecuritySettings
}

func (f *fakeSettings) Get(_ context.Context, userID uuid.UUID) (domain.SecuritySettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[userID]
	if !ok {
		return domain.SecuritySettings{}, domain.ErrNotFound
	}
	return row, nil
}

func (f *fakeSettings) Upsert(_ context.Context, settings domain.SecuritySettings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[settings.UserID] = settings
	return nil
}

type fakeBlacklistRepo struct {
	mu      sync.Mutex
	entries map[string]domain.BlacklistEntry
}

func (f *fakeBlacklistRepo) Upsert(_ context.Context, entry domain.BlacklistEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[entry.IPAddress] = entry
	return nil
}

func (f *fakeBlacklistRepo) Delete(_ context.Context, ipAddress string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, ipAddress)
	return nil
}

func (f *fakeBlacklistRepo) ListActive(_ context.Context, now time.Time) ([]domain.BlacklistEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.BlacklistEntry, 0, len(f.entries))
	for _, entry := range f.entries {
		if !entry.Expired(now) {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (f *fakeBlacklistRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var deleted int64
	for ip, entry := range f.entries {
		if entry.Expired(now) {
			delete(f.entries, ip)
			deleted++
		}
	}
	return deleted, nil
}

func (f *fakeBlacklistRepo) get(ip string) (domain.BlacklistEntry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.entries[ip]
	return entry, ok
}

type fakeCounters struct {
	mu     sync.Mutex
	counts map[string]int64
}

func (f *fakeCounters) key(ip, activity string) string {
	return activity + "|" + ip
}

func (f *fakeCounters) Increment(_ context.Context, ip, activity string, _ time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[f.key(ip, activity)]++
	return f.counts[f.key(ip, activity)], nil
}

func (f *fakeCounters) Get(_ context.Context, ip, activity string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[f.key(ip, activity)], nil
}

func (f *fakeCounters) Reset(_ context.Context, ip, activity string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.counts, f.key(ip, activity))
	return nil
}

type fakeResolver struct {
	mu        sync.Mutex
	locations map[string]*domain.GeoLocation
}

func (f *fakeResolver) set(ip string, loc *domain.GeoLocation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locations[ip] = loc
}

func (f *fakeResolver) Resolve(_ context.Context, ip string) (*domain.GeoLocation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if loc, ok := f.locations[ip]; ok {
		clone := *loc
		return &clone, nil
	}
	// Unresolvable IPs are a soft failure, mirroring the production resolver.
	return nil, nil
}

type fakeAuditLogs struct {
	mu      sync.Mutex
	entries []domain.AuditLogEntry
	nextID  int64
}

func (f *fakeAuditLogs) mustInsert(t *testing.T, entry domain.AuditLogEntry) {
	t.Helper()
	if err := f.Insert(context.Background(), entry); err != nil {
		t.Fatalf("insert audit entry: %v", err)
	}
}

func (f *fakeAuditLogs) Insert(_ context.Context, entry domain.AuditLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	entry.ID = f.nextID
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeAuditLogs) List(_ context.Context, q ports.AuditQuery, limit, offset int) ([]domain.AuditLogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	matched := make([]domain.AuditLogEntry, 0)
	for _, entry := range f.entries {
		if q.UserID != nil && (entry.UserID == nil || *entry.UserID != *q.UserID) {
			continue
		}
		if q.Action != "" && entry.Action != q.Action {
			continue
		}
		if q.Success != nil && entry.Success != *q.Success {
			continue
		}
		if q.Since != nil && entry.Timestamp.Before(*q.Since) {
			continue
		}
		matched = append(matched, entry)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (f *fakeAuditLogs) RecentLoginIPs(_ context.Context, userID uuid.UUID, limit int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	type seenIP struct {
		ip     string
		lastAt time.Time
	}
	latest := make(map[string]time.Time)
	for _, entry := range f.entries {
		if entry.UserID == nil || *entry.UserID != userID {
			continue
		}
		if entry.Action != domain.ActionLoginSuccess || !entry.Success || entry.IPAddress == "" {
			continue
		}
		if at, ok := latest[entry.IPAddress]; !ok || entry.Timestamp.After(at) {
			latest[entry.IPAddress] = entry.Timestamp
		}
	}
	ordered := make([]seenIP, 0, len(latest))
	for ip, at := range latest {
		ordered = append(ordered, seenIP{ip: ip, lastAt: at})
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].lastAt.After(ordered[j].lastAt) })
	out := make([]string, 0, limit)
	for _, item := range ordered {
		if len(out) == limit {
			break
		}
		out = append(out, item.ip)
	}
	return out, nil
}

func (f *fakeAuditLogs) CountLogins(_ context.Context, userID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, entry := range f.entries {
		if entry.UserID != nil && *entry.UserID == userID &&
			entry.Action == domain.ActionLoginSuccess && entry.Success {
			count++
		}
	}
	return count, nil
}

func (f *fakeAuditLogs) Stats(_ context.Context, since time.Time) (int64, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var total, failed int64
	for _, entry := range f.entries {
		if entry.Timestamp.Before(since) {
			continue
		}
		total++
		if !entry.Success {
			failed++
		}
	}
	return total, failed, nil
}

func (f *fakeAuditLogs) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := make([]domain.AuditLogEntry, 0, len(f.entries))
	var deleted int64
	for _, entry := range f.entries {
		if entry.Timestamp.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, entry)
	}
	f.entries = kept
	return deleted, nil
}

type fakeSecurityLogs struct {
	mu      sync.Mutex
	entries []domain.SecurityLogEntry
	nextID  int64
}

func (f *fakeSecurityLogs) Insert(_ context.Context, entry domain.SecurityLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	entry.ID = f.nextID
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeSecurityLogs) List(_ context.Context, userID *uuid.UUID, limit, offset int) ([]domain.SecurityLogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	matched := make([]domain.SecurityLogEntry, 0)
	for _, entry := range f.entries {
		if userID != nil && (entry.UserID == nil || *entry.UserID != *userID) {
			continue
		}
		matched = append(matched, entry)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (f *fakeSecurityLogs) CountSince(_ context.Context, since time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, entry := range f.entries {
		if !entry.Timestamp.Before(since) {
			count++
		}
	}
	return count, nil
}

func (f *fakeSecurityLogs) CountRecentByUser(_ context.Context, userID uuid.UUID, since time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, entry := range f.entries {
		if entry.UserID != nil && *entry.UserID == userID && !entry.Timestamp.Before(since) {
			count++
		}
	}
	return count, nil
}

func (f *fakeSecurityLogs) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := make([]domain.SecurityLogEntry, 0, len(f.entries))
	var deleted int64
	for _, entry := range f.entries {
		if entry.Timestamp.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, entry)
	}
	f.entries = kept
	return deleted, nil
}

type fakeCipher struct{}

func (fakeCipher) Encrypt(plaintext []byte) ([]byte, error) {
	return []byte("enc:" + string(plaintext)), nil
}

func (fakeCipher) Decrypt(ciphertext []byte) ([]byte, error) {
	raw := string(ciphertext)
	if !strings.HasPrefix(raw, "enc:") {
		return nil, errors.New("not a fake ciphertext")
	}
	return []byte(strings.TrimPrefix(raw, "enc:")), nil
}

type fakeHasher struct{}

func (fakeHasher) Hash(code string) (string, error) {
	return "h:" + code, nil
}

func (fakeHasher) Compare(hash, code string) error {
	if hash != "h:"+code {
		return fmt.Errorf("hash mismatch")
	}
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []string
}

func (f *fakePublisher) Publish(_ context.Context, eventType string, _ []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, eventType)
	return nil
}

func (f *fakePublisher) has(eventType string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, event := range f.events {
		if event == eventType {
			return true
		}
	}
	return false
}
