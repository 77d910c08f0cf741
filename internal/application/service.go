package application

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M14-account-security-service/internal/anomaly"
	"github.com/viralforge/mesh/services/trust-compliance/M14-account-security-service/internal/audit"
	"github.com/viralforge/mesh/services/trust-compliance/M14-account-security-service/internal/blacklist"
	"github.com/viralforge/mesh/services/trust-compliance/M14-account-security-service/internal/domain"
	"github.com/viralforge/mesh/services/trust-compliance/M14-account-security-service/internal/ports"
	"github.com/viralforge/mesh/services/trust-compliance/M14-account-security-service/internal/totp"
)

// LocationResolver is the slice of the geo resolver the service needs.
type LocationResolver interface {
	Resolve(ctx context.Context, ip string) (*domain.GeoLocation, error)
}

type Service struct {
	cfg         Config
	credentials ports.CredentialRepository
	backupCodes ports.BackupCodeRepository
	settings    ports.SettingsRepository
	blacklist   *blacklist.Cache
	counters    ports.ActivityCounterStore
	resolver    LocationResolver
	detector    *anomaly.Detector
	recorder    *audit.Recorder
	engine      *totp.Engine
	cipher      ports.SecretCipher
	hasher      ports.CodeHasher
	publisher   ports.EventPublisher
	nowFn       func() time.Time
}

type Dependencies struct {
	Config      Config
	Credentials ports.CredentialRepository
	BackupCodes ports.BackupCodeRepository
	Settings    ports.SettingsRepository
	Blacklist   *blacklist.Cache
	Counters    ports.ActivityCounterStore
	Resolver    LocationResolver
	Detector    *anomaly.Detector
	Recorder    *audit.Recorder
	Engine      *totp.Engine
	Cipher      ports.SecretCipher
	Hasher      ports.CodeHasher
	Publisher   ports.EventPublisher
}

func NewService(deps Dependencies) *Service {
	cfg := deps.Config
	if cfg.BackupCodeCount <= 0 {
		cfg.BackupCodeCount = 10
	}
	if cfg.AuditWindowDays <= 0 {
		cfg.AuditWindowDays = 30
	}
	if cfg.ActivityWindow <= 0 {
		cfg.ActivityWindow = time.Hour
	}
	if cfg.AnomalyEscalationThreshold <= 0 {
		cfg.AnomalyEscalationThreshold = 3
	}
	if cfg.AnomalyEscalationWindow <= 0 {
		cfg.AnomalyEscalationWindow = 24 * time.Hour
	}
	return &Service{
		cfg:         cfg,
		credentials: deps.Credentials,
		backupCodes: deps.BackupCodes,
		settings:    deps.Settings,
		blacklist:   deps.Blacklist,
		counters:    deps.Counters,
		resolver:    deps.Resolver,
		detector:    deps.Detector,
		recorder:    deps.Recorder,
		engine:      deps.Engine,
		cipher:      deps.Cipher,
		hasher:      deps.Hasher,
		publisher:   deps.Publisher,
		nowFn:       func() time.Time { return time.Now().UTC() },
	}
}

// audit records a user-attributed action through the async recorder.
// Recording is best-effort; failures never surface to the caller.
func (s *Service) audit(userID uuid.UUID, action, details string, meta RequestMeta, success bool, errMessage string) {
	uid := userID
	s.recorder.Record(domain.AuditLogEntry{
		UserID:       &uid,
		Action:       action,
		Details:      details,
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
		Success:      success,
		ErrorMessage: errMessage,
		Timestamp:    s.nowFn(),
	})
}

// publish emits a domain event; delivery is best-effort and never blocks the
// calling use case.
func (s *Service) publish(ctx context.Context, eventType string, payload map[string]any) {
	if s.publisher == nil {
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	_ = s.publisher.Publish(ctx, eventType, raw)
}
