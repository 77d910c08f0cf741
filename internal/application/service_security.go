package application

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M14-account-security-service/internal/domain"
	"github.com/viralforge/mesh/services/trust-compliance/M14-account-security-service/internal/ports"
)

// AssessLogin is the hook the login controller calls after every attempt.
// Failed attempts feed the escalation counters; successful attempts run
// anomaly detection against the user's history. Either way the attempt lands
// in the audit log, so detection history builds from the very first login.
// Callers present a service token; end users never reach this operation.
func (s *Service) AssessLogin(ctx context.Context, claims ports.AuthClaims, req AssessLoginRequest, meta RequestMeta) (AssessLoginResponse, error) {
	if err := requireService(claims); err != nil {
		return AssessLoginResponse{}, err
	}
	ip := strings.TrimSpace(req.IPAddress)
	if ip == "" {
		return AssessLoginResponse{}, fmt.Errorf("%w: ip_address is required", domain.ErrInvalidInput)
	}
	if req.UserID == uuid.Nil {
		return AssessLoginResponse{}, fmt.Errorf("%w: user_id is required", domain.ErrInvalidInput)
	}

	resp := AssessLoginResponse{Blacklisted: s.blacklist.IsBlacklisted(ip)}

	if !req.Success {
		s.audit(req.UserID, domain.ActionLoginFailed, "", RequestMeta{IPAddress: ip, UserAgent: req.UserAgent}, false, "")
		if err := s.escalate(ctx, ip, domain.ActivityFailedLogin); err != nil {
			return resp, err
		}
		resp.Blacklisted = s.blacklist.IsBlacklisted(ip)
		return resp, nil
	}

	location, err := s.resolver.Resolve(ctx, ip)
	if err == nil {
		resp.Location = location
	}

	settings, err := s.settings.Get(ctx, req.UserID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		s.audit(req.UserID, domain.ActionLoginSuccess, "", RequestMeta{IPAddress: ip, UserAgent: req.UserAgent}, true, "")
		return resp, err
	}
	// Anomaly checks default to on for users who never touched their settings.
	checksEnabled := err != nil || settings.AnomalyChecks

	// Detection reads the login history before this attempt is enqueued;
	// otherwise a live recorder drain could persist the attempt first and it
	// would become its own baseline.
	var anomalies []domain.LocationAnomaly
	if checksEnabled {
		anomalies, err = s.detector.Detect(ctx, req.UserID, ip)
		if err != nil {
			s.audit(req.UserID, domain.ActionLoginSuccess, "", RequestMeta{IPAddress: ip, UserAgent: req.UserAgent}, true, "")
			return resp, err
		}
	}

	s.audit(req.UserID, domain.ActionLoginSuccess, "", RequestMeta{IPAddress: ip, UserAgent: req.UserAgent}, true, "")
	resp.Anomalies = anomalies

	escalating := 0
	for _, a := range anomalies {
		if a.Details.RiskScore > resp.RiskScore {
			resp.RiskScore = a.Details.RiskScore
		}
		if s.detector.Policy(a.Type).Escalates {
			escalating++
		}
		s.publish(ctx, "security.anomaly.detected", map[string]any{
			"user_id":    req.UserID,
			"ip":         ip,
			"type":       a.Type,
			"severity":   a.Severity,
			"risk_score": a.Details.RiskScore,
		})
	}
	if escalating > 0 && s.anomalyFrequencyExceeded(ctx, req.UserID, escalating) {
		if escErr := s.escalate(ctx, ip, domain.ActivityUnauthorizedAccess); escErr != nil {
			return resp, escErr
		}
	}
	resp.Blacklisted = s.blacklist.IsBlacklisted(ip)
	return resp, nil
}

// anomalyFrequencyExceeded reports whether this attempt's escalating anomalies
// plus the user's recent security events cross the escalation threshold.
// One-off anomalies stay out of the reputation counters.
func (s *Service) anomalyFrequencyExceeded(ctx context.Context, userID uuid.UUID, current int) bool {
	since := s.nowFn().Add(-s.cfg.AnomalyEscalationWindow)
	recent, err := s.recorder.UserEventCount(ctx, userID, since)
	if err != nil {
		return false
	}
	return int(recent)+current >= s.cfg.AnomalyEscalationThreshold
}

// ReportSuspiciousActivity lets other services feed the escalation counters
// directly (rate limiters, upload scanners).
func (s *Service) ReportSuspiciousActivity(ctx context.Context, claims ports.AuthClaims, ip string, activity domain.ActivityType) (bool, error) {
	if err := requireService(claims); err != nil {
		return false, err
	}
	ip = strings.TrimSpace(ip)
	if net.ParseIP(ip) == nil {
		return false, fmt.Errorf("%w: invalid ip address", domain.ErrInvalidInput)
	}
	switch activity {
	case domain.ActivityFailedLogin, domain.ActivityRateLimitViolation,
		domain.ActivityUnauthorizedAccess, domain.ActivityUploadViolation:
	default:
		return false, fmt.Errorf("%w: unknown activity type", domain.ErrInvalidInput)
	}
	if err := s.escalate(ctx, ip, activity); err != nil {
		return false, err
	}
	return s.blacklist.IsBlacklisted(ip), nil
}

// escalate bumps the rolling counter and hands the observed count to the
// reputation cache, which decides whether the threshold has been crossed.
func (s *Service) escalate(ctx context.Context, ip string, activity domain.ActivityType) error {
	count, err := s.counters.Increment(ctx, ip, string(activity), s.cfg.ActivityWindow)
	if err != nil {
		// A broken counter store must not fail the login path; escalation just
		// pauses until it recovers.
		return nil
	}
	banned, err := s.blacklist.HandleSuspiciousActivity(ctx, ip, activity, int(count))
	if err != nil {
		return err
	}
	if banned {
		_ = s.counters.Reset(ctx, ip, string(activity))
		s.publish(ctx, "security.ip.blacklisted", map[string]any{
			"ip":       ip,
			"activity": activity,
			"count":    count,
		})
	}
	return nil
}

// ListBlacklist returns the active entries, for the admin surface.
func (s *Service) ListBlacklist(_ context.Context, claims ports.AuthClaims) (BlacklistListResponse, error) {
	if err := requireAdmin(claims); err != nil {
		return BlacklistListResponse{}, err
	}
	return BlacklistListResponse{Entries: s.blacklist.List()}, nil
}

// AddBlacklistEntry creates a manual entry; a nil duration means permanent.
func (s *Service) AddBlacklistEntry(ctx context.Context, claims ports.AuthClaims, req BlacklistAddRequest, meta RequestMeta) error {
	if err := requireAdmin(claims); err != nil {
		return err
	}
	ip := strings.TrimSpace(req.IPAddress)
	if net.ParseIP(ip) == nil {
		return fmt.Errorf("%w: invalid ip address", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(req.Reason) == "" {
		return fmt.Errorf("%w: reason is required", domain.ErrInvalidInput)
	}

	var duration *time.Duration
	if req.DurationMinutes != nil {
		if *req.DurationMinutes <= 0 {
			return fmt.Errorf("%w: duration_minutes must be positive", domain.ErrInvalidInput)
		}
		d := time.Duration(*req.DurationMinutes) * time.Minute
		duration = &d
	}

	if err := s.blacklist.Add(ctx, ip, req.Reason, duration, domain.BlacklistSourceManual, req.Details); err != nil {
		return err
	}
	s.audit(claims.UserID, domain.ActionBlacklistAdded, ip, meta, true, "")
	return nil
}

// RemoveBlacklistEntry lifts a ban.
func (s *Service) RemoveBlacklistEntry(ctx context.Context, claims ports.AuthClaims, ip string, meta RequestMeta) error {
	if err := requireAdmin(claims); err != nil {
		return err
	}
	ip = strings.TrimSpace(ip)
	if net.ParseIP(ip) == nil {
		return fmt.Errorf("%w: invalid ip address", domain.ErrInvalidInput)
	}
	if err := s.blacklist.Remove(ctx, ip); err != nil {
		return err
	}
	s.audit(claims.UserID, domain.ActionBlacklistRemoved, ip, meta, true, "")
	return nil
}

// AuditStats aggregates log volume over the configured trailing window.
func (s *Service) AuditStats(ctx context.Context, claims ports.AuthClaims) (domain.AuditStats, error) {
	if err := requireAdmin(claims); err != nil {
		return domain.AuditStats{}, err
	}
	return s.recorder.Stats(ctx, s.cfg.AuditWindowDays)
}

// SecurityEvents exposes the security log to the admin surface, newest first.
// A non-nil userID narrows the feed to one account.
func (s *Service) SecurityEvents(ctx context.Context, claims ports.AuthClaims, userID *uuid.UUID, limit, offset int) ([]domain.SecurityLogEntry, error) {
	if err := requireAdmin(claims); err != nil {
		return nil, err
	}
	return s.recorder.SecurityEvents(ctx, userID, limit, offset)
}

// ActivityCounts reports the rolling suspicious-activity counters for one IP,
// an admin diagnostic for addresses nearing automatic escalation.
func (s *Service) ActivityCounts(ctx context.Context, claims ports.AuthClaims, ip string) (map[string]int64, error) {
	if err := requireAdmin(claims); err != nil {
		return nil, err
	}
	ip = strings.TrimSpace(ip)
	if net.ParseIP(ip) == nil {
		return nil, fmt.Errorf("%w: invalid ip address", domain.ErrInvalidInput)
	}

	counts := make(map[string]int64, 4)
	for _, activity := range []domain.ActivityType{
		domain.ActivityFailedLogin,
		domain.ActivityRateLimitViolation,
		domain.ActivityUnauthorizedAccess,
		domain.ActivityUploadViolation,
	} {
		count, err := s.counters.Get(ctx, ip, string(activity))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
		}
		counts[string(activity)] = count
	}
	return counts, nil
}

func requireAdmin(claims ports.AuthClaims) error {
	if !strings.EqualFold(claims.Role, "ADMIN") {
		return domain.ErrForbidden
	}
	return nil
}

// requireService gates the internal service-to-service hooks. Admin tokens
// pass too, which keeps manual operational testing possible.
func requireService(claims ports.AuthClaims) error {
	if strings.EqualFold(claims.Role, "SERVICE") || strings.EqualFold(claims.Role, "ADMIN") {
		return nil
	}
	return domain.ErrForbidden
}
