package http

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M14-account-security-service/internal/application"
	"github.com/viralforge/mesh/services/trust-compliance/M14-account-security-service/internal/domain"
)

func (h *Handler) assessLogin(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeMissingBearerError(r.Context(), w, "assess_login")
		return
	}
	var req application.AssessLoginRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "assess_login", err)
		return
	}
	if req.IPAddress == "" {
		req.IPAddress = readIP(r)
	}
	if req.UserAgent == "" {
		req.UserAgent = r.UserAgent()
	}

	res, err := h.service.AssessLogin(r.Context(), claims, req, requestMeta(r))
	if err != nil {
		writeMappedError(r.Context(), w, "assess_login", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) reportActivity(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeMissingBearerError(r.Context(), w, "report_activity")
		return
	}
	var req struct {
		IPAddress    string `json:"ip_address"`
		ActivityType string `json:"activity_type"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "report_activity", err)
		return
	}

	banned, err := h.service.ReportSuspiciousActivity(r.Context(), claims, req.IPAddress, domain.ActivityType(req.ActivityType))
	if err != nil {
		writeMappedError(r.Context(), w, "report_activity", err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"banned": banned})
}

func (h *Handler) listBlacklist(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeMissingBearerError(r.Context(), w, "blacklist_list")
		return
	}

	res, err := h.service.ListBlacklist(r.Context(), claims)
	if err != nil {
		writeMappedError(r.Context(), w, "blacklist_list", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) addBlacklistEntry(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeMissingBearerError(r.Context(), w, "blacklist_add")
		return
	}
	var req application.BlacklistAddRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "blacklist_add", err)
		return
	}

	if err := h.service.AddBlacklistEntry(r.Context(), claims, req, requestMeta(r)); err != nil {
		writeMappedError(r.Context(), w, "blacklist_add", err)
		return
	}
	writeSuccess(w, http.StatusCreated, map[string]any{
		"ip_address":  req.IPAddress,
		"blacklisted": true,
	})
}

func (h *Handler) removeBlacklistEntry(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeMissingBearerError(r.Context(), w, "blacklist_remove")
		return
	}
	ip := chi.URLParam(r, "ip")

	if err := h.service.RemoveBlacklistEntry(r.Context(), claims, ip, requestMeta(r)); err != nil {
		writeMappedError(r.Context(), w, "blacklist_remove", err)
		return
	}
	writeMessage(w, http.StatusOK, "Blacklist entry removed")
}

func (h *Handler) activityCounts(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeMissingBearerError(r.Context(), w, "activity_counts")
		return
	}
	ip := chi.URLParam(r, "ip")

	counts, err := h.service.ActivityCounts(r.Context(), claims, ip)
	if err != nil {
		writeMappedError(r.Context(), w, "activity_counts", err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"ip_address": ip,
		"counts":     counts,
	})
}

func (h *Handler) listSecurityEvents(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeMissingBearerError(r.Context(), w, "security_events")
		return
	}

	var userID *uuid.UUID
	if raw := r.URL.Query().Get("user_id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			writeValidationError(r.Context(), w, "security_events", errors.New("user_id must be a uuid"))
			return
		}
		userID = &parsed
	}
	limit := parseIntDefault(r.URL.Query().Get("limit"), 50)
	offset := parseIntDefault(r.URL.Query().Get("offset"), 0)

	events, err := h.service.SecurityEvents(r.Context(), claims, userID, limit, offset)
	if err != nil {
		writeMappedError(r.Context(), w, "security_events", err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"events": events})
}

func (h *Handler) auditStats(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeMissingBearerError(r.Context(), w, "audit_stats")
		return
	}

	stats, err := h.service.AuditStats(r.Context(), claims)
	if err != nil {
		writeMappedError(r.Context(), w, "audit_stats", err)
		return
	}
	writeSuccess(w, http.StatusOK, stats)
}
