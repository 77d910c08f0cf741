package http

import (
	"net/http"

	"github.com/viralforge/mesh/services/trust-compliance/M14-account-security-service/internal/application"
)

func (h *Handler) twoFASetup(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeMissingBearerError(r.Context(), w, "2fa_setup")
		return
	}

	res, err := h.service.Setup2FA(r.Context(), claims)
	if err != nil {
		writeMappedError(r.Context(), w, "2fa_setup", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) twoFAEnable(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeMissingBearerError(r.Context(), w, "2fa_enable")
		return
	}
	var req application.TwoFAEnableRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "2fa_enable", err)
		return
	}

	res, err := h.service.Enable2FA(r.Context(), claims, req, requestMeta(r))
	if err != nil {
		writeMappedError(r.Context(), w, "2fa_enable", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) twoFADisable(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeMissingBearerError(r.Context(), w, "2fa_disable")
		return
	}
	var req application.TwoFADisableRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "2fa_disable", err)
		return
	}

	if err := h.service.Disable2FA(r.Context(), claims, req, requestMeta(r)); err != nil {
		writeMappedError(r.Context(), w, "2fa_disable", err)
		return
	}
	writeMessage(w, http.StatusOK, "Two-factor authentication disabled")
}

func (h *Handler) twoFAVerify(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeMissingBearerError(r.Context(), w, "2fa_verify")
		return
	}
	var req application.TwoFAVerifyRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "2fa_verify", err)
		return
	}

	res, err := h.service.Verify2FA(r.Context(), claims, req, requestMeta(r))
	if err != nil {
		writeMappedError(r.Context(), w, "2fa_verify", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) regenerateBackupCodes(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeMissingBearerError(r.Context(), w, "backup_codes_regenerate")
		return
	}

	res, err := h.service.RegenerateBackupCodes(r.Context(), claims, requestMeta(r))
	if err != nil {
		writeMappedError(r.Context(), w, "backup_codes_regenerate", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}
