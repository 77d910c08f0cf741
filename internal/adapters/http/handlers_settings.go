package http

import (
	"net/http"

	"github.com/viralforge/mesh/services/trust-compliance/M14-account-security-service/internal/application"
)

func (h *Handler) getSettings(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeMissingBearerError(r.Context(), w, "settings_get")
		return
	}

	res, err := h.service.GetSettings(r.Context(), claims)
	if err != nil {
		writeMappedError(r.Context(), w, "settings_get", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) updateSettings(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeMissingBearerError(r.Context(), w, "settings_update")
		return
	}
	var req application.SettingsUpdateRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "settings_update", err)
		return
	}

	res, err := h.service.UpdateSettings(r.Context(), claims, req, requestMeta(r))
	if err != nil {
		writeMappedError(r.Context(), w, "settings_update", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) listActivity(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeMissingBearerError(r.Context(), w, "activity_list")
		return
	}

	query := application.ActivityQuery{
		Page:   parseIntDefault(r.URL.Query().Get("page"), 1),
		Limit:  parseIntDefault(r.URL.Query().Get("limit"), 20),
		Days:   parseIntDefault(r.URL.Query().Get("days"), 0),
		Action: r.URL.Query().Get("action"),
	}
	items, err := h.service.ListActivity(r.Context(), claims, query)
	if err != nil {
		writeMappedError(r.Context(), w, "activity_list", err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"entries": items})
}
