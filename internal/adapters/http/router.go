package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/viralforge/mesh/services/trust-compliance/M14-account-security-service/internal/application"
	"github.com/viralforge/mesh/services/trust-compliance/M14-account-security-service/internal/blacklist"
	"github.com/viralforge/mesh/services/trust-compliance/M14-account-security-service/internal/ports"
)

// Handler is the HTTP adapter entrypoint for account-security use-cases.
// Keeping only application dependency here preserves clean adapter boundaries.
type Handler struct {
	service   *application.Service
	blacklist *blacklist.Cache
	verifier  ports.TokenVerifier
}

// NewHandler constructs an HTTP handler bound to the application service.
// The blacklist cache is held directly so the gate middleware stays an
// in-memory check on the hot path.
func NewHandler(service *application.Service, cache *blacklist.Cache, verifier ports.TokenVerifier) *Handler {
	return &Handler{service: service, blacklist: cache, verifier: verifier}
}

// NewRouter registers M14 HTTP routes and middleware stack.
// Centralizing routes here ensures consistent auth and error behavior across endpoints.
func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware)
	r.Use(loggingMiddleware)
	r.Use(handler.blacklistGateMiddleware)

	r.Get("/healthz", handler.healthz)
	r.Get("/readyz", handler.readyz)

	r.Route("/security/v1", func(r chi.Router) {
		r.Use(handler.authMiddleware)

		// Service-to-service hooks. The login controller and other internal
		// callers present service tokens; the role check sits in the
		// application layer next to the admin gates.
		r.Post("/assess-login", handler.assessLogin)
		r.Post("/report-activity", handler.reportActivity)

		r.Get("/2fa/setup", handler.twoFASetup)
		r.Post("/2fa/enable", handler.twoFAEnable)
		r.Post("/2fa/disable", handler.twoFADisable)
		r.Post("/2fa/verify", handler.twoFAVerify)
		r.Post("/2fa/backup-codes/regenerate", handler.regenerateBackupCodes)

		r.Get("/settings", handler.getSettings)
		r.Put("/settings", handler.updateSettings)
		r.Get("/activity", handler.listActivity)

		r.Get("/admin/blacklist", handler.listBlacklist)
		r.Post("/admin/blacklist", handler.addBlacklistEntry)
		r.Delete("/admin/blacklist/{ip}", handler.removeBlacklistEntry)
		r.Get("/admin/blacklist/{ip}/activity", handler.activityCounts)
		r.Get("/admin/security-events", handler.listSecurityEvents)
		r.Get("/admin/audit/stats", handler.auditStats)
	})

	return r
}
