package domain

import "errors"

var (
	// ErrNotFound is returned when the requested resource does not exist.
	// Keeping this sentinel in domain allows adapters to map it consistently to 404/NOT_FOUND.
	ErrNotFound = errors.New("resource not found")
	// ErrInvalidCode hides whether a TOTP code or a backup code failed to match.
	// The reason is to prevent probing which second factor is in play.
	ErrInvalidCode = errors.New("invalid code")
	// ErrTwoFactorAlreadyEnabled signals a setup/enable attempt on an already-active credential.
	ErrTwoFactorAlreadyEnabled = errors.New("two-factor authentication already enabled")
	// ErrTwoFactorNotEnabled signals verify/disable/regenerate without an active credential.
	ErrTwoFactorNotEnabled = errors.New("two-factor authentication not enabled")
	// ErrResolutionUnavailable marks a geolocation provider failure.
	// It is soft by policy: callers degrade to "no location signal" instead of failing.
	ErrResolutionUnavailable = errors.New("geolocation resolution unavailable")
	// ErrBlacklisted is returned at the request gate for a denied client IP.
	ErrBlacklisted  = errors.New("ip address blacklisted")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidInput = errors.New("invalid input")
	ErrRateLimited  = errors.New("rate limited")
	// ErrPersistence surfaces store failures on administrative write paths.
	// Audit-log writes swallow it by policy; blacklist add/remove report it.
	ErrPersistence = errors.New("persistence unavailable")
	ErrConflict    = errors.New("conflict")
)
