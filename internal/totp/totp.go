// Package totp implements the RFC 6238 time-based one-time password
// algorithm and the backup-code generator used for 2FA recovery.
// It is pure computation: the only ambient input is the clock, which is
// injectable so verification windows can be tested deterministically.
package totp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultTimeStep is the RFC 6238 recommended interval.
	DefaultTimeStep = 30 * time.Second
	// DefaultWindow tolerates one step of clock skew on either side.
	DefaultWindow = 1
	// Digits is the code length expected by standard authenticator apps.
	Digits = 6

	secretBytes      = 20
	backupCodeCount  = 10
	backupCodeLength = 8
	backupAlphabet   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// Engine derives and verifies time-based codes for a shared secret.
type Engine struct {
	timeStep time.Duration
	window   int
	nowFn    func() time.Time
}

// Option mutates engine construction.
type Option func(*Engine)

// WithTimeStep overrides the 30s code interval.
func WithTimeStep(step time.Duration) Option {
	return func(e *Engine) {
		if step > 0 {
			e.timeStep = step
		}
	}
}

// WithWindow overrides the accepted clock-skew window, in steps per side.
func WithWindow(window int) Option {
	return func(e *Engine) {
		if window >= 0 {
			e.window = window
		}
	}
}

// WithClock injects the time source. Tests use this to walk across steps
// without sleeping.
func WithClock(nowFn func() time.Time) Option {
	return func(e *Engine) {
		if nowFn != nil {
			e.nowFn = nowFn
		}
	}
}

// NewEngine constructs an engine with RFC defaults.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		timeStep: DefaultTimeStep,
		window:   DefaultWindow,
		nowFn:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// GenerateSecret returns a fresh random secret, base32-encoded without
// padding so it can be typed into an authenticator app directly.
func GenerateSecret() (string, error) {
	raw := make([]byte, secretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("read secret entropy: %w", err)
	}
	return strings.TrimRight(base32.StdEncoding.EncodeToString(raw), "="), nil
}

// GenerateCode computes the 6-digit code for the current time step.
func (e *Engine) GenerateCode(secret string) (string, error) {
	return e.codeAt(secret, e.counter(e.nowFn()))
}

// VerifyCode checks a submitted code against the current step and the
// configured skew window. Each candidate step derives its own code; comparing
// only the current step would silently collapse the window to zero tolerance.
func (e *Engine) VerifyCode(secret, submitted string) (bool, error) {
	submitted = strings.TrimSpace(submitted)
	if len(submitted) != Digits {
		return false, nil
	}

	current := e.counter(e.nowFn())
	match := false
	for offset := -int64(e.window); offset <= int64(e.window); offset++ {
		counter := current + offset
		if counter < 0 {
			continue
		}
		code, err := e.codeAt(secret, counter)
		if err != nil {
			return false, err
		}
		if subtle.ConstantTimeCompare([]byte(code), []byte(submitted)) == 1 {
			match = true
		}
	}
	return match, nil
}

// ProvisioningURI renders the otpauth URI consumed by authenticator apps.
// The parameter set is fixed for compatibility; do not reorder or extend it.
func ProvisioningURI(secret, issuer, email string) string {
	return fmt.Sprintf(
		"otpauth://totp/%s:%s?secret=%s&issuer=%s&algorithm=SHA1&digits=6&period=30",
		url.PathEscape(issuer), url.PathEscape(email), secret, url.QueryEscape(issuer),
	)
}

// GenerateBackupCodes returns count independently random 8-character
// alphanumeric recovery codes. Callers hash them before storage.
func GenerateBackupCodes(count int) ([]string, error) {
	if count <= 0 {
		count = backupCodeCount
	}
	codes := make([]string, 0, count)
	for i := 0; i < count; i++ {
		raw := make([]byte, backupCodeLength)
		if _, err := rand.Read(raw); err != nil {
			return nil, fmt.Errorf("read backup code entropy: %w", err)
		}
		var sb strings.Builder
		for _, b := range raw {
			sb.WriteByte(backupAlphabet[int(b)%len(backupAlphabet)])
		}
		codes = append(codes, sb.String())
	}
	return codes, nil
}

func (e *Engine) counter(now time.Time) int64 {
	return now.Unix() / int64(e.timeStep/time.Second)
}

// codeAt implements RFC 4226 HOTP with SHA-1 and dynamic truncation.
func (e *Engine) codeAt(secret string, counter int64) (string, error) {
	key, err := decodeSecret(secret)
	if err != nil {
		return "", err
	}

	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))

	mac := hmac.New(sha1.New, key)
	mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	truncated := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff
	return fmt.Sprintf("%0*d", Digits, truncated%1_000_000), nil
}

func decodeSecret(secret string) ([]byte, error) {
	normalized := strings.ToUpper(strings.TrimSpace(secret))
	if pad := len(normalized) % 8; pad != 0 {
		normalized += strings.Repeat("=", 8-pad)
	}
	key, err := base32.StdEncoding.DecodeString(normalized)
	if err != nil {
		return nil, fmt.Errorf("decode totp secret: %w", err)
	}
	return key, nil
}
