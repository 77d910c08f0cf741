package ports

import (
	"time"

	"github.com/google/uuid"
)

// AuthClaims is the authenticated caller context extracted from a bearer token.
// Token issuance is owned by the authentication service; this service only
// verifies.
type AuthClaims struct {
	UserID    uuid.UUID `json:"user_id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TokenVerifier validates inbound bearer tokens.
type TokenVerifier interface {
	ParseAndValidate(token string) (AuthClaims, error)
}

// SecretCipher protects TOTP secrets at rest with symmetric encryption.
type SecretCipher interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// CodeHasher hashes backup codes with a per-code salt and compares
// submissions against stored hashes.
type CodeHasher interface {
	Hash(code string) (string, error)
	Compare(hash, code string) error
}
