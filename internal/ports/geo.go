package ports

import (
	"context"

	"github.com/viralforge/mesh/services/trust-compliance/M14-account-security-service/internal/domain"
)

// GeoProvider resolves a public IP address to location and network attributes.
// Implementations must bound their own I/O; a nil location with nil error is
// not a valid result — failures return an error the resolver soft-handles.
type GeoProvider interface {
	Lookup(ctx context.Context, ip string) (*domain.GeoLocation, error)
}
