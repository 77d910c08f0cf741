package geoip

import (
	"context"
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"
	"github.com/viralforge/mesh/services/trust-compliance/M14-account-security-service/internal/domain"
)

// MaxMindProvider answers lookups from a local GeoLite2/GeoIP2 City database.
// It has no network dependency, which makes it the fallback when the HTTP
// provider is unconfigured or unreachable.
type MaxMindProvider struct {
	reader *geoip2.Reader
}

// NewMaxMindProvider opens the database at path. The caller owns Close.
func NewMaxMindProvider(path string) (*MaxMindProvider, error) {
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip database: %w", err)
	}
	return &MaxMindProvider{reader: reader}, nil
}

func (p *MaxMindProvider) Lookup(_ context.Context, ip string) (*domain.GeoLocation, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return nil, fmt.Errorf("%w: unparseable ip %q", domain.ErrInvalidInput, ip)
	}

	record, err := p.reader.City(parsed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrResolutionUnavailable, err)
	}

	loc := &domain.GeoLocation{
		IP:          ip,
		Country:     record.Country.Names["en"],
		CountryCode: record.Country.IsoCode,
		City:        record.City.Names["en"],
		Zip:         record.Postal.Code,
		Latitude:    record.Location.Latitude,
		Longitude:   record.Location.Longitude,
		Timezone:    record.Location.TimeZone,
		Proxy:       record.Traits.IsAnonymousProxy,
	}
	if len(record.Subdivisions) > 0 {
		loc.Region = record.Subdivisions[0].Names["en"]
		loc.RegionCode = record.Subdivisions[0].IsoCode
	}
	return loc, nil
}

// Close releases the memory-mapped database.
func (p *MaxMindProvider) Close() error {
	return p.reader.Close()
}

// FallbackProvider tries a primary provider and falls back to a secondary on
// error. Used to chain the HTTP API over the local database.
type FallbackProvider struct {
	primary   lookupFn
	secondary lookupFn
}

type lookupFn interface {
	Lookup(ctx context.Context, ip string) (*domain.GeoLocation, error)
}

// NewFallbackProvider chains two providers; secondary may be nil.
func NewFallbackProvider(primary, secondary lookupFn) *FallbackProvider {
	return &FallbackProvider{primary: primary, secondary: secondary}
}

func (p *FallbackProvider) Lookup(ctx context.Context, ip string) (*domain.GeoLocation, error) {
	loc, err := p.primary.Lookup(ctx, ip)
	if err == nil {
		return loc, nil
	}
	if p.secondary == nil {
		return nil, err
	}
	return p.secondary.Lookup(ctx, ip)
}
