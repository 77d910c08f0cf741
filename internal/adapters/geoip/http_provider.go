// Package geoip provides geolocation provider adapters: an HTTP JSON API
// client and a local MaxMind database fallback.
package geoip

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/viralforge/mesh/services/trust-compliance/M14-account-security-service/internal/domain"
)

// DefaultTimeout caps a provider round trip; geolocation sits on the login
// path and must never hold a request hostage.
const DefaultTimeout = 5 * time.Second

// HTTPProvider queries an ip-api.com style JSON endpoint.
type HTTPProvider struct {
	baseURL string
	client  *http.Client
}

// NewHTTPProvider builds a provider against the given base URL
// (e.g. "http://ip-api.com/json"). A zero timeout uses DefaultTimeout.
func NewHTTPProvider(baseURL string, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 || timeout > DefaultTimeout {
		timeout = DefaultTimeout
	}
	return &HTTPProvider{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type apiResponse struct {
	Status      string  `json:"status"`
	Message     string  `json:"message"`
	Query       string  `json:"query"`
	Country     string  `json:"country"`
	CountryCode string  `json:"countryCode"`
	RegionName  string  `json:"regionName"`
	Region      string  `json:"region"`
	City        string  `json:"city"`
	Zip         string  `json:"zip"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	Timezone    string  `json:"timezone"`
	ISP         string  `json:"isp"`
	Org         string  `json:"org"`
	AS          string  `json:"as"`
	Proxy       bool    `json:"proxy"`
	Hosting     bool    `json:"hosting"`
}

// Lookup fetches and decodes the location for one IP. A non-success API
// status is an error; the resolver above decides how failures degrade.
func (p *HTTPProvider) Lookup(ctx context.Context, ip string) (*domain.GeoLocation, error) {
	endpoint := fmt.Sprintf("%s/%s?fields=status,message,query,country,countryCode,regionName,region,city,zip,lat,lon,timezone,isp,org,as,proxy,hosting",
		p.baseURL, url.PathEscape(ip))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build geolocation request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geolocation request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: geolocation provider returned %d", domain.ErrResolutionUnavailable, resp.StatusCode)
	}

	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode geolocation response: %w", err)
	}
	if body.Status != "success" {
		return nil, fmt.Errorf("%w: %s", domain.ErrResolutionUnavailable, body.Message)
	}

	return &domain.GeoLocation{
		IP:          body.Query,
		Country:     body.Country,
		CountryCode: body.CountryCode,
		Region:      body.RegionName,
		RegionCode:  body.Region,
		City:        body.City,
		Zip:         body.Zip,
		Latitude:    body.Lat,
		Longitude:   body.Lon,
		Timezone:    body.Timezone,
		ISP:         body.ISP,
		Org:         body.Org,
		ASNumber:    body.AS,
		Proxy:       body.Proxy,
		Hosting:     body.Hosting,
	}, nil
}
