package domain

// GeoLocation is the immutable resolution result for one IP address.
// Instances are produced by a provider lookup and cached; they are never mutated.
type GeoLocation struct {
	IP          string  `json:"ip"`
	Country     string  `json:"country"`
	CountryCode string  `json:"country_code"`
	Region      string  `json:"region"`
	RegionCode  string  `json:"region_code"`
	City        string  `json:"city"`
	Zip         string  `json:"zip"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Timezone    string  `json:"timezone"`
	ISP         string  `json:"isp"`
	Org         string  `json:"org"`
	ASNumber    string  `json:"as_number"`
	Proxy       bool    `json:"proxy"`
	Hosting     bool    `json:"hosting"`
	VPN         bool    `json:"vpn"`
	Tor         bool    `json:"tor"`
}

// LocalLocation is the synthetic result for loopback/private/link-local addresses.
// It short-circuits resolution so internal traffic never reaches the provider.
func LocalLocation(ip string) *GeoLocation {
	return &GeoLocation{
		IP:          ip,
		Country:     "Local",
		CountryCode: "LO",
		Region:      "Local Network",
		RegionCode:  "LO",
		City:        "Local",
		Timezone:    "UTC",
		ISP:         "Local Network",
		Org:         "Local Network",
	}
}
