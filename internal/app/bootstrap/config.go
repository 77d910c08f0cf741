package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the resolved runtime configuration for M14.
// It merges file defaults and environment overrides to support both local and deployed runs.
type Config struct {
	ServiceID string

	HTTPPort int
	GRPCPort int

	DatabaseURL string
	RedisURL    string
	NATSURL     string
	MaxDBConns  int32

	// EncryptionKey is the hex-encoded AES-256 key protecting TOTP secrets.
	EncryptionKey string

	JWTPublicKeyPEM   string
	AllowEphemeralJWT bool

	BcryptCost int

	TOTPIssuer      string
	BackupCodeCount int

	GeoProviderURL    string
	GeoTimeout        time.Duration
	GeoIPDBPath       string
	HighRiskCountries []string

	AuditRetentionDays int
	AuditWindowDays    int
	ActivityWindow     time.Duration
	SweepInterval      time.Duration
	CleanupInterval    time.Duration
}

// configFile mirrors the YAML schema used by configs/default.yaml.
// It is intentionally separate from Config so runtime-only fields stay internal.
type configFile struct {
	Service struct {
		ID       string `yaml:"id"`
		HTTPPort int    `yaml:"http_port"`
		GRPCPort int    `yaml:"grpc_port"`
	} `yaml:"service"`
	Dependencies struct {
		PostgresURL string `yaml:"postgres_url"`
		RedisURL    string `yaml:"redis_url"`
		NATSURL     string `yaml:"nats_url"`
	} `yaml:"dependencies"`
	Geo struct {
		ProviderURL       string   `yaml:"provider_url"`
		TimeoutSeconds    int      `yaml:"timeout_seconds"`
		MaxMindDBPath     string   `yaml:"maxmind_db_path"`
		HighRiskCountries []string `yaml:"high_risk_countries"`
	} `yaml:"geo"`
	TwoFactor struct {
		Issuer          string `yaml:"issuer"`
		BackupCodeCount int    `yaml:"backup_code_count"`
	} `yaml:"two_factor"`
	Audit struct {
		RetentionDays int `yaml:"retention_days"`
		WindowDays    int `yaml:"window_days"`
	} `yaml:"audit"`
}

// LoadConfig resolves configuration in priority order: defaults -> file -> env.
// This order keeps local bootstrap simple while allowing environment-specific overrides.
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		ServiceID:          "M14-Account-Security-Service",
		HTTPPort:           8080,
		GRPCPort:           9090,
		MaxDBConns:         20,
		AllowEphemeralJWT:  true,
		BcryptCost:         12,
		TOTPIssuer:         "ViralForge",
		BackupCodeCount:    10,
		GeoProviderURL:     "http://ip-api.com/json",
		GeoTimeout:         5 * time.Second,
		AuditRetentionDays: 365,
		AuditWindowDays:    30,
		ActivityWindow:     time.Hour,
		SweepInterval:      time.Hour,
		CleanupInterval:    24 * time.Hour,
	}

	raw, err := os.ReadFile(path)
	if err == nil {
		var f configFile
		if unmarshalErr := yaml.Unmarshal(raw, &f); unmarshalErr != nil {
			return Config{}, fmt.Errorf("parse config file: %w", unmarshalErr)
		}
		if f.Service.ID != "" {
			cfg.ServiceID = f.Service.ID
		}
		if f.Service.HTTPPort > 0 {
			cfg.HTTPPort = f.Service.HTTPPort
		}
		if f.Service.GRPCPort > 0 {
			cfg.GRPCPort = f.Service.GRPCPort
		}
		if f.Dependencies.PostgresURL != "" {
			cfg.DatabaseURL = f.Dependencies.PostgresURL
		}
		if f.Dependencies.RedisURL != "" {
			cfg.RedisURL = f.Dependencies.RedisURL
		}
		if f.Dependencies.NATSURL != "" {
			cfg.NATSURL = f.Dependencies.NATSURL
		}
		if f.Geo.ProviderURL != "" {
			cfg.GeoProviderURL = f.Geo.ProviderURL
		}
		if f.Geo.TimeoutSeconds > 0 {
			cfg.GeoTimeout = time.Duration(f.Geo.TimeoutSeconds) * time.Second
		}
		if f.Geo.MaxMindDBPath != "" {
			cfg.GeoIPDBPath = f.Geo.MaxMindDBPath
		}
		if len(f.Geo.HighRiskCountries) > 0 {
			cfg.HighRiskCountries = f.Geo.HighRiskCountries
		}
		if f.TwoFactor.Issuer != "" {
			cfg.TOTPIssuer = f.TwoFactor.Issuer
		}
		if f.TwoFactor.BackupCodeCount > 0 {
			cfg.BackupCodeCount = f.TwoFactor.BackupCodeCount
		}
		if f.Audit.RetentionDays > 0 {
			cfg.AuditRetentionDays = f.Audit.RetentionDays
		}
		if f.Audit.WindowDays > 0 {
			cfg.AuditWindowDays = f.Audit.WindowDays
		}
	}

	cfg.DatabaseURL = envOrDefault("DB_URL", envOrDefault("POSTGRES_URL", cfg.DatabaseURL))
	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.NATSURL = envOrDefault("NATS_URL", cfg.NATSURL)
	cfg.EncryptionKey = envOrDefault("ENCRYPTION_KEY", cfg.EncryptionKey)
	cfg.JWTPublicKeyPEM = envOrDefault("JWT_PUBLIC_KEY_PEM", cfg.JWTPublicKeyPEM)
	cfg.AllowEphemeralJWT = envBool("JWT_ALLOW_EPHEMERAL", cfg.AllowEphemeralJWT)
	cfg.TOTPIssuer = envOrDefault("TOTP_ISSUER", cfg.TOTPIssuer)
	cfg.GeoProviderURL = envOrDefault("GEO_PROVIDER_URL", cfg.GeoProviderURL)
	cfg.GeoIPDBPath = envOrDefault("GEOIP_DB_PATH", cfg.GeoIPDBPath)
	cfg.HighRiskCountries = envCSV("HIGH_RISK_COUNTRIES", cfg.HighRiskCountries)

	cfg.HTTPPort = envInt("HTTP_PORT", cfg.HTTPPort)
	cfg.GRPCPort = envInt("GRPC_PORT", cfg.GRPCPort)
	cfg.BcryptCost = envInt("BCRYPT_ROUNDS", cfg.BcryptCost)
	cfg.BackupCodeCount = envInt("BACKUP_CODE_COUNT", cfg.BackupCodeCount)
	cfg.MaxDBConns = int32(envInt("DB_MAX_CONNS", int(cfg.MaxDBConns)))
	cfg.AuditRetentionDays = envInt("AUDIT_RETENTION_DAYS", cfg.AuditRetentionDays)
	cfg.AuditWindowDays = envInt("AUDIT_WINDOW_DAYS", cfg.AuditWindowDays)

	cfg.GeoTimeout = time.Duration(envInt("GEO_TIMEOUT_SECONDS", int(cfg.GeoTimeout.Seconds()))) * time.Second
	cfg.ActivityWindow = time.Duration(envInt("ACTIVITY_WINDOW_MINUTES", int(cfg.ActivityWindow.Minutes()))) * time.Minute
	cfg.SweepInterval = time.Duration(envInt("BLACKLIST_SWEEP_MINUTES", int(cfg.SweepInterval.Minutes()))) * time.Minute
	cfg.CleanupInterval = time.Duration(envInt("AUDIT_CLEANUP_HOURS", int(cfg.CleanupInterval.Hours()))) * time.Hour

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("missing DB_URL/POSTGRES_URL")
	}
	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("missing REDIS_URL")
	}
	if cfg.EncryptionKey == "" {
		return Config{}, fmt.Errorf("missing ENCRYPTION_KEY")
	}
	if cfg.JWTPublicKeyPEM == "" && !cfg.AllowEphemeralJWT {
		return Config{}, fmt.Errorf("missing JWT_PUBLIC_KEY_PEM")
	}

	return cfg, nil
}

// envOrDefault returns an env var when present, otherwise the provided fallback.
func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

// envInt parses integer env vars with safe fallback on empty/invalid values.
func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

// envBool parses common boolean env forms while keeping a deterministic fallback.
func envBool(name string, fallback bool) bool {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return fallback
	}
}

// envCSV parses comma-separated env vars and removes empty segments.
func envCSV(name string, fallback []string) []string {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	parts := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		parts = append(parts, trimmed)
	}
	if len(parts) == 0 {
		return fallback
	}
	return parts
}
