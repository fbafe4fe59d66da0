package app

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/betahouse/betahouse/pkg/jwtx"
)

type Config struct {
	Issuer        string // Issuer claim for tokens (default: betahouse)
	AccessSecret  string // Required: HS256 secret for access tokens
	RefreshSecret string // Required: HS256 secret for refresh tokens

	AccessTTL  time.Duration // Access token lifetime (default: 15m)
	RefreshTTL time.Duration // Refresh token lifetime (default: 168h)

	DatabaseFile string // Path to SQLite database file (default: ./betahouse.db)

	FrontendURL string // Base URL for links embedded in emails

	SMTPHost      string
	SMTPPort      int
	SMTPUsername  string
	SMTPPassword  string
	SMTPTLSMode   string // tls, starttls, none (default: starttls)
	SMTPFromName  string
	SMTPFromEmail string

	GeoIPBaseURL string // Geolocation API base URL (default: https://ipinfo.io)
	GeoIPToken   string // Optional: API token; empty disables lookups

	Env                  string        // dev, staging, prod (default: dev)
	LogLevel             string        // debug, info, warn, error (default: info)
	LogFormat            string        // json, text (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)
}

func LoadConfig() Config {
	return Config{
		Issuer:        getEnvOrDefault("BH_ISSUER", "betahouse"),
		AccessSecret:  os.Getenv("BH_ACCESS_SECRET"),
		RefreshSecret: os.Getenv("BH_REFRESH_SECRET"),

		AccessTTL:  getEnvDurationOrDefault("BH_ACCESS_TTL", jwtx.DefaultAccessTokenTTL),
		RefreshTTL: getEnvDurationOrDefault("BH_REFRESH_TTL", jwtx.DefaultRefreshTokenTTL),

		DatabaseFile: getEnvOrDefault("BH_DATABASE_FILE", "betahouse.db"),

		FrontendURL: getEnvOrDefault("BH_FRONTEND_URL", "http://localhost:3000"),

		SMTPHost:      os.Getenv("BH_SMTP_HOST"),
		SMTPPort:      getEnvIntOrDefault("BH_SMTP_PORT", 587),
		SMTPUsername:  os.Getenv("BH_SMTP_USERNAME"),
		SMTPPassword:  os.Getenv("BH_SMTP_PASSWORD"),
		SMTPTLSMode:   getEnvOrDefault("BH_SMTP_TLS_MODE", "starttls"),
		SMTPFromName:  getEnvOrDefault("BH_SMTP_FROM_NAME", "BetaHouse"),
		SMTPFromEmail: os.Getenv("BH_SMTP_FROM_EMAIL"),

		GeoIPBaseURL: getEnvOrDefault("BH_GEOIP_BASE_URL", "https://ipinfo.io"),
		GeoIPToken:   os.Getenv("BH_GEOIP_TOKEN"),

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", time.Hour),
	}
}

// Validate rejects configurations the service cannot safely start with.
func (c Config) Validate() error {
	if c.AccessSecret == "" || c.RefreshSecret == "" {
		return fmt.Errorf("BH_ACCESS_SECRET and BH_REFRESH_SECRET are required")
	}
	if c.AccessSecret == c.RefreshSecret {
		return fmt.Errorf("access and refresh secrets must differ")
	}
	if len(c.AccessSecret) < 32 || len(c.RefreshSecret) < 32 {
		return fmt.Errorf("token secrets must be at least 32 bytes")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}
	return defaultValue
}
