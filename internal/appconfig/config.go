// Package appconfig provides environment-driven process configuration for
// the recovery service daemon.
package appconfig

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// init loads environment variables from .env files during package
// initialization. godotenv.Load does not override already-set environment
// variables, preserving OS env > .env precedence.
func init() {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to load .env file: %v\n", err)
		}
	}
	if _, err := os.Stat(".env.local"); err == nil {
		if err := godotenv.Load(".env.local"); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to load .env.local file: %v\n", err)
		}
	}
}

// Config captures environment-driven settings for the recovery service.
type Config struct {
	Env                string        // Deployment environment (dev, staging, prod)
	Address            string        // HTTP server address, e.g. ":8080"
	MetricsAddress     string        // Metrics server address, e.g. ":9090"
	DatabaseDSN        string        // PostgreSQL DSN; empty selects the in-memory store
	AdminSigningKey    []byte        // Ed25519 seed used to sign admin API bearer JWTs
	APSigningKeyPEM    []byte        // PEM-encoded P-256 private key, the AP's current token-signing key
	APOrigin           string        // This account provider's own https origin; empty derives one from each request's Host
	RPOrigin           string        // The recovery provider this AP is paired with for the sample flow
	ClockSkew          time.Duration // Tolerance applied when validating a countersigned token's issuedTime
	ConfigMaxAge       time.Duration // Default max-age stamped on configuration documents this service serves
}

// Defaults applied when the corresponding environment variable is unset.
const (
	defaultAddress        = ":8080"
	defaultMetricsAddress = ":9090"
	defaultClockSkew      = 300 * time.Second
	defaultConfigMaxAge   = time.Hour
)

// Load reads environment variables and produces a Config suitable for
// wiring the service. Returns an error if a required variable is missing or
// a provided value fails to parse.
func Load() (Config, error) {
	cfg := Config{}

	cfg.Env = getEnv("RECOVERY_ENV", "dev")
	cfg.Address = getEnv("RECOVERY_HTTP_ADDR", defaultAddress)
	cfg.MetricsAddress = getEnv("RECOVERY_METRICS_ADDR", defaultMetricsAddress)
	cfg.DatabaseDSN = getEnv("RECOVERY_DB_DSN", "")
	cfg.APOrigin = getEnv("RECOVERY_AP_ORIGIN", "")
	cfg.RPOrigin = getEnv("RECOVERY_RP_ORIGIN", "")

	if skew, exists := os.LookupEnv("RECOVERY_CLOCK_SKEW_SECONDS"); exists {
		d, err := parseSeconds(skew)
		if err != nil {
			return Config{}, fmt.Errorf("invalid RECOVERY_CLOCK_SKEW_SECONDS: %w", err)
		}
		cfg.ClockSkew = d
	} else {
		cfg.ClockSkew = defaultClockSkew
	}

	if maxAge, exists := os.LookupEnv("RECOVERY_CONFIG_MAX_AGE_SECONDS"); exists {
		d, err := parseSeconds(maxAge)
		if err != nil {
			return Config{}, fmt.Errorf("invalid RECOVERY_CONFIG_MAX_AGE_SECONDS: %w", err)
		}
		cfg.ConfigMaxAge = d
	} else {
		cfg.ConfigMaxAge = defaultConfigMaxAge
	}

	adminKey, exists := os.LookupEnv("RECOVERY_JWT_ADMIN_SIGNING_KEY")
	if !exists {
		return Config{}, errors.New("RECOVERY_JWT_ADMIN_SIGNING_KEY is required")
	}
	adminKeyBytes, err := base64.StdEncoding.DecodeString(adminKey)
	if err != nil {
		return Config{}, fmt.Errorf("invalid RECOVERY_JWT_ADMIN_SIGNING_KEY base64: %w", err)
	}
	cfg.AdminSigningKey = adminKeyBytes

	apPEM, exists := os.LookupEnv("RECOVERY_AP_SIGNING_KEY")
	if !exists {
		return Config{}, errors.New("RECOVERY_AP_SIGNING_KEY is required")
	}
	cfg.APSigningKeyPEM = []byte(apPEM)

	return cfg, nil
}

// getEnv retrieves an environment variable value, returning a fallback if
// not set or empty.
func getEnv(key, fallback string) string {
	if v, exists := os.LookupEnv(key); exists && v != "" {
		return v
	}
	return fallback
}

// parseSeconds converts a string representation of seconds to a
// time.Duration. Returns an error if the value is not a valid positive
// integer.
func parseSeconds(raw string) (time.Duration, error) {
	seconds, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	if seconds <= 0 {
		return 0, errors.New("value must be > 0")
	}
	return time.Duration(seconds) * time.Second, nil
}
