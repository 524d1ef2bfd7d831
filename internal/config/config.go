// Package config loads the options recognised by both services
// from the environment, in the style of the reference config packages:
// small typed structs populated by os.Getenv with sane dev defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	EnvProduction  = "production"
	EnvStaging     = "staging"
	EnvDevelopment = "development"
)

// Shared holds the configuration options common to both Events and
// Elections: database connection, identity verifier, S2S secret, rate
// limits, and the production reset guardrail.
type Shared struct {
	Environment string

	DatabaseHost     string
	DatabasePort     string
	DatabaseName     string
	DatabaseUser     string
	DatabasePassword string

	IdentityVerifierURL string
	JWKSURL              string

	ElectionsServiceURL string
	EventsServiceURL    string

	S2SSharedSecret string
	AnonymizationSalt string

	TokenTTL       time.Duration
	SessionMaxAge  time.Duration

	ProductionResetAllowed bool

	SchedulerTick time.Duration

	RateLimitAuthPerMinute   int
	RateLimitTokenPerMinute  int
	RateLimitBallotPerMinute int
	RateLimitAdminPerMinute  int

	HTTPAddr    string
	MetricsAddr string
	LogFormat   string
	LogLevel    string
}

// LoadShared reads every option from the environment, applying the
// defaults a local/dev deployment needs.
func LoadShared() (*Shared, error) {
	c := &Shared{
		Environment: getenv("ENVIRONMENT", EnvDevelopment),

		DatabaseHost:     getenv("DATABASE_HOST", "localhost"),
		DatabasePort:     getenv("DATABASE_PORT", "5432"),
		DatabaseName:     getenv("DATABASE_NAME", "ekklesia"),
		DatabaseUser:     getenv("DATABASE_USER", "ekklesia"),
		DatabasePassword: getenv("DATABASE_PASSWORD", "ekklesia"),

		IdentityVerifierURL: getenv("IDENTITY_VERIFIER_URL", "http://localhost:9000"),
		JWKSURL:              getenv("JWKS_URL", ""),

		ElectionsServiceURL: getenv("ELECTIONS_SERVICE_URL", "http://localhost:8081"),
		EventsServiceURL:    getenv("EVENTS_SERVICE_URL", "http://localhost:8080"),

		S2SSharedSecret:   os.Getenv("S2S_SHARED_SECRET"),
		AnonymizationSalt: os.Getenv("ANONYMIZATION_SALT"),

		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		MetricsAddr: getenv("METRICS_ADDR", ":2112"),
		LogFormat:   getenv("LOG_FORMAT", "console"),
		LogLevel:    getenv("LOG_LEVEL", "info"),
	}

	var err error
	if c.TokenTTL, err = getenvDuration("TOKEN_TTL", 30*time.Minute); err != nil {
		return nil, err
	}
	if c.SessionMaxAge, err = getenvDuration("SESSION_MAX_AGE", 8*time.Hour); err != nil {
		return nil, err
	}
	if c.SchedulerTick, err = getenvDuration("SCHEDULER_TICK", 30*time.Second); err != nil {
		return nil, err
	}

	c.ProductionResetAllowed = getenvBool("PRODUCTION_RESET_ALLOWED", false)

	if c.RateLimitAuthPerMinute, err = getenvInt("RATE_LIMIT_AUTH_PER_MINUTE", 30); err != nil {
		return nil, err
	}
	if c.RateLimitTokenPerMinute, err = getenvInt("RATE_LIMIT_TOKEN_PER_MINUTE", 10); err != nil {
		return nil, err
	}
	if c.RateLimitBallotPerMinute, err = getenvInt("RATE_LIMIT_BALLOT_PER_MINUTE", 20); err != nil {
		return nil, err
	}
	if c.RateLimitAdminPerMinute, err = getenvInt("RATE_LIMIT_ADMIN_PER_MINUTE", 60); err != nil {
		return nil, err
	}

	if c.S2SSharedSecret == "" {
		return nil, fmt.Errorf("S2S_SHARED_SECRET is required")
	}

	return c, nil
}

// IsProduction reports whether destructive operations need the explicit
// PRODUCTION_RESET_ALLOWED opt-in.
func (c *Shared) IsProduction() bool {
	return c.Environment == EnvProduction
}

// ResetAllAllowed implements the production guardrail: outside production
// resets are always allowed; in production they require the explicit flag.
func (c *Shared) ResetAllAllowed() bool {
	if !c.IsProduction() {
		return true
	}
	return c.ProductionResetAllowed
}

// ElectionsBaseURL is the address Events calls for S2S registration and
// eligibility lookups.
func (c *Shared) ElectionsBaseURL() string {
	return c.ElectionsServiceURL
}

// EventsBaseURL is the address Elections calls when probing whether a
// token is still outstanding (the orphan-token reconciliation sweep).
func (c *Shared) EventsBaseURL() string {
	return c.EventsServiceURL
}

func (c *Shared) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DatabaseUser, c.DatabasePassword, c.DatabaseHost, c.DatabasePort, c.DatabaseName,
	)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getenvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getenvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
