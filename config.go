package emberauth

import (
	"errors"
	"strings"
	"time"

	"github.com/emberauth/emberauth/secrethash"
)

// Config carries engine-wide settings. Zero values are filled from
// defaultConfig by the Builder; Validate runs at Build time.
type Config struct {
	// Issuer is the base URL placed in the iss claim as
	// "<Issuer>/app/<appID>".
	Issuer string

	// PublicHost is the externally reachable base URL used when building
	// magic links. Defaults to Issuer.
	PublicHost string

	// AccessTokenTTL bounds identity token lifetime.
	AccessTokenTTL time.Duration

	OTP      OTPConfig
	Magic    MagicConfig
	Deletion DeletionConfig

	// SecretHash sets the argon2id parameters used for one-time secrets
	// and refresh token hashes.
	SecretHash secrethash.Config

	// RedisPrefix namespaces ephemeral secret keys.
	RedisPrefix string

	Metrics MetricsConfig
}

// OTPConfig controls the one-time passcode challenge.
type OTPConfig struct {
	Digits int
	TTL    time.Duration
}

// MagicConfig controls the magic-link challenge.
type MagicConfig struct {
	TTL time.Duration
}

// DeletionConfig controls deletion-protection codes.
type DeletionConfig struct {
	TTL time.Duration
}

// MetricsConfig toggles the in-memory counters.
type MetricsConfig struct {
	Enabled bool
}

func defaultConfig() Config {
	return Config{
		AccessTokenTTL: 60 * time.Minute,
		OTP: OTPConfig{
			Digits: 8,
			TTL:    5 * time.Minute,
		},
		Magic: MagicConfig{
			TTL: 15 * time.Minute,
		},
		Deletion: DeletionConfig{
			TTL: 5 * time.Minute,
		},
		SecretHash:  secrethash.Default(),
		RedisPrefix: "es",
		Metrics:     MetricsConfig{Enabled: true},
	}
}

// Validate checks the configuration for values the engine cannot operate
// with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Issuer) == "" {
		return errors.New("config: issuer base URL required")
	}
	if c.AccessTokenTTL <= 0 {
		return errors.New("config: access token TTL must be positive")
	}
	if c.OTP.Digits < 6 || c.OTP.Digits > 10 {
		return errors.New("config: otp digits must be between 6 and 10")
	}
	if c.OTP.TTL <= 0 || c.Magic.TTL <= 0 || c.Deletion.TTL <= 0 {
		return errors.New("config: challenge lifetimes must be positive")
	}
	if c.RedisPrefix == "" {
		return errors.New("config: redis prefix required")
	}
	return nil
}

func (c *Config) publicHost() string {
	if c.PublicHost != "" {
		return strings.TrimRight(c.PublicHost, "/")
	}
	return strings.TrimRight(c.Issuer, "/")
}
