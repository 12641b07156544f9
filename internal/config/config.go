// Package config loads the service process configuration from environment
// variables.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full environment of the authd process.
type Config struct {
	// ListenAddr is the HTTP bind address.
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`

	// Issuer is the base URL written into token issuer claims.
	Issuer string `env:"ISSUER,required"`

	// PublicHost overrides the host used in outbound magic links. Empty
	// falls back to Issuer.
	PublicHost string `env:"PUBLIC_HOST"`

	// SystemKeyBase64 is the 32-byte vault key, base64 encoded. The
	// process refuses to start without it.
	SystemKeyBase64 string `env:"SYSTEM_KEY,required"`

	DatabaseDSN string `env:"DATABASE_DSN,required"`
	RedisAddr   string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPrefix string `env:"REDIS_PREFIX" envDefault:"es"`

	AccessTokenTTL time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"60m"`
	OTPDigits      int           `env:"OTP_DIGITS" envDefault:"8"`
	OTPTTL         time.Duration `env:"OTP_TTL" envDefault:"5m"`
	MagicTTL       time.Duration `env:"MAGIC_TTL" envDefault:"15m"`
	DeletionTTL    time.Duration `env:"DELETION_TTL" envDefault:"5m"`

	// Mailgun credentials. When the endpoint is empty, outbound mail is
	// written to the log instead (development mode).
	MailgunEndpoint string `env:"MAILGUN_ENDPOINT"`
	MailgunKey      string `env:"MAILGUN_KEY"`
	MailFrom        string `env:"MAIL_FROM"`

	// RefreshSweepInterval spaces the background sweeps of expired refresh
	// token records. Zero disables the sweeper.
	RefreshSweepInterval time.Duration `env:"REFRESH_SWEEP_INTERVAL" envDefault:"1h"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Load parses and validates the process environment.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if _, err := cfg.SystemKey(); err != nil {
		return nil, err
	}
	if cfg.MailgunEndpoint != "" && (cfg.MailgunKey == "" || cfg.MailFrom == "") {
		return nil, errors.New("config: MAILGUN_KEY and MAIL_FROM required with MAILGUN_ENDPOINT")
	}
	return &cfg, nil
}

// SystemKey decodes the vault key.
func (c *Config) SystemKey() ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(c.SystemKeyBase64)
	if err != nil {
		return nil, fmt.Errorf("config: SYSTEM_KEY is not valid base64: %w", err)
	}
	if len(key) != 32 {
		return nil, errors.New("config: SYSTEM_KEY must decode to 32 bytes")
	}
	return key, nil
}
