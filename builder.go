package emberauth

import (
	"errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/emberauth/emberauth/keyvault"
	"github.com/emberauth/emberauth/notify"
	"github.com/emberauth/emberauth/secrethash"
	"github.com/emberauth/emberauth/token"
)

// Builder assembles an Engine. Construction is allocation-only until Build,
// which validates configuration and wires every dependency.
type Builder struct {
	config Config

	redis         *redis.Client
	apps          AppStore
	refreshTokens RefreshTokenStore
	sender        notify.Sender
	vault         *keyvault.Vault
	logger        *zap.Logger

	built bool
}

// New returns a Builder preloaded with defaults.
func New() *Builder {
	return &Builder{config: defaultConfig()}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis sets the expiring key-value store client backing ephemeral
// secrets.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithApps sets the tenant app document store.
func (b *Builder) WithApps(store AppStore) *Builder {
	b.apps = store
	return b
}

// WithRefreshTokens sets the refresh token record store.
func (b *Builder) WithRefreshTokens(store RefreshTokenStore) *Builder {
	b.refreshTokens = store
	return b
}

// WithSender sets the outbound notification sender.
func (b *Builder) WithSender(sender notify.Sender) *Builder {
	b.sender = sender
	return b
}

// WithVault sets the key vault holding the process symmetric key.
func (b *Builder) WithVault(vault *keyvault.Vault) *Builder {
	b.vault = vault
	return b
}

// WithLogger sets the logger used for best-effort failure reporting.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithMetricsEnabled toggles the in-memory counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and returns a ready Engine. A Builder
// can build once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	if err := b.config.Validate(); err != nil {
		return nil, err
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.apps == nil {
		return nil, errors.New("app store required")
	}
	if b.refreshTokens == nil {
		return nil, errors.New("refresh token store required")
	}
	if b.sender == nil {
		return nil, errors.New("notification sender required")
	}
	if b.vault == nil {
		return nil, errors.New("key vault required")
	}

	hasher, err := secrethash.New(b.config.SecretHash)
	if err != nil {
		return nil, err
	}
	issuer, err := token.NewIssuer(b.config.Issuer, b.config.AccessTokenTTL)
	if err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var metrics *Metrics
	if b.config.Metrics.Enabled {
		metrics = newMetrics()
	}

	b.built = true
	return &Engine{
		config:        b.config,
		vault:         b.vault,
		issuer:        issuer,
		hasher:        hasher,
		secrets:       newSecretStore(b.redis, b.config.RedisPrefix),
		apps:          b.apps,
		refreshTokens: b.refreshTokens,
		sender:        b.sender,
		metrics:       metrics,
		logger:        logger,
	}, nil
}
