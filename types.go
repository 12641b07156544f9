package emberauth

import (
	"context"
	"time"
)

// App is one registered tenant application delegating authentication to
// the service. Key material is stored encrypted by the key vault; the
// plaintext keys exist only while a request is being served.
type App struct {
	ID                 string
	Name               string
	Owner              string
	RedirectURL        string
	FailureRedirectURL string

	// EncKey is the vault-sealed identity signing key. EncRefreshKey and
	// RefreshTokenTTL are both set or both absent: refresh is an
	// all-or-nothing capability.
	EncKey          []byte
	EncRefreshKey   []byte
	RefreshTokenTTL time.Duration

	Quota              int64
	LowQuotaThreshold  int64
	LowQuotaNotifiedAt time.Time
	Unlimited          bool

	DeleteProtected bool
	CreatedAt       time.Time
}

// RefreshEnabled reports whether the app can mint refresh tokens.
func (a *App) RefreshEnabled() bool {
	return len(a.EncRefreshKey) > 0 && a.RefreshTokenTTL > 0
}

// RefreshTokenRecord is the persisted side of one issued refresh token.
// (AppID, Email, UID) is unique and is exactly how a presented token is
// looked up; the salted hash is then compared, never the reverse.
type RefreshTokenRecord struct {
	AppID     string
	Email     string
	UID       string
	Hash      string
	ExpiresAt time.Time
}

// Expired reports whether the record is past its expiry at the given time.
func (r *RefreshTokenRecord) Expired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}

// AppStore is the document-store contract for tenant apps. Implementations
// must enforce uniqueness on the app ID and return ErrNotFound for absent
// apps.
type AppStore interface {
	Get(ctx context.Context, appID string) (*App, error)
	Insert(ctx context.Context, app *App) error

	// UpdateKeys replaces the sealed key material. A nil encRefreshKey with
	// zero ttl disables refresh for the app.
	UpdateKeys(ctx context.Context, appID string, encKey, encRefreshKey []byte, refreshTTL time.Duration) error

	// ConsumeQuota atomically decrements the remaining quota with a floor
	// at zero and returns the post-decrement value. It returns
	// ErrQuotaExhausted when the quota is already spent.
	ConsumeQuota(ctx context.Context, appID string) (remaining int64, err error)

	// MarkQuotaNotified advances the low-quota notification timestamp to
	// now, but only if the stored timestamp is at or before notBefore.
	// The compare-and-swap keeps concurrent requests from double-sending
	// the debounced notification.
	MarkQuotaNotified(ctx context.Context, appID string, notBefore, now time.Time) (bool, error)

	Delete(ctx context.Context, appID string) error
}

// RefreshTokenStore is the document-store contract for refresh token
// records. Uniqueness is on (app, email, uid); deletes are idempotent.
type RefreshTokenStore interface {
	Insert(ctx context.Context, record *RefreshTokenRecord) error
	Get(ctx context.Context, appID, email, uid string) (*RefreshTokenRecord, error)
	Delete(ctx context.Context, appID, email, uid string) error
	DeleteAllForSubject(ctx context.Context, appID, email string) error
	DeleteAllForApp(ctx context.Context, appID string) error

	// DeleteExpired removes records whose expiry is at or before now and
	// reports how many were removed. Stores with native TTL indexes may
	// treat this as a no-op.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// IssuedTokens is the result of a confirmed challenge or a refresh call.
type IssuedTokens struct {
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// MagicResult is the outcome of a confirmed magic link: the decrypted
// subject plus the freshly issued tokens. The routing layer builds the
// tenant redirect from it.
type MagicResult struct {
	Email  string
	Tokens IssuedTokens
}

// CreateAppParams describes a new tenant app registration.
type CreateAppParams struct {
	Name               string
	Owner              string
	RedirectURL        string
	FailureRedirectURL string

	// Refresh enables refresh tokens; RefreshTokenTTL defaults to 24h when
	// Refresh is set and the TTL is zero.
	Refresh         bool
	RefreshTokenTTL time.Duration

	Unlimited       bool
	DeleteProtected bool
}
