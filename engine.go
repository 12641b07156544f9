package emberauth

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/emberauth/emberauth/internal"
	"github.com/emberauth/emberauth/keyvault"
	"github.com/emberauth/emberauth/notify"
	"github.com/emberauth/emberauth/secrethash"
	"github.com/emberauth/emberauth/token"
)

// Engine is the credential lifecycle core: it issues and confirms one-time
// challenges, mints and verifies tenant-scoped tokens, manages refresh
// token records, and governs per-tenant quota. Engine methods are safe to
// call from multiple goroutines after construction through Builder.Build.
type Engine struct {
	config        Config
	vault         *keyvault.Vault
	issuer        *token.Issuer
	hasher        *secrethash.Hasher
	secrets       *secretStore
	apps          AppStore
	refreshTokens RefreshTokenStore
	sender        notify.Sender
	metrics       *Metrics
	logger        *zap.Logger
}

// App loads a tenant app by ID.
func (e *Engine) App(ctx context.Context, appID string) (*App, error) {
	return e.apps.Get(ctx, appID)
}

// MetricsSnapshot returns a copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	e.metrics.Inc(id)
}

// StartOTP gates the app's quota, issues a one-time passcode for email,
// and mails it. Delivery failure of this primary email fails the request.
func (e *Engine) StartOTP(ctx context.Context, app *App, email string) error {
	if err := e.consumeQuota(ctx, app); err != nil {
		return err
	}

	code, err := internal.NewOTP(e.config.OTP.Digits)
	if err != nil {
		return err
	}
	if err := e.saveSecret(ctx, app.ID, PurposeOTP, email, code, e.config.OTP.TTL); err != nil {
		return err
	}

	msg := notify.Message{
		To:       email,
		Subject:  "Your One Time Login Code",
		Text:     fmt.Sprintf("Your code is %s. It will expire in %d minutes.", code, int(e.config.OTP.TTL.Minutes())),
		FromName: app.Name,
	}
	if err := e.sender.Send(ctx, msg); err != nil {
		e.metricInc(MetricChallengeDeliveryFailed)
		return err
	}

	e.metricInc(MetricChallengeIssued)
	return nil
}

// ConfirmOTP exchanges a correct passcode for tokens. A wrong, expired, or
// never-issued code fails with ErrChallengeInvalid; the stored entry is
// left untouched on mismatch so the legitimate holder can retry until
// expiry.
func (e *Engine) ConfirmOTP(ctx context.Context, app *App, email, code string) (*IssuedTokens, error) {
	ok, err := e.verifySecret(ctx, app.ID, PurposeOTP, email, code)
	if err != nil {
		return nil, err
	}
	if !ok {
		e.metricInc(MetricChallengeRejected)
		return nil, ErrChallengeInvalid
	}

	e.metricInc(MetricChallengeConfirmed)
	return e.issueTokens(ctx, app, email)
}

// StartMagicLink gates quota, issues a magic-link secret for email, and
// mails the link. The subject rides inside the link encrypted with the
// process key so it survives the round trip through the client.
func (e *Engine) StartMagicLink(ctx context.Context, app *App, email string) error {
	if err := e.consumeQuota(ctx, app); err != nil {
		return err
	}

	secret, err := internal.NewURLSecret()
	if err != nil {
		return err
	}
	if err := e.saveSecret(ctx, app.ID, PurposeMagic, email, secret, e.config.Magic.TTL); err != nil {
		return err
	}

	encSubject, err := e.vault.EncryptString(email)
	if err != nil {
		return err
	}
	link := fmt.Sprintf("%s/magic/confirm/%s?secret=%s&id=%s", e.config.publicHost(), app.ID, secret, encSubject)

	msg := notify.Message{
		To:       email,
		Subject:  "Your Magic Sign In Link",
		Text:     fmt.Sprintf("Click or copy this link to sign in: %s. It will expire in %d minutes.", link, int(e.config.Magic.TTL.Minutes())),
		FromName: app.Name,
	}
	if err := e.sender.Send(ctx, msg); err != nil {
		e.metricInc(MetricChallengeDeliveryFailed)
		return err
	}

	e.metricInc(MetricChallengeIssued)
	return nil
}

// ConfirmMagicLink decrypts the subject parameter, checks the secret, and
// issues tokens. Failures collapse to ErrChallengeInvalid.
func (e *Engine) ConfirmMagicLink(ctx context.Context, app *App, encSubject, secret string) (*MagicResult, error) {
	email, err := e.vault.DecryptString(encSubject)
	if err != nil {
		e.metricInc(MetricChallengeRejected)
		return nil, ErrChallengeInvalid
	}

	ok, err := e.verifySecret(ctx, app.ID, PurposeMagic, email, secret)
	if err != nil {
		return nil, err
	}
	if !ok {
		e.metricInc(MetricChallengeRejected)
		return nil, ErrChallengeInvalid
	}

	tokens, err := e.issueTokens(ctx, app, email)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricChallengeConfirmed)
	return &MagicResult{Email: email, Tokens: *tokens}, nil
}

// Verify checks an identity token against the app's signing key and issuer
// binding, returning the verified headers and claims.
func (e *Engine) Verify(ctx context.Context, app *App, idToken string) (*token.Verified, error) {
	key, err := e.signingKey(app)
	if err != nil {
		return nil, err
	}

	verified, err := e.issuer.Verify(idToken, app.ID, &key.PublicKey)
	if err != nil {
		e.metricInc(MetricTokenRejected)
		return nil, err
	}

	e.metricInc(MetricTokenVerified)
	return verified, nil
}

// RequestDeletionCode issues a deletion-protection code for the app and
// mails it to the app owner.
func (e *Engine) RequestDeletionCode(ctx context.Context, app *App) error {
	code, err := internal.NewOTP(e.config.OTP.Digits)
	if err != nil {
		return err
	}
	if err := e.saveSecret(ctx, app.ID, PurposeDelete, app.Owner, code, e.config.Deletion.TTL); err != nil {
		return err
	}

	msg := notify.Message{
		To:       app.Owner,
		Subject:  fmt.Sprintf("Confirm deletion of %s", app.Name),
		Text:     fmt.Sprintf("Your confirmation code is %s. It will expire in %d minutes.", code, int(e.config.Deletion.TTL.Minutes())),
		FromName: app.Name,
	}
	if err := e.sender.Send(ctx, msg); err != nil {
		e.metricInc(MetricChallengeDeliveryFailed)
		return err
	}

	e.metricInc(MetricChallengeIssued)
	return nil
}

// DeleteApp removes a tenant app. While the app is deletion-protected a
// valid code from RequestDeletionCode is required. All refresh records are
// cascade-deleted before the app document.
func (e *Engine) DeleteApp(ctx context.Context, app *App, code string) error {
	if app.DeleteProtected {
		ok, err := e.verifySecret(ctx, app.ID, PurposeDelete, app.Owner, code)
		if err != nil {
			return err
		}
		if !ok {
			return ErrDeleteProtected
		}
	}

	if err := e.refreshTokens.DeleteAllForApp(ctx, app.ID); err != nil {
		return err
	}
	return e.apps.Delete(ctx, app.ID)
}

// CreateApp registers a new tenant app with freshly generated, sealed key
// material. Quota defaults follow new registrations: 500 authentications,
// low-quota threshold 10.
func (e *Engine) CreateApp(ctx context.Context, params CreateAppParams) (*App, error) {
	encKey, err := e.newSealedKey()
	if err != nil {
		return nil, err
	}

	app := &App{
		ID:                 uuid.NewString(),
		Name:               params.Name,
		Owner:              params.Owner,
		RedirectURL:        params.RedirectURL,
		FailureRedirectURL: params.FailureRedirectURL,
		EncKey:             encKey,
		Quota:              500,
		LowQuotaThreshold:  10,
		LowQuotaNotifiedAt: time.Unix(0, 0),
		Unlimited:          params.Unlimited,
		DeleteProtected:    params.DeleteProtected,
		CreatedAt:          time.Now(),
	}

	if params.Refresh {
		encRefreshKey, err := e.newSealedKey()
		if err != nil {
			return nil, err
		}
		ttl := params.RefreshTokenTTL
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		app.EncRefreshKey = encRefreshKey
		app.RefreshTokenTTL = ttl
	}

	if err := e.apps.Insert(ctx, app); err != nil {
		return nil, err
	}
	return app, nil
}

// RotateKeys replaces the app's signing key material, preserving whether
// refresh is enabled. Tokens signed with the old keys stop verifying.
func (e *Engine) RotateKeys(ctx context.Context, app *App) error {
	encKey, err := e.newSealedKey()
	if err != nil {
		return err
	}

	var encRefreshKey []byte
	ttl := time.Duration(0)
	if app.RefreshEnabled() {
		encRefreshKey, err = e.newSealedKey()
		if err != nil {
			return err
		}
		ttl = app.RefreshTokenTTL
	}

	return e.apps.UpdateKeys(ctx, app.ID, encKey, encRefreshKey, ttl)
}

// PublicKey exports the app's identity verification key as a JWK.
func (e *Engine) PublicKey(app *App) (keyvault.JWK, error) {
	key, err := e.signingKey(app)
	if err != nil {
		return keyvault.JWK{}, err
	}
	return keyvault.PublicJWK(&key.PublicKey), nil
}

func (e *Engine) newSealedKey() ([]byte, error) {
	key, err := keyvault.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	return e.vault.SealKey(key)
}

func (e *Engine) issueTokens(ctx context.Context, app *App, email string) (*IssuedTokens, error) {
	key, err := e.signingKey(app)
	if err != nil {
		return nil, err
	}

	idToken, err := e.issuer.Issue(email, app.ID, key)
	if err != nil {
		return nil, err
	}
	e.metricInc(MetricTokenIssued)

	tokens := &IssuedTokens{IDToken: idToken}
	if app.RefreshEnabled() {
		refreshToken, err := e.mintRefresh(ctx, app, email)
		if err != nil {
			return nil, err
		}
		tokens.RefreshToken = refreshToken
	}

	return tokens, nil
}

func (e *Engine) signingKey(app *App) (*ecdsa.PrivateKey, error) {
	key, err := e.vault.OpenKey(app.EncKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyMaterial, err)
	}
	return key, nil
}

func (e *Engine) refreshKey(app *App) (*ecdsa.PrivateKey, error) {
	if !app.RefreshEnabled() {
		return nil, ErrTokenCreation
	}
	key, err := e.vault.OpenKey(app.EncRefreshKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyMaterial, err)
	}
	return key, nil
}

func (e *Engine) saveSecret(ctx context.Context, appID string, purpose Purpose, subject, secret string, ttl time.Duration) error {
	hash, err := e.hasher.Hash(secret)
	if err != nil {
		return err
	}
	return e.secrets.Save(ctx, appID, purpose, subject, hash, ttl)
}

// verifySecret implements single-use semantics: on a match the entry's TTL
// collapses to the tombstone grace; on a mismatch the entry is untouched.
func (e *Engine) verifySecret(ctx context.Context, appID string, purpose Purpose, subject, secret string) (bool, error) {
	hash, ok, err := e.secrets.Get(ctx, appID, purpose, subject)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	match, err := e.hasher.Verify(secret, hash)
	if err != nil || !match {
		return false, err
	}

	if err := e.secrets.Collapse(ctx, appID, purpose, subject); err != nil {
		return false, err
	}
	return true, nil
}
