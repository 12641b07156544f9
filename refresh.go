package emberauth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// mintRefresh creates a refresh token for the subject and persists its
// hashed record. The whole token string is hashed; the uid claim is what
// disambiguates concurrently issued tokens for the same subject.
func (e *Engine) mintRefresh(ctx context.Context, app *App, email string) (string, error) {
	key, err := e.refreshKey(app)
	if err != nil {
		return "", err
	}

	uid := uuid.NewString()
	refreshToken, err := e.issuer.IssueRefresh(email, app.ID, uid, app.RefreshTokenTTL, key)
	if err != nil {
		return "", err
	}

	hash, err := e.hasher.Hash(refreshToken)
	if err != nil {
		return "", err
	}

	record := &RefreshTokenRecord{
		AppID:     app.ID,
		Email:     email,
		UID:       uid,
		Hash:      hash,
		ExpiresAt: time.Now().Add(app.RefreshTokenTTL),
	}
	if err := e.refreshTokens.Insert(ctx, record); err != nil {
		return "", err
	}

	e.metricInc(MetricRefreshMinted)
	return refreshToken, nil
}

// Refresh exchanges a valid refresh token for a new identity token. The
// refresh token itself is not rotated: it stays valid until its own expiry
// or explicit revocation. Every failure surfaces as ErrTokenVerification.
func (e *Engine) Refresh(ctx context.Context, app *App, refreshToken string) (*IssuedTokens, error) {
	record, err := e.lookupRefresh(ctx, app, refreshToken)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return nil, err
	}

	key, err := e.signingKey(app)
	if err != nil {
		return nil, err
	}
	idToken, err := e.issuer.Issue(record.Email, app.ID, key)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)
	return &IssuedTokens{IDToken: idToken, RefreshToken: refreshToken}, nil
}

// Revoke deletes the record behind one refresh token (single-device
// logout). subject must match the token's own subject, proving the caller
// owns what is being revoked. Deleting an already-absent record is not an
// error.
func (e *Engine) Revoke(ctx context.Context, app *App, refreshToken, subject string) error {
	record, err := e.lookupRefresh(ctx, app, refreshToken)
	if err != nil {
		return err
	}
	if record.Email != subject {
		return ErrTokenVerification
	}

	if err := e.refreshTokens.Delete(ctx, app.ID, record.Email, record.UID); err != nil {
		return err
	}
	e.metricInc(MetricRevoke)
	return nil
}

// RevokeAll deletes every refresh record for (app, subject): logout
// everywhere.
func (e *Engine) RevokeAll(ctx context.Context, app *App, subject string) error {
	if err := e.refreshTokens.DeleteAllForSubject(ctx, app.ID, subject); err != nil {
		return err
	}
	e.metricInc(MetricRevokeAll)
	return nil
}

// RemoveExpiredRefreshTokens sweeps records past their expiry. The sweep is
// an optimization only; Refresh checks expiry explicitly.
func (e *Engine) RemoveExpiredRefreshTokens(ctx context.Context) (int64, error) {
	return e.refreshTokens.DeleteExpired(ctx, time.Now())
}

// lookupRefresh verifies the presented token against the app's refresh key
// and loads the matching record. Record-not-found, expiry, and hash
// mismatch all collapse into ErrTokenVerification; a stale record found
// past expiry is deleted as a side effect.
func (e *Engine) lookupRefresh(ctx context.Context, app *App, refreshToken string) (*RefreshTokenRecord, error) {
	key, err := e.refreshKey(app)
	if err != nil {
		return nil, err
	}

	subject, uid, err := e.issuer.VerifyRefresh(refreshToken, app.ID, &key.PublicKey)
	if err != nil {
		return nil, ErrTokenVerification
	}

	record, err := e.refreshTokens.Get(ctx, app.ID, subject, uid)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrTokenVerification
		}
		return nil, err
	}

	if record.Expired(time.Now()) {
		if err := e.refreshTokens.Delete(ctx, app.ID, subject, uid); err != nil {
			e.logger.Warn("stale refresh record cleanup failed",
				zap.String("app_id", app.ID), zap.Error(err))
		}
		return nil, ErrTokenVerification
	}

	match, err := e.hasher.Verify(refreshToken, record.Hash)
	if err != nil || !match {
		return nil, ErrTokenVerification
	}

	return record, nil
}
