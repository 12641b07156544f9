package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/emberauth/emberauth"
)

// RefreshRepo implements emberauth.RefreshTokenStore.
type RefreshRepo struct{ db *DB }

// NewRefreshRepo constructs a refresh token record repository.
func NewRefreshRepo(db *DB) *RefreshRepo { return &RefreshRepo{db: db} }

// Insert stores a new refresh record.
func (r *RefreshRepo) Insert(ctx context.Context, record *emberauth.RefreshTokenRecord) error {
	const q = `
INSERT INTO refresh_tokens (app_id, email, uid, hash, expires_at)
VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.Pool.Exec(ctx, q,
		record.AppID, record.Email, record.UID, record.Hash, record.ExpiresAt)
	return err
}

// Get loads the unique record for (app, email, uid).
func (r *RefreshRepo) Get(ctx context.Context, appID, email, uid string) (*emberauth.RefreshTokenRecord, error) {
	const q = `
SELECT app_id, email, uid, hash, expires_at
FROM refresh_tokens WHERE app_id = $1 AND email = $2 AND uid = $3`
	var record emberauth.RefreshTokenRecord
	err := r.db.Pool.QueryRow(ctx, q, appID, email, uid).Scan(
		&record.AppID, &record.Email, &record.UID, &record.Hash, &record.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, emberauth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// Delete removes one record. Absent records are not an error; revocation
// is idempotent.
func (r *RefreshRepo) Delete(ctx context.Context, appID, email, uid string) error {
	const q = `DELETE FROM refresh_tokens WHERE app_id = $1 AND email = $2 AND uid = $3`
	_, err := r.db.Pool.Exec(ctx, q, appID, email, uid)
	return err
}

// DeleteAllForSubject removes every record for (app, email).
func (r *RefreshRepo) DeleteAllForSubject(ctx context.Context, appID, email string) error {
	const q = `DELETE FROM refresh_tokens WHERE app_id = $1 AND email = $2`
	_, err := r.db.Pool.Exec(ctx, q, appID, email)
	return err
}

// DeleteAllForApp removes every record for an app, used when the app is
// deleted.
func (r *RefreshRepo) DeleteAllForApp(ctx context.Context, appID string) error {
	const q = `DELETE FROM refresh_tokens WHERE app_id = $1`
	_, err := r.db.Pool.Exec(ctx, q, appID)
	return err
}

// DeleteExpired sweeps records whose expiry has passed.
func (r *RefreshRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	const q = `DELETE FROM refresh_tokens WHERE expires_at <= $1`
	tag, err := r.db.Pool.Exec(ctx, q, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
