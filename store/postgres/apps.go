package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/emberauth/emberauth"
)

// AppRepo implements emberauth.AppStore.
type AppRepo struct{ db *DB }

// NewAppRepo constructs a tenant app repository.
func NewAppRepo(db *DB) *AppRepo { return &AppRepo{db: db} }

const appColumns = `app_id, name, owner, redirect_url, failure_redirect_url,
enc_key, enc_refresh_key, refresh_token_expire_hours,
quota, low_quota_threshold, low_quota_last_notified,
unlimited, delete_protected, created_at`

// Get loads one app by ID.
func (r *AppRepo) Get(ctx context.Context, appID string) (*emberauth.App, error) {
	const q = `
SELECT ` + appColumns + `
FROM client_apps WHERE app_id = $1`
	return scanApp(r.db.Pool.QueryRow(ctx, q, appID))
}

// Insert stores a new app.
func (r *AppRepo) Insert(ctx context.Context, app *emberauth.App) error {
	const q = `
INSERT INTO client_apps (` + appColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err := r.db.Pool.Exec(ctx, q,
		app.ID, app.Name, app.Owner, app.RedirectURL, app.FailureRedirectURL,
		app.EncKey, nullBytes(app.EncRefreshKey), ttlToHours(app.RefreshTokenTTL),
		app.Quota, app.LowQuotaThreshold, app.LowQuotaNotifiedAt,
		app.Unlimited, app.DeleteProtected, app.CreatedAt,
	)
	if isUniqueViolation(err) {
		return emberauth.ErrAppExists
	}
	return err
}

// UpdateKeys replaces the sealed key material for an app.
func (r *AppRepo) UpdateKeys(ctx context.Context, appID string, encKey, encRefreshKey []byte, refreshTTL time.Duration) error {
	const q = `
UPDATE client_apps
SET enc_key = $2, enc_refresh_key = $3, refresh_token_expire_hours = $4
WHERE app_id = $1`
	tag, err := r.db.Pool.Exec(ctx, q, appID, encKey, nullBytes(encRefreshKey), ttlToHours(refreshTTL))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return emberauth.ErrNotFound
	}
	return nil
}

// ConsumeQuota decrements the quota atomically with a floor at zero.
func (r *AppRepo) ConsumeQuota(ctx context.Context, appID string) (int64, error) {
	const q = `
UPDATE client_apps SET quota = quota - 1
WHERE app_id = $1 AND quota > 0
RETURNING quota`
	var remaining int64
	err := r.db.Pool.QueryRow(ctx, q, appID).Scan(&remaining)
	if errors.Is(err, pgx.ErrNoRows) {
		// Either the app is missing or the quota is already spent.
		if _, getErr := r.Get(ctx, appID); getErr != nil {
			return 0, getErr
		}
		return 0, emberauth.ErrQuotaExhausted
	}
	if err != nil {
		return 0, err
	}
	return remaining, nil
}

// MarkQuotaNotified advances the notification timestamp if and only if the
// stored value is at or before notBefore.
func (r *AppRepo) MarkQuotaNotified(ctx context.Context, appID string, notBefore, now time.Time) (bool, error) {
	const q = `
UPDATE client_apps SET low_quota_last_notified = $3
WHERE app_id = $1 AND low_quota_last_notified <= $2`
	tag, err := r.db.Pool.Exec(ctx, q, appID, notBefore, now)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Delete removes an app. Refresh records are removed by the engine before
// this is called; the foreign key cascade is a backstop.
func (r *AppRepo) Delete(ctx context.Context, appID string) error {
	const q = `DELETE FROM client_apps WHERE app_id = $1`
	tag, err := r.db.Pool.Exec(ctx, q, appID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return emberauth.ErrNotFound
	}
	return nil
}

func scanApp(row pgx.Row) (*emberauth.App, error) {
	var app emberauth.App
	var refreshHours *int32

	err := row.Scan(
		&app.ID, &app.Name, &app.Owner, &app.RedirectURL, &app.FailureRedirectURL,
		&app.EncKey, &app.EncRefreshKey, &refreshHours,
		&app.Quota, &app.LowQuotaThreshold, &app.LowQuotaNotifiedAt,
		&app.Unlimited, &app.DeleteProtected, &app.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, emberauth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if refreshHours != nil {
		app.RefreshTokenTTL = time.Duration(*refreshHours) * time.Hour
	}
	return &app, nil
}

func nullBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}

// ttlToHours converts a refresh lifetime to the stored hour count, rounding
// sub-hour lifetimes up so a configured lifetime never truncates to "refresh
// disabled".
func ttlToHours(ttl time.Duration) *int32 {
	if ttl <= 0 {
		return nil
	}
	hours := int32((ttl + time.Hour - 1) / time.Hour)
	return &hours
}
