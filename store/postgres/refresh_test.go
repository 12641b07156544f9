package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/emberauth/emberauth"
)

func sampleRecord() *emberauth.RefreshTokenRecord {
	return &emberauth.RefreshTokenRecord{
		AppID:     "app-1",
		Email:     "user@example.com",
		UID:       "uid-1",
		Hash:      "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA",
		ExpiresAt: time.Now().Add(24 * time.Hour).UTC(),
	}
}

func TestRefreshRepo_Insert(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	repo := NewRefreshRepo(db)

	record := sampleRecord()
	mock.ExpectExec(`INSERT INTO refresh_tokens`).
		WithArgs(record.AppID, record.Email, record.UID, record.Hash, record.ExpiresAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.Insert(context.Background(), record))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshRepo_Get_OK(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	repo := NewRefreshRepo(db)

	want := sampleRecord()
	mock.ExpectQuery(`SELECT .+ FROM refresh_tokens WHERE app_id = \$1 AND email = \$2 AND uid = \$3`).
		WithArgs(want.AppID, want.Email, want.UID).
		WillReturnRows(pgxmock.NewRows([]string{"app_id", "email", "uid", "hash", "expires_at"}).
			AddRow(want.AppID, want.Email, want.UID, want.Hash, want.ExpiresAt))

	got, err := repo.Get(context.Background(), want.AppID, want.Email, want.UID)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestRefreshRepo_Get_NotFound(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	repo := NewRefreshRepo(db)

	mock.ExpectQuery(`SELECT .+ FROM refresh_tokens`).
		WithArgs("app-1", "user@example.com", "missing").
		WillReturnRows(pgxmock.NewRows([]string{"app_id"}))

	_, err := repo.Get(context.Background(), "app-1", "user@example.com", "missing")
	require.ErrorIs(t, err, emberauth.ErrNotFound)
}

func TestRefreshRepo_Delete_Idempotent(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	repo := NewRefreshRepo(db)

	mock.ExpectExec(`DELETE FROM refresh_tokens WHERE app_id = \$1 AND email = \$2 AND uid = \$3`).
		WithArgs("app-1", "user@example.com", "uid-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	require.NoError(t, repo.Delete(context.Background(), "app-1", "user@example.com", "uid-1"))
}

func TestRefreshRepo_DeleteAllForSubject(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	repo := NewRefreshRepo(db)

	mock.ExpectExec(`DELETE FROM refresh_tokens WHERE app_id = \$1 AND email = \$2`).
		WithArgs("app-1", "user@example.com").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	require.NoError(t, repo.DeleteAllForSubject(context.Background(), "app-1", "user@example.com"))
}

func TestRefreshRepo_DeleteAllForApp(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	repo := NewRefreshRepo(db)

	mock.ExpectExec(`DELETE FROM refresh_tokens WHERE app_id = \$1`).
		WithArgs("app-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 7))

	require.NoError(t, repo.DeleteAllForApp(context.Background(), "app-1"))
}

func TestRefreshRepo_DeleteExpired(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	repo := NewRefreshRepo(db)

	now := time.Now().UTC()
	mock.ExpectExec(`DELETE FROM refresh_tokens WHERE expires_at <= \$1`).
		WithArgs(now).
		WillReturnResult(pgxmock.NewResult("DELETE", 5))

	n, err := repo.DeleteExpired(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, int64(5), n)
}
