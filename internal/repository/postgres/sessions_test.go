package postgres

import (
	"context"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/require"

	"github.com/veluna/media-platform-auth/internal/core/domain"
	"github.com/veluna/media-platform-auth/internal/repository"
)

func TestSessionRepository_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewSessionRepository(mock)

	now := time.Now().UTC()
	session := domain.Session{
		ID:        "sess-1",
		UserID:    "user-1",
		TokenHash: "hash-1",
		CreatedAt: now,
		LastSeen:  now,
		ExpiresAt: now.Add(12 * time.Hour),
	}

	mock.ExpectExec(`INSERT INTO auth\.sessions`).
		WithArgs(
			session.ID,
			session.UserID,
			session.TokenHash,
			session.IP,
			session.UserAgent,
			session.CreatedAt,
			session.LastSeen,
			session.ExpiresAt,
			session.RevokedAt,
			session.RevokeReason,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.Create(context.Background(), session))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepository_RevokeGuardsRevokedRows(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewSessionRepository(mock)

	mock.ExpectExec(`UPDATE auth\.sessions`).
		WithArgs(pgxmock.AnyArg(), "logout", "sess-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, repo.Revoke(context.Background(), "sess-1", "logout"))

	// A second revoke finds no unrevoked row.
	mock.ExpectExec(`UPDATE auth\.sessions`).
		WithArgs(pgxmock.AnyArg(), "logout", "sess-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = repo.Revoke(context.Background(), "sess-1", "logout")
	require.ErrorIs(t, err, repository.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepository_RevokeAllForUserCounts(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewSessionRepository(mock)

	mock.ExpectQuery(`UPDATE auth\.sessions`).
		WithArgs("user-1", "password_reset").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(3))

	count, err := repo.RevokeAllForUser(context.Background(), "user-1", "password_reset")
	require.NoError(t, err)
	require.Equal(t, 3, count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepository_ListActiveByUser(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewSessionRepository(mock)

	now := time.Now().UTC()
	rows := pgxmock.NewRows([]string{
		"id", "user_id", "token_hash", "ip", "user_agent",
		"created_at", "last_seen", "expires_at", "revoked_at", "revoke_reason",
	}).
		AddRow("sess-2", "user-1", "hash-2", nil, nil, now, now, now.Add(time.Hour), nil, nil).
		AddRow("sess-1", "user-1", "hash-1", nil, nil, now.Add(-time.Hour), now, now.Add(time.Hour), nil, nil)

	mock.ExpectQuery(`SELECT .+ FROM auth\.sessions`).
		WithArgs("user-1").
		WillReturnRows(rows)

	sessions, err := repo.ListActiveByUser(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	require.Equal(t, "sess-2", sessions[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
