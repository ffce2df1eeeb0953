package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veluna/media-platform-auth/internal/core/domain"
	"github.com/veluna/media-platform-auth/internal/core/port"
	"github.com/veluna/media-platform-auth/internal/repository"
)

// CredentialRepository implements port.CredentialRepository using PostgreSQL.
type CredentialRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewCredentialRepository wires a PostgreSQL-backed credential repository.
func NewCredentialRepository(pool *pgxpool.Pool) *CredentialRepository {
	return &CredentialRepository{
		pool:    pool,
		exec:    pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx returns a repository instance operating within the supplied transaction.
func (r *CredentialRepository) WithTx(tx pgx.Tx) *CredentialRepository {
	if tx == nil {
		return r
	}
	return &CredentialRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
	}
}

// GetByUserID retrieves the active credential row for a user.
func (r *CredentialRepository) GetByUserID(ctx context.Context, userID string) (*domain.Credential, error) {
	stmt, args, err := r.builder.Select(
		"id",
		"user_id",
		"password_hash",
		"password_algo",
		"expires_at",
		"updated_at",
	).
		From("auth.credentials").
		Where(squirrel.Eq{"user_id": userID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select credential sql: %w", err)
	}

	var (
		cred      domain.Credential
		expiresAt sql.NullTime
	)

	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(
		&cred.ID,
		&cred.UserID,
		&cred.PasswordHash,
		&cred.PasswordAlgo,
		&expiresAt,
		&cred.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan credential: %w", err)
	}

	cred.ExpiresAt = nullableTimePtr(expiresAt)

	return &cred, nil
}

// Replace swaps the active hash for a new one inside a single transaction:
// the previous hash is pushed onto auth.credential_history, the active row is
// rewritten, and history beyond historyDepth entries is trimmed.
func (r *CredentialRepository) Replace(ctx context.Context, userID, newHash, algo string, changedAt time.Time, historyDepth int) error {
	if r.pool == nil {
		return fmt.Errorf("replace credential: transaction support requires a pool-backed repository")
	}

	changedAt = changedAt.UTC()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin replace credential tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	historyStmt := `
		INSERT INTO auth.credential_history (id, user_id, password_hash, set_at)
		SELECT $1, user_id, password_hash, updated_at
		  FROM auth.credentials
		 WHERE user_id = $2
	`
	if _, err := tx.Exec(ctx, historyStmt, uuid.NewString(), userID); err != nil {
		return fmt.Errorf("push credential history: %w", err)
	}

	updateStmt, args, err := r.builder.Update("auth.credentials").
		Set("password_hash", newHash).
		Set("password_algo", algo).
		Set("expires_at", nil).
		Set("updated_at", changedAt).
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update credential sql: %w", err)
	}

	ct, err := tx.Exec(ctx, updateStmt, args...)
	if err != nil {
		return fmt.Errorf("update credential: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	if historyDepth > 0 {
		trimStmt := `
			DELETE FROM auth.credential_history
			 WHERE user_id = $1
			   AND id NOT IN (
			       SELECT id FROM auth.credential_history
			        WHERE user_id = $1
			        ORDER BY set_at DESC
			        LIMIT $2
			   )
		`
		if _, err := tx.Exec(ctx, trimStmt, userID, historyDepth); err != nil {
			return fmt.Errorf("trim credential history: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit replace credential tx: %w", err)
	}

	return nil
}

// ListHistory returns the most recent historical hashes for a user, newest first.
func (r *CredentialRepository) ListHistory(ctx context.Context, userID string, limit int) ([]domain.CredentialHistory, error) {
	if limit <= 0 {
		return nil, nil
	}

	stmt, args, err := r.builder.Select(
		"id",
		"user_id",
		"password_hash",
		"set_at",
	).
		From("auth.credential_history").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("set_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select credential history sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("select credential history: %w", err)
	}
	defer rows.Close()

	var history []domain.CredentialHistory
	for rows.Next() {
		var entry domain.CredentialHistory
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.PasswordHash, &entry.SetAt); err != nil {
			return nil, fmt.Errorf("scan credential history: %w", err)
		}
		history = append(history, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credential history: %w", err)
	}

	return history, nil
}

var _ port.CredentialRepository = (*CredentialRepository)(nil)
