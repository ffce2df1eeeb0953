package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/veluna/media-platform-auth/internal/core/domain"
	"github.com/veluna/media-platform-auth/internal/core/port"
	"github.com/veluna/media-platform-auth/internal/repository"
)

// TokenRepository implements port.TokenRepository using PostgreSQL.
type TokenRepository struct {
	begin   pgBeginner
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewTokenRepository constructs a repository backed by any executor that
// satisfies pgExecutor. Executors that can open transactions (a pgxpool.Pool)
// additionally enable the transactional supersede-and-insert path.
func NewTokenRepository(exec pgExecutor) *TokenRepository {
	repo := &TokenRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if beginner, ok := exec.(pgBeginner); ok {
		repo.begin = beginner
	}
	return repo
}

// WithTx returns a repository instance executing within the provided transaction.
func (r *TokenRepository) WithTx(tx pgx.Tx) *TokenRepository {
	if tx == nil {
		return r
	}
	return &TokenRepository{
		begin:   r.begin,
		exec:    tx,
		builder: r.builder,
	}
}

// CreateRecovery inserts a recovery token row and revokes every prior
// unconsumed token for the same user in the same transaction, so two
// concurrent requests can never leave two simultaneously active tokens.
// Returns the number of superseded tokens.
func (r *TokenRepository) CreateRecovery(ctx context.Context, token domain.RecoveryToken) (int, error) {
	if r.begin == nil {
		return 0, fmt.Errorf("create recovery token: transaction support requires a pool-backed repository")
	}

	metadata, err := marshalMetadata(token.Metadata)
	if err != nil {
		return 0, fmt.Errorf("prepare recovery token metadata: %w", err)
	}

	tx, err := r.begin.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin create recovery tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	supersedeStmt := `
		WITH superseded AS (
			UPDATE auth.recovery_tokens
			   SET revoked_at = $2
			 WHERE user_id = $1
			   AND used_at IS NULL
			   AND revoked_at IS NULL
			 RETURNING 1
		)
		SELECT count(*) FROM superseded;
	`

	var superseded int
	if err := tx.QueryRow(ctx, supersedeStmt, token.UserID, token.CreatedAt.UTC()).Scan(&superseded); err != nil {
		return 0, fmt.Errorf("supersede recovery tokens: %w", err)
	}

	insertStmt, args, err := r.builder.Insert("auth.recovery_tokens").
		Columns(
			"id",
			"user_id",
			"token_hash",
			"ip",
			"user_agent",
			"created_at",
			"expires_at",
			"used_at",
			"revoked_at",
			"metadata",
		).
		Values(
			token.ID,
			token.UserID,
			token.TokenHash,
			token.IP,
			token.UserAgent,
			token.CreatedAt,
			token.ExpiresAt,
			token.UsedAt,
			token.RevokedAt,
			metadata,
		).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build insert recovery token sql: %w", err)
	}

	if _, err := tx.Exec(ctx, insertStmt, args...); err != nil {
		return 0, fmt.Errorf("insert recovery token: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit create recovery tx: %w", err)
	}

	return superseded, nil
}

// GetRecoveryByHash retrieves a recovery token by its hashed value.
func (r *TokenRepository) GetRecoveryByHash(ctx context.Context, hash string) (*domain.RecoveryToken, error) {
	stmt, args, err := r.builder.Select(
		"id",
		"user_id",
		"token_hash",
		"ip",
		"user_agent",
		"created_at",
		"expires_at",
		"used_at",
		"revoked_at",
		"metadata",
	).
		From("auth.recovery_tokens").
		Where(squirrel.Eq{"token_hash": hash}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select recovery token sql: %w", err)
	}

	row := r.exec.QueryRow(ctx, stmt, args...)

	var (
		token     domain.RecoveryToken
		ip        sql.NullString
		userAgent sql.NullString
		usedAt    sql.NullTime
		revokedAt sql.NullTime
		metadata  []byte
	)

	if err := row.Scan(
		&token.ID,
		&token.UserID,
		&token.TokenHash,
		&ip,
		&userAgent,
		&token.CreatedAt,
		&token.ExpiresAt,
		&usedAt,
		&revokedAt,
		&metadata,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan recovery token: %w", err)
	}

	token.IP = nullableStringPtr(ip)
	token.UserAgent = nullableStringPtr(userAgent)
	token.UsedAt = nullableTimePtr(usedAt)
	token.RevokedAt = nullableTimePtr(revokedAt)
	if len(metadata) > 0 {
		meta, err := unmarshalMetadata(metadata)
		if err != nil {
			return nil, fmt.Errorf("unmarshal recovery token metadata: %w", err)
		}
		token.Metadata = meta
	}

	return &token, nil
}

// ConsumeRecovery marks a token used iff it is still unused and unrevoked.
// The guard and the write are one statement, so concurrent confirms race on
// rows-affected: exactly one caller sees success, the rest get ErrNotFound.
func (r *TokenRepository) ConsumeRecovery(ctx context.Context, id string, at time.Time) error {
	stmt, args, err := r.builder.Update("auth.recovery_tokens").
		Set("used_at", at.UTC()).
		Where(squirrel.Eq{"id": id}).
		Where("used_at IS NULL").
		Where("revoked_at IS NULL").
		ToSql()
	if err != nil {
		return fmt.Errorf("build consume recovery sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("consume recovery token: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

var _ port.TokenRepository = (*TokenRepository)(nil)
