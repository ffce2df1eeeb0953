package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/veluna/media-platform-auth/internal/core/domain"
	"github.com/veluna/media-platform-auth/internal/core/port"
	"github.com/veluna/media-platform-auth/internal/repository"
)

const (
	defaultChallengePrefix = "2fa"

	fieldUserID    = "user_id"
	fieldCode      = "code"
	fieldAttempts  = "attempts"
	fieldCreatedAt = "created_at"
	fieldExpiresAt = "expires_at"
)

// ChallengeRepository persists pending two-factor challenges in Redis. The
// TTL is the eviction backstop; expiry is still checked against the stored
// timestamp on read.
type ChallengeRepository struct {
	client *red.Client
	prefix string
}

// NewChallengeRepository constructs a challenge repository with the provided
// Redis client and key prefix.
func NewChallengeRepository(client *red.Client, keyPrefix string) *ChallengeRepository {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultChallengePrefix
	}

	return &ChallengeRepository{
		client: client,
		prefix: prefix,
	}
}

// Store persists a challenge under its identifier with the supplied TTL.
func (r *ChallengeRepository) Store(ctx context.Context, challenge domain.TwoFactorChallenge, ttl time.Duration) error {
	switch {
	case strings.TrimSpace(challenge.ID) == "":
		return errors.New("challenge id is required")
	case strings.TrimSpace(challenge.UserID) == "":
		return errors.New("user id is required")
	case strings.TrimSpace(challenge.Code) == "":
		return errors.New("code is required")
	case ttl <= 0:
		return errors.New("ttl must be positive")
	}

	key := r.key(challenge.ID)

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, map[string]any{
		fieldUserID:    challenge.UserID,
		fieldCode:      challenge.Code,
		fieldAttempts:  strconv.Itoa(challenge.Attempts),
		fieldCreatedAt: strconv.FormatInt(challenge.CreatedAt.Unix(), 10),
		fieldExpiresAt: strconv.FormatInt(challenge.ExpiresAt.Unix(), 10),
	})
	pipe.Expire(ctx, key, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis store challenge: %w", err)
	}

	return nil
}

// Fetch retrieves a pending challenge by identifier.
func (r *ChallengeRepository) Fetch(ctx context.Context, challengeID string) (*domain.TwoFactorChallenge, error) {
	challengeID = strings.TrimSpace(challengeID)
	if challengeID == "" {
		return nil, errors.New("challenge id is required")
	}

	values, err := r.client.HGetAll(ctx, r.key(challengeID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall challenge: %w", err)
	}
	if len(values) == 0 {
		return nil, repository.ErrNotFound
	}

	code := strings.TrimSpace(values[fieldCode])
	if code == "" {
		return nil, repository.ErrNotFound
	}

	createdAt, err := parseUnix(values[fieldCreatedAt])
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	expiresAt, err := parseUnix(values[fieldExpiresAt])
	if err != nil {
		return nil, fmt.Errorf("parse expires_at: %w", err)
	}

	attempts := 0
	if raw := values[fieldAttempts]; raw != "" {
		if v, convErr := strconv.Atoi(raw); convErr == nil {
			attempts = v
		}
	}

	return &domain.TwoFactorChallenge{
		ID:        challengeID,
		UserID:    values[fieldUserID],
		Code:      code,
		Attempts:  attempts,
		CreatedAt: createdAt,
		ExpiresAt: expiresAt,
	}, nil
}

// IncrementAttempts bumps the attempt counter and returns the new value.
func (r *ChallengeRepository) IncrementAttempts(ctx context.Context, challengeID string) (int, error) {
	if _, err := r.Fetch(ctx, challengeID); err != nil {
		return 0, err
	}

	count, err := r.client.HIncrBy(ctx, r.key(challengeID), fieldAttempts, 1).Result()
	if err != nil {
		return 0, fmt.Errorf("redis hincrby challenge attempts: %w", err)
	}

	return int(count), nil
}

// Delete removes the challenge, enforcing single-use semantics.
func (r *ChallengeRepository) Delete(ctx context.Context, challengeID string) error {
	challengeID = strings.TrimSpace(challengeID)
	if challengeID == "" {
		return errors.New("challenge id is required")
	}

	deleted, err := r.client.Del(ctx, r.key(challengeID)).Result()
	if err != nil {
		return fmt.Errorf("redis delete challenge: %w", err)
	}
	if deleted == 0 {
		return repository.ErrNotFound
	}

	return nil
}

func (r *ChallengeRepository) key(challengeID string) string {
	return fmt.Sprintf("%s:%s", r.prefix, challengeID)
}

func parseUnix(raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, errors.New("timestamp is empty")
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(v, 0).UTC(), nil
}

var _ port.ChallengeStore = (*ChallengeRepository)(nil)
