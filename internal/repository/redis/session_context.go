package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/veluna/media-platform-auth/internal/core/domain"
	"github.com/veluna/media-platform-auth/internal/core/port"
	"github.com/veluna/media-platform-auth/internal/repository"
)

const (
	defaultContextPrefix = "sessctx"

	fieldEmail = "email"
	fieldRole  = "role"
	fieldToken = "token"
	fieldUser  = "user"
)

// SessionContextRepository stores the per-session snapshot consumed by
// downstream presentation logic: email, role, the raw session token, and a
// JSON copy of the user record.
type SessionContextRepository struct {
	client *red.Client
	prefix string
}

// NewSessionContextRepository constructs the store with the provided Redis
// client and key prefix.
func NewSessionContextRepository(client *red.Client, keyPrefix string) *SessionContextRepository {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultContextPrefix
	}

	return &SessionContextRepository{
		client: client,
		prefix: prefix,
	}
}

// Put writes the snapshot under the session identifier with the supplied TTL.
func (r *SessionContextRepository) Put(ctx context.Context, sc domain.SessionContext, ttl time.Duration) error {
	if strings.TrimSpace(sc.SessionID) == "" {
		return errors.New("session id is required")
	}
	if ttl <= 0 {
		return errors.New("ttl must be positive")
	}

	userPayload, err := json.Marshal(sc.User)
	if err != nil {
		return fmt.Errorf("marshal session user snapshot: %w", err)
	}

	key := r.key(sc.SessionID)

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, map[string]any{
		fieldEmail: sc.Email,
		fieldRole:  string(sc.Role),
		fieldToken: sc.Token,
		fieldUser:  string(userPayload),
	})
	pipe.Expire(ctx, key, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis store session context: %w", err)
	}

	return nil
}

// Get retrieves the snapshot for a session.
func (r *SessionContextRepository) Get(ctx context.Context, sessionID string) (*domain.SessionContext, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, errors.New("session id is required")
	}

	values, err := r.client.HGetAll(ctx, r.key(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall session context: %w", err)
	}
	if len(values) == 0 {
		return nil, repository.ErrNotFound
	}

	sc := domain.SessionContext{
		SessionID: sessionID,
		Email:     values[fieldEmail],
		Role:      domain.Role(values[fieldRole]),
		Token:     values[fieldToken],
	}

	if raw := values[fieldUser]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &sc.User); err != nil {
			return nil, fmt.Errorf("unmarshal session user snapshot: %w", err)
		}
	}

	return &sc, nil
}

// Delete removes the snapshot, typically on logout or session revocation.
func (r *SessionContextRepository) Delete(ctx context.Context, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return errors.New("session id is required")
	}

	if err := r.client.Del(ctx, r.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("redis delete session context: %w", err)
	}

	return nil
}

func (r *SessionContextRepository) key(sessionID string) string {
	return fmt.Sprintf("%s:%s", r.prefix, sessionID)
}

var _ port.SessionContextStore = (*SessionContextRepository)(nil)
