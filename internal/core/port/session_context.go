package port

import (
	"context"
	"time"

	"github.com/veluna/media-platform-auth/internal/core/domain"
)

// SessionContextStore is the session-scoped key-value snapshot consumed by
// downstream presentation logic. Writes after a successful login are
// fire-and-forget: a failure is reported but never rolls back authentication.
type SessionContextStore interface {
	Put(ctx context.Context, sc domain.SessionContext, ttl time.Duration) error
	Get(ctx context.Context, sessionID string) (*domain.SessionContext, error)
	Delete(ctx context.Context, sessionID string) error
}
