package port

import (
	"context"

	"github.com/veluna/media-platform-auth/internal/core/domain"
)

// SessionRepository deals with session storage.
type SessionRepository interface {
	Create(ctx context.Context, session domain.Session) error
	GetByID(ctx context.Context, sessionID string) (*domain.Session, error)
	Revoke(ctx context.Context, sessionID string, reason string) error
	RevokeAllForUser(ctx context.Context, userID string, reason string) (int, error)
	ListActiveByUser(ctx context.Context, userID string) ([]domain.Session, error)
}
