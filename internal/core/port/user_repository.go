package port

import (
	"context"
	"time"

	"github.com/veluna/media-platform-auth/internal/core/domain"
)

// UserRepository exposes the read surface this service needs over accounts.
// Account creation and deletion belong to the registration service.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
}
