package port

import (
	"context"
	"time"

	"github.com/veluna/media-platform-auth/internal/core/domain"
)

// TokenRepository manages recovery token records.
type TokenRepository interface {
	// CreateRecovery persists the token and, in the same transaction, revokes
	// every prior unconsumed token for the owning user. The supersession count
	// is returned. Two concurrent requests for the same user can never leave
	// two simultaneously active tokens.
	CreateRecovery(ctx context.Context, token domain.RecoveryToken) (int, error)
	GetRecoveryByHash(ctx context.Context, hash string) (*domain.RecoveryToken, error)
	// ConsumeRecovery marks the token used iff it is still unused and
	// unrevoked; the check and the write are a single statement so at-most-once
	// consumption holds under concurrent confirms. Returns
	// repository.ErrNotFound when another caller won the race.
	ConsumeRecovery(ctx context.Context, id string, at time.Time) error
}
