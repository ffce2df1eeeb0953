package port

import (
	"context"
	"time"

	"github.com/veluna/media-platform-auth/internal/core/domain"
)

// ChallengeStore persists pending two-factor challenges with a TTL.
type ChallengeStore interface {
	Store(ctx context.Context, challenge domain.TwoFactorChallenge, ttl time.Duration) error
	Fetch(ctx context.Context, challengeID string) (*domain.TwoFactorChallenge, error)
	IncrementAttempts(ctx context.Context, challengeID string) (int, error)
	Delete(ctx context.Context, challengeID string) error
}
