package port

import (
	"context"
	"time"

	"github.com/veluna/media-platform-auth/internal/core/domain"
)

// CredentialRepository manages the active password hash and its history.
type CredentialRepository interface {
	GetByUserID(ctx context.Context, userID string) (*domain.Credential, error)
	// Replace swaps the active hash for a new one, pushing the previous hash
	// onto the history and trimming history to historyDepth entries, all in
	// one transaction.
	Replace(ctx context.Context, userID, newHash, algo string, changedAt time.Time, historyDepth int) error
	ListHistory(ctx context.Context, userID string, limit int) ([]domain.CredentialHistory, error)
}
