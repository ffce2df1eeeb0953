package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/veluna/media-platform-auth/internal/core/domain"
	"github.com/veluna/media-platform-auth/internal/repository"
)

// recoveryTokenRepoMock mirrors the store semantics: CreateRecovery revokes
// prior active tokens, ConsumeRecovery is a guarded single-row update.
type recoveryTokenRepoMock struct {
	mu     sync.Mutex
	tokens map[string]*domain.RecoveryToken
}

func newRecoveryTokenRepoMock() *recoveryTokenRepoMock {
	return &recoveryTokenRepoMock{tokens: make(map[string]*domain.RecoveryToken)}
}

func (m *recoveryTokenRepoMock) CreateRecovery(_ context.Context, token domain.RecoveryToken) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	superseded := 0
	for _, existing := range m.tokens {
		if existing.UserID == token.UserID && existing.UsedAt == nil && existing.RevokedAt == nil {
			at := token.CreatedAt
			existing.RevokedAt = &at
			superseded++
		}
	}

	copy := token
	m.tokens[token.ID] = &copy
	return superseded, nil
}

func (m *recoveryTokenRepoMock) GetRecoveryByHash(_ context.Context, hash string) (*domain.RecoveryToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, token := range m.tokens {
		if token.TokenHash == hash {
			copy := *token
			return &copy, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *recoveryTokenRepoMock) ConsumeRecovery(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	token, ok := m.tokens[id]
	if !ok || token.UsedAt != nil || token.RevokedAt != nil {
		return repository.ErrNotFound
	}
	stamp := at
	token.UsedAt = &stamp
	return nil
}

func TestRecoveryTokenIssueSupersedesPrior(t *testing.T) {
	repo := newRecoveryTokenRepoMock()
	svc := NewRecoveryTokenService(repo, nil)

	first, err := svc.Issue(context.Background(), "user-1", nil, nil, nil)
	if err != nil {
		t.Fatalf("first issue: %v", err)
	}
	if first.Superseded != 0 {
		t.Fatalf("expected 0 superseded on first issue, got %d", first.Superseded)
	}

	second, err := svc.Issue(context.Background(), "user-1", nil, nil, nil)
	if err != nil {
		t.Fatalf("second issue: %v", err)
	}
	if second.Superseded != 1 {
		t.Fatalf("expected 1 superseded on second issue, got %d", second.Superseded)
	}

	// The older token is revoked and no longer validates.
	if _, err := svc.Validate(context.Background(), first.Raw); !errors.Is(err, ErrRecoveryTokenInvalid) {
		t.Fatalf("expected superseded token invalid, got %v", err)
	}

	// The newest token stays valid.
	if _, err := svc.Validate(context.Background(), second.Raw); err != nil {
		t.Fatalf("expected newest token valid, got %v", err)
	}
}

func TestRecoveryTokenValidateDoesNotConsume(t *testing.T) {
	repo := newRecoveryTokenRepoMock()
	svc := NewRecoveryTokenService(repo, nil)

	issued, err := svc.Issue(context.Background(), "user-1", nil, nil, nil)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := svc.Validate(context.Background(), issued.Raw); err != nil {
			t.Fatalf("validate attempt %d: %v", i+1, err)
		}
	}

	if _, err := svc.Consume(context.Background(), issued.Raw); err != nil {
		t.Fatalf("consume after repeated validation: %v", err)
	}
}

func TestRecoveryTokenConsumeAtMostOnce(t *testing.T) {
	repo := newRecoveryTokenRepoMock()
	svc := NewRecoveryTokenService(repo, nil)

	issued, err := svc.Issue(context.Background(), "user-1", nil, nil, nil)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := svc.Consume(context.Background(), issued.Raw); err != nil {
		t.Fatalf("first consume: %v", err)
	}

	if _, err := svc.Consume(context.Background(), issued.Raw); !errors.Is(err, ErrRecoveryTokenConsumed) {
		t.Fatalf("expected ErrRecoveryTokenConsumed on second consume, got %v", err)
	}

	if _, err := svc.Validate(context.Background(), issued.Raw); !errors.Is(err, ErrRecoveryTokenConsumed) {
		t.Fatalf("expected consumed token to fail validation, got %v", err)
	}
}

func TestRecoveryTokenExpires(t *testing.T) {
	repo := newRecoveryTokenRepoMock()
	svc := NewRecoveryTokenService(repo, nil)

	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.WithClock(func() time.Time { return current })
	svc.WithTTL(15 * time.Minute)

	issued, err := svc.Issue(context.Background(), "user-1", nil, nil, nil)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	current = current.Add(14 * time.Minute)
	if _, err := svc.Validate(context.Background(), issued.Raw); err != nil {
		t.Fatalf("expected token valid before expiry, got %v", err)
	}

	current = current.Add(2 * time.Minute)
	if _, err := svc.Validate(context.Background(), issued.Raw); !errors.Is(err, ErrRecoveryTokenExpired) {
		t.Fatalf("expected ErrRecoveryTokenExpired, got %v", err)
	}
	if _, err := svc.Consume(context.Background(), issued.Raw); !errors.Is(err, ErrRecoveryTokenExpired) {
		t.Fatalf("expected consume of expired token to fail, got %v", err)
	}
}

func TestRecoveryTokenUnknownValueInvalid(t *testing.T) {
	repo := newRecoveryTokenRepoMock()
	svc := NewRecoveryTokenService(repo, nil)

	if _, err := svc.Validate(context.Background(), "never-issued"); !errors.Is(err, ErrRecoveryTokenInvalid) {
		t.Fatalf("expected ErrRecoveryTokenInvalid, got %v", err)
	}
}
