package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/veluna/media-platform-auth/internal/core/domain"
	"github.com/veluna/media-platform-auth/internal/core/port"
	"github.com/veluna/media-platform-auth/internal/infra/security"
	"github.com/veluna/media-platform-auth/internal/repository"
)

const (
	defaultRecoveryTTL     = 15 * time.Minute
	recoveryTokenByteCount = 32
)

var (
	// ErrRecoveryTokenInvalid indicates the supplied token does not match any
	// issued token or was revoked by a newer request.
	ErrRecoveryTokenInvalid = errors.New("recovery token invalid")
	// ErrRecoveryTokenExpired indicates the token exists but its validity
	// window has elapsed.
	ErrRecoveryTokenExpired = errors.New("recovery token expired")
	// ErrRecoveryTokenConsumed indicates the token was already used once.
	ErrRecoveryTokenConsumed = errors.New("recovery token already used")
)

// IssuedRecoveryToken pairs the opaque value handed to the delivery pipeline
// with its persisted record. Raw never touches storage.
type IssuedRecoveryToken struct {
	Raw        string
	Token      domain.RecoveryToken
	Superseded int
}

// RecoveryTokenService issues, validates, and consumes single-use password
// recovery tokens. At most one token per user is active at any moment.
type RecoveryTokenService struct {
	tokens port.TokenRepository
	logger *zap.Logger
	now    func() time.Time
	ttl    time.Duration
}

// NewRecoveryTokenService constructs a RecoveryTokenService.
func NewRecoveryTokenService(tokens port.TokenRepository, logger *zap.Logger) *RecoveryTokenService {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RecoveryTokenService{
		tokens: tokens,
		logger: logger,
		now:    time.Now,
		ttl:    defaultRecoveryTTL,
	}
}

// WithClock allows tests to override the clock used by the service.
func (s *RecoveryTokenService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// WithTTL allows tests to override the default token TTL.
func (s *RecoveryTokenService) WithTTL(ttl time.Duration) {
	if ttl > 0 {
		s.ttl = ttl
	}
}

// TTL returns the configured token lifetime.
func (s *RecoveryTokenService) TTL() time.Duration {
	return s.ttl
}

// Issue generates a fresh recovery token for the user. Any prior unconsumed
// token is revoked in the same transaction that persists the new one.
func (s *RecoveryTokenService) Issue(ctx context.Context, userID string, ip, userAgent *string, metadata map[string]any) (*IssuedRecoveryToken, error) {
	raw, err := security.GenerateSecureToken(recoveryTokenByteCount)
	if err != nil {
		return nil, fmt.Errorf("generate recovery token: %w", err)
	}

	now := s.now().UTC()
	token := domain.RecoveryToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: security.HashToken(raw),
		IP:        ip,
		UserAgent: userAgent,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
		Metadata:  metadataCopy(metadata),
	}

	superseded, err := s.tokens.CreateRecovery(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("store recovery token: %w", err)
	}

	if superseded > 0 {
		s.logger.Info("recovery tokens superseded",
			zap.String("user_id", userID),
			zap.Int("count", superseded),
		)
	}

	return &IssuedRecoveryToken{
		Raw:        raw,
		Token:      token,
		Superseded: superseded,
	}, nil
}

// Validate resolves the raw value to its record and checks it is still
// active. The token is not consumed; repeated validation of an unconsumed
// token keeps succeeding.
func (s *RecoveryTokenService) Validate(ctx context.Context, raw string) (*domain.RecoveryToken, error) {
	if raw == "" {
		return nil, ErrRecoveryTokenInvalid
	}

	token, err := s.tokens.GetRecoveryByHash(ctx, security.HashToken(raw))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRecoveryTokenInvalid
		}
		return nil, fmt.Errorf("lookup recovery token: %w", err)
	}

	return s.classify(token)
}

// Consume validates and atomically marks the token used. Exactly one of two
// concurrent consumers succeeds; the loser observes ErrRecoveryTokenConsumed.
func (s *RecoveryTokenService) Consume(ctx context.Context, raw string) (*domain.RecoveryToken, error) {
	token, err := s.Validate(ctx, raw)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if err := s.tokens.ConsumeRecovery(ctx, token.ID, now); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Lost the race: another confirm flipped the row first.
			return nil, ErrRecoveryTokenConsumed
		}
		return nil, fmt.Errorf("consume recovery token: %w", err)
	}

	token.Consume(now)
	return token, nil
}

func (s *RecoveryTokenService) classify(token *domain.RecoveryToken) (*domain.RecoveryToken, error) {
	if token.UsedAt != nil {
		return nil, ErrRecoveryTokenConsumed
	}
	if token.RevokedAt != nil {
		return nil, ErrRecoveryTokenInvalid
	}
	if token.IsExpired(s.now().UTC()) {
		return nil, ErrRecoveryTokenExpired
	}
	return token, nil
}
