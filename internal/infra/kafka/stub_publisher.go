package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/veluna/media-platform-auth/internal/core/domain"
	"github.com/veluna/media-platform-auth/internal/core/port"
	"github.com/veluna/media-platform-auth/internal/infra/logger"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for
// development environments without a broker.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, userID string, at time.Time, payload any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("Stub event published",
		zap.String("event_type", eventType),
		zap.String("user_id", userID),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

// PublishLoginSucceeded logs auth.login.succeeded events.
func (p *StubPublisher) PublishLoginSucceeded(_ context.Context, event domain.LoginSucceededEvent) error {
	payload := map[string]any{
		"user_id":    event.UserID,
		"session_id": event.SessionID,
		"role":       event.Role,
		"login_at":   event.LoginAt,
		"metadata":   event.Metadata,
	}
	p.logEvent("auth.login.succeeded", event.UserID, event.LoginAt, payload)
	return nil
}

// PublishTwoFactorChallenged logs auth.login.two_factor_challenged events.
// The raw code is masked; only the real bus carries it to delivery workers.
func (p *StubPublisher) PublishTwoFactorChallenged(_ context.Context, event domain.TwoFactorChallengedEvent) error {
	payload := map[string]any{
		"user_id":            event.UserID,
		"challenge_id":       event.ChallengeID,
		"masked_destination": event.MaskedDestination,
		"code":               logger.MaskString(event.Code),
		"issued_at":          event.IssuedAt,
		"expires_at":         event.ExpiresAt,
	}
	p.logEvent("auth.login.two_factor_challenged", event.UserID, event.IssuedAt, payload)
	return nil
}

// PublishPasswordChanged logs auth.password.changed events.
func (p *StubPublisher) PublishPasswordChanged(_ context.Context, event domain.PasswordChangedEvent) error {
	payload := map[string]any{
		"user_id":          event.UserID,
		"changed_at":       event.ChangedAt,
		"changed_by":       event.ChangedBy,
		"sessions_revoked": event.SessionsRevoked,
		"metadata":         event.Metadata,
	}
	p.logEvent("auth.password.changed", event.UserID, event.ChangedAt, payload)
	return nil
}

// PublishPasswordResetRequested logs auth.password.reset_requested events
// with the token masked.
func (p *StubPublisher) PublishPasswordResetRequested(_ context.Context, event domain.PasswordResetRequestedEvent) error {
	payload := map[string]any{
		"user_id":            event.UserID,
		"request_id":         event.RequestID,
		"requested_at":       event.RequestedAt,
		"masked_destination": event.MaskedDestination,
		"token":              logger.MaskString(event.Token),
		"expires_at":         event.ExpiresAt,
		"metadata":           event.Metadata,
	}
	p.logEvent("auth.password.reset_requested", event.UserID, event.RequestedAt, payload)
	return nil
}

// PublishSessionRevoked logs auth.session.revoked events.
func (p *StubPublisher) PublishSessionRevoked(_ context.Context, event domain.SessionRevokedEvent) error {
	payload := map[string]any{
		"session_id": event.SessionID,
		"user_id":    event.UserID,
		"revoked_at": event.RevokedAt,
		"revoked_by": event.RevokedBy,
		"reason":     event.Reason,
	}
	p.logEvent("auth.session.revoked", event.UserID, event.RevokedAt, payload)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
