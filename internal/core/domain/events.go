package domain

import "time"

// LoginSucceededEvent represents the payload for auth.login.succeeded messages.
type LoginSucceededEvent struct {
	EventID   string
	UserID    string
	SessionID string
	Role      Role
	LoginAt   time.Time
	IPAddress *string
	Metadata  map[string]any
}

// TwoFactorChallengedEvent carries the challenge artifact to the delivery
// pipeline (mail/SMS workers downstream of the bus).
type TwoFactorChallengedEvent struct {
	EventID           string
	UserID            string
	ChallengeID       string
	Destination       string
	MaskedDestination string
	Code              string
	IssuedAt          time.Time
	ExpiresAt         time.Time
}

// PasswordChangedEvent represents the payload for auth.password.changed messages.
type PasswordChangedEvent struct {
	EventID         string
	UserID          string
	ChangedAt       time.Time
	ChangedBy       string
	SessionsRevoked int
	Metadata        map[string]any
}

// PasswordResetRequestedEvent represents the payload for
// auth.password.reset_requested messages.
type PasswordResetRequestedEvent struct {
	EventID           string
	UserID            string
	RequestID         string
	RequestedAt       time.Time
	Destination       string
	MaskedDestination string
	Token             string
	IPAddress         *string
	ExpiresAt         time.Time
	Metadata          map[string]any
}

// SessionRevokedEvent represents the payload for auth.session.revoked messages.
type SessionRevokedEvent struct {
	EventID   string
	SessionID string
	UserID    string
	RevokedAt time.Time
	RevokedBy string
	Reason    string
}
