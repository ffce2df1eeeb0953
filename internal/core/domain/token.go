package domain

import "time"

// RecoveryToken is a single-use, time-bounded password reset authorization.
// Only the SHA-256 hash of the opaque value is persisted.
type RecoveryToken struct {
	ID        string
	UserID    string
	TokenHash string
	IP        *string
	UserAgent *string
	CreatedAt time.Time
	ExpiresAt time.Time
	UsedAt    *time.Time
	RevokedAt *time.Time
	Metadata  map[string]any
}

// IsExpired reports whether the token has elapsed its validity window.
func (t RecoveryToken) IsExpired(at time.Time) bool {
	return !t.ExpiresAt.After(at)
}

// IsActive returns true when the token can still be validated or consumed.
func (t RecoveryToken) IsActive(at time.Time) bool {
	if t.UsedAt != nil || t.RevokedAt != nil {
		return false
	}
	return !t.IsExpired(at)
}

// Consume marks the token as used.
// Returns true when the token transitions from unused to used.
func (t *RecoveryToken) Consume(at time.Time) bool {
	if t.UsedAt != nil {
		return false
	}
	timeCopy := at
	t.UsedAt = &timeCopy
	return true
}

// Revoke marks the token as revoked (e.g. superseded by a newer request).
func (t *RecoveryToken) Revoke(at time.Time) bool {
	if t.RevokedAt != nil {
		return false
	}
	timeCopy := at
	t.RevokedAt = &timeCopy
	return true
}

// Session represents a persisted login session. The signed session token is
// stored as a hash; the raw value is returned to the client once.
type Session struct {
	ID           string
	UserID       string
	TokenHash    string
	IP           *string
	UserAgent    *string
	CreatedAt    time.Time
	LastSeen     time.Time
	ExpiresAt    time.Time
	RevokedAt    *time.Time
	RevokeReason *string
}

// IsActive reports whether the session is valid at the supplied moment.
func (s Session) IsActive(at time.Time) bool {
	if s.RevokedAt != nil {
		return false
	}
	return s.ExpiresAt.After(at)
}

// Revoke marks the session as revoked. Returns true when state changed.
func (s *Session) Revoke(at time.Time, reason string) bool {
	if s.RevokedAt != nil {
		return false
	}
	s.RevokedAt = &at
	s.RevokeReason = &reason
	return true
}

// TwoFactorChallenge is the short-lived second-factor gate between a correct
// password and an established session. Stored in Redis with a TTL.
type TwoFactorChallenge struct {
	ID        string
	UserID    string
	Code      string
	Attempts  int
	CreatedAt time.Time
	ExpiresAt time.Time
}

// IsExpired reports whether the challenge window has closed.
func (c TwoFactorChallenge) IsExpired(at time.Time) bool {
	return !c.ExpiresAt.After(at)
}

// SessionContext is the session-scoped snapshot written for downstream
// presentation logic after a successful login.
type SessionContext struct {
	SessionID string
	Email     string
	Role      Role
	Token     string
	User      User
}
