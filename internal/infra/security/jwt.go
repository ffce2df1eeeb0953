package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrTokenInvalid is returned when a session token fails signature or
	// structural validation.
	ErrTokenInvalid = errors.New("session token invalid")
	// ErrTokenExpired is returned when a session token is syntactically valid
	// but past its expiry.
	ErrTokenExpired = errors.New("session token expired")
)

// SessionClaims are the claims embedded in a signed session token.
type SessionClaims struct {
	UserID    string `json:"uid"`
	SessionID string `json:"sid"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

// SessionTokenSigner issues and verifies HMAC-signed session tokens.
type SessionTokenSigner struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewSessionTokenSigner builds a signer from the shared secret. The secret
// must be non-empty; there is no unsigned fallback.
func NewSessionTokenSigner(secret, issuer string, ttl time.Duration) (*SessionTokenSigner, error) {
	if secret == "" {
		return nil, errors.New("session token secret must not be empty")
	}
	if ttl <= 0 {
		return nil, errors.New("session token ttl must be positive")
	}
	return &SessionTokenSigner{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
	}, nil
}

// TTL returns the configured token lifetime.
func (s *SessionTokenSigner) TTL() time.Duration {
	return s.ttl
}

// Sign issues a session token bound to the user, session, and role.
func (s *SessionTokenSigner) Sign(userID, sessionID uuid.UUID, role string, issuedAt time.Time) (string, error) {
	claims := SessionClaims{
		UserID:    userID.String(),
		SessionID: sessionID.String(),
		Role:      role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(s.ttl)),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a session token, returning its claims.
func (s *SessionTokenSigner) Verify(raw string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
