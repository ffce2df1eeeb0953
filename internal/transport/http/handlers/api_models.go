package handlers

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/veluna/media-platform-auth/internal/core/domain"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		Error:   errorMsg,
		TraceID: traceIDStr,
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// UserSummary describes a minimal view of a user returned by the API.
type UserSummary struct {
	ID        string      `json:"id"`
	Email     string      `json:"email"`
	FirstName string      `json:"first_name,omitempty"`
	LastName  string      `json:"last_name,omitempty"`
	Role      domain.Role `json:"role"`
}

// LoginRequest defines the payload for the login endpoint.
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse describes the response returned for a fully authenticated login.
type LoginResponse struct {
	State     string      `json:"state"`
	Token     string      `json:"token"`
	TokenType string      `json:"token_type"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      UserSummary `json:"user"`
}

// TwoFactorPendingResponse is returned when a login requires a second factor.
type TwoFactorPendingResponse struct {
	State       string    `json:"state"`
	ChallengeID string    `json:"challenge_id"`
	Destination string    `json:"destination"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// TwoFactorVerifyRequest carries the challenge answer.
type TwoFactorVerifyRequest struct {
	ChallengeID string `json:"challenge_id" binding:"required"`
	Code        string `json:"code" binding:"required"`
}

// SessionPayload describes a session view in API responses.
type SessionPayload struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	IP        *string    `json:"ip,omitempty"`
	UserAgent *string    `json:"user_agent,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	LastSeen  time.Time  `json:"last_seen"`
	ExpiresAt time.Time  `json:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	IsCurrent bool       `json:"is_current,omitempty"`
}

// SessionListResponse wraps a list of sessions for a user.
type SessionListResponse struct {
	Sessions []SessionPayload `json:"sessions"`
	Total    int              `json:"total"`
}

// PolicyCheckRequest captures a candidate password for pre-submit validation.
type PolicyCheckRequest struct {
	Password     string   `json:"password" binding:"required"`
	Confirmation string   `json:"confirmation"`
	ContextTerms []string `json:"context_terms"`
}

// PolicyCheckResponse reports every rule independently plus the advisory
// strength score, so clients can render per-rule progress.
type PolicyCheckResponse struct {
	Valid    bool                `json:"valid"`
	Rules    domain.PolicyResult `json:"rules"`
	Failed   []string            `json:"failed,omitempty"`
	Strength int                 `json:"strength"`
}

// PasswordChangeRequest captures a password change request body.
type PasswordChangeRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
	Confirmation    string `json:"confirmation" binding:"required"`
}

// PasswordChangeResponse conveys the result of a password change.
type PasswordChangeResponse struct {
	Message         string    `json:"message"`
	ChangedAt       time.Time `json:"changed_at"`
	RevokedSessions int       `json:"revoked_sessions"`
}

// PasswordResetRequest represents a password reset initiation payload.
type PasswordResetRequest struct {
	Email string `json:"email" binding:"required"`
}

// PasswordResetResponse acknowledges a reset request. The body is identical
// for known and unknown accounts; delivery details ride the event bus.
type PasswordResetResponse struct {
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
	// DevToken is ONLY exposed in development mode. In production the raw
	// token travels exclusively through the delivery pipeline.
	DevToken *string `json:"dev_token,omitempty"`
}

// ResetTokenCheckRequest carries a reset token for pre-submit validation.
type ResetTokenCheckRequest struct {
	Token string `json:"token" binding:"required"`
}

// ResetTokenCheckResponse reports whether the token is currently redeemable.
type ResetTokenCheckResponse struct {
	Valid bool `json:"valid"`
}

// PasswordResetConfirmRequest captures a password reset confirmation payload.
type PasswordResetConfirmRequest struct {
	Token        string `json:"token" binding:"required"`
	NewPassword  string `json:"new_password" binding:"required"`
	Confirmation string `json:"confirmation" binding:"required"`
}

// PasswordResetConfirmResponse indicates that a password reset completed successfully.
type PasswordResetConfirmResponse struct {
	Message         string    `json:"message"`
	UserID          string    `json:"user_id"`
	ChangedAt       time.Time `json:"changed_at"`
	RevokedSessions int       `json:"revoked_sessions"`
}

// HealthResponse describes the service health payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse describes readiness probe results with dependency checks.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// newUserSummary converts a domain user to a summary suitable for API responses.
func newUserSummary(user domain.User) UserSummary {
	return UserSummary{
		ID:        user.ID,
		Email:     user.Email,
		FirstName: strings.TrimSpace(user.FirstName),
		LastName:  strings.TrimSpace(user.LastName),
		Role:      user.Role,
	}
}

// newSessionPayload converts a domain session to an API session payload.
func newSessionPayload(session domain.Session, currentID string) SessionPayload {
	payload := SessionPayload{
		ID:        session.ID,
		UserID:    session.UserID,
		CreatedAt: session.CreatedAt,
		LastSeen:  session.LastSeen,
		ExpiresAt: session.ExpiresAt,
		IsCurrent: currentID != "" && session.ID == currentID,
	}

	if session.IP != nil {
		payload.IP = session.IP
	}
	if session.UserAgent != nil {
		payload.UserAgent = session.UserAgent
	}
	if session.RevokedAt != nil {
		payload.RevokedAt = session.RevokedAt
	}

	return payload
}
