package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/veluna/media-platform-auth/internal/core/domain"
	"github.com/veluna/media-platform-auth/internal/transport/http/middleware"
	"github.com/veluna/media-platform-auth/internal/usecase"
)

// AuthHandler exposes authentication endpoints.
type AuthHandler struct {
	auth *usecase.AuthService
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(auth *usecase.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// RegisterRoutes binds authentication routes, applying optional middleware ahead of the login handler.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup, loginMiddlewares ...gin.HandlerFunc) {
	if len(loginMiddlewares) > 0 {
		chain := append([]gin.HandlerFunc{}, loginMiddlewares...)
		chain = append(chain, h.login)
		r.POST("/login", chain...)
	} else {
		r.POST("/login", h.login)
	}

	r.POST("/2fa/verify", h.verifyTwoFactor)
	r.POST("/logout", middleware.RequireAuth(h.auth), h.logout)
	r.GET("/sessions", middleware.RequireAuth(h.auth), h.listSessions)
}

// Login godoc
// @Summary Authenticate with email and password
// @Description Verifies credentials and either establishes a session or issues a two-factor challenge.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login request payload"
// @Success 200 {object} LoginResponse
// @Success 202 {object} TwoFactorPendingResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/login [post]
func (h *AuthHandler) login(c *gin.Context) {
	if h.auth == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "authentication service unavailable"))
		return
	}

	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid login payload"))
		return
	}

	outcome, err := h.auth.Login(c.Request.Context(), usecase.LoginInput{
		Email:     strings.TrimSpace(req.Email),
		Password:  req.Password,
		IP:        c.ClientIP(),
		UserAgent: c.GetHeader("User-Agent"),
	})
	if err != nil {
		if respondRateLimited(c, err, "too many login attempts") {
			return
		}
		// Blocked accounts get the same message as bad credentials; the
		// distinct kind is only for logs.
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized, Message: "invalid email or password"},
			{Err: usecase.ErrAccountBlocked, Status: http.StatusUnauthorized, Message: "invalid email or password"},
			{Err: usecase.ErrCredentialExpired, Status: http.StatusForbidden, Message: "password expired, reset required"},
		}, http.StatusInternalServerError, "failed to authenticate")
		return
	}

	switch outcome.State {
	case domain.LoginStatePendingTwoFactor:
		if outcome.Challenge == nil {
			c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "challenge unavailable"))
			return
		}
		c.JSON(http.StatusAccepted, TwoFactorPendingResponse{
			State:       string(outcome.State),
			ChallengeID: outcome.Challenge.ChallengeID,
			Destination: outcome.Challenge.MaskedDestination,
			ExpiresAt:   outcome.Challenge.ExpiresAt,
		})
	case domain.LoginStateAuthenticated:
		if outcome.Session == nil {
			c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "session unavailable"))
			return
		}
		c.JSON(http.StatusOK, newLoginResponse(outcome.State, outcome.Session))
	default:
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "unexpected login state"))
	}
}

// VerifyTwoFactor godoc
// @Summary Complete a two-factor login
// @Description Validates the challenge code and establishes the session on success.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body TwoFactorVerifyRequest true "Two-factor verification payload"
// @Success 200 {object} LoginResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/2fa/verify [post]
func (h *AuthHandler) verifyTwoFactor(c *gin.Context) {
	if h.auth == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "authentication service unavailable"))
		return
	}

	var req TwoFactorVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid verification payload"))
		return
	}

	session, err := h.auth.VerifyTwoFactor(c.Request.Context(),
		strings.TrimSpace(req.ChallengeID), strings.TrimSpace(req.Code),
		c.ClientIP(), c.GetHeader("User-Agent"))
	if err != nil {
		if respondRateLimited(c, err, "too many verification attempts") {
			return
		}
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidTwoFactorCode, Status: http.StatusUnauthorized, Message: "invalid or expired code"},
			{Err: usecase.ErrTooManyCodeAttempts, Status: http.StatusTooManyRequests, Message: "code attempt budget exhausted"},
			{Err: usecase.ErrAccountBlocked, Status: http.StatusUnauthorized, Message: "invalid or expired code"},
		}, http.StatusInternalServerError, "failed to verify code")
		return
	}

	c.JSON(http.StatusOK, newLoginResponse(domain.LoginStateAuthenticated, session))
}

// Logout godoc
// @Summary Logout the current session
// @Description Revokes the caller's active session.
// @Tags Authentication
// @Produce json
// @Success 204 {string} string ""
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/logout [post]
func (h *AuthHandler) logout(c *gin.Context) {
	sessionID, ok := middleware.GetAuthenticatedSessionID(c)
	if !ok || sessionID == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	if err := h.auth.Logout(c.Request.Context(), sessionID); err != nil {
		// Already revoked or gone counts as a successful logout.
		if errors.Is(err, usecase.ErrSessionNotFound) {
			c.Status(http.StatusNoContent)
			return
		}
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to revoke session"))
		return
	}

	c.Status(http.StatusNoContent)
}

// ListSessions godoc
// @Summary List active sessions for the current user
// @Tags Authentication
// @Produce json
// @Success 200 {object} SessionListResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/sessions [get]
func (h *AuthHandler) listSessions(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok || userID == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	sessions, err := h.auth.ListActiveSessions(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to list sessions"))
		return
	}

	currentID, _ := middleware.GetAuthenticatedSessionID(c)
	payloads := make([]SessionPayload, 0, len(sessions))
	for _, session := range sessions {
		payloads = append(payloads, newSessionPayload(session, currentID))
	}

	c.JSON(http.StatusOK, SessionListResponse{Sessions: payloads, Total: len(payloads)})
}

func newLoginResponse(state domain.LoginState, session *usecase.EstablishedSession) LoginResponse {
	return LoginResponse{
		State:     string(state),
		Token:     session.Token,
		TokenType: "Bearer",
		ExpiresAt: session.ExpiresAt,
		User:      newUserSummary(session.User),
	}
}

// respondRateLimited answers 429 with a Retry-After header when err is a
// usecase rate-limit rejection. Returns true when it handled the response.
func respondRateLimited(c *gin.Context, err error, message string) bool {
	var rateErr *usecase.RateLimitExceededError
	if !errors.As(err, &rateErr) {
		return false
	}

	retryAfter := int(rateErr.RetryAfter.Round(time.Second) / time.Second)
	if retryAfter > 0 {
		c.Header("Retry-After", strconv.Itoa(retryAfter))
	}
	c.JSON(http.StatusTooManyRequests, NewErrorResponse(c, message))
	return true
}
