package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	uuid "github.com/google/uuid"

	"github.com/veluna/media-platform-auth/internal/transport/http/middleware"
	"github.com/veluna/media-platform-auth/internal/usecase"
)

const (
	resetAcceptedMessage = "If the account exists, instructions have been sent"

	// resetFailedMessage covers policy, reuse, and token failures alike so a
	// network observer cannot tell which check rejected the confirm. Rule
	// detail is available pre-submission from the policy check endpoint.
	resetFailedMessage = "unable to reset password"
)

// PolicyViolationResponse reports a rejected password with per-rule detail.
type PolicyViolationResponse struct {
	Error       string   `json:"error"`
	FailedRules []string `json:"failed_rules"`
	TraceID     string   `json:"trace_id,omitempty"`
}

// PasswordHandler exposes endpoints for password management and recovery.
type PasswordHandler struct {
	reset *usecase.PasswordResetService
	auth  *usecase.AuthService
	isDev bool
}

func NewPasswordHandler(reset *usecase.PasswordResetService, auth *usecase.AuthService, isDev bool) *PasswordHandler {
	return &PasswordHandler{
		reset: reset,
		auth:  auth,
		isDev: isDev,
	}
}

// RegisterRoutes binds password routes. The change endpoint requires a valid
// session; everything under /reset is anonymous.
func (h *PasswordHandler) RegisterRoutes(r *gin.RouterGroup, resetMiddlewares ...gin.HandlerFunc) {
	r.POST("/change", middleware.RequireAuth(h.auth), h.ChangePassword)
	r.POST("/policy/check", h.CheckPolicy)

	resetGroup := r.Group("/reset")
	if len(resetMiddlewares) > 0 {
		resetGroup.Use(resetMiddlewares...)
	}
	resetGroup.POST("/request", h.RequestReset)
	resetGroup.POST("/check", h.CheckResetToken)
	resetGroup.POST("/confirm", h.ConfirmReset)
}

// CheckPolicy godoc
// @Summary Evaluate a candidate password against the policy
// @Description Returns every rule result independently so clients can render partial progress.
// @Tags Password
// @Accept json
// @Produce json
// @Param request body PolicyCheckRequest true "Policy check payload"
// @Success 200 {object} PolicyCheckResponse
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/password/policy/check [post]
func (h *PasswordHandler) CheckPolicy(c *gin.Context) {
	if h.reset == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "password service unavailable"))
		return
	}

	var req PolicyCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid policy check payload"))
		return
	}

	confirmation := req.Confirmation
	if confirmation == "" {
		confirmation = req.Password
	}

	result := h.reset.EvaluatePolicy(req.Password, confirmation, req.ContextTerms)
	c.JSON(http.StatusOK, PolicyCheckResponse{
		Valid:    result.Valid(),
		Rules:    result,
		Failed:   result.FailedRules(),
		Strength: result.Strength,
	})
}

// ChangePassword godoc
// @Summary Change the password for the authenticated user
// @Description Verifies the current password, applies the policy, and rotates the credential.
// @Tags Password
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer session token"
// @Param request body PasswordChangeRequest true "Password change request"
// @Success 200 {object} PasswordChangeResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/password/change [post]
func (h *PasswordHandler) ChangePassword(c *gin.Context) {
	if h.reset == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "password service unavailable"))
		return
	}

	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok || userID == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid authentication"))
		return
	}

	var req PasswordChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid change password payload"))
		return
	}

	result, err := h.reset.ChangePassword(c.Request.Context(), usecase.ChangePasswordInput{
		UserID:          userID,
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
		Confirmation:    req.Confirmation,
		IP:              c.ClientIP(),
		UserAgent:       c.GetHeader("User-Agent"),
	})
	if err != nil {
		if respondPolicyViolation(c, err) {
			return
		}
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrCurrentPasswordInvalid, Status: http.StatusUnauthorized, Message: "current password is incorrect"},
			{Err: usecase.ErrPasswordReused, Status: http.StatusBadRequest, Message: "password was used recently"},
			{Err: usecase.ErrUserNotFound, Status: http.StatusNotFound, Message: "user not found"},
			{Err: usecase.ErrPasswordResetUnavailable, Status: http.StatusServiceUnavailable, Message: "password service unavailable"},
		}, http.StatusInternalServerError, "failed to change password")
		return
	}

	c.JSON(http.StatusOK, PasswordChangeResponse{
		Message:         "Password changed successfully",
		ChangedAt:       result.ChangedAt,
		RevokedSessions: result.SessionsRevoked,
	})
}

// RequestReset godoc
// @Summary Initiate a password reset
// @Description Starts the recovery flow and always returns an accepted response to avoid account enumeration.
// @Tags Password
// @Accept json
// @Produce json
// @Param request body PasswordResetRequest true "Password reset request"
// @Success 202 {object} PasswordResetResponse
// @Failure 400 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/password/reset/request [post]
func (h *PasswordHandler) RequestReset(c *gin.Context) {
	if h.reset == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "password reset unavailable"))
		return
	}

	var req PasswordResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid password reset request"))
		return
	}

	result, err := h.reset.Request(c.Request.Context(), usecase.ResetRequestInput{
		Email:     strings.TrimSpace(req.Email),
		IP:        c.ClientIP(),
		UserAgent: c.GetHeader("User-Agent"),
	})
	if err != nil {
		// Unknown accounts get the same accepted response as known ones.
		if errors.Is(err, usecase.ErrUserNotFound) {
			c.JSON(http.StatusAccepted, PasswordResetResponse{
				Message:   resetAcceptedMessage,
				RequestID: uuid.NewString(),
			})
			return
		}

		if respondRateLimited(c, err, "too many password reset requests") {
			return
		}

		if errors.Is(err, usecase.ErrPasswordResetUnavailable) {
			c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "password reset unavailable"))
			return
		}

		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to initiate password reset"))
		return
	}

	// Byte-for-byte the same body as the unknown-email branch: destination
	// and expiry travel on the event bus only, so the response cannot be
	// used to probe account existence.
	response := PasswordResetResponse{
		Message:   resetAcceptedMessage,
		RequestID: result.RequestID,
	}

	// Raw tokens leave the service only via the event bus; dev mode is the
	// single exception so the flow can be exercised without a mail worker.
	if h.isDev {
		if token := strings.TrimSpace(result.Token); token != "" {
			response.DevToken = &token
		}
	}

	c.JSON(http.StatusAccepted, response)
}

// CheckResetToken godoc
// @Summary Check whether a reset token is currently redeemable
// @Description Validates without consuming. The check is bounded; on backend delay the token reports invalid.
// @Tags Password
// @Accept json
// @Produce json
// @Param request body ResetTokenCheckRequest true "Token check payload"
// @Success 200 {object} ResetTokenCheckResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/password/reset/check [post]
func (h *PasswordHandler) CheckResetToken(c *gin.Context) {
	if h.reset == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "password reset unavailable"))
		return
	}

	var req ResetTokenCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid token check payload"))
		return
	}

	valid, err := h.reset.CheckToken(c.Request.Context(), strings.TrimSpace(req.Token))
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to check token"))
		return
	}

	c.JSON(http.StatusOK, ResetTokenCheckResponse{Valid: valid})
}

// ConfirmReset godoc
// @Summary Complete a password reset
// @Description Consumes the reset token and rotates the credential.
// @Tags Password
// @Accept json
// @Produce json
// @Param request body PasswordResetConfirmRequest true "Password reset confirm request"
// @Success 200 {object} PasswordResetConfirmResponse
// @Failure 400 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/password/reset/confirm [post]
func (h *PasswordHandler) ConfirmReset(c *gin.Context) {
	if h.reset == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "password reset unavailable"))
		return
	}

	var req PasswordResetConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid confirm reset request"))
		return
	}

	result, err := h.reset.Confirm(c.Request.Context(), usecase.ResetConfirmInput{
		Token:        strings.TrimSpace(req.Token),
		NewPassword:  req.NewPassword,
		Confirmation: req.Confirmation,
		IP:           c.ClientIP(),
		UserAgent:    c.GetHeader("User-Agent"),
	})
	if err != nil {
		var violation *usecase.PolicyViolationError
		if errors.As(err, &violation) {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, resetFailedMessage))
			return
		}
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrResetTokenInvalidOrExpired, Status: http.StatusBadRequest, Message: resetFailedMessage},
			{Err: usecase.ErrPasswordReused, Status: http.StatusBadRequest, Message: resetFailedMessage},
			{Err: usecase.ErrPasswordResetUnavailable, Status: http.StatusServiceUnavailable, Message: "password reset unavailable"},
		}, http.StatusInternalServerError, "failed to confirm password reset")
		return
	}

	c.JSON(http.StatusOK, PasswordResetConfirmResponse{
		Message:         "Password reset successful",
		UserID:          result.UserID,
		ChangedAt:       result.ChangedAt,
		RevokedSessions: result.SessionsRevoked,
	})
}

// respondPolicyViolation answers 400 with per-rule detail when err carries a
// policy evaluation. Returns true when it handled the response.
func respondPolicyViolation(c *gin.Context, err error) bool {
	var violation *usecase.PolicyViolationError
	if !errors.As(err, &violation) {
		return false
	}

	c.JSON(http.StatusBadRequest, PolicyViolationResponse{
		Error:       "password does not meet requirements",
		FailedRules: violation.Result.FailedRules(),
		TraceID:     middleware.GetTraceID(c),
	})
	return true
}
