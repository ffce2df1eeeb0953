package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/veluna/media-platform-auth/internal/core/domain"
	"github.com/veluna/media-platform-auth/internal/core/port"
	"github.com/veluna/media-platform-auth/internal/infra/config"
	"github.com/veluna/media-platform-auth/internal/infra/logger"
	"github.com/veluna/media-platform-auth/internal/infra/security"
	"github.com/veluna/media-platform-auth/internal/repository"
)

const (
	resetDeliveryEmail = "email"

	defaultValidateTimeout = 7 * time.Second
	defaultHistoryDepth    = 5

	passwordResetRateLimitScope = "password_reset"
	passwordChangeReason        = "password_change"
	passwordResetReason         = "password_reset"
)

var (
	// ErrPasswordResetUnavailable indicates the service is not properly configured.
	ErrPasswordResetUnavailable = errors.New("password reset service unavailable")
	// ErrResetTokenInvalidOrExpired is the uniform failure for confirm: the
	// caller cannot distinguish unknown, expired, superseded, and consumed
	// tokens.
	ErrResetTokenInvalidOrExpired = errors.New("reset token invalid or expired")
	// ErrCurrentPasswordInvalid indicates the supplied current password does not match.
	ErrCurrentPasswordInvalid = errors.New("current password invalid")
	// ErrUserNotFound indicates no account matches the identifier. Handlers
	// must not leak this to anonymous callers.
	ErrUserNotFound = errors.New("user not found")
	// ErrPasswordReused indicates the candidate matches the active password
	// or one of the recent historical hashes.
	ErrPasswordReused = errors.New("password was used recently")
)

// PolicyViolationError carries the full per-rule evaluation so same-session
// callers can render which rules failed.
type PolicyViolationError struct {
	Result domain.PolicyResult
}

func (e *PolicyViolationError) Error() string {
	return fmt.Sprintf("password policy violation: %s", strings.Join(e.Result.FailedRules(), ", "))
}

// PasswordResetService coordinates the credential recovery pipeline:
// request, token check, and confirm, plus the authenticated change path.
type PasswordResetService struct {
	cfg             *config.AppConfig
	users           port.UserRepository
	credentials     port.CredentialRepository
	recovery        *RecoveryTokenService
	sessions        port.SessionRepository
	rateLimits      port.RateLimitStore
	events          port.EventPublisher
	policy          port.PasswordPolicy
	logger          *zap.Logger
	now             func() time.Time
	validateTimeout time.Duration
	historyDepth    int
}

// ResetRequestInput encapsulates metadata for a password reset request.
type ResetRequestInput struct {
	Email     string
	IP        string
	UserAgent string
}

// ResetRequestResult describes the generated reset artifact. Token is the raw
// value bound for the delivery pipeline; only development surfaces may expose
// it to the caller.
type ResetRequestResult struct {
	UserID     string
	RequestID  string
	Contact    string
	Token      string
	ExpiresAt  time.Time
	Superseded int
}

// ResetConfirmInput carries the payload to finalize a password reset.
type ResetConfirmInput struct {
	Token        string
	NewPassword  string
	Confirmation string
	IP           string
	UserAgent    string
}

// ResetConfirmResult describes the outcome of a confirmed reset.
type ResetConfirmResult struct {
	UserID          string
	ChangedAt       time.Time
	SessionsRevoked int
}

// ChangePasswordInput captures an authenticated password change.
type ChangePasswordInput struct {
	UserID          string
	CurrentPassword string
	NewPassword     string
	Confirmation    string
	IP              string
	UserAgent       string
}

// NewPasswordResetService constructs a PasswordResetService.
func NewPasswordResetService(
	cfg *config.AppConfig,
	users port.UserRepository,
	credentials port.CredentialRepository,
	recovery *RecoveryTokenService,
	sessions port.SessionRepository,
	rateLimits port.RateLimitStore,
	events port.EventPublisher,
	policy port.PasswordPolicy,
	lg *zap.Logger,
) *PasswordResetService {
	if policy == nil {
		policy = security.NewPolicyEvaluator()
	}
	if lg == nil {
		lg = zap.NewNop()
	}

	s := &PasswordResetService{
		cfg:             cfg,
		users:           users,
		credentials:     credentials,
		recovery:        recovery,
		sessions:        sessions,
		rateLimits:      rateLimits,
		events:          events,
		policy:          policy,
		logger:          lg,
		now:             time.Now,
		validateTimeout: defaultValidateTimeout,
		historyDepth:    defaultHistoryDepth,
	}

	if cfg != nil {
		if cfg.Reset.ValidateTimeout > 0 {
			s.validateTimeout = cfg.Reset.ValidateTimeout
		}
		if cfg.Reset.HistoryDepth > 0 {
			s.historyDepth = cfg.Reset.HistoryDepth
		}
	}

	return s
}

// WithClock allows tests to override the clock used by the service.
func (s *PasswordResetService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
		if s.recovery != nil {
			s.recovery.WithClock(clock)
		}
	}
}

// WithValidateTimeout adjusts the bounded wait applied to token checks.
func (s *PasswordResetService) WithValidateTimeout(d time.Duration) {
	if d > 0 {
		s.validateTimeout = d
	}
}

// EvaluatePolicy scores a candidate password for the pre-check surface. The
// caller supplies whatever identity terms it holds; anonymous checks pass none.
func (s *PasswordResetService) EvaluatePolicy(password, confirmation string, contextTerms []string) domain.PolicyResult {
	return s.policy.Evaluate(password, confirmation, contextTerms)
}

// Request initiates a reset for the account matching the email. Unknown
// accounts surface ErrUserNotFound so the transport can respond identically
// to the success path; nothing is persisted or published for them.
func (s *PasswordResetService) Request(ctx context.Context, input ResetRequestInput) (*ResetRequestResult, error) {
	if s.users == nil || s.recovery == nil {
		return nil, ErrPasswordResetUnavailable
	}

	email := strings.TrimSpace(input.Email)
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}

	now := s.now().UTC()
	if err := checkRateLimit(ctx, s.rateLimits, s.logger, passwordResetRateLimitScope, email,
		s.resetRateLimit(), s.rateLimitWindow(), now); err != nil {
		return nil, err
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Info("reset requested for unknown email",
				zap.String("email", logger.MaskEmail(email)),
			)
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	requestID := uuid.NewString()
	metadata := map[string]any{
		"request_id": requestID,
		"delivery":   resetDeliveryEmail,
	}

	issued, err := s.recovery.Issue(ctx, user.ID, stringPtrOrNil(input.IP), stringPtrOrNil(input.UserAgent), metadata)
	if err != nil {
		return nil, err
	}

	result := &ResetRequestResult{
		UserID:     user.ID,
		RequestID:  requestID,
		Contact:    user.Email,
		Token:      issued.Raw,
		ExpiresAt:  issued.Token.ExpiresAt,
		Superseded: issued.Superseded,
	}

	s.publishResetRequestedEvent(ctx, user, result, input.IP, input.UserAgent)

	return result, nil
}

// CheckToken reports whether a raw token is currently valid without consuming
// it. The lookup is bounded: if the store does not answer within the
// configured timeout the token is reported invalid rather than blocking the
// caller.
func (s *PasswordResetService) CheckToken(ctx context.Context, raw string) (bool, error) {
	if s.recovery == nil {
		return false, ErrPasswordResetUnavailable
	}

	checkCtx, cancel := context.WithTimeout(ctx, s.validateTimeout)
	defer cancel()

	_, err := s.recovery.Validate(checkCtx, raw)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrRecoveryTokenInvalid),
		errors.Is(err, ErrRecoveryTokenExpired),
		errors.Is(err, ErrRecoveryTokenConsumed):
		return false, nil
	case errors.Is(err, context.DeadlineExceeded):
		s.logger.Warn("reset token check timed out", zap.Duration("timeout", s.validateTimeout))
		return false, nil
	default:
		return false, err
	}
}

// Confirm finalizes a reset: policy check, atomic consume, credential
// replacement, and global session revocation. Token failures collapse into
// ErrResetTokenInvalidOrExpired regardless of cause.
func (s *PasswordResetService) Confirm(ctx context.Context, input ResetConfirmInput) (*ResetConfirmResult, error) {
	if s.users == nil || s.credentials == nil || s.recovery == nil {
		return nil, ErrPasswordResetUnavailable
	}

	raw := strings.TrimSpace(input.Token)
	if raw == "" {
		return nil, ErrResetTokenInvalidOrExpired
	}

	flow := domain.ResetStateTokenIssued

	token, err := s.recovery.Validate(ctx, raw)
	if err != nil {
		return nil, s.collapseTokenError(err)
	}
	flow = s.advanceResetState(flow, domain.ResetStateValidated)

	user, err := s.users.GetByID(ctx, token.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrResetTokenInvalidOrExpired
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	normalized, err := s.screenNewPassword(ctx, *user, input.NewPassword, input.Confirmation)
	if err != nil {
		return nil, err
	}

	// Consume before the credential write: at-most-once beats a dangling
	// active token when the replace fails and the caller retries.
	if _, err := s.recovery.Consume(ctx, raw); err != nil {
		return nil, s.collapseTokenError(err)
	}

	outcome, err := s.applyNewPassword(ctx, *user, normalized, user.ID, passwordResetReason, map[string]any{
		"source":                  passwordResetReason,
		"password_reset_token_id": token.ID,
	})
	if err != nil {
		return nil, err
	}

	flow = s.advanceResetState(flow, domain.ResetStateConfirmed)
	s.logger.Info("password reset confirmed",
		zap.String("user_id", user.ID),
		zap.String("reset_state", string(flow)),
	)

	return &ResetConfirmResult{
		UserID:          user.ID,
		ChangedAt:       outcome.changedAt,
		SessionsRevoked: outcome.sessionsRevoked,
	}, nil
}

// advanceResetState steps a reset attempt through the flow. An illegal step
// is a programming error; it is logged and collapses the attempt to failed.
func (s *PasswordResetService) advanceResetState(cur, next domain.ResetState) domain.ResetState {
	if !cur.CanTransition(next) {
		s.logger.Error("illegal reset state transition",
			zap.String("from", string(cur)),
			zap.String("to", string(next)),
		)
		return domain.ResetStateFailed
	}
	return next
}

// ChangePassword updates an authenticated user's password after validating
// the current credential.
func (s *PasswordResetService) ChangePassword(ctx context.Context, input ChangePasswordInput) (*ResetConfirmResult, error) {
	if s.users == nil || s.credentials == nil {
		return nil, ErrPasswordResetUnavailable
	}

	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if strings.TrimSpace(input.CurrentPassword) == "" {
		return nil, ErrCurrentPasswordInvalid
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	cred, err := s.credentials.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrCurrentPasswordInvalid
		}
		return nil, fmt.Errorf("lookup credential: %w", err)
	}

	matches, err := security.VerifyPassword(input.CurrentPassword, cred.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify current password: %w", err)
	}
	if !matches {
		return nil, ErrCurrentPasswordInvalid
	}

	normalized, err := s.screenNewPassword(ctx, *user, input.NewPassword, input.Confirmation)
	if err != nil {
		return nil, err
	}

	outcome, err := s.applyNewPassword(ctx, *user, normalized, userID, passwordChangeReason, map[string]any{
		"source": passwordChangeReason,
	})
	if err != nil {
		return nil, err
	}

	return &ResetConfirmResult{
		UserID:          user.ID,
		ChangedAt:       outcome.changedAt,
		SessionsRevoked: outcome.sessionsRevoked,
	}, nil
}

type passwordChangeOutcome struct {
	changedAt       time.Time
	sessionsRevoked int
}

// screenNewPassword runs the full policy evaluation against the user's
// identity terms and returns the normalized candidate.
func (s *PasswordResetService) screenNewPassword(ctx context.Context, user domain.User, candidate, confirmation string) (string, error) {
	result := s.policy.Evaluate(candidate, confirmation, security.ContextTermsFor(user))
	if !result.Valid() {
		return "", &PolicyViolationError{Result: result}
	}

	normalized := security.NormalizePassword(candidate)

	if s.credentials != nil && s.historyDepth > 0 {
		cred, err := s.credentials.GetByUserID(ctx, user.ID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return "", fmt.Errorf("lookup credential: %w", err)
		}
		if cred != nil {
			if same, verr := security.VerifyPassword(normalized, cred.PasswordHash); verr != nil {
				return "", fmt.Errorf("compare active password: %w", verr)
			} else if same {
				return "", ErrPasswordReused
			}
		}

		history, err := s.credentials.ListHistory(ctx, user.ID, s.historyDepth)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return "", fmt.Errorf("list credential history: %w", err)
		}
		for _, entry := range history {
			if reused, verr := security.VerifyPassword(normalized, entry.PasswordHash); verr != nil {
				return "", fmt.Errorf("compare credential history: %w", verr)
			} else if reused {
				return "", ErrPasswordReused
			}
		}
	}

	return normalized, nil
}

func (s *PasswordResetService) applyNewPassword(ctx context.Context, user domain.User, normalized, changedBy, reason string, metadata map[string]any) (*passwordChangeOutcome, error) {
	hashed, err := security.HashPassword(normalized)
	if err != nil {
		return nil, fmt.Errorf("hash new password: %w", err)
	}

	changedAt := s.now().UTC()
	if err := s.credentials.Replace(ctx, user.ID, hashed, "argon2id", changedAt, s.historyDepth); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("replace credential: %w", err)
	}

	sessionsRevoked := 0
	if s.sessions != nil {
		revoked, err := s.sessions.RevokeAllForUser(ctx, user.ID, reason)
		if err != nil {
			s.logger.Warn("revoke sessions failed", zap.String("user_id", user.ID), zap.Error(err))
		} else {
			sessionsRevoked = revoked
		}
	}

	s.publishPasswordChangedEvent(ctx, user, changedBy, changedAt, sessionsRevoked, metadata)

	return &passwordChangeOutcome{
		changedAt:       changedAt,
		sessionsRevoked: sessionsRevoked,
	}, nil
}

func (s *PasswordResetService) collapseTokenError(err error) error {
	switch {
	case errors.Is(err, ErrRecoveryTokenInvalid),
		errors.Is(err, ErrRecoveryTokenExpired),
		errors.Is(err, ErrRecoveryTokenConsumed):
		return ErrResetTokenInvalidOrExpired
	default:
		return err
	}
}

func (s *PasswordResetService) resetRateLimit() int {
	if s.cfg == nil {
		return 0
	}
	return s.cfg.RateLimit.PasswordResetMaxAttempts
}

func (s *PasswordResetService) rateLimitWindow() time.Duration {
	if s.cfg == nil {
		return 0
	}
	return s.cfg.RateLimit.WindowDuration
}

func (s *PasswordResetService) publishResetRequestedEvent(ctx context.Context, user *domain.User, result *ResetRequestResult, ip, userAgent string) {
	if s.events == nil || user == nil || result == nil {
		return
	}

	metadata := map[string]any{
		"request_id": result.RequestID,
	}
	if ua := strings.TrimSpace(userAgent); ua != "" {
		metadata["user_agent"] = ua
	}

	event := domain.PasswordResetRequestedEvent{
		EventID:           uuid.NewString(),
		UserID:            user.ID,
		RequestID:         result.RequestID,
		RequestedAt:       s.now().UTC(),
		Destination:       result.Contact,
		MaskedDestination: logger.MaskEmail(result.Contact),
		Token:             result.Token,
		IPAddress:         stringPtrOrNil(ip),
		ExpiresAt:         result.ExpiresAt,
		Metadata:          metadata,
	}

	if err := s.events.PublishPasswordResetRequested(ctx, event); err != nil {
		s.logger.Warn("publish password reset requested failed", zap.String("user_id", user.ID), zap.Error(err))
	}
}

func (s *PasswordResetService) publishPasswordChangedEvent(ctx context.Context, user domain.User, changedBy string, changedAt time.Time, sessionsRevoked int, metadata map[string]any) {
	if s.events == nil {
		return
	}

	event := domain.PasswordChangedEvent{
		EventID:         uuid.NewString(),
		UserID:          user.ID,
		ChangedAt:       changedAt,
		ChangedBy:       strings.TrimSpace(changedBy),
		SessionsRevoked: sessionsRevoked,
		Metadata:        metadataCopy(metadata),
	}

	if err := s.events.PublishPasswordChanged(ctx, event); err != nil {
		s.logger.Warn("publish password changed event failed", zap.String("user_id", user.ID), zap.Error(err))
	}
}
