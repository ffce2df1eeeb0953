package usecase

import (
	"context"
	"crypto/subtle"
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
	loginRateLimitScope     = "login"
	twoFactorRateLimitScope = "two_factor"

	defaultChallengeTTL  = 5 * time.Minute
	defaultCodeLength    = 6
	defaultCodeAttempts  = 5
	logoutReason      = "logout"
	defaultSessionTTL = 12 * time.Hour
)

var (
	// ErrInvalidCredentials indicates the provided email or password are
	// incorrect. Unknown accounts and wrong passwords are indistinguishable.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountBlocked indicates the password verified but the account is
	// administratively blocked.
	ErrAccountBlocked = errors.New("account blocked")
	// ErrCredentialExpired indicates the password verified but is past its
	// expiry and must be rotated before a session can be established.
	ErrCredentialExpired = errors.New("credential expired")
	// ErrInvalidTwoFactorCode indicates the challenge is unknown, expired, or
	// the code does not match.
	ErrInvalidTwoFactorCode = errors.New("invalid two-factor code")
	// ErrTooManyCodeAttempts indicates the challenge burned its attempt
	// budget and was discarded.
	ErrTooManyCodeAttempts = errors.New("too many code attempts")
	// ErrSessionNotFound indicates no session matches the identifier.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionRevoked indicates the session was revoked ahead of validation.
	ErrSessionRevoked = errors.New("session revoked")
	// ErrSessionExpired indicates the session expired before validation.
	ErrSessionExpired = errors.New("session expired")
)

// EstablishedSession is the artifact of a fully authenticated login.
type EstablishedSession struct {
	SessionID string
	Token     string
	User      domain.User
	ExpiresAt time.Time
}

// IssuedChallenge describes a pending two-factor gate. The code travels to
// the delivery pipeline, never to the login caller.
type IssuedChallenge struct {
	ChallengeID       string
	MaskedDestination string
	ExpiresAt         time.Time
}

// LoginOutcome is the result of a login attempt that did not fail: either a
// session (State authenticated) or a pending challenge (State
// pending_two_factor).
type LoginOutcome struct {
	State     domain.LoginState
	Session   *EstablishedSession
	Challenge *IssuedChallenge
}

// LoginInput carries the credentials and request metadata for a login attempt.
type LoginInput struct {
	Email     string
	Password  string
	IP        string
	UserAgent string
}

// AuthService drives the login flow: credential verification, the optional
// two-factor gate, session establishment, and session validation.
type AuthService struct {
	cfg          *config.AppConfig
	users        port.UserRepository
	credentials  port.CredentialRepository
	sessions     port.SessionRepository
	challenges   port.ChallengeStore
	contextStore port.SessionContextStore
	rateLimits   port.RateLimitStore
	events       port.EventPublisher
	signer       *security.SessionTokenSigner
	logger       *zap.Logger
	now          func() time.Time
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(
	cfg *config.AppConfig,
	users port.UserRepository,
	credentials port.CredentialRepository,
	sessions port.SessionRepository,
	challenges port.ChallengeStore,
	contextStore port.SessionContextStore,
	rateLimits port.RateLimitStore,
	events port.EventPublisher,
	signer *security.SessionTokenSigner,
	lg *zap.Logger,
) *AuthService {
	if lg == nil {
		lg = zap.NewNop()
	}

	return &AuthService{
		cfg:          cfg,
		users:        users,
		credentials:  credentials,
		sessions:     sessions,
		challenges:   challenges,
		contextStore: contextStore,
		rateLimits:   rateLimits,
		events:       events,
		signer:       signer,
		logger:       lg,
		now:          time.Now,
	}
}

// WithClock allows tests to override the clock used by the service.
func (s *AuthService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Login verifies credentials and either establishes a session or issues a
// two-factor challenge. The blocked check runs after password verification so
// response timing does not separate wrong-password from blocked-account.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*LoginOutcome, error) {
	email := strings.TrimSpace(input.Email)
	if email == "" || input.Password == "" {
		return nil, ErrInvalidCredentials
	}

	now := s.now().UTC()
	if err := checkRateLimit(ctx, s.rateLimits, s.logger, loginRateLimitScope, email,
		s.loginRateLimit(), s.rateLimitWindow(), now); err != nil {
		return nil, err
	}

	state := s.advanceLoginState(domain.LoginStateIdle, domain.LoginStateAuthenticating)

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	cred, err := s.credentials.GetByUserID(ctx, user.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup credential: %w", err)
	}

	ok, err := security.VerifyPassword(input.Password, cred.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		s.logger.Info("login failed",
			zap.String("email", logger.MaskEmail(email)),
			zap.String("ip", logger.MaskIP(input.IP)),
		)
		return nil, ErrInvalidCredentials
	}

	if user.Blocked {
		state = s.advanceLoginState(state, domain.LoginStateBlocked)
		s.logger.Info("login denied",
			zap.String("login_state", string(state)),
			zap.String("email", logger.MaskEmail(email)),
		)
		return nil, ErrAccountBlocked
	}

	if cred.IsExpired(now) {
		return nil, ErrCredentialExpired
	}

	if user.TwoFactorEnabled {
		challenge, err := s.issueChallenge(ctx, *user, now)
		if err != nil {
			return nil, err
		}
		return &LoginOutcome{
			State:     s.advanceLoginState(state, domain.LoginStatePendingTwoFactor),
			Challenge: challenge,
		}, nil
	}

	session, err := s.establishSession(ctx, *user, input.IP, input.UserAgent)
	if err != nil {
		return nil, err
	}

	return &LoginOutcome{
		State:   s.advanceLoginState(state, domain.LoginStateAuthenticated),
		Session: session,
	}, nil
}

// advanceLoginState steps the attempt through the login flow. An illegal step
// is a programming error; it is logged and collapses the attempt to failed.
func (s *AuthService) advanceLoginState(cur, next domain.LoginState) domain.LoginState {
	if !cur.CanTransition(next) {
		s.logger.Error("illegal login state transition",
			zap.String("from", string(cur)),
			zap.String("to", string(next)),
		)
		return domain.LoginStateFailed
	}
	return next
}

// VerifyTwoFactor resolves a pending challenge. A correct code within the
// attempt budget establishes the session; the challenge is single-use either
// way once resolved or exhausted.
func (s *AuthService) VerifyTwoFactor(ctx context.Context, challengeID, code, ip, userAgent string) (*EstablishedSession, error) {
	challengeID = strings.TrimSpace(challengeID)
	code = strings.TrimSpace(code)
	if challengeID == "" || code == "" {
		return nil, ErrInvalidTwoFactorCode
	}

	now := s.now().UTC()
	if err := checkRateLimit(ctx, s.rateLimits, s.logger, twoFactorRateLimitScope, challengeID,
		s.twoFactorRateLimit(), s.rateLimitWindow(), now); err != nil {
		return nil, err
	}

	challenge, err := s.challenges.Fetch(ctx, challengeID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidTwoFactorCode
		}
		return nil, fmt.Errorf("fetch challenge: %w", err)
	}

	if challenge.IsExpired(now) {
		s.discardChallenge(ctx, challengeID)
		return nil, ErrInvalidTwoFactorCode
	}

	maxAttempts := s.maxCodeAttempts()
	if challenge.Attempts >= maxAttempts {
		s.discardChallenge(ctx, challengeID)
		return nil, ErrTooManyCodeAttempts
	}

	if subtle.ConstantTimeCompare([]byte(code), []byte(challenge.Code)) != 1 {
		attempts, incErr := s.challenges.IncrementAttempts(ctx, challengeID)
		if incErr != nil && !errors.Is(incErr, repository.ErrNotFound) {
			s.logger.Warn("increment challenge attempts failed", zap.Error(incErr))
		}
		if attempts >= maxAttempts {
			s.discardChallenge(ctx, challengeID)
			return nil, ErrTooManyCodeAttempts
		}
		return nil, ErrInvalidTwoFactorCode
	}

	user, err := s.users.GetByID(ctx, challenge.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidTwoFactorCode
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if user.Blocked {
		s.discardChallenge(ctx, challengeID)
		return nil, ErrAccountBlocked
	}

	s.discardChallenge(ctx, challengeID)

	return s.establishSession(ctx, *user, ip, userAgent)
}

// Logout revokes the session and drops its context snapshot.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return ErrSessionNotFound
	}

	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("lookup session: %w", err)
	}

	if err := s.sessions.Revoke(ctx, sessionID, logoutReason); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("revoke session: %w", err)
	}

	if s.contextStore != nil {
		if err := s.contextStore.Delete(ctx, sessionID); err != nil && !errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("delete session context failed", zap.String("session_id", sessionID), zap.Error(err))
		}
	}

	s.publishSessionRevoked(ctx, session.UserID, sessionID, logoutReason)

	return nil
}

// ValidateSession verifies a raw session token and resolves the persisted
// session it names.
func (s *AuthService) ValidateSession(ctx context.Context, rawToken string) (*domain.Session, *security.SessionClaims, error) {
	if s.signer == nil {
		return nil, nil, fmt.Errorf("session signer not configured")
	}

	claims, err := s.signer.Verify(rawToken)
	if err != nil {
		if errors.Is(err, security.ErrTokenExpired) {
			return nil, nil, ErrSessionExpired
		}
		return nil, nil, ErrSessionNotFound
	}

	session, err := s.sessions.GetByID(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrSessionNotFound
		}
		return nil, nil, fmt.Errorf("lookup session: %w", err)
	}

	now := s.now().UTC()
	if session.RevokedAt != nil {
		return nil, nil, ErrSessionRevoked
	}
	if !session.ExpiresAt.After(now) {
		return nil, nil, ErrSessionExpired
	}
	if security.HashToken(rawToken) != session.TokenHash {
		return nil, nil, ErrSessionNotFound
	}

	return session, claims, nil
}

// ListActiveSessions returns the caller's unrevoked, unexpired sessions.
func (s *AuthService) ListActiveSessions(ctx context.Context, userID string) ([]domain.Session, error) {
	return s.sessions.ListActiveByUser(ctx, userID)
}

func (s *AuthService) issueChallenge(ctx context.Context, user domain.User, now time.Time) (*IssuedChallenge, error) {
	code, err := security.GenerateNumericCode(s.codeLength())
	if err != nil {
		return nil, fmt.Errorf("generate challenge code: %w", err)
	}

	ttl := s.challengeTTL()
	challenge := domain.TwoFactorChallenge{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Code:      code,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	if err := s.challenges.Store(ctx, challenge, ttl); err != nil {
		return nil, fmt.Errorf("store challenge: %w", err)
	}

	masked := logger.MaskEmail(user.Email)

	if s.events != nil {
		event := domain.TwoFactorChallengedEvent{
			EventID:           uuid.NewString(),
			UserID:            user.ID,
			ChallengeID:       challenge.ID,
			Destination:       user.Email,
			MaskedDestination: masked,
			Code:              code,
			IssuedAt:          now,
			ExpiresAt:         challenge.ExpiresAt,
		}
		if err := s.events.PublishTwoFactorChallenged(ctx, event); err != nil {
			s.logger.Warn("publish two-factor challenge failed", zap.String("user_id", user.ID), zap.Error(err))
		}
	}

	return &IssuedChallenge{
		ChallengeID:       challenge.ID,
		MaskedDestination: masked,
		ExpiresAt:         challenge.ExpiresAt,
	}, nil
}

// establishSession issues the signed token, persists the session, and writes
// the context snapshot. The snapshot write is fire-and-forget: its failure is
// logged but never rolls back an already authenticated login.
func (s *AuthService) establishSession(ctx context.Context, user domain.User, ip, userAgent string) (*EstablishedSession, error) {
	if s.signer == nil {
		return nil, fmt.Errorf("session signer not configured")
	}

	now := s.now().UTC()
	sessionID := uuid.New()
	userID, err := uuid.Parse(user.ID)
	if err != nil {
		return nil, fmt.Errorf("parse user id: %w", err)
	}

	rawToken, err := s.signer.Sign(userID, sessionID, string(user.Role), now)
	if err != nil {
		return nil, err
	}

	expiresAt := now.Add(s.signer.TTL())
	session := domain.Session{
		ID:        sessionID.String(),
		UserID:    user.ID,
		TokenHash: security.HashToken(rawToken),
		IP:        stringPtrOrNil(ip),
		UserAgent: stringPtrOrNil(userAgent),
		CreatedAt: now,
		LastSeen:  now,
		ExpiresAt: expiresAt,
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.logger.Warn("update last login failed", zap.String("user_id", user.ID), zap.Error(err))
	}

	if s.contextStore != nil {
		snapshot := domain.SessionContext{
			SessionID: session.ID,
			Email:     user.Email,
			Role:      user.Role,
			Token:     rawToken,
			User:      user,
		}
		if err := s.contextStore.Put(ctx, snapshot, s.contextTTL()); err != nil {
			s.logger.Warn("session context write failed",
				zap.String("session_id", session.ID),
				zap.Error(err),
			)
		}
	}

	s.publishLoginSucceeded(ctx, user, session.ID, now, ip)

	user.LastLogin = &now

	return &EstablishedSession{
		SessionID: session.ID,
		Token:     rawToken,
		User:      user,
		ExpiresAt: expiresAt,
	}, nil
}

func (s *AuthService) discardChallenge(ctx context.Context, challengeID string) {
	if err := s.challenges.Delete(ctx, challengeID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.logger.Warn("delete challenge failed", zap.String("challenge_id", challengeID), zap.Error(err))
	}
}

func (s *AuthService) publishLoginSucceeded(ctx context.Context, user domain.User, sessionID string, at time.Time, ip string) {
	if s.events == nil {
		return
	}

	event := domain.LoginSucceededEvent{
		EventID:   uuid.NewString(),
		UserID:    user.ID,
		SessionID: sessionID,
		Role:      user.Role,
		LoginAt:   at,
		IPAddress: stringPtrOrNil(ip),
	}

	if err := s.events.PublishLoginSucceeded(ctx, event); err != nil {
		s.logger.Warn("publish login succeeded failed", zap.String("user_id", user.ID), zap.Error(err))
	}
}

func (s *AuthService) publishSessionRevoked(ctx context.Context, userID, sessionID, reason string) {
	if s.events == nil {
		return
	}

	event := domain.SessionRevokedEvent{
		EventID:   uuid.NewString(),
		SessionID: sessionID,
		UserID:    userID,
		RevokedAt: s.now().UTC(),
		RevokedBy: userID,
		Reason:    reason,
	}

	if err := s.events.PublishSessionRevoked(ctx, event); err != nil {
		s.logger.Warn("publish session revoked failed", zap.String("session_id", sessionID), zap.Error(err))
	}
}

func (s *AuthService) loginRateLimit() int {
	if s.cfg == nil {
		return 0
	}
	return s.cfg.RateLimit.LoginMaxAttempts
}

func (s *AuthService) twoFactorRateLimit() int {
	if s.cfg == nil {
		return 0
	}
	return s.cfg.RateLimit.TwoFactorMaxAttempts
}

func (s *AuthService) rateLimitWindow() time.Duration {
	if s.cfg == nil {
		return 0
	}
	return s.cfg.RateLimit.WindowDuration
}

func (s *AuthService) codeLength() int {
	if s.cfg != nil && s.cfg.TwoFactor.CodeLength > 0 {
		return s.cfg.TwoFactor.CodeLength
	}
	return defaultCodeLength
}

func (s *AuthService) challengeTTL() time.Duration {
	if s.cfg != nil && s.cfg.TwoFactor.ChallengeTTL > 0 {
		return s.cfg.TwoFactor.ChallengeTTL
	}
	return defaultChallengeTTL
}

func (s *AuthService) maxCodeAttempts() int {
	if s.cfg != nil && s.cfg.TwoFactor.MaxAttempts > 0 {
		return s.cfg.TwoFactor.MaxAttempts
	}
	return defaultCodeAttempts
}

func (s *AuthService) contextTTL() time.Duration {
	if s.cfg != nil && s.cfg.Session.ContextTTL > 0 {
		return s.cfg.Session.ContextTTL
	}
	if s.signer != nil {
		return s.signer.TTL()
	}
	return defaultSessionTTL
}
