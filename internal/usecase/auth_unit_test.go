package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/veluna/media-platform-auth/internal/core/domain"
	"github.com/veluna/media-platform-auth/internal/infra/config"
	"github.com/veluna/media-platform-auth/internal/infra/security"
	"github.com/veluna/media-platform-auth/internal/repository"
)

const testUserID = "9b1deb4d-3b7d-4bad-9bdd-2b0d7b3dcb6d"

type authUserRepoMock struct {
	byEmail     map[string]domain.User
	byID        map[string]domain.User
	lastLoginID string
}

func (m *authUserRepoMock) GetByID(_ context.Context, id string) (*domain.User, error) {
	if user, ok := m.byID[id]; ok {
		u := user
		return &u, nil
	}
	return nil, repository.ErrNotFound
}

func (m *authUserRepoMock) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	if user, ok := m.byEmail[email]; ok {
		u := user
		return &u, nil
	}
	return nil, repository.ErrNotFound
}

func (m *authUserRepoMock) UpdateLastLogin(_ context.Context, id string, _ time.Time) error {
	m.lastLoginID = id
	return nil
}

type authCredentialRepoMock struct {
	byUserID map[string]domain.Credential
	history  map[string][]domain.CredentialHistory
}

func (m *authCredentialRepoMock) GetByUserID(_ context.Context, userID string) (*domain.Credential, error) {
	if cred, ok := m.byUserID[userID]; ok {
		c := cred
		return &c, nil
	}
	return nil, repository.ErrNotFound
}

func (m *authCredentialRepoMock) Replace(_ context.Context, userID, newHash, algo string, changedAt time.Time, historyDepth int) error {
	cred, ok := m.byUserID[userID]
	if !ok {
		return repository.ErrNotFound
	}
	if m.history == nil {
		m.history = make(map[string][]domain.CredentialHistory)
	}
	m.history[userID] = append([]domain.CredentialHistory{{
		UserID:       userID,
		PasswordHash: cred.PasswordHash,
		SetAt:        cred.UpdatedAt,
	}}, m.history[userID]...)
	if historyDepth > 0 && len(m.history[userID]) > historyDepth {
		m.history[userID] = m.history[userID][:historyDepth]
	}
	cred.PasswordHash = newHash
	cred.PasswordAlgo = algo
	cred.ExpiresAt = nil
	cred.UpdatedAt = changedAt
	m.byUserID[userID] = cred
	return nil
}

func (m *authCredentialRepoMock) ListHistory(_ context.Context, userID string, limit int) ([]domain.CredentialHistory, error) {
	entries := m.history[userID]
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	out := make([]domain.CredentialHistory, len(entries))
	copy(out, entries)
	return out, nil
}

type authSessionRepoMock struct {
	created  []domain.Session
	revoked  map[string]string
	sessions map[string]domain.Session
}

func newAuthSessionRepoMock() *authSessionRepoMock {
	return &authSessionRepoMock{
		revoked:  make(map[string]string),
		sessions: make(map[string]domain.Session),
	}
}

func (m *authSessionRepoMock) Create(_ context.Context, session domain.Session) error {
	m.created = append(m.created, session)
	m.sessions[session.ID] = session
	return nil
}

func (m *authSessionRepoMock) GetByID(_ context.Context, sessionID string) (*domain.Session, error) {
	if session, ok := m.sessions[sessionID]; ok {
		s := session
		return &s, nil
	}
	return nil, repository.ErrNotFound
}

func (m *authSessionRepoMock) Revoke(_ context.Context, sessionID string, reason string) error {
	if _, ok := m.sessions[sessionID]; !ok {
		return repository.ErrNotFound
	}
	m.revoked[sessionID] = reason
	return nil
}

func (m *authSessionRepoMock) RevokeAllForUser(_ context.Context, userID string, reason string) (int, error) {
	count := 0
	for id, session := range m.sessions {
		if session.UserID == userID {
			if _, done := m.revoked[id]; !done {
				m.revoked[id] = reason
				count++
			}
		}
	}
	return count, nil
}

func (m *authSessionRepoMock) ListActiveByUser(context.Context, string) ([]domain.Session, error) {
	return nil, nil
}

type challengeStoreMock struct {
	challenges map[string]domain.TwoFactorChallenge
	deleted    []string
}

func newChallengeStoreMock() *challengeStoreMock {
	return &challengeStoreMock{challenges: make(map[string]domain.TwoFactorChallenge)}
}

func (m *challengeStoreMock) Store(_ context.Context, challenge domain.TwoFactorChallenge, _ time.Duration) error {
	m.challenges[challenge.ID] = challenge
	return nil
}

func (m *challengeStoreMock) Fetch(_ context.Context, challengeID string) (*domain.TwoFactorChallenge, error) {
	if challenge, ok := m.challenges[challengeID]; ok {
		c := challenge
		return &c, nil
	}
	return nil, repository.ErrNotFound
}

func (m *challengeStoreMock) IncrementAttempts(_ context.Context, challengeID string) (int, error) {
	challenge, ok := m.challenges[challengeID]
	if !ok {
		return 0, repository.ErrNotFound
	}
	challenge.Attempts++
	m.challenges[challengeID] = challenge
	return challenge.Attempts, nil
}

func (m *challengeStoreMock) Delete(_ context.Context, challengeID string) error {
	if _, ok := m.challenges[challengeID]; !ok {
		return repository.ErrNotFound
	}
	delete(m.challenges, challengeID)
	m.deleted = append(m.deleted, challengeID)
	return nil
}

type contextStoreMock struct {
	putErr   error
	snapshot *domain.SessionContext
	deleted  []string
}

func (m *contextStoreMock) Put(_ context.Context, sc domain.SessionContext, _ time.Duration) error {
	if m.putErr != nil {
		return m.putErr
	}
	copy := sc
	m.snapshot = &copy
	return nil
}

func (m *contextStoreMock) Get(_ context.Context, sessionID string) (*domain.SessionContext, error) {
	if m.snapshot != nil && m.snapshot.SessionID == sessionID {
		copy := *m.snapshot
		return &copy, nil
	}
	return nil, repository.ErrNotFound
}

func (m *contextStoreMock) Delete(_ context.Context, sessionID string) error {
	m.deleted = append(m.deleted, sessionID)
	return nil
}

type eventSinkMock struct {
	loginSucceeded  []domain.LoginSucceededEvent
	challenged      []domain.TwoFactorChallengedEvent
	passwordChanged []domain.PasswordChangedEvent
	resetRequested  []domain.PasswordResetRequestedEvent
	sessionRevoked  []domain.SessionRevokedEvent
}

func (m *eventSinkMock) PublishLoginSucceeded(_ context.Context, event domain.LoginSucceededEvent) error {
	m.loginSucceeded = append(m.loginSucceeded, event)
	return nil
}

func (m *eventSinkMock) PublishTwoFactorChallenged(_ context.Context, event domain.TwoFactorChallengedEvent) error {
	m.challenged = append(m.challenged, event)
	return nil
}

func (m *eventSinkMock) PublishPasswordChanged(_ context.Context, event domain.PasswordChangedEvent) error {
	m.passwordChanged = append(m.passwordChanged, event)
	return nil
}

func (m *eventSinkMock) PublishPasswordResetRequested(_ context.Context, event domain.PasswordResetRequestedEvent) error {
	m.resetRequested = append(m.resetRequested, event)
	return nil
}

func (m *eventSinkMock) PublishSessionRevoked(_ context.Context, event domain.SessionRevokedEvent) error {
	m.sessionRevoked = append(m.sessionRevoked, event)
	return nil
}

type authFixture struct {
	svc        *AuthService
	users      *authUserRepoMock
	sessions   *authSessionRepoMock
	challenges *challengeStoreMock
	contexts   *contextStoreMock
	events     *eventSinkMock
}

func newAuthFixture(t *testing.T, user domain.User, password string) *authFixture {
	t.Helper()

	hash, err := security.HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	users := &authUserRepoMock{
		byEmail: map[string]domain.User{user.Email: user},
		byID:    map[string]domain.User{user.ID: user},
	}
	credentials := &authCredentialRepoMock{
		byUserID: map[string]domain.Credential{
			user.ID: {
				ID:           "cred-1",
				UserID:       user.ID,
				PasswordHash: hash,
				PasswordAlgo: "argon2id",
				UpdatedAt:    time.Now().UTC(),
			},
		},
	}

	sessions := newAuthSessionRepoMock()
	challenges := newChallengeStoreMock()
	contexts := &contextStoreMock{}
	events := &eventSinkMock{}

	signer, err := security.NewSessionTokenSigner("unit-test-secret", "media-platform-auth", time.Hour)
	if err != nil {
		t.Fatalf("build signer: %v", err)
	}

	svc := NewAuthService(&config.AppConfig{}, users, credentials, sessions, challenges, contexts, nil, events, signer, nil)

	return &authFixture{
		svc:        svc,
		users:      users,
		sessions:   sessions,
		challenges: challenges,
		contexts:   contexts,
		events:     events,
	}
}

func baseUser() domain.User {
	return domain.User{
		ID:           testUserID,
		Email:        "viewer@example.com",
		FirstName:    "Vera",
		LastName:     "Example",
		Role:         domain.RoleViewer,
		RegisteredAt: time.Now().UTC().Add(-24 * time.Hour),
	}
}

func TestLoginSuccessEstablishesSession(t *testing.T) {
	fixture := newAuthFixture(t, baseUser(), "Str0ng!Passphrase")

	outcome, err := fixture.svc.Login(context.Background(), LoginInput{
		Email:    "viewer@example.com",
		Password: "Str0ng!Passphrase",
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if outcome.State != domain.LoginStateAuthenticated {
		t.Fatalf("expected authenticated state, got %s", outcome.State)
	}
	if outcome.Session == nil || outcome.Session.Token == "" {
		t.Fatalf("expected session with token")
	}
	if len(fixture.sessions.created) != 1 {
		t.Fatalf("expected 1 persisted session, got %d", len(fixture.sessions.created))
	}
	if fixture.users.lastLoginID != testUserID {
		t.Fatalf("expected last login stamped")
	}
	if len(fixture.events.loginSucceeded) != 1 {
		t.Fatalf("expected login succeeded event")
	}
	if fixture.contexts.snapshot == nil || fixture.contexts.snapshot.Email != "viewer@example.com" {
		t.Fatalf("expected session context snapshot written")
	}
}

func TestLoginWrongPassword(t *testing.T) {
	fixture := newAuthFixture(t, baseUser(), "Str0ng!Passphrase")

	_, err := fixture.svc.Login(context.Background(), LoginInput{
		Email:    "viewer@example.com",
		Password: "wrong-password",
	})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if len(fixture.sessions.created) != 0 {
		t.Fatalf("no session should be created on failed login")
	}
}

func TestLoginUnknownEmailSameError(t *testing.T) {
	fixture := newAuthFixture(t, baseUser(), "Str0ng!Passphrase")

	_, err := fixture.svc.Login(context.Background(), LoginInput{
		Email:    "nobody@example.com",
		Password: "Str0ng!Passphrase",
	})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
}

func TestLoginBlockedAccountAfterPasswordCheck(t *testing.T) {
	user := baseUser()
	user.Blocked = true
	fixture := newAuthFixture(t, user, "Str0ng!Passphrase")

	// Correct password surfaces the blocked state.
	_, err := fixture.svc.Login(context.Background(), LoginInput{
		Email:    "viewer@example.com",
		Password: "Str0ng!Passphrase",
	})
	if !errors.Is(err, ErrAccountBlocked) {
		t.Fatalf("expected ErrAccountBlocked, got %v", err)
	}

	// Wrong password on a blocked account must not reveal the block.
	_, err = fixture.svc.Login(context.Background(), LoginInput{
		Email:    "viewer@example.com",
		Password: "wrong-password",
	})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong password on blocked account, got %v", err)
	}
}

func TestLoginTwoFactorFlow(t *testing.T) {
	user := baseUser()
	user.TwoFactorEnabled = true
	fixture := newAuthFixture(t, user, "Str0ng!Passphrase")

	outcome, err := fixture.svc.Login(context.Background(), LoginInput{
		Email:    "viewer@example.com",
		Password: "Str0ng!Passphrase",
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if outcome.State != domain.LoginStatePendingTwoFactor {
		t.Fatalf("expected pending_two_factor state, got %s", outcome.State)
	}
	if outcome.Session != nil {
		t.Fatalf("no session may exist before the second factor")
	}
	if outcome.Challenge == nil {
		t.Fatalf("expected issued challenge")
	}
	if len(fixture.events.challenged) != 1 {
		t.Fatalf("expected challenge event for the delivery pipeline")
	}

	code := fixture.events.challenged[0].Code

	session, err := fixture.svc.VerifyTwoFactor(context.Background(), outcome.Challenge.ChallengeID, code, "", "")
	if err != nil {
		t.Fatalf("verify two factor: %v", err)
	}
	if session == nil || session.Token == "" {
		t.Fatalf("expected established session after correct code")
	}
	if len(fixture.challenges.deleted) != 1 {
		t.Fatalf("challenge must be discarded after use")
	}
}

func TestVerifyTwoFactorWrongCodeExhaustsAttempts(t *testing.T) {
	user := baseUser()
	user.TwoFactorEnabled = true
	fixture := newAuthFixture(t, user, "Str0ng!Passphrase")

	outcome, err := fixture.svc.Login(context.Background(), LoginInput{
		Email:    "viewer@example.com",
		Password: "Str0ng!Passphrase",
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	challengeID := outcome.Challenge.ChallengeID

	for i := 0; i < defaultCodeAttempts-1; i++ {
		if _, err := fixture.svc.VerifyTwoFactor(context.Background(), challengeID, "000000", "", ""); !errors.Is(err, ErrInvalidTwoFactorCode) {
			t.Fatalf("attempt %d: expected ErrInvalidTwoFactorCode, got %v", i+1, err)
		}
	}

	if _, err := fixture.svc.VerifyTwoFactor(context.Background(), challengeID, "000000", "", ""); !errors.Is(err, ErrTooManyCodeAttempts) {
		t.Fatalf("expected ErrTooManyCodeAttempts, got %v", err)
	}

	// The challenge is burned; even the correct code fails now.
	code := fixture.events.challenged[0].Code
	if _, err := fixture.svc.VerifyTwoFactor(context.Background(), challengeID, code, "", ""); !errors.Is(err, ErrInvalidTwoFactorCode) {
		t.Fatalf("expected burned challenge to reject correct code, got %v", err)
	}
}

func TestLoginContextStoreFailureDoesNotRollBack(t *testing.T) {
	fixture := newAuthFixture(t, baseUser(), "Str0ng!Passphrase")
	fixture.contexts.putErr = errors.New("redis down")

	outcome, err := fixture.svc.Login(context.Background(), LoginInput{
		Email:    "viewer@example.com",
		Password: "Str0ng!Passphrase",
	})
	if err != nil {
		t.Fatalf("login must succeed despite context store failure, got %v", err)
	}
	if outcome.Session == nil {
		t.Fatalf("expected established session")
	}
	if len(fixture.sessions.created) != 1 {
		t.Fatalf("session persistence must not be rolled back")
	}
}

func TestLoginExpiredCredential(t *testing.T) {
	fixture := newAuthFixture(t, baseUser(), "Str0ng!Passphrase")

	expired := time.Now().UTC().Add(-time.Hour)
	cred := fixture.svc.credentials.(*authCredentialRepoMock).byUserID[testUserID]
	cred.ExpiresAt = &expired
	fixture.svc.credentials.(*authCredentialRepoMock).byUserID[testUserID] = cred

	_, err := fixture.svc.Login(context.Background(), LoginInput{
		Email:    "viewer@example.com",
		Password: "Str0ng!Passphrase",
	})
	if !errors.Is(err, ErrCredentialExpired) {
		t.Fatalf("expected ErrCredentialExpired, got %v", err)
	}
}

func TestLogoutRevokesSessionAndContext(t *testing.T) {
	fixture := newAuthFixture(t, baseUser(), "Str0ng!Passphrase")

	outcome, err := fixture.svc.Login(context.Background(), LoginInput{
		Email:    "viewer@example.com",
		Password: "Str0ng!Passphrase",
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	sessionID := outcome.Session.SessionID
	if err := fixture.svc.Logout(context.Background(), sessionID); err != nil {
		t.Fatalf("logout: %v", err)
	}

	if fixture.sessions.revoked[sessionID] != logoutReason {
		t.Fatalf("expected session revoked with logout reason")
	}
	if len(fixture.contexts.deleted) != 1 || fixture.contexts.deleted[0] != sessionID {
		t.Fatalf("expected session context deleted")
	}
	if len(fixture.events.sessionRevoked) != 1 {
		t.Fatalf("expected session revoked event")
	}
}

func TestValidateSessionLifecycle(t *testing.T) {
	fixture := newAuthFixture(t, baseUser(), "Str0ng!Passphrase")

	outcome, err := fixture.svc.Login(context.Background(), LoginInput{
		Email:    "viewer@example.com",
		Password: "Str0ng!Passphrase",
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	session, claims, err := fixture.svc.ValidateSession(context.Background(), outcome.Session.Token)
	if err != nil {
		t.Fatalf("validate session: %v", err)
	}
	if session.ID != outcome.Session.SessionID {
		t.Fatalf("expected session id %s, got %s", outcome.Session.SessionID, session.ID)
	}
	if claims.UserID != testUserID {
		t.Fatalf("expected claims for %s, got %s", testUserID, claims.UserID)
	}

	if _, _, err := fixture.svc.ValidateSession(context.Background(), "not-a-token"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound for malformed token, got %v", err)
	}
}
