package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/veluna/media-platform-auth/internal/core/domain"
	"github.com/veluna/media-platform-auth/internal/infra/config"
	"github.com/veluna/media-platform-auth/internal/infra/security"
	"github.com/veluna/media-platform-auth/internal/repository"
	"github.com/veluna/media-platform-auth/internal/usecase"
)

type userRepoStub struct {
	byEmail map[string]domain.User
	byID    map[string]domain.User
}

func (s *userRepoStub) GetByID(_ context.Context, id string) (*domain.User, error) {
	if u, ok := s.byID[id]; ok {
		return &u, nil
	}
	return nil, repository.ErrNotFound
}

func (s *userRepoStub) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	if u, ok := s.byEmail[email]; ok {
		return &u, nil
	}
	return nil, repository.ErrNotFound
}

func (s *userRepoStub) UpdateLastLogin(context.Context, string, time.Time) error {
	return nil
}

type tokenRepoStub struct {
	byHash map[string]*domain.RecoveryToken
}

func newTokenRepoStub() *tokenRepoStub {
	return &tokenRepoStub{byHash: make(map[string]*domain.RecoveryToken)}
}

func (s *tokenRepoStub) CreateRecovery(_ context.Context, token domain.RecoveryToken) (int, error) {
	superseded := 0
	for _, existing := range s.byHash {
		if existing.UserID == token.UserID && existing.UsedAt == nil && existing.RevokedAt == nil {
			at := token.CreatedAt
			existing.RevokedAt = &at
			superseded++
		}
	}
	stored := token
	s.byHash[token.TokenHash] = &stored
	return superseded, nil
}

func (s *tokenRepoStub) GetRecoveryByHash(_ context.Context, hash string) (*domain.RecoveryToken, error) {
	if t, ok := s.byHash[hash]; ok {
		found := *t
		return &found, nil
	}
	return nil, repository.ErrNotFound
}

func (s *tokenRepoStub) ConsumeRecovery(_ context.Context, id string, at time.Time) error {
	for _, t := range s.byHash {
		if t.ID == id && t.UsedAt == nil && t.RevokedAt == nil {
			t.UsedAt = &at
			return nil
		}
	}
	return repository.ErrNotFound
}

type credentialRepoStub struct {
	byUserID map[string]domain.Credential
}

func (s *credentialRepoStub) GetByUserID(_ context.Context, userID string) (*domain.Credential, error) {
	if c, ok := s.byUserID[userID]; ok {
		return &c, nil
	}
	return nil, repository.ErrNotFound
}

func (s *credentialRepoStub) Replace(_ context.Context, userID, newHash, algo string, changedAt time.Time, _ int) error {
	cred := s.byUserID[userID]
	cred.UserID = userID
	cred.PasswordHash = newHash
	cred.PasswordAlgo = algo
	cred.UpdatedAt = changedAt
	s.byUserID[userID] = cred
	return nil
}

func (s *credentialRepoStub) ListHistory(context.Context, string, int) ([]domain.CredentialHistory, error) {
	return nil, nil
}

type sessionRepoStub struct {
	sessions  map[string]domain.Session
	revokeErr error
}

func newSessionRepoStub() *sessionRepoStub {
	return &sessionRepoStub{sessions: make(map[string]domain.Session)}
}

func (s *sessionRepoStub) Create(_ context.Context, session domain.Session) error {
	s.sessions[session.ID] = session
	return nil
}

func (s *sessionRepoStub) GetByID(_ context.Context, sessionID string) (*domain.Session, error) {
	if session, ok := s.sessions[sessionID]; ok {
		return &session, nil
	}
	return nil, repository.ErrNotFound
}

func (s *sessionRepoStub) Revoke(_ context.Context, sessionID, reason string) error {
	if s.revokeErr != nil {
		return s.revokeErr
	}
	session, ok := s.sessions[sessionID]
	if !ok {
		return repository.ErrNotFound
	}
	now := time.Now().UTC()
	session.RevokedAt = &now
	session.RevokeReason = &reason
	s.sessions[sessionID] = session
	return nil
}

func (s *sessionRepoStub) RevokeAllForUser(_ context.Context, userID, reason string) (int, error) {
	revoked := 0
	now := time.Now().UTC()
	for id, session := range s.sessions {
		if session.UserID == userID && session.RevokedAt == nil {
			session.RevokedAt = &now
			session.RevokeReason = &reason
			s.sessions[id] = session
			revoked++
		}
	}
	return revoked, nil
}

func (s *sessionRepoStub) ListActiveByUser(context.Context, string) ([]domain.Session, error) {
	return nil, nil
}

func resetTestUser() domain.User {
	return domain.User{
		ID:           "9b1deb4d-3b7d-4bad-9bdd-2b0d7b3dcb6d",
		Email:        "viewer@example.com",
		FirstName:    "Vera",
		LastName:     "Example",
		Role:         domain.RoleViewer,
		RegisteredAt: time.Now().UTC().Add(-24 * time.Hour),
	}
}

func newPasswordTestRouter(t *testing.T, user domain.User, password string, isDev bool) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hash, err := security.HashPassword(security.NormalizePassword(password))
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	users := &userRepoStub{
		byEmail: map[string]domain.User{user.Email: user},
		byID:    map[string]domain.User{user.ID: user},
	}
	credentials := &credentialRepoStub{
		byUserID: map[string]domain.Credential{
			user.ID: {
				ID:           "cred-1",
				UserID:       user.ID,
				PasswordHash: hash,
				PasswordAlgo: "argon2id",
				UpdatedAt:    time.Now().UTC().Add(-time.Hour),
			},
		},
	}

	recovery := usecase.NewRecoveryTokenService(newTokenRepoStub(), nil)
	reset := usecase.NewPasswordResetService(&config.AppConfig{}, users, credentials,
		recovery, newSessionRepoStub(), nil, nil, nil, nil)

	engine := gin.New()
	NewPasswordHandler(reset, nil, isDev).RegisterRoutes(engine.Group("/api/v1/password"))
	return engine
}

func postJSON(t *testing.T, engine *gin.Engine, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return body
}

func sortedKeys(body map[string]any) []string {
	keys := make([]string, 0, len(body))
	for k := range body {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func TestResetRequestBodyIdenticalForUnknownEmail(t *testing.T) {
	engine := newPasswordTestRouter(t, resetTestUser(), "Old!Passw0rd", false)

	known := postJSON(t, engine, "/api/v1/password/reset/request",
		map[string]string{"email": "viewer@example.com"})
	unknown := postJSON(t, engine, "/api/v1/password/reset/request",
		map[string]string{"email": "nobody@example.com"})

	if known.Code != http.StatusAccepted || unknown.Code != http.StatusAccepted {
		t.Fatalf("expected 202/202, got %d/%d", known.Code, unknown.Code)
	}

	knownBody := decodeBody(t, known)
	unknownBody := decodeBody(t, unknown)

	knownKeys := sortedKeys(knownBody)
	unknownKeys := sortedKeys(unknownBody)
	if len(knownKeys) != len(unknownKeys) {
		t.Fatalf("response shapes differ: known=%v unknown=%v", knownKeys, unknownKeys)
	}
	for i := range knownKeys {
		if knownKeys[i] != unknownKeys[i] {
			t.Fatalf("response shapes differ: known=%v unknown=%v", knownKeys, unknownKeys)
		}
	}

	want := []string{"message", "request_id"}
	for i, key := range want {
		if knownKeys[i] != key {
			t.Fatalf("unexpected body keys %v, want %v", knownKeys, want)
		}
	}

	if knownBody["message"] != unknownBody["message"] {
		t.Fatalf("messages differ: %q vs %q", knownBody["message"], unknownBody["message"])
	}
}

func TestResetRequestDevTokenOnlyInDevelopment(t *testing.T) {
	engine := newPasswordTestRouter(t, resetTestUser(), "Old!Passw0rd", true)

	rec := postJSON(t, engine, "/api/v1/password/reset/request",
		map[string]string{"email": "viewer@example.com"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}

	body := decodeBody(t, rec)
	token, ok := body["dev_token"].(string)
	if !ok || token == "" {
		t.Fatal("development mode must expose the raw token")
	}
}

func TestConfirmResetUniformFailureMessage(t *testing.T) {
	engine := newPasswordTestRouter(t, resetTestUser(), "Old!Passw0rd", true)

	requested := postJSON(t, engine, "/api/v1/password/reset/request",
		map[string]string{"email": "viewer@example.com"})
	token, _ := decodeBody(t, requested)["dev_token"].(string)
	if token == "" {
		t.Fatal("expected dev token in request response")
	}

	policyFail := postJSON(t, engine, "/api/v1/password/reset/confirm", map[string]string{
		"token":        token,
		"new_password": "short",
		"confirmation": "short",
	})
	tokenFail := postJSON(t, engine, "/api/v1/password/reset/confirm", map[string]string{
		"token":        "not-a-real-token",
		"new_password": "N3w!Secur3Phrase",
		"confirmation": "N3w!Secur3Phrase",
	})

	if policyFail.Code != http.StatusBadRequest || tokenFail.Code != http.StatusBadRequest {
		t.Fatalf("expected 400/400, got %d/%d", policyFail.Code, tokenFail.Code)
	}

	policyBody := decodeBody(t, policyFail)
	tokenBody := decodeBody(t, tokenFail)

	if _, leaked := policyBody["failed_rules"]; leaked {
		t.Fatal("confirm must not report per-rule detail")
	}
	if policyBody["error"] != tokenBody["error"] {
		t.Fatalf("failure messages differ: %q vs %q", policyBody["error"], tokenBody["error"])
	}

	// The policy rejection must leave the token redeemable.
	confirmed := postJSON(t, engine, "/api/v1/password/reset/confirm", map[string]string{
		"token":        token,
		"new_password": "N3w!Secur3Phrase",
		"confirmation": "N3w!Secur3Phrase",
	})
	if confirmed.Code != http.StatusOK {
		t.Fatalf("expected 200 after valid confirm, got %d (%s)", confirmed.Code, confirmed.Body.String())
	}
}
