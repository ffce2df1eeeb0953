package postgres

import "github.com/jackc/pgx/v5/pgxpool"

// Repositories groups concrete PostgreSQL repository implementations.
type Repositories struct {
	Users       *UserRepository
	Credentials *CredentialRepository
	Tokens      *TokenRepository
	Sessions    *SessionRepository
}

// NewRepositories wires all repositories backed by the provided pool.
func NewRepositories(pool *pgxpool.Pool) *Repositories {
	return &Repositories{
		Users:       NewUserRepository(pool),
		Credentials: NewCredentialRepository(pool),
		Tokens:      NewTokenRepository(pool),
		Sessions:    NewSessionRepository(pool),
	}
}
