package domain

import "time"

// Role enumerates the account roles recognised by the platform.
type Role string

const (
	RoleViewer         Role = "viewer"
	RoleAdmin          Role = "admin"
	RoleContentManager Role = "content_manager"
)

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	switch r {
	case RoleViewer, RoleAdmin, RoleContentManager:
		return true
	}
	return false
}

// User mirrors the persisted representation in the users table.
// Accounts are created by an external registration process; this service
// only reads the blocked flag and rotates credentials.
type User struct {
	ID               string
	Email            string
	FirstName        string
	LastName         string
	Role             Role
	Blocked          bool
	TwoFactorEnabled bool
	RegisteredAt     time.Time
	LastLogin        *time.Time
}

// Credential holds the active password hash for a user together with an
// optional expiry. Historical hashes live in CredentialHistory rows.
type Credential struct {
	ID           string
	UserID       string
	PasswordHash string
	PasswordAlgo string
	ExpiresAt    *time.Time
	UpdatedAt    time.Time
}

// IsExpired reports whether the credential has passed its expiry, if one is set.
func (c Credential) IsExpired(at time.Time) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return !c.ExpiresAt.After(at)
}

// CredentialHistory tracks previous password hashes for reuse prevention.
type CredentialHistory struct {
	ID           string
	UserID       string
	PasswordHash string
	SetAt        time.Time
}
