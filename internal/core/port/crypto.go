package port

import "github.com/veluna/media-platform-auth/internal/core/domain"

// PasswordPolicy evaluates a candidate password against the complexity and
// personal-data rules. All rules are reported; implementations never
// short-circuit.
type PasswordPolicy interface {
	Evaluate(password, confirmation string, contextTerms []string) domain.PolicyResult
}
