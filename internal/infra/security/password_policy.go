package security

import (
	"strings"
	"unicode"

	zxcvbn "github.com/nbutton23/zxcvbn-go"
	"golang.org/x/text/unicode/norm"

	"github.com/veluna/media-platform-auth/internal/core/domain"
)

const (
	defaultMinPasswordLength = 8
	minContextTermLength     = 3

	// specialChars is the fixed punctuation set accepted for the special
	// character rule.
	specialChars = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"
)

// platformTerms is the fixed deny-list of platform-related words that may
// never appear inside a password, in addition to the caller-supplied
// personal-data terms.
var platformTerms = []string{
	"veluna",
	"media",
	"stream",
	"video",
	"audio",
	"watch",
	"password",
}

// NormalizePassword applies Unicode canonical composition and trims edge
// whitespace. Confirm-time credential updates always store the normalized
// form so the same visual string verifies regardless of input method.
func NormalizePassword(password string) string {
	return strings.TrimSpace(norm.NFC.String(password))
}

// PolicyEvaluator implements the password complexity and personal-data rules.
// Every rule is computed independently so clients can render partial progress;
// there is no short-circuit.
type PolicyEvaluator struct {
	minLength int
	denyTerms []string
}

// NewPolicyEvaluator constructs the evaluator with the platform deny-list.
func NewPolicyEvaluator() *PolicyEvaluator {
	return &PolicyEvaluator{
		minLength: defaultMinPasswordLength,
		denyTerms: platformTerms,
	}
}

// Evaluate scores the candidate password against all rules. Pure: no side
// effects, no error conditions. Empty contextTerms simply yields fewer
// personal-data hits.
func (e *PolicyEvaluator) Evaluate(password, confirmation string, contextTerms []string) domain.PolicyResult {
	runes := []rune(password)

	result := domain.PolicyResult{
		MinLength:      len(runes) >= e.minLength,
		NoPersonalData: true,
		NoControlChars: true,
		NoEdgeSpaces:   password == strings.TrimSpace(password),
	}

	for _, r := range runes {
		switch {
		case unicode.IsUpper(r):
			result.HasUpper = true
		case unicode.IsLower(r):
			result.HasLower = true
		case unicode.IsDigit(r):
			result.HasNumber = true
		}
		if strings.ContainsRune(specialChars, r) {
			result.HasSpecial = true
		}
		if isControl(r) {
			result.NoControlChars = false
		}
	}

	folded := strings.ToLower(password)
	terms := make([]string, 0, len(contextTerms)+len(e.denyTerms))
	terms = append(terms, contextTerms...)
	terms = append(terms, e.denyTerms...)
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if len([]rune(term)) < minContextTermLength {
			continue
		}
		if strings.Contains(folded, term) {
			result.NoPersonalData = false
			break
		}
	}

	normalized := norm.NFC.String(password)
	result.Match = normalized != "" && normalized == norm.NFC.String(confirmation)

	result.Strength = zxcvbn.PasswordStrength(password, contextTerms).Score

	return result
}

// isControl matches the C0 and C1 control ranges.
func isControl(r rune) bool {
	return r < 0x20 || r == 0x7f || (r >= 0x80 && r <= 0x9f)
}

// ContextTermsFor derives the personal-data terms for a user: name parts and
// the email local part. Short fragments are dropped by the evaluator.
func ContextTermsFor(user domain.User) []string {
	var terms []string

	for _, part := range strings.Fields(user.FirstName) {
		terms = append(terms, part)
	}
	for _, part := range strings.Fields(user.LastName) {
		terms = append(terms, part)
	}

	email := strings.TrimSpace(user.Email)
	if idx := strings.Index(email, "@"); idx > 0 {
		terms = append(terms, email[:idx])
	} else if email != "" {
		terms = append(terms, email)
	}

	return terms
}
