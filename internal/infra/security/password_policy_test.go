package security

import (
	"testing"

	zxcvbn "github.com/nbutton23/zxcvbn-go"

	"github.com/veluna/media-platform-auth/internal/core/domain"
)

func testUser(firstName, lastName, email string) domain.User {
	return domain.User{
		FirstName: firstName,
		LastName:  lastName,
		Email:     email,
	}
}

func TestEvaluateAllRulesPass(t *testing.T) {
	evaluator := NewPolicyEvaluator()

	password := "C0mplex!Passphrase#2026"
	result := evaluator.Evaluate(password, password, []string{"vera", "example"})

	if !result.Valid() {
		t.Fatalf("expected all rules to pass, failed: %v", result.FailedRules())
	}
	if expected := zxcvbn.PasswordStrength(password, []string{"vera", "example"}).Score; result.Strength != expected {
		t.Fatalf("expected strength %d, got %d", expected, result.Strength)
	}
}

func TestEvaluateReportsEveryRuleIndependently(t *testing.T) {
	evaluator := NewPolicyEvaluator()

	// A candidate violating several rules at once must report each of them,
	// not stop at the first failure.
	result := evaluator.Evaluate(" ab", "other", nil)

	if result.MinLength {
		t.Error("min_length should fail")
	}
	if result.HasUpper {
		t.Error("has_upper should fail")
	}
	if result.HasNumber {
		t.Error("has_number should fail")
	}
	if result.HasSpecial {
		t.Error("has_special should fail")
	}
	if result.NoEdgeSpaces {
		t.Error("no_edge_spaces should fail")
	}
	if result.Match {
		t.Error("match should fail")
	}
	if !result.HasLower {
		t.Error("has_lower should still pass")
	}
	if !result.NoControlChars {
		t.Error("no_control_chars should still pass")
	}
}

func TestEvaluateRuleViolations(t *testing.T) {
	evaluator := NewPolicyEvaluator()

	cases := []struct {
		name     string
		password string
		check    func(t *testing.T, failed []string, ok func(string) bool)
	}{
		{
			name:     "too short",
			password: "Ab1!xyz",
			check: func(t *testing.T, _ []string, ok func(string) bool) {
				if ok("min_length") {
					t.Fatal("min_length should fail for 7 runes")
				}
			},
		},
		{
			name:     "no uppercase",
			password: "complex!pass1",
			check: func(t *testing.T, _ []string, ok func(string) bool) {
				if ok("has_upper") {
					t.Fatal("has_upper should fail")
				}
			},
		},
		{
			name:     "no digit",
			password: "Complex!Pass",
			check: func(t *testing.T, _ []string, ok func(string) bool) {
				if ok("has_number") {
					t.Fatal("has_number should fail")
				}
			},
		},
		{
			name:     "no special",
			password: "Complex1Pass",
			check: func(t *testing.T, _ []string, ok func(string) bool) {
				if ok("has_special") {
					t.Fatal("has_special should fail")
				}
			},
		},
		{
			name:     "control character",
			password: "Complex!Pass1\x07",
			check: func(t *testing.T, _ []string, ok func(string) bool) {
				if ok("no_control_chars") {
					t.Fatal("no_control_chars should fail")
				}
			},
		},
		{
			name:     "trailing space",
			password: "Complex!Pass1 ",
			check: func(t *testing.T, _ []string, ok func(string) bool) {
				if ok("no_edge_spaces") {
					t.Fatal("no_edge_spaces should fail")
				}
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := evaluator.Evaluate(tc.password, tc.password, nil)
			failed := result.FailedRules()
			passed := func(rule string) bool {
				for _, f := range failed {
					if f == rule {
						return false
					}
				}
				return true
			}
			tc.check(t, failed, passed)
		})
	}
}

func TestEvaluatePersonalData(t *testing.T) {
	evaluator := NewPolicyEvaluator()

	result := evaluator.Evaluate("Vera!Secret99", "Vera!Secret99", []string{"Vera", "Example"})
	if result.NoPersonalData {
		t.Fatal("expected personal-data rule to fail for a name fragment")
	}

	// Platform terms apply even with no caller context.
	result = evaluator.Evaluate("MyStream!Pass7", "MyStream!Pass7", nil)
	if result.NoPersonalData {
		t.Fatal("expected personal-data rule to fail for a platform term")
	}

	// Terms shorter than three runes are ignored so initials cannot
	// blanket-ban common letters.
	result = evaluator.Evaluate("Complex!Pass1", "Complex!Pass1", []string{"om"})
	if !result.NoPersonalData {
		t.Fatal("two-rune terms must be skipped")
	}
}

func TestEvaluateMatchUsesCanonicalForm(t *testing.T) {
	evaluator := NewPolicyEvaluator()

	// "é" precomposed versus "e" + combining acute: canonically equal.
	composed := "Café!Pass123"
	decomposed := "Café!Pass123"

	result := evaluator.Evaluate(composed, decomposed, nil)
	if !result.Match {
		t.Fatal("canonically equivalent confirmation must match")
	}

	result = evaluator.Evaluate("", "", nil)
	if result.Match {
		t.Fatal("empty password must not count as matching")
	}
}

func TestEvaluateUnicodeLengthCountsRunes(t *testing.T) {
	evaluator := NewPolicyEvaluator()

	// Eight runes, many more bytes.
	password := "Пароль1!"
	result := evaluator.Evaluate(password, password, nil)
	if !result.MinLength {
		t.Fatal("rune count, not byte count, drives min_length")
	}
}

func TestNormalizePassword(t *testing.T) {
	if got := NormalizePassword("  Café!Pass123  "); got != "Café!Pass123" {
		t.Fatalf("unexpected normalization result: %q", got)
	}
}

func TestContextTermsFor(t *testing.T) {
	terms := ContextTermsFor(testUser("Vera Marie", "Example", "viewer@example.com"))

	want := map[string]bool{"Vera": true, "Marie": true, "Example": true, "viewer": true}
	if len(terms) != len(want) {
		t.Fatalf("expected %d terms, got %v", len(want), terms)
	}
	for _, term := range terms {
		if !want[term] {
			t.Fatalf("unexpected term %q in %v", term, terms)
		}
	}
}
