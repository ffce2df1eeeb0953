package domain

import "testing"

func TestLoginStateTransitions(t *testing.T) {
	cases := []struct {
		name    string
		from    LoginState
		to      LoginState
		allowed bool
	}{
		{"idle to authenticating", LoginStateIdle, LoginStateAuthenticating, true},
		{"authenticating to blocked", LoginStateAuthenticating, LoginStateBlocked, true},
		{"authenticating to pending two factor", LoginStateAuthenticating, LoginStatePendingTwoFactor, true},
		{"authenticating to authenticated", LoginStateAuthenticating, LoginStateAuthenticated, true},
		{"authenticating to failed", LoginStateAuthenticating, LoginStateFailed, true},
		{"pending two factor to authenticated", LoginStatePendingTwoFactor, LoginStateAuthenticated, true},
		{"pending two factor to failed", LoginStatePendingTwoFactor, LoginStateFailed, true},
		{"idle to authenticated skips verification", LoginStateIdle, LoginStateAuthenticated, false},
		{"blocked is a dead end", LoginStateBlocked, LoginStateAuthenticated, false},
		{"authenticated cannot regress", LoginStateAuthenticated, LoginStateAuthenticating, false},
		{"failed cannot recover", LoginStateFailed, LoginStateAuthenticated, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.from.CanTransition(tc.to); got != tc.allowed {
				t.Fatalf("CanTransition(%s -> %s) = %v, want %v", tc.from, tc.to, got, tc.allowed)
			}
		})
	}
}

func TestLoginStateTerminal(t *testing.T) {
	terminal := []LoginState{LoginStateBlocked, LoginStateAuthenticated, LoginStateFailed}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}

	live := []LoginState{LoginStateIdle, LoginStateAuthenticating, LoginStatePendingTwoFactor}
	for _, s := range live {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestResetStateTransitions(t *testing.T) {
	cases := []struct {
		name    string
		from    ResetState
		to      ResetState
		allowed bool
	}{
		{"requested to token issued", ResetStateRequested, ResetStateTokenIssued, true},
		{"token issued to validated", ResetStateTokenIssued, ResetStateValidated, true},
		{"validated to confirmed", ResetStateValidated, ResetStateConfirmed, true},
		{"every live state can fail", ResetStateRequested, ResetStateFailed, true},
		{"requested cannot confirm directly", ResetStateRequested, ResetStateConfirmed, false},
		{"token issued cannot confirm without validation", ResetStateTokenIssued, ResetStateConfirmed, false},
		{"confirmed is a dead end", ResetStateConfirmed, ResetStateValidated, false},
		{"failed cannot recover", ResetStateFailed, ResetStateValidated, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.from.CanTransition(tc.to); got != tc.allowed {
				t.Fatalf("CanTransition(%s -> %s) = %v, want %v", tc.from, tc.to, got, tc.allowed)
			}
		})
	}
}

func TestResetStateTerminal(t *testing.T) {
	if !ResetStateConfirmed.Terminal() {
		t.Error("confirmed should be terminal")
	}
	if !ResetStateFailed.Terminal() {
		t.Error("failed should be terminal")
	}
	for _, s := range []ResetState{ResetStateRequested, ResetStateTokenIssued, ResetStateValidated} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}
