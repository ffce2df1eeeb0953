package domain

// LoginState tracks a single login attempt through the authentication flow.
type LoginState string

const (
	LoginStateIdle             LoginState = "idle"
	LoginStateAuthenticating   LoginState = "authenticating"
	LoginStateBlocked          LoginState = "blocked"
	LoginStatePendingTwoFactor LoginState = "pending_two_factor"
	LoginStateAuthenticated    LoginState = "authenticated"
	LoginStateFailed           LoginState = "failed"
)

var loginTransitions = map[LoginState][]LoginState{
	LoginStateIdle:             {LoginStateAuthenticating},
	LoginStateAuthenticating:   {LoginStateBlocked, LoginStatePendingTwoFactor, LoginStateAuthenticated, LoginStateFailed},
	LoginStatePendingTwoFactor: {LoginStateAuthenticated, LoginStateFailed},
}

// CanTransition reports whether moving to next is a legal step.
func (s LoginState) CanTransition(next LoginState) bool {
	for _, allowed := range loginTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the login flow can advance no further.
func (s LoginState) Terminal() bool {
	return len(loginTransitions[s]) == 0
}

// ResetState tracks a single password reset attempt.
type ResetState string

const (
	ResetStateRequested   ResetState = "requested"
	ResetStateTokenIssued ResetState = "token_issued"
	ResetStateValidated   ResetState = "validated"
	ResetStateConfirmed   ResetState = "confirmed"
	ResetStateFailed      ResetState = "failed"
)

var resetTransitions = map[ResetState][]ResetState{
	ResetStateRequested:   {ResetStateTokenIssued, ResetStateFailed},
	ResetStateTokenIssued: {ResetStateValidated, ResetStateFailed},
	ResetStateValidated:   {ResetStateConfirmed, ResetStateFailed},
}

// CanTransition reports whether moving to next is a legal step.
func (s ResetState) CanTransition(next ResetState) bool {
	for _, allowed := range resetTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the reset flow can advance no further.
func (s ResetState) Terminal() bool {
	return len(resetTransitions[s]) == 0
}
