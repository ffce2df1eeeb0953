package domain

// PolicyResult reports every password rule independently so a client can show
// partial progress. It is a transient value and is never persisted.
type PolicyResult struct {
	MinLength      bool `json:"min_length"`
	HasUpper       bool `json:"has_upper"`
	HasLower       bool `json:"has_lower"`
	HasNumber      bool `json:"has_number"`
	HasSpecial     bool `json:"has_special"`
	NoPersonalData bool `json:"no_personal_data"`
	NoControlChars bool `json:"no_control_chars"`
	NoEdgeSpaces   bool `json:"no_edge_spaces"`
	Match          bool `json:"match"`

	// Strength is the advisory zxcvbn score (0-4). It does not participate
	// in Valid.
	Strength int `json:"strength"`
}

// Valid reports whether all nine rules passed.
func (r PolicyResult) Valid() bool {
	return r.MinLength &&
		r.HasUpper &&
		r.HasLower &&
		r.HasNumber &&
		r.HasSpecial &&
		r.NoPersonalData &&
		r.NoControlChars &&
		r.NoEdgeSpaces &&
		r.Match
}

// FailedRules lists the names of rules that did not pass, for logging and
// same-session client feedback.
func (r PolicyResult) FailedRules() []string {
	var failed []string
	for _, rule := range []struct {
		name string
		ok   bool
	}{
		{"min_length", r.MinLength},
		{"has_upper", r.HasUpper},
		{"has_lower", r.HasLower},
		{"has_number", r.HasNumber},
		{"has_special", r.HasSpecial},
		{"no_personal_data", r.NoPersonalData},
		{"no_control_chars", r.NoControlChars},
		{"no_edge_spaces", r.NoEdgeSpaces},
		{"match", r.Match},
	} {
		if !rule.ok {
			failed = append(failed, rule.name)
		}
	}
	return failed
}
