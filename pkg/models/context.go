package models

// Goal is a CO2e reduction target for a user.
type Goal struct {
	TargetCO2e float64 `json:"target"`
	Period     string  `json:"period"`
}

// UserContext is a read-only snapshot of a user's durable preferences and
// goals, fetched once per batch and shared by all pipelines in that batch.
type UserContext struct {
	Preferences map[string]string `json:"preferences"`
	Goals       []Goal            `json:"goals"`
}

// EmptyUserContext returns a context with initialized (non-nil) fields.
func EmptyUserContext() *UserContext {
	return &UserContext{
		Preferences: map[string]string{},
		Goals:       []Goal{},
	}
}
