package model

import "time"

// AccountStatus tracks consecutive run failures for one account. FrozenUntil
// is set only once ConsecutiveFailures reaches the breaker threshold and is
// cleared eagerly on the first success or the first observation past the
// deadline. Only the circuit breaker mutates this record.
type AccountStatus struct {
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	FrozenUntil         *time.Time `json:"frozenUntil,omitempty"`
}
