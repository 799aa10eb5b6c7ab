package model

// LoginOutcome is the terminal result of one login attempt. Exactly one is
// produced per attempt; expected failure modes are carried here rather than
// as errors so that only an unusable automation surface propagates as error.
type LoginOutcome struct {
	Success bool
	Kind    FailureKind
	Detail  string
}

// LoginSuccess returns the terminal success outcome.
func LoginSuccess() LoginOutcome {
	return LoginOutcome{Success: true}
}

// LoginFailure returns a terminal failure outcome of the given kind.
func LoginFailure(kind FailureKind, detail string) LoginOutcome {
	return LoginOutcome{Kind: kind, Detail: detail}
}

// Failed reports whether the outcome is a terminal failure.
func (o LoginOutcome) Failed() bool { return !o.Success }

func (o LoginOutcome) String() string {
	if o.Success {
		return "success"
	}
	if o.Detail == "" {
		return string(o.Kind)
	}
	return string(o.Kind) + ": " + o.Detail
}
