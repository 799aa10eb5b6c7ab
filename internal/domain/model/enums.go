package model

// SessionMode distinguishes the two independent browsing contexts used per
// account. The two modes earn separate point categories and are always run
// sequentially, never concurrently.
type SessionMode string

const (
	ModeDesktop SessionMode = "desktop"
	ModeMobile  SessionMode = "mobile"
)

// FailureKind classifies a terminal login failure.
type FailureKind string

const (
	FailureWrongPassword         FailureKind = "wrong_password"
	FailureLocked                FailureKind = "locked"
	FailureVerificationRequired  FailureKind = "verification_required"
	FailureAuthorizationRequired FailureKind = "authorization_required"
	FailureGeneric               FailureKind = "generic"
)

// NotifySeverity selects the priority of an out-of-band notification.
type NotifySeverity string

const (
	NotifyInfo  NotifySeverity = "info"
	NotifyWarn  NotifySeverity = "warn"
	NotifyError NotifySeverity = "error"
)
