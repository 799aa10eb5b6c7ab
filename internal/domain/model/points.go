package model

// DailyPointsRecord stores the first point balance observed for an account on
// a calendar day. Date is the account-local day formatted YYYY-MM-DD; a raw
// timestamp is deliberately not used so that re-runs near midnight cannot
// drift the baseline. The record is created on the first successful balance
// read of the day and is read-only until the stored date differs from today.
type DailyPointsRecord struct {
	Date          string `json:"date"`
	InitialPoints int    `json:"initialPoints"`
}

// RunResult is the derived gain summary for one account run. It is reported
// once and never persisted.
type RunResult struct {
	RunID       string `json:"runId"`
	Email       string `json:"email"`
	FinalPoints int    `json:"finalPoints"`
	DesktopGain int    `json:"desktopGain"`
	MobileGain  int    `json:"mobileGain"`
	TotalGain   int    `json:"totalGain"`
}
