package model

// Dashboard is the subset of the portal dashboard blob the core cares about:
// the available balance plus how many points each category can still earn
// today.
type Dashboard struct {
	AvailablePoints      int
	DesktopSearchPoints  int
	MobileSearchPoints   int
	DailySetPoints       int
	MorePromotionsPoints int
}

// DesktopEarnable is the total still earnable through the desktop session.
func (d Dashboard) DesktopEarnable() int {
	return d.DailySetPoints + d.DesktopSearchPoints + d.MorePromotionsPoints
}

// MobileEarnable is the total still earnable through the mobile session.
func (d Dashboard) MobileEarnable() int {
	return d.MobileSearchPoints
}
