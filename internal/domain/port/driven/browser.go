package driven

import (
	"context"

	"pointsweep/internal/domain/model"
)

// BrowserFactory creates isolated browsing sessions. Desktop and mobile
// sessions for the same account are independent contexts; the core opens
// them sequentially and closes each before final gain computation.
type BrowserFactory interface {
	NewSession(ctx context.Context, account model.Account, mode model.SessionMode) (Session, error)
}

// Session is one authenticated browsing context. Page returns the session's
// primary page; NewPage opens an additional tab (used for token acquisition
// so the main page keeps its state).
type Session interface {
	Page() Page
	NewPage(ctx context.Context) (Page, error)
	Close(ctx context.Context) error
}
