package driven

import (
	"context"
	"errors"
	"time"
)

// ErrSurfaceClosed signals that the automation surface behind a Page is no
// longer usable (handle closed, session torn down). It is the only page-level
// condition the core treats as run-fatal; everything else is recoverable.
var ErrSurfaceClosed = errors.New("automation surface closed")

// Page is the driven port for the browser automation surface: a navigable
// page handle the core can steer without knowing anything about the engine
// behind it.
//
// Every method is fallible and the core treats each call site as
// independently fail-soft. WaitFor returns (nil, nil) when the selector did
// not appear within the timeout; a non-nil error means the surface itself is
// unusable.
type Page interface {
	// Navigate loads the URL, bounded by timeout.
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	// WaitFor waits until an element matching selector is visible, up to
	// timeout. Absence is reported as (nil, nil), not as an error.
	WaitFor(ctx context.Context, selector string, timeout time.Duration) (Element, error)
	// Fill replaces the content of the form field matching selector.
	Fill(ctx context.Context, selector, text string) error
	// Click clicks the first element matching selector.
	Click(ctx context.Context, selector string) error
	// CurrentURL returns the page's current location.
	CurrentURL() string
	// Evaluate runs a script in the page and returns its string result.
	Evaluate(ctx context.Context, script string) (string, error)
}

// Element is a resolved page element returned by Page.WaitFor.
type Element interface {
	Click(ctx context.Context) error
	Text(ctx context.Context) (string, error)
}
