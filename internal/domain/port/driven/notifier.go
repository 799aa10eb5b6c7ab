package driven

import (
	"context"

	"pointsweep/internal/domain/model"
)

// Notifier is the fire-and-forget out-of-band notification sink used for 2FA
// approval numbers, lockout alerts and run summaries. Implementations swallow
// delivery failures; the core never branches on them.
type Notifier interface {
	Notify(ctx context.Context, severity model.NotifySeverity, title, body string)
}
