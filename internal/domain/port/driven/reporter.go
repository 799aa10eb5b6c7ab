package driven

import (
	"context"

	"pointsweep/internal/domain/model"
)

// Reporter receives exactly one RunResult per account per run.
type Reporter interface {
	Report(ctx context.Context, result model.RunResult) error
}
