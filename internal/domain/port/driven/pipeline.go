package driven

import (
	"context"

	"pointsweep/internal/domain/model"
)

// TaskPipeline runs the reward activities for one session mode inside an
// already-authenticated page. Concrete solvers (quizzes, searches, check-ins)
// live behind this port; the orchestrator only measures the balance before
// and after. accessToken is non-empty for the mobile mode only.
type TaskPipeline interface {
	Run(ctx context.Context, page Page, mode model.SessionMode, accessToken string) error
}
