package orchestrator

import (
	"context"
	"errors"

	"github.com/elisalabs/nugget-orchestrator/internal/models"
)

// FixedPlanner is a deterministic Planner test double that returns a
// pre-built plan regardless of the incoming build request, or a
// configured error. Used by orchestrator/scheduler end-to-end tests.
type FixedPlanner struct {
	Result PlanResult
	Err    error
}

func (p *FixedPlanner) Plan(ctx context.Context, spec *models.Spec) (PlanResult, error) {
	if p.Err != nil {
		return PlanResult{}, p.Err
	}
	return p.Result, nil
}

// ErrPlannerFailed is a stand-in planner failure reason for tests.
var ErrPlannerFailed = errors.New("planner unavailable")
