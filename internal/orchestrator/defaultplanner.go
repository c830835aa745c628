package orchestrator

import (
	"context"
	"fmt"

	"github.com/elisalabs/nugget-orchestrator/internal/models"
)

// HeuristicPlanner is the out-of-the-box Planner wired by cmd/ when no
// external planner is configured. Authoring a real decomposition
// planner is out of scope here, so this produces one sequential
// builder task per requirement (or a single
// scaffold task for a bare goal) rather than anything resembling
// genuine task decomposition. Production deployments replace this by
// injecting their own Planner.
type HeuristicPlanner struct{}

func (HeuristicPlanner) Plan(ctx context.Context, spec *models.Spec) (PlanResult, error) {
	agent := &models.Agent{Name: "builder-1", Role: models.RoleBuilder, Persona: "a careful, incremental software builder"}

	if len(spec.Requirements) == 0 {
		return PlanResult{
			Tasks: []*models.Task{{
				ID:        "task-1",
				Name:      "scaffold",
				AgentName: agent.Name,
				Status:    models.TaskPending,
			}},
			Agents: []*models.Agent{agent},
		}, nil
	}

	var tasks []*models.Task
	var prev string
	for i, req := range spec.Requirements {
		id := fmt.Sprintf("task-%d", i+1)
		t := &models.Task{
			ID:          id,
			Name:        fmt.Sprintf("implement %s requirement", req.Type),
			Description: req.Description,
			AgentName:   agent.Name,
			Status:      models.TaskPending,
		}
		if prev != "" {
			t.Dependencies = []string{prev}
		}
		tasks = append(tasks, t)
		prev = id
	}

	return PlanResult{Tasks: tasks, Agents: []*models.Agent{agent}}, nil
}
