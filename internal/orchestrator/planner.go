// Package orchestrator wires SpecValidator, the Planner, DAG, Scheduler,
// PhaseMachine, TokenBudget, EventStream, and Workspace into the
// per-session coordinator referenced from the transport layer via
// internal/session's narrow Orchestrator interface.
package orchestrator

import (
	"context"

	"github.com/elisalabs/nugget-orchestrator/internal/models"
)

// PlanResult is what an external Planner returns for one session.
type PlanResult struct {
	Tasks  []*models.Task
	Agents []*models.Agent
}

// Planner is the external collaborator that turns a canonical build
// request into a task DAG and a set of agents. Authoring the planner
// itself is out of scope here — the core only depends on this
// contract.
type Planner interface {
	Plan(ctx context.Context, spec *models.Spec) (PlanResult, error)
}
