// Package phase implements PhaseMachine: the session's forward-only
// walk through idle → planning → executing → (testing?) → (deploying?)
// → done, with each transition emitted at the exact point it occurs.
package phase

import (
	"context"

	"github.com/elisalabs/nugget-orchestrator/internal/eventstream"
	"github.com/elisalabs/nugget-orchestrator/internal/models"
)

// Machine drives one session's phase field. It is not safe for
// concurrent use; callers serialize access through the session's single
// coordinator goroutine (see internal/orchestrator).
type Machine struct {
	phase  models.Phase
	stream *eventstream.Stream
}

// New returns a Machine positioned at idle.
func New(stream *eventstream.Stream) *Machine {
	return &Machine{phase: models.PhaseIdle, stream: stream}
}

// Phase returns the current phase.
func (m *Machine) Phase() models.Phase { return m.phase }

// ToPlanning transitions idle → planning, emitting planning_started.
func (m *Machine) ToPlanning(ctx context.Context) {
	m.phase = models.PhasePlanning
	m.stream.Emit(ctx, eventstream.Event{Type: eventstream.TypePlanningStarted})
}

// ToExecuting transitions planning → executing. No event of its own:
// the caller emits plan_ready immediately before calling this, and the
// subsequent task_started events are themselves the observable signal
// that execution has begun.
func (m *Machine) ToExecuting() {
	m.phase = models.PhaseExecuting
}

// EntersTesting reports whether the session should enter the testing
// phase: entered iff workflow.testing_enabled, or the build request
// declares behavioral requirements (treated here as any requirement
// typed "behavior" or "test").
func EntersTesting(spec *models.Spec) bool {
	if spec == nil {
		return false
	}
	if spec.Workflow.TestingEnabled {
		return true
	}
	for _, r := range spec.Requirements {
		if r.Type == "behavior" || r.Type == "test" {
			return true
		}
	}
	return false
}

// ToTesting transitions executing → testing.
func (m *Machine) ToTesting() {
	m.phase = models.PhaseTesting
}

// deployTargets are the deployment targets that trigger the deploying
// phase.
var deployTargets = map[string]bool{
	"esp32": true,
	"web":   true,
}

// EntersDeploying reports whether the session should enter the
// deploying phase for the given spec.
func EntersDeploying(spec *models.Spec) bool {
	if spec == nil || spec.Deployment == nil {
		return false
	}
	return deployTargets[spec.Deployment.Target]
}

// ToDeploying transitions (executing|testing) → deploying, emitting
// deploy_started. For the "web" target no hardware commands are ever
// issued downstream — callers must not invoke HardwareService when
// Target == "web".
func (m *Machine) ToDeploying(ctx context.Context, target string) {
	m.phase = models.PhaseDeploying
	m.stream.Emit(ctx, eventstream.Event{Type: eventstream.TypeDeployStarted, Target: target})
}

// DeployComplete emits deploy_complete without changing phase; callers
// follow it with ToDone.
func (m *Machine) DeployComplete(ctx context.Context) {
	m.stream.Emit(ctx, eventstream.Event{Type: eventstream.TypeDeployComplete})
}

// ToDone transitions to the terminal phase and emits session_complete.
// session_complete is always the final event on success — callers
// must not emit anything after calling ToDone.
func (m *Machine) ToDone(ctx context.Context) {
	m.phase = models.PhaseDone
	m.stream.Emit(ctx, eventstream.Event{Type: eventstream.TypeSessionComplete})
}

// ToDoneWithError transitions to the terminal phase and emits a final
// error event instead of session_complete — used for stop(), cancel(),
// planner failure, cycle detection, and other abnormal terminations.
func (m *Machine) ToDoneWithError(ctx context.Context, message string, recoverable bool) {
	m.phase = models.PhaseDone
	m.stream.Emit(ctx, eventstream.Event{Type: eventstream.TypeError, Message: message, Recoverable: recoverable})
}
