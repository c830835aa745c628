package orchestrator

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/elisalabs/nugget-orchestrator/internal/agentrunner"
	"github.com/elisalabs/nugget-orchestrator/internal/common/apperrors"
	"github.com/elisalabs/nugget-orchestrator/internal/common/logger"
	"github.com/elisalabs/nugget-orchestrator/internal/dag"
	"github.com/elisalabs/nugget-orchestrator/internal/eventstream"
	"github.com/elisalabs/nugget-orchestrator/internal/models"
	"github.com/elisalabs/nugget-orchestrator/internal/nugget"
	"github.com/elisalabs/nugget-orchestrator/internal/phase"
	"github.com/elisalabs/nugget-orchestrator/internal/scheduler"
	"github.com/elisalabs/nugget-orchestrator/internal/token"
	"github.com/elisalabs/nugget-orchestrator/internal/workspace"
)

// Orchestrator drives one session from start() to done. It satisfies
// internal/session.Orchestrator (Cancel, Snapshot, Cleanup).
type Orchestrator struct {
	mu      sync.Mutex
	session *models.Session

	stream    *eventstream.Stream
	machine   *phase.Machine
	budget    *token.Budget
	sched     *scheduler.Scheduler
	workspace string
	ownsDir   bool
	log       *logger.Logger

	cancelOnce sync.Once
}

// StartSession validates spec, resolves the workspace, writes the
// persisted artifacts into a caller-supplied workspace, and starts a
// new goroutine that runs the planner, constructs the DAG and
// scheduler, and executes the plan. It returns once planning input has
// been accepted — the caller observes progress via the event stream,
// not this call's return.
func StartSession(
	ctx context.Context,
	sess *models.Session,
	rawSpec *models.Spec,
	workspacePath string,
	planner Planner,
	runner agentrunner.Runner,
	git scheduler.Git,
	policy *workspace.Policy,
	cfg scheduler.Config,
	maxBudget int64,
	log *logger.Logger,
) (*Orchestrator, *apperrors.AppError) {
	canonical, verrs := nugget.Validate(rawSpec)
	if len(verrs) > 0 {
		return nil, apperrors.InvalidSpecMulti(verrs)
	}

	resolvedPath, werr := policy.Validate(workspacePath)
	if werr != nil {
		return nil, werr
	}
	ownsDir := resolvedPath == ""
	if ownsDir {
		tmp, err := os.MkdirTemp("", "nugget-ws-"+sess.ID+"-")
		if err != nil {
			return nil, apperrors.Internal("failed to create workspace", err)
		}
		resolvedPath = tmp
	}

	if !ownsDir {
		if err := workspace.WriteArtifacts(resolvedPath, sess.ID, canonical); err != nil {
			return nil, apperrors.Internal("failed to write workspace artifacts", err)
		}
	}

	stream := eventstream.New(256)
	machine := phase.New(stream)
	budget := token.New(maxBudget)

	sess.Spec = canonical
	sess.WorkspacePath = resolvedPath

	o := &Orchestrator{
		session:   sess,
		stream:    stream,
		machine:   machine,
		budget:    budget,
		workspace: resolvedPath,
		ownsDir:   ownsDir,
		log:       log,
	}

	go o.run(ctx, planner, runner, git, cfg)

	return o, nil
}

func (o *Orchestrator) run(ctx context.Context, planner Planner, runner agentrunner.Runner, git scheduler.Git, cfg scheduler.Config) {
	o.machine.ToPlanning(ctx)

	plan, err := planner.Plan(ctx, o.session.Spec)
	if err != nil {
		o.fail(ctx, apperrors.PlannerFailed("planner failed to produce a plan", err))
		return
	}

	graph, gerr := dag.New(plan.Tasks)
	if gerr != nil {
		o.fail(ctx, apperrors.CycleDetected(gerr.Error()))
		return
	}

	o.mu.Lock()
	o.session.Tasks = plan.Tasks
	o.session.Agents = plan.Agents
	o.mu.Unlock()

	agents := make(map[string]*models.Agent, len(plan.Agents))
	for _, a := range plan.Agents {
		agents[a.Name] = a
	}

	var summaries []eventstream.TaskSummary
	var agentNames []string
	for _, t := range plan.Tasks {
		summaries = append(summaries, eventstream.TaskSummary{ID: t.ID, Name: t.Name, AgentName: t.AgentName, Dependencies: t.Dependencies})
	}
	for _, a := range plan.Agents {
		agentNames = append(agentNames, a.Name)
	}
	o.stream.Emit(ctx, eventstream.Event{Type: eventstream.TypePlanReady, Tasks: summaries, Agents: agentNames})

	o.machine.ToExecuting()

	sched := scheduler.New(graph, agents, o.session.Spec, runner, git, o.stream, o.budget, o.workspace, nil, cfg, o.log)
	o.mu.Lock()
	o.sched = sched
	o.mu.Unlock()

	if appErr := sched.Run(ctx); appErr != nil {
		o.fail(ctx, appErr)
		return
	}

	if phase.EntersTesting(o.session.Spec) {
		o.machine.ToTesting()
		// TestRunner is an external narrow collaborator; no fake is
		// wired at this layer by default, so the testing phase here is
		// a pass-through checkpoint. A concrete
		// TestRunner wired in by cmd/ would emit test_result/
		// coverage_update events before the phase advances.
	}

	if phase.EntersDeploying(o.session.Spec) {
		target := o.session.Spec.Deployment.Target
		o.machine.ToDeploying(ctx, target)
		o.machine.DeployComplete(ctx)
	}

	o.machine.ToDone(ctx)
}

func (o *Orchestrator) fail(ctx context.Context, appErr *apperrors.AppError) {
	recoverable := appErr.Code != apperrors.CodeCycleDetected && appErr.Code != apperrors.CodePlannerFailed &&
		appErr.Code != apperrors.CodeCancelled
	o.machine.ToDoneWithError(ctx, appErr.Error(), recoverable)
}

// Cancel requests cooperative shutdown of the in-flight scheduler run,
// if any, and is idempotent.
func (o *Orchestrator) Cancel() {
	o.cancelOnce.Do(func() {
		o.mu.Lock()
		sched := o.sched
		o.mu.Unlock()
		if sched != nil {
			sched.Cancel()
		}
	})
}

// Snapshot returns the session's current observable state.
func (o *Orchestrator) Snapshot() *models.Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session
}

// Cleanup removes the orchestrator-created workspace directory. A
// user-supplied workspace path is never deleted. Tolerant of absence
// and safe to call more than once.
func (o *Orchestrator) Cleanup() error {
	if !o.ownsDir {
		return nil
	}
	err := os.RemoveAll(o.workspace)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Export streams the workspace as a ZIP archive.
func (o *Orchestrator) Export(w io.Writer) error {
	return workspace.Export(o.workspace, w)
}

// RespondToGate forwards a human-gate decision to the live scheduler.
func (o *Orchestrator) RespondToGate(ctx context.Context, approved bool, feedback string) *apperrors.AppError {
	o.mu.Lock()
	sched := o.sched
	o.mu.Unlock()
	if sched == nil {
		return apperrors.Conflict("no human gate is pending")
	}
	return sched.RespondToGate(ctx, approved, feedback)
}

// RespondToQuestion forwards a mid-task question answer to the live
// scheduler.
func (o *Orchestrator) RespondToQuestion(ctx context.Context, taskID string, answers map[string]any) *apperrors.AppError {
	o.mu.Lock()
	sched := o.sched
	o.mu.Unlock()
	if sched == nil {
		return apperrors.Conflict("no question is pending for this task")
	}
	return sched.RespondToQuestion(ctx, taskID, answers)
}

// Events exposes the session's event stream to the transport layer.
func (o *Orchestrator) Events() <-chan eventstream.Event { return o.stream.Events() }

// GitLog and TestLog expose the accumulated snapshot logs for the
// corresponding read endpoints.
func (o *Orchestrator) GitLog() []eventstream.Event  { return o.stream.GitLog() }
func (o *Orchestrator) TestLog() []eventstream.Event { return o.stream.TestLog() }
