package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elisalabs/nugget-orchestrator/internal/agentrunner"
	"github.com/elisalabs/nugget-orchestrator/internal/eventstream"
	"github.com/elisalabs/nugget-orchestrator/internal/models"
	"github.com/elisalabs/nugget-orchestrator/internal/scheduler"
	"github.com/elisalabs/nugget-orchestrator/internal/workspace"
)

type fakeGit struct {
	mu sync.Mutex
	n  int
}

func (g *fakeGit) Commit(ctx context.Context, workspacePath, taskID, agentName, message string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return "sha-" + taskID, nil
}

func newSession() *models.Session {
	return &models.Session{ID: "sess-1", Phase: models.PhaseIdle, CreatedAt: time.Now()}
}

func drain(t *testing.T, o *Orchestrator, timeout time.Duration) []eventstream.Event {
	t.Helper()
	var events []eventstream.Event
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-o.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
			if ev.Type == eventstream.TypeSessionComplete || ev.Type == eventstream.TypeError {
				return events
			}
		case <-deadline:
			t.Fatal("timed out waiting for session to finish")
			return events
		}
	}
}

func defaultSchedCfg() scheduler.Config {
	return scheduler.Config{MaxConcurrent: 1, MaxRetries: 3, ReservedPerTask: 1000, GateResponseTimeout: 2 * time.Second, QuestionTimeout: 2 * time.Second}
}

func TestMinimalWebSessionSuccess(t *testing.T) {
	plan := PlanResult{
		Tasks: []*models.Task{
			{ID: "t1", Name: "scaffold", AgentName: "builder-1", Status: models.TaskPending},
		},
		Agents: []*models.Agent{{Name: "builder-1", Role: models.RoleBuilder}},
	}
	planner := &FixedPlanner{Result: plan}
	runner := agentrunner.NewScriptedRunner()
	spec := &models.Spec{Nugget: models.NuggetInfo{Goal: "a minimal web app"}, Deployment: &models.Deployment{Target: "web"}}

	o, appErr := StartSession(context.Background(), newSession(), spec, "", planner, runner, &fakeGit{}, workspace.NewPolicy("", 0), defaultSchedCfg(), 500_000, nil)
	require.Nil(t, appErr)
	defer o.Cleanup()

	events := drain(t, o, 5*time.Second)
	require.NotEmpty(t, events)
	assert.Equal(t, eventstream.TypeSessionComplete, events[len(events)-1].Type)

	var sawDeployStarted, sawDeployComplete bool
	for _, ev := range events {
		if ev.Type == eventstream.TypeDeployStarted {
			sawDeployStarted = true
		}
		if ev.Type == eventstream.TypeDeployComplete {
			sawDeployComplete = true
		}
	}
	assert.True(t, sawDeployStarted, "expected deploy_started for target=web")
	assert.True(t, sawDeployComplete, "expected deploy_complete for target=web")
}

func TestDAGOrderAcrossDependency(t *testing.T) {
	plan := PlanResult{
		Tasks: []*models.Task{
			{ID: "t1", Name: "first", AgentName: "builder-1", Status: models.TaskPending},
			{ID: "t2", Name: "second", AgentName: "builder-1", Status: models.TaskPending, Dependencies: []string{"t1"}},
		},
		Agents: []*models.Agent{{Name: "builder-1", Role: models.RoleBuilder}},
	}
	planner := &FixedPlanner{Result: plan}
	runner := agentrunner.NewScriptedRunner()
	spec := &models.Spec{Nugget: models.NuggetInfo{Goal: "two ordered tasks"}}

	o, appErr := StartSession(context.Background(), newSession(), spec, "", planner, runner, &fakeGit{}, workspace.NewPolicy("", 0), defaultSchedCfg(), 500_000, nil)
	require.Nil(t, appErr)
	defer o.Cleanup()

	events := drain(t, o, 5*time.Second)

	var t1Completed, t2Started int = -1, -1
	for i, ev := range events {
		if ev.Type == eventstream.TypeTaskCompleted && ev.TaskID == "t1" {
			t1Completed = i
		}
		if ev.Type == eventstream.TypeTaskStarted && ev.TaskID == "t2" {
			t2Started = i
		}
	}
	require.NotEqual(t, -1, t1Completed)
	require.NotEqual(t, -1, t2Started)
	assert.Less(t, t1Completed, t2Started, "expected task_completed(t1) before task_started(t2)")
}

func TestCycleDetectedNoTaskStarted(t *testing.T) {
	plan := PlanResult{
		Tasks: []*models.Task{
			{ID: "t1", Name: "a", AgentName: "builder-1", Status: models.TaskPending, Dependencies: []string{"t2"}},
			{ID: "t2", Name: "b", AgentName: "builder-1", Status: models.TaskPending, Dependencies: []string{"t1"}},
		},
		Agents: []*models.Agent{{Name: "builder-1", Role: models.RoleBuilder}},
	}
	planner := &FixedPlanner{Result: plan}
	runner := agentrunner.NewScriptedRunner()
	spec := &models.Spec{Nugget: models.NuggetInfo{Goal: "a cyclic plan"}}

	o, appErr := StartSession(context.Background(), newSession(), spec, "", planner, runner, &fakeGit{}, workspace.NewPolicy("", 0), defaultSchedCfg(), 500_000, nil)
	require.Nil(t, appErr)
	defer o.Cleanup()

	events := drain(t, o, 5*time.Second)
	for _, ev := range events {
		assert.NotEqual(t, eventstream.TypeTaskStarted, ev.Type, "no task_started should ever be emitted for a cyclic plan")
	}
	require.NotEmpty(t, events)
	assert.Equal(t, eventstream.TypeError, events[len(events)-1].Type)
}

func TestPlannerFailureProducesErrorEvent(t *testing.T) {
	planner := &FixedPlanner{Err: ErrPlannerFailed}
	runner := agentrunner.NewScriptedRunner()
	spec := &models.Spec{Nugget: models.NuggetInfo{Goal: "whatever"}}

	o, appErr := StartSession(context.Background(), newSession(), spec, "", planner, runner, &fakeGit{}, workspace.NewPolicy("", 0), defaultSchedCfg(), 500_000, nil)
	require.Nil(t, appErr)
	defer o.Cleanup()

	events := drain(t, o, 5*time.Second)
	require.NotEmpty(t, events)
	assert.Equal(t, eventstream.TypeError, events[len(events)-1].Type)
}

func TestInvalidSpecRejectedBeforeStart(t *testing.T) {
	planner := &FixedPlanner{}
	runner := agentrunner.NewScriptedRunner()
	spec := &models.Spec{} // missing goal

	_, appErr := StartSession(context.Background(), newSession(), spec, "", planner, runner, &fakeGit{}, workspace.NewPolicy("", 0), defaultSchedCfg(), 500_000, nil)
	assert.NotNil(t, appErr, "expected InvalidSpec error for missing goal")
}
