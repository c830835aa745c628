package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elisalabs/nugget-orchestrator/internal/agentrunner"
	"github.com/elisalabs/nugget-orchestrator/internal/dag"
	"github.com/elisalabs/nugget-orchestrator/internal/eventstream"
	"github.com/elisalabs/nugget-orchestrator/internal/models"
	"github.com/elisalabs/nugget-orchestrator/internal/token"
)

type fakeGit struct {
	mu      sync.Mutex
	commits int
}

func (g *fakeGit) Commit(ctx context.Context, workspacePath, taskID, agentName, message string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.commits++
	return "deadbeef", nil
}

func newScheduler(t *testing.T, tasks []*models.Task, agents map[string]*models.Agent, runner agentrunner.Runner, cfg Config) (*Scheduler, *eventstream.Stream) {
	t.Helper()
	graph, err := dag.New(tasks)
	require.NoError(t, err)
	stream := eventstream.New(256)
	budget := token.New(500_000)
	if cfg.GateResponseTimeout == 0 {
		cfg.GateResponseTimeout = 2 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	return New(graph, agents, &models.Spec{}, runner, &fakeGit{}, stream, budget, "/tmp/ws", nil, cfg, nil), stream
}

func drainEvents(stream *eventstream.Stream) []eventstream.Event {
	var out []eventstream.Event
	for {
		select {
		case ev := <-stream.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestRetryThenRecoverNoGate(t *testing.T) {
	task := &models.Task{ID: "t1", AgentName: "builder-1", Status: models.TaskPending}
	agents := map[string]*models.Agent{"builder-1": {Name: "builder-1", Role: models.RoleBuilder}}

	runner := agentrunner.NewScriptedRunner()
	runner.Enqueue("t1", agentrunner.Result{Success: false, Summary: "compile error"})
	runner.Enqueue("t1", agentrunner.Result{Success: true, Summary: "fixed it"})

	s, stream := newScheduler(t, []*models.Task{task}, agents, runner, Config{MaxConcurrent: 1})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.Nil(t, s.Run(ctx))

	assert.Equal(t, models.TaskCompleted, task.Status)
	assert.Equal(t, 1, task.RetryCount)

	for _, ev := range drainEvents(stream) {
		assert.NotEqual(t, eventstream.TypeHumanGate, ev.Type, "unexpected human_gate event for a recovered retry")
	}
}

func TestRetriesExhaustedGateRejectInsertsRevision(t *testing.T) {
	task := &models.Task{ID: "t1", AgentName: "builder-1", Status: models.TaskPending}
	dependent := &models.Task{ID: "t2", AgentName: "builder-1", Status: models.TaskPending, Dependencies: []string{"t1"}}
	agents := map[string]*models.Agent{"builder-1": {Name: "builder-1", Role: models.RoleBuilder}}

	runner := agentrunner.NewScriptedRunner()
	for i := 0; i < 3; i++ {
		runner.Enqueue("t1", agentrunner.Result{Success: false, Summary: "still broken"})
	}
	runner.Enqueue("t1-revision-1", agentrunner.Result{Success: true, Summary: "revision fixed it"})
	runner.Default = agentrunner.Result{Success: true, Summary: "done"}

	s, stream := newScheduler(t, []*models.Task{task, dependent}, agents, runner, Config{MaxConcurrent: 1, MaxRetries: 3})

	go func() {
		deadline := time.After(2 * time.Second)
		for {
			if s.HasPendingGate() {
				_ = s.RespondToGate(context.Background(), false, "please retry with a different approach")
				return
			}
			select {
			case <-deadline:
				return
			case <-time.After(time.Millisecond):
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.Nil(t, s.Run(ctx))

	assert.Equal(t, models.TaskFailed, task.Status)

	revision := s.graph.Task("t1-revision-1")
	require.NotNil(t, revision, "expected revision task t1-revision-1 to exist")
	assert.Equal(t, models.TaskCompleted, revision.Status)
	assert.Equal(t, models.TaskCompleted, dependent.Status, "dependent should be unblocked by the revision, not by the failed original")

	var sawGate bool
	for _, ev := range drainEvents(stream) {
		if ev.Type == eventstream.TypeHumanGate && ev.GateKind == GateRetriesExhausted {
			sawGate = true
		}
	}
	assert.True(t, sawGate, "expected a retries_exhausted human_gate event")
}

func TestBudgetWarningGateRejectedAbortsSession(t *testing.T) {
	task := &models.Task{ID: "t1", AgentName: "builder-1", Status: models.TaskPending}
	agents := map[string]*models.Agent{"builder-1": {Name: "builder-1", Role: models.RoleBuilder}}
	runner := agentrunner.NewScriptedRunner()

	graph, err := dag.New([]*models.Task{task})
	require.NoError(t, err)
	stream := eventstream.New(256)
	budget := token.New(10) // trivially small so reserving pushes over max
	cfg := Config{MaxConcurrent: 1, MaxRetries: 3, ReservedPerTask: 1000, GateResponseTimeout: 2 * time.Second}
	s := New(graph, agents, &models.Spec{}, runner, &fakeGit{}, stream, budget, "/tmp/ws", nil, cfg, nil)

	go func() {
		deadline := time.After(2 * time.Second)
		for {
			if s.HasPendingGate() {
				_ = s.RespondToGate(context.Background(), false, "")
				return
			}
			select {
			case <-deadline:
				return
			case <-time.After(time.Millisecond):
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	appErr := s.Run(ctx)
	require.Error(t, appErr, "expected Run to return a budget-exceeded error")

	var sawBudgetGate bool
	for _, ev := range drainEvents(stream) {
		if ev.Type == eventstream.TypeHumanGate && ev.GateKind == GateBudgetWarning {
			sawBudgetGate = true
		}
	}
	assert.True(t, sawBudgetGate, "expected a budget_warning human_gate event")
}

func TestQuestionTimeoutCountsAsRetryNotFakeAnswer(t *testing.T) {
	task := &models.Task{ID: "t1", AgentName: "builder-1", Status: models.TaskPending}
	agents := map[string]*models.Agent{"builder-1": {Name: "builder-1", Role: models.RoleBuilder}}

	runner := agentrunner.NewScriptedRunner()
	runner.Enqueue("t1", agentrunner.Result{Question: &agentrunner.Question{Prompt: "which framework?"}})
	runner.Enqueue("t1", agentrunner.Result{Success: true, Summary: "proceeded without an answer"})

	s, stream := newScheduler(t, []*models.Task{task}, agents, runner, Config{MaxConcurrent: 1, MaxRetries: 3, QuestionTimeout: 20 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.Nil(t, s.Run(ctx))

	assert.Equal(t, models.TaskCompleted, task.Status)
	assert.Equal(t, 1, task.RetryCount, "a timed-out question should count against the retry policy")

	require.Len(t, runner.Calls, 2)
	assert.Nil(t, runner.Calls[1].Answers, "the retried attempt should not receive a fabricated answer")

	var sawQuestion bool
	for _, ev := range drainEvents(stream) {
		if ev.Type == eventstream.TypeTaskQuestion {
			sawQuestion = true
		}
	}
	assert.True(t, sawQuestion, "expected a task_question event for the asked question")
}

func TestQuestionTimeoutExhaustsRetriesOpensGate(t *testing.T) {
	task := &models.Task{ID: "t1", AgentName: "builder-1", Status: models.TaskPending}
	agents := map[string]*models.Agent{"builder-1": {Name: "builder-1", Role: models.RoleBuilder}}

	runner := agentrunner.NewScriptedRunner()
	runner.Default = agentrunner.Result{Question: &agentrunner.Question{Prompt: "which framework?"}}

	s, stream := newScheduler(t, []*models.Task{task}, agents, runner, Config{MaxConcurrent: 1, MaxRetries: 2, QuestionTimeout: 10 * time.Millisecond})

	go func() {
		deadline := time.After(2 * time.Second)
		for {
			if s.HasPendingGate() {
				_ = s.RespondToGate(context.Background(), true, "")
				return
			}
			select {
			case <-deadline:
				return
			case <-time.After(time.Millisecond):
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.Nil(t, s.Run(ctx))

	var sawGate bool
	for _, ev := range drainEvents(stream) {
		if ev.Type == eventstream.TypeHumanGate && ev.GateKind == GateRetriesExhausted {
			sawGate = true
		}
	}
	assert.True(t, sawGate, "an agent that keeps asking the same question should eventually exhaust retries and open a gate")
}

func TestWarnThresholdCrossedEmitsBudgetWarningEvent(t *testing.T) {
	task := &models.Task{ID: "t1", AgentName: "builder-1", Status: models.TaskPending}
	agents := map[string]*models.Agent{"builder-1": {Name: "builder-1", Role: models.RoleBuilder}}

	runner := agentrunner.NewScriptedRunner()
	runner.Enqueue("t1", agentrunner.Result{Success: true, Summary: "done", InputTokens: 90, OutputTokens: 0})

	graph, err := dag.New([]*models.Task{task})
	require.NoError(t, err)
	stream := eventstream.New(256)
	budget := token.New(100)
	cfg := Config{MaxConcurrent: 1, MaxRetries: 3, ReservedPerTask: 0, WarnThresholdPercent: 80, GateResponseTimeout: 2 * time.Second}
	s := New(graph, agents, &models.Spec{}, runner, &fakeGit{}, stream, budget, "/tmp/ws", nil, cfg, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.Nil(t, s.Run(ctx))

	var sawBudgetWarning bool
	for _, ev := range drainEvents(stream) {
		if ev.Type == eventstream.TypeBudgetWarning {
			sawBudgetWarning = true
			assert.Equal(t, int64(90), ev.Context["effective"])
		}
	}
	assert.True(t, sawBudgetWarning, "expected a budget_warning event once the 80%% warn threshold is crossed")
}

func TestMidpointGateSuspendsDispatchUntilApproved(t *testing.T) {
	t1 := &models.Task{ID: "t1", AgentName: "builder-1", Status: models.TaskPending}
	t2 := &models.Task{ID: "t2", AgentName: "builder-1", Status: models.TaskPending}
	agents := map[string]*models.Agent{"builder-1": {Name: "builder-1", Role: models.RoleBuilder}}
	runner := agentrunner.NewScriptedRunner()

	s, stream := newScheduler(t, []*models.Task{t1, t2}, agents, runner, Config{MaxConcurrent: 1, MidpointGateEnabled: true})

	go func() {
		deadline := time.After(2 * time.Second)
		for {
			if s.HasPendingGate() {
				_ = s.RespondToGate(context.Background(), true, "")
				return
			}
			select {
			case <-deadline:
				return
			case <-time.After(time.Millisecond):
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.Nil(t, s.Run(ctx))

	assert.Equal(t, models.TaskCompleted, t1.Status)
	assert.Equal(t, models.TaskCompleted, t2.Status)

	var sawMidpointGate bool
	for _, ev := range drainEvents(stream) {
		if ev.Type == eventstream.TypeHumanGate && ev.GateKind == GateWorkflowMidpoint {
			sawMidpointGate = true
		}
	}
	assert.True(t, sawMidpointGate, "expected a workflow_midpoint human_gate event")
}

func TestMidpointGateRejectedAbortsSession(t *testing.T) {
	t1 := &models.Task{ID: "t1", AgentName: "builder-1", Status: models.TaskPending}
	t2 := &models.Task{ID: "t2", AgentName: "builder-1", Status: models.TaskPending}
	agents := map[string]*models.Agent{"builder-1": {Name: "builder-1", Role: models.RoleBuilder}}
	runner := agentrunner.NewScriptedRunner()

	s, _ := newScheduler(t, []*models.Task{t1, t2}, agents, runner, Config{MaxConcurrent: 1, MidpointGateEnabled: true})

	go func() {
		deadline := time.After(2 * time.Second)
		for {
			if s.HasPendingGate() {
				_ = s.RespondToGate(context.Background(), false, "stop here")
				return
			}
			select {
			case <-deadline:
				return
			case <-time.After(time.Millisecond):
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	appErr := s.Run(ctx)
	require.NotNil(t, appErr)
	assert.Equal(t, models.TaskCompleted, t1.Status)
	assert.NotEqual(t, models.TaskCompleted, t2.Status, "dispatch should have been suspended and then aborted before t2 ran")
}

func TestDAGOrderRespected(t *testing.T) {
	t1 := &models.Task{ID: "t1", AgentName: "builder-1", Status: models.TaskPending}
	t2 := &models.Task{ID: "t2", AgentName: "builder-1", Status: models.TaskPending, Dependencies: []string{"t1"}}
	agents := map[string]*models.Agent{"builder-1": {Name: "builder-1", Role: models.RoleBuilder}}
	runner := agentrunner.NewScriptedRunner()

	s, stream := newScheduler(t, []*models.Task{t1, t2}, agents, runner, Config{MaxConcurrent: 2})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.Nil(t, s.Run(ctx))

	var startOrder []string
	for _, ev := range drainEvents(stream) {
		if ev.Type == eventstream.TypeTaskStarted {
			startOrder = append(startOrder, ev.TaskID)
		}
	}
	assert.Equal(t, []string{"t1", "t2"}, startOrder)
}
