// Package scheduler implements the DAG Scheduler: pulls ready tasks,
// drives them through PromptAssembler + AgentRunner within a bounded
// worker pool, and handles retries, human gates, mid-task questions,
// revision tasks, and token-budget gating. Grounded on
// apps/backend/internal/orchestrator/scheduler/scheduler.go's retry-
// tracking-via-map-plus-mutex pattern and the ready-queue/worker-pool
// shape of other_examples' Kahn's-algorithm DAGScheduler.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/elisalabs/nugget-orchestrator/internal/agentrunner"
	"github.com/elisalabs/nugget-orchestrator/internal/common/apperrors"
	"github.com/elisalabs/nugget-orchestrator/internal/common/logger"
	"github.com/elisalabs/nugget-orchestrator/internal/dag"
	"github.com/elisalabs/nugget-orchestrator/internal/eventstream"
	"github.com/elisalabs/nugget-orchestrator/internal/models"
	"github.com/elisalabs/nugget-orchestrator/internal/prompt"
	"github.com/elisalabs/nugget-orchestrator/internal/token"
)

const (
	// GateRetriesExhausted fires once a task has failed MaxRetries times.
	GateRetriesExhausted = "retries_exhausted"
	// GateBudgetWarning fires when dispatching a task would push the
	// effective token budget past its maximum.
	GateBudgetWarning = "budget_warning"
	// GateWorkflowMidpoint fires once when at least half of the tasks
	// are terminal, if Config.MidpointGateEnabled is set; rejecting it
	// cancels the session.
	GateWorkflowMidpoint = "workflow_midpoint"

	defaultMaxTurns = 20
)

// WorkspaceLister optionally supplies the file manifest / structural
// digest PromptAssembler needs. A nil lister means every task sees an
// empty workspace — acceptable for sessions with no caller-supplied
// workspace.
type WorkspaceLister interface {
	Files(ctx context.Context) ([]string, error)
	Digest(ctx context.Context) (map[string][]string, error)
}

// Config carries the scheduler's tunable policy, normally sourced from
// internal/common/config.
type Config struct {
	MaxConcurrent        int
	MaxRetries           int
	ReservedPerTask      int64
	WarnThresholdPercent int
	GateResponseTimeout  time.Duration
	QuestionTimeout      time.Duration
	GateTimeoutPolicy    string // "approve" or "abort"
	MidpointGateEnabled  bool
}

// Scheduler drives one session's DAG to completion.
type Scheduler struct {
	graph         *dag.Graph
	agents        map[string]*models.Agent
	spec          *models.Spec
	runner        agentrunner.Runner
	git           Git
	stream        *eventstream.Stream
	budget        *token.Budget
	cfg           Config
	workspacePath string
	workspace     WorkspaceLister
	log           *logger.Logger

	mu              sync.Mutex
	retryCount      map[string]int
	revisionSeq     map[string]int
	pendingGate     *pendingGate
	pendingQuestion *pendingQuestion
	cancelled       bool
	completedCount  int
	totalCount      int
	summaries       map[string]string
	midpointFired   bool
}

// New constructs a Scheduler for one session's planned tasks and agents.
func New(
	graph *dag.Graph,
	agents map[string]*models.Agent,
	spec *models.Spec,
	runner agentrunner.Runner,
	git Git,
	stream *eventstream.Stream,
	budget *token.Budget,
	workspacePath string,
	workspace WorkspaceLister,
	cfg Config,
	log *logger.Logger,
) *Scheduler {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	return &Scheduler{
		graph:         graph,
		agents:        agents,
		spec:          spec,
		runner:        runner,
		git:           git,
		stream:        stream,
		budget:        budget,
		cfg:           cfg,
		workspacePath: workspacePath,
		workspace:     workspace,
		log:           log,
		retryCount:    make(map[string]int),
		revisionSeq:   make(map[string]int),
		summaries:     make(map[string]string),
		totalCount:    graph.TaskCount(),
	}
}

// Cancel sets the cooperative abort flag and resolves any pending
// gate/question synthetically so a blocked goroutine can observe it
// and unwind.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	s.cancelled = true
	gate := s.pendingGate
	question := s.pendingQuestion
	s.mu.Unlock()

	if gate != nil {
		select {
		case gate.replyCh <- GateResponse{Approved: false}:
		default:
		}
	}
	if question != nil {
		select {
		case question.replyCh <- QuestionResponse{}:
		default:
		}
	}
}

func (s *Scheduler) isCancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

// Run drives the DAG to completion, blocking until every task reaches a
// terminal status, the session is cancelled, or a session-level error
// occurs (budget rejection). Cycle detection already ran at graph
// construction (internal/dag.New), so Run never needs to detect one.
func (s *Scheduler) Run(ctx context.Context) *apperrors.AppError {
	sem := semaphore.NewWeighted(int64(s.cfg.MaxConcurrent))
	var wg sync.WaitGroup

	readyCh := make(chan *models.Task, 256)
	for _, t := range s.graph.ReadySet() {
		readyCh <- t
	}

	for {
		if s.isCancelled() {
			wg.Wait()
			return apperrors.Cancelled("session cancelled")
		}
		if s.allTerminal() {
			wg.Wait()
			return nil
		}

		select {
		case <-ctx.Done():
			wg.Wait()
			return apperrors.Cancelled("scheduler context cancelled")
		case t := <-readyCh:
			if appErr := s.admitForDispatch(ctx, t, readyCh); appErr != nil {
				wg.Wait()
				return appErr
			}
			if s.isCancelled() {
				wg.Wait()
				return apperrors.Cancelled("session cancelled")
			}

			if err := sem.Acquire(ctx, 1); err != nil {
				wg.Wait()
				return apperrors.Cancelled("scheduler context cancelled")
			}
			wg.Add(1)
			go func(task *models.Task) {
				defer wg.Done()
				defer sem.Release(1)
				s.runTask(ctx, task, readyCh)
			}(t)
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
}

// admitForDispatch applies the token-budget gate: it reserves tokens
// for the about-to-dispatch task, and if that pushes
// the effective budget over the maximum, opens a budget_warning gate
// instead of letting dispatch proceed. approved resumes dispatch;
// rejected aborts the session.
func (s *Scheduler) admitForDispatch(ctx context.Context, t *models.Task, readyCh chan *models.Task) *apperrors.AppError {
	s.budget.Reserve(s.cfg.ReservedPerTask)

	if !s.budget.ExceedsMax() {
		return nil
	}

	resp, cancelled := s.openGate(ctx, GateBudgetWarning, "", map[string]any{
		"task_id": t.ID,
	})
	if cancelled {
		return apperrors.Cancelled("session cancelled while awaiting budget gate")
	}
	if resp.Approved {
		return nil
	}
	s.budget.Release(s.cfg.ReservedPerTask)
	return apperrors.BudgetExceeded("effective token budget exceeded and the budget gate was rejected")
}

// runTask drives one task through attempts, retries, and — if
// necessary — the retries-exhausted gate and revision-task insertion.
func (s *Scheduler) runTask(ctx context.Context, task *models.Task, readyCh chan *models.Task) {
	task.Status = models.TaskRunning
	agent := s.agents[task.AgentName]
	s.stream.Emit(ctx, eventstream.Event{Type: eventstream.TypeTaskStarted, TaskID: task.ID, AgentName: task.AgentName})

	var failureContext string
	var answers map[string]any

	for {
		if s.isCancelled() {
			s.budget.Release(s.cfg.ReservedPerTask)
			return
		}

		result, err := s.attempt(ctx, task, agent, failureContext, answers)
		answers = nil
		if err != nil {
			s.budget.Release(s.cfg.ReservedPerTask)
			return // context cancelled mid-attempt
		}

		if result.Question != nil {
			resp, cancelled := s.awaitQuestion(ctx, task.ID, *result.Question)
			if cancelled {
				s.budget.Release(s.cfg.ReservedPerTask)
				return
			}
			if resp.TimedOut {
				result = agentrunner.Result{Success: false, Summary: "question timed out waiting for a response"}
			} else {
				answers = resp.Answers
				continue
			}
		}

		if result.Success {
			s.finishTaskSuccess(ctx, task, agent, result, readyCh)
			return
		}

		s.mu.Lock()
		s.retryCount[task.ID]++
		retries := s.retryCount[task.ID]
		s.mu.Unlock()
		task.RetryCount = retries

		if retries < s.cfg.MaxRetries {
			failureContext = result.Summary
			continue
		}

		s.finishTaskRetriesExhausted(ctx, task, result, readyCh)
		return
	}
}

func (s *Scheduler) attempt(ctx context.Context, task *models.Task, agent *models.Agent, failureContext string, answers map[string]any) (agentrunner.Result, error) {
	var files []string
	var digest map[string][]string
	if s.workspace != nil {
		files, _ = s.workspace.Files(ctx)
		digest, _ = s.workspace.Digest(ctx)
	}

	rendered := prompt.Assemble(prompt.Context{
		Task:                 task,
		Agent:                agent,
		Spec:                 s.spec,
		TaskByID:             s.taskByID(),
		PredecessorSummaries: s.predecessorSummaries(),
		WorkspacePath:        s.workspacePath,
		WorkspaceFiles:       files,
		StructuralDigest:     digest,
		MaxTurns:             defaultMaxTurns,
		FailureContext:       failureContext,
		Answers:              answers,
	})

	result, err := s.runner.Run(ctx, agentrunner.Request{
		TaskID:       task.ID,
		SystemPrompt: rendered.SystemPrompt,
		UserPrompt:   rendered.UserPrompt,
		MaxTurns:     defaultMaxTurns,
		Answers:      answers,
	})
	if err != nil {
		return result, err
	}

	s.stream.Emit(ctx, eventstream.Event{Type: eventstream.TypeAgentOutput, TaskID: task.ID, Content: result.Summary})
	s.stream.Emit(ctx, eventstream.Event{
		Type:         eventstream.TypeTokenUsage,
		AgentName:    task.AgentName,
		InputTokens:  result.InputTokens,
		OutputTokens: result.OutputTokens,
		CostUSD:      result.CostUSD,
	})

	return result, nil
}

func (s *Scheduler) finishTaskSuccess(ctx context.Context, task *models.Task, agent *models.Agent, result agentrunner.Result, readyCh chan *models.Task) {
	s.budget.Release(s.cfg.ReservedPerTask)
	s.budget.Add(task.AgentName, result.InputTokens, result.OutputTokens, result.CostUSD)
	if s.budget.WarnThresholdCrossed(s.cfg.WarnThresholdPercent) {
		snap := s.budget.Snapshot()
		if s.log != nil {
			s.log.Warn("token budget warn threshold crossed",
				zap.Int64("effective", snap.Effective), zap.Int64("max_budget", snap.MaxBudget),
				zap.Int("warn_threshold_percent", s.cfg.WarnThresholdPercent))
		}
		s.stream.Emit(ctx, eventstream.Event{Type: eventstream.TypeBudgetWarning, Context: map[string]any{
			"effective": snap.Effective, "max_budget": snap.MaxBudget, "warn_threshold_percent": s.cfg.WarnThresholdPercent,
		}})
	}

	if s.git != nil {
		sha, err := s.git.Commit(ctx, s.workspacePath, task.ID, task.AgentName, "task "+task.ID+" completed")
		if err == nil {
			s.stream.Emit(ctx, eventstream.Event{Type: eventstream.TypeCommitCreated, SHA: sha, AgentName: task.AgentName, TaskID: task.ID})
		}
	}

	task.Status = models.TaskCompleted
	task.OutputSummary = result.Summary
	s.mu.Lock()
	s.summaries[task.ID] = result.Summary
	s.mu.Unlock()

	s.stream.Emit(ctx, eventstream.Event{Type: eventstream.TypeTaskCompleted, TaskID: task.ID})

	unblocked := s.graph.CompleteAndUnblock(task.ID)
	for _, u := range unblocked {
		readyCh <- u
	}
	s.markOneCompleted(ctx)
}

func (s *Scheduler) finishTaskRetriesExhausted(ctx context.Context, task *models.Task, result agentrunner.Result, readyCh chan *models.Task) {
	resp, cancelled := s.openGate(ctx, GateRetriesExhausted, task.ID, map[string]any{"summary": result.Summary})
	if cancelled {
		s.budget.Release(s.cfg.ReservedPerTask)
		return
	}

	task.Status = models.TaskFailed
	s.budget.Release(s.cfg.ReservedPerTask)

	if resp.Approved {
		s.markOneCompleted(ctx)
		return
	}

	if resp.Feedback == "" {
		// Rejected with no feedback: nothing actionable, treat like approve.
		s.markOneCompleted(ctx)
		return
	}

	s.mu.Lock()
	s.revisionSeq[task.ID]++
	n := s.revisionSeq[task.ID]
	s.totalCount++
	s.mu.Unlock()

	revision := &models.Task{
		ID:           fmt.Sprintf("%s-revision-%d", task.ID, n),
		Name:         task.Name + " (revision)",
		Description:  resp.Feedback,
		Status:       models.TaskPending,
		AgentName:    task.AgentName,
		Dependencies: []string{task.ID},
	}
	ready := s.graph.InsertRevision(task.ID, revision)
	s.markOneCompleted(ctx) // the original failed task is terminal
	for _, r := range ready {
		readyCh <- r
	}
}

func (s *Scheduler) markOneCompleted(ctx context.Context) {
	s.mu.Lock()
	s.completedCount++
	completed, total, midpointEligible := s.completedCount, s.totalCount, s.cfg.MidpointGateEnabled && !s.midpointFired
	s.mu.Unlock()

	if midpointEligible && total > 0 && completed*2 >= total {
		s.mu.Lock()
		s.midpointFired = true
		s.mu.Unlock()

		resp, cancelled := s.openGate(ctx, GateWorkflowMidpoint, "", map[string]any{
			"completed": completed, "total": total,
		})
		if cancelled {
			return
		}
		if !resp.Approved {
			s.mu.Lock()
			s.cancelled = true
			s.mu.Unlock()
		}
	}
}

func (s *Scheduler) allTerminal() bool {
	return s.graph.AllTerminal()
}

func (s *Scheduler) taskByID() map[string]*models.Task {
	out := make(map[string]*models.Task)
	for _, id := range s.graph.IDs() {
		if t := s.graph.Task(id); t != nil {
			out[id] = t
		}
	}
	return out
}

func (s *Scheduler) predecessorSummaries() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.summaries))
	for k, v := range s.summaries {
		out[k] = v
	}
	return out
}

// openGate opens the single session-wide gate slot, emits human_gate,
// and blocks until a response arrives, the configured timeout elapses,
// or the session is cancelled. It is an invariant violation to call
// this while another gate is already pending — the scheduler never
// does, since dispatch and retries-exhausted handling are the only two
// callers and both hold exclusivity over their own task.
func (s *Scheduler) openGate(ctx context.Context, kind, taskID string, gateCtx map[string]any) (GateResponse, bool) {
	replyCh := make(chan GateResponse, 1)
	s.mu.Lock()
	s.pendingGate = &pendingGate{kind: kind, taskID: taskID, replyCh: replyCh}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.pendingGate = nil
		s.mu.Unlock()
	}()

	s.stream.Emit(ctx, eventstream.Event{Type: eventstream.TypeHumanGate, GateKind: kind, Context: gateCtx})

	timeout := s.cfg.GateResponseTimeout
	if timeout <= 0 {
		timeout = time.Hour
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-replyCh:
		return resp, false
	case <-timer.C:
		return GateResponse{Approved: s.cfg.GateTimeoutPolicy != "abort"}, false
	case <-ctx.Done():
		return GateResponse{}, true
	}
}

// awaitQuestion opens the single session-wide question slot for one
// task, emits task_question, and blocks for an answer, the configured
// timeout, or cancellation.
func (s *Scheduler) awaitQuestion(ctx context.Context, taskID string, q agentrunner.Question) (QuestionResponse, bool) {
	replyCh := make(chan QuestionResponse, 1)
	s.mu.Lock()
	s.pendingQuestion = &pendingQuestion{taskID: taskID, replyCh: replyCh}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.pendingQuestion = nil
		s.mu.Unlock()
	}()

	s.stream.Emit(ctx, eventstream.Event{Type: eventstream.TypeTaskQuestion, TaskID: taskID, Prompt: q.Prompt, Schema: q.Schema})

	timeout := s.cfg.QuestionTimeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-replyCh:
		return resp, false
	case <-timer.C:
		return QuestionResponse{TimedOut: true}, false
	case <-ctx.Done():
		return QuestionResponse{}, true
	}
}
