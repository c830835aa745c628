package agentrunner

import (
	"context"
	"sync"
)

// ScriptedRunner is a deterministic test double: it returns the next
// Result queued for a given task id, falling back to a default if the
// queue for that task is exhausted. Used by scheduler/orchestrator
// tests to drive concrete scenarios without a real LM, and as the
// default runner cmd/ wires when no external agent backend is
// configured.
type ScriptedRunner struct {
	mu      sync.Mutex
	queue   map[string][]Result
	Default Result
	// Calls records every request this runner received, in order, for
	// assertions about retry/failure-context behavior.
	Calls []Request
}

// NewScriptedRunner returns a ScriptedRunner whose default response is
// a bare success.
func NewScriptedRunner() *ScriptedRunner {
	return &ScriptedRunner{
		queue:   make(map[string][]Result),
		Default: Result{Success: true, Summary: "done"},
	}
}

// Enqueue appends a result to taskID's response queue.
func (r *ScriptedRunner) Enqueue(taskID string, result Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queue[taskID] = append(r.queue[taskID], result)
}

// Run implements Runner.
func (r *ScriptedRunner) Run(ctx context.Context, req Request) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Calls = append(r.Calls, req)

	q := r.queue[req.TaskID]
	if len(q) == 0 {
		return r.Default, nil
	}
	next := q[0]
	r.queue[req.TaskID] = q[1:]
	return next, nil
}
