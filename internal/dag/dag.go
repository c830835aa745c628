// Package dag holds the session's task dependency graph: ready-set
// computation, completion bookkeeping, and cycle detection via Kahn's
// algorithm.
package dag

import (
	"fmt"
	"sync"

	"github.com/elisalabs/nugget-orchestrator/internal/models"
)

// Graph tracks dependency edges (dependency → dependent) over a fixed
// set of tasks and exposes the ready set as tasks complete.
type Graph struct {
	mu sync.Mutex

	tasks      map[string]*models.Task
	downstream map[string][]string // dependency -> dependents
	inDegree   map[string]int       // task -> remaining unmet dependencies
	order      []string             // original task order, for stable iteration
}

// New builds a Graph from the given tasks. It returns an error if any
// task references an unknown dependency.
func New(tasks []*models.Task) (*Graph, error) {
	g := &Graph{
		tasks:      make(map[string]*models.Task, len(tasks)),
		downstream: make(map[string][]string),
		inDegree:   make(map[string]int, len(tasks)),
	}

	for _, t := range tasks {
		g.tasks[t.ID] = t
		g.order = append(g.order, t.ID)
		if _, ok := g.inDegree[t.ID]; !ok {
			g.inDegree[t.ID] = 0
		}
	}

	for _, t := range tasks {
		for _, dep := range t.Dependencies {
			if _, ok := g.tasks[dep]; !ok {
				return nil, fmt.Errorf("task %s depends on unknown task %s", t.ID, dep)
			}
			g.downstream[dep] = append(g.downstream[dep], t.ID)
			g.inDegree[t.ID]++
		}
	}

	if g.hasCycle() {
		return nil, fmt.Errorf("circular dependency detected among tasks")
	}

	return g, nil
}

// hasCycle runs Kahn's algorithm over a scratch copy of in-degrees; if
// it cannot consume every node, a cycle exists. Called once at
// construction, before any task is ever dispatched: cycle detection
// must run before any task_started is emitted.
func (g *Graph) hasCycle() bool {
	inDegree := make(map[string]int, len(g.inDegree))
	for k, v := range g.inDegree {
		inDegree[k] = v
	}

	queue := make([]string, 0, len(g.order))
	for _, id := range g.order {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		for _, down := range g.downstream[id] {
			inDegree[down]--
			if inDegree[down] == 0 {
				queue = append(queue, down)
			}
		}
	}

	return visited != len(g.order)
}

// ReadySet returns, in original task order, every pending task whose
// dependencies have all completed.
func (g *Graph) ReadySet() []*models.Task {
	g.mu.Lock()
	defer g.mu.Unlock()

	var ready []*models.Task
	for _, id := range g.order {
		t := g.tasks[id]
		if t.Status != models.TaskPending {
			continue
		}
		if g.inDegree[id] == 0 {
			ready = append(ready, t)
		}
	}
	return ready
}

// MarkCompleted records that task id has completed and decrements the
// in-degree of its dependents, potentially making them ready.
func (g *Graph) MarkCompleted(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.unblock(id)
}

// CompleteAndUnblock is MarkCompleted plus the newly-ready dependents it
// unblocked, in downstream-declaration order. Used by the scheduler's
// worker-pool loop to push freshly-ready tasks onto its dispatch queue
// without a separate ReadySet scan — grounded on the
// inDegree-decrement-then-push pattern in other_examples' Kahn's-
// algorithm DAGScheduler.
func (g *Graph) CompleteAndUnblock(id string) []*models.Task {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.unblock(id)
}

func (g *Graph) unblock(id string) []*models.Task {
	var newlyReady []*models.Task
	for _, down := range g.downstream[id] {
		g.inDegree[down]--
		if g.inDegree[down] == 0 {
			if t := g.tasks[down]; t != nil && t.Status == models.TaskPending {
				newlyReady = append(newlyReady, t)
			}
		}
	}
	return newlyReady
}

// AddTask inserts a new task into the graph with every dependency
// counted as unmet. The scheduler inserts revision tasks through
// InsertRevision instead.
func (g *Graph) AddTask(t *models.Task) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.tasks[t.ID] = t
	g.order = append(g.order, t.ID)
	g.inDegree[t.ID] = 0
	for _, dep := range t.Dependencies {
		g.inDegree[t.ID]++
		g.downstream[dep] = append(g.downstream[dep], t.ID)
	}
}

// AllTerminal reports whether every task has reached a terminal status
// (completed or failed).
func (g *Graph) AllTerminal() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, id := range g.order {
		s := g.tasks[id].Status
		if s != models.TaskCompleted && s != models.TaskFailed {
			return false
		}
	}
	return true
}

// Task returns the task with the given id, or nil.
func (g *Graph) Task(id string) *models.Task {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.tasks[id]
}

// TaskCount returns the number of tasks currently tracked, including
// revisions inserted after construction.
func (g *Graph) TaskCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.order)
}

// IDs returns every task id currently tracked, in original task order
// followed by any revisions appended after construction. Used by
// PromptAssembler's transitive predecessor walk, which needs to resolve
// a task's dependency ids to their full Task value.
func (g *Graph) IDs() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// InsertRevision inserts revision as a direct successor of failedID and
// retargets failedID's original dependents onto revision: revision's
// completion, not failedID's, satisfies them. failedID is terminal
// (failed) at this point and never completes normally, so
// revision starts immediately ready. Returns revision in a slice for
// the caller's dispatch-queue push, mirroring ReadySet/CompleteAndUnblock's
// shape.
func (g *Graph) InsertRevision(failedID string, revision *models.Task) []*models.Task {
	g.mu.Lock()
	defer g.mu.Unlock()

	originalDependents := g.downstream[failedID]
	g.downstream[failedID] = []string{revision.ID}

	g.tasks[revision.ID] = revision
	g.order = append(g.order, revision.ID)
	g.downstream[revision.ID] = originalDependents
	g.inDegree[revision.ID] = 0

	return []*models.Task{revision}
}
