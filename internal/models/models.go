// Package models defines the orchestrator's core data model: the
// session, its tasks and agents, and the build request they came from.
package models

import (
	"regexp"
	"time"
)

var revisionSuffixRe = regexp.MustCompile(`-revision-\d+$`)

// Phase is the session's position in the build lifecycle. It only ever
// advances forward.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhasePlanning   Phase = "planning"
	PhaseExecuting  Phase = "executing"
	PhaseTesting    Phase = "testing"
	PhaseDeploying  Phase = "deploying"
	PhaseDone       Phase = "done"
)

// TaskStatus is a task's position in its own lifecycle.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskRevising  TaskStatus = "revising"
	TaskBlocked   TaskStatus = "blocked"
)

// AgentRole selects which PromptAssembler module builds a task's prompts.
type AgentRole string

const (
	RoleBuilder  AgentRole = "builder"
	RoleTester   AgentRole = "tester"
	RoleReviewer AgentRole = "reviewer"
	RoleCustom   AgentRole = "custom"
)

// Agent is a named role instance available to the planner's task
// assignments.
type Agent struct {
	Name            string    `json:"name"`
	Role            AgentRole `json:"role"`
	Persona         string    `json:"persona"`
	AllowedPaths    []string  `json:"allowed_paths,omitempty"`
	RestrictedPaths []string  `json:"restricted_paths,omitempty"`
}

// Task is a single unit of work assigned to one agent, with acceptance
// criteria and dependencies. Revisions are never in-place mutations —
// they are freshly inserted tasks depending on the failed task.
type Task struct {
	ID                 string     `json:"id"`
	Name               string     `json:"name"`
	Description        string     `json:"description"`
	Status             TaskStatus `json:"status"`
	AgentName          string     `json:"agent_name"`
	AcceptanceCriteria []string   `json:"acceptance_criteria,omitempty"`
	Dependencies       []string   `json:"dependencies,omitempty"`
	OutputSummary      string     `json:"output_summary,omitempty"`
	RetryCount         int        `json:"retry_count"`
}

// IsRevision reports whether this task was inserted as a successor of a
// failed task (its id carries the "-revision-N" marker).
func (t *Task) IsRevision() bool {
	return revisionSuffixRe.MatchString(t.ID)
}

// Session represents one build run, from idle to done. Exactly one live
// orchestrator exists for a started session.
type Session struct {
	ID            string    `json:"id"`
	Phase         Phase     `json:"phase"`
	Spec          *Spec     `json:"spec,omitempty"`
	Tasks         []*Task   `json:"tasks,omitempty"`
	Agents        []*Agent  `json:"agents,omitempty"`
	WorkspacePath string    `json:"workspace_path,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// TaskByID returns the task with the given id, or nil.
func (s *Session) TaskByID(id string) *Task {
	for _, t := range s.Tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}
