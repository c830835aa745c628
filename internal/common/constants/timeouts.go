// Package constants provides orchestrator-wide constants.
package constants

import "time"

// Timeouts for various orchestrator operations. Most of these also
// exist as config knobs (see internal/common/config), which declare
// their own defaults; no code reads the constants below.
const (
	// DefaultAgentTurnTimeout is the default per-attempt AgentRunner
	// timeout value.
	DefaultAgentTurnTimeout = 15 * time.Minute

	// DefaultGateResponseTimeout bounds how long a human gate waits for a
	// caller-supplied approve/reject before applying the timeout policy.
	DefaultGateResponseTimeout = time.Hour

	// DefaultQuestionTimeout bounds how long a mid-task question waits for
	// an answer before the scheduler records "question timeout" as a
	// retryable failure.
	DefaultQuestionTimeout = 10 * time.Minute

	// DefaultCleanupGrace is the delay between a session reaching a
	// terminal phase and its removal from the SessionStore.
	DefaultCleanupGrace = 5 * time.Minute

	// CancelGrace is a grace period for in-flight workers to observe the
	// abort signal; Scheduler.Cancel returns without waiting for them.
	CancelGrace = 30 * time.Second
)

// MaxRetries is the number of AgentRunner retries attempted before the
// scheduler opens a human gate of kind retries_exhausted.
const MaxRetries = 3

// DefaultMaxBudget is the default effective token budget per session.
const DefaultMaxBudget = 500_000

// BudgetWarnThresholdPercent is the effective-budget percentage at which a
// single 80%-style warning event fires.
const BudgetWarnThresholdPercent = 80

// DefaultReservedPerTask is the token reservation placed on the budget
// before a task is dispatched, released and replaced by actuals on
// completion.
const DefaultReservedPerTask = 8_000

// MaxWorkspacePathLen is the maximum accepted length of a user-supplied
// workspace path.
const MaxWorkspacePathLen = 500

// MaxGoalLen / MaxDescriptionLen bound free-text NuggetSpec fields.
const (
	MaxGoalLen        = 2000
	MaxDescriptionLen = 4000
)

// PredecessorSummaryWordCap / CombinedPredecessorWordCap bound how much
// predecessor context the PromptAssembler injects into a task's user prompt.
const (
	PredecessorSummaryWordCap = 500
	CombinedPredecessorWordCap = 2000
)
