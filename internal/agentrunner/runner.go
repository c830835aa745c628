// Package agentrunner defines the narrow, opaque interface the core
// uses to drive a language-model-backed agent through one task attempt.
// The concrete runtime (provisioning, per-agent turns, audio) is
// explicitly out of scope; this package only states the contract and
// a deterministic fake for tests.
package agentrunner

import "context"

// Result is what one AgentRunner attempt returns to the scheduler.
type Result struct {
	Success      bool
	Summary      string
	InputTokens  int64
	OutputTokens int64
	CostUSD      float64
	// Question, when non-nil, signals the agent paused mid-task to ask
	// the user something. The scheduler holds the attempt open rather
	// than treating it as success or failure.
	Question *Question
}

// Question is the payload of a mid-task question.
type Question struct {
	Prompt string
	Schema map[string]any
}

// Request carries everything one attempt needs.
type Request struct {
	TaskID       string
	SystemPrompt string
	UserPrompt   string
	MaxTurns     int
	// Answers, when non-empty, is the user's reply to a prior Question.
	// The scheduler also renders it into UserPrompt as a <user_input
	// name="answers"> block.
	Answers map[string]any
}

// Runner executes one task attempt. Implementations must respect ctx
// cancellation promptly. The orchestrator's Cancel does not cancel ctx:
// it sets an abort flag that the scheduler checks between attempts, so
// an in-flight Run is not interrupted by it.
type Runner interface {
	Run(ctx context.Context, req Request) (Result, error)
}
