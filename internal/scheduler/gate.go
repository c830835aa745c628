package scheduler

import (
	"context"

	"github.com/elisalabs/nugget-orchestrator/internal/common/apperrors"
)

// GateResponse is the caller's reply to a pending human gate.
type GateResponse struct {
	Approved bool
	Feedback string
}

// QuestionResponse is the caller's reply to a pending mid-task
// question. TimedOut is set instead of Answers when no reply arrived
// within the configured QuestionTimeout.
type QuestionResponse struct {
	Answers  map[string]any
	TimedOut bool
}

// pendingGate and pendingQuestion are the scheduler's single-slot
// suspension points: both protocols are single-slot per session, so
// only one of either may be outstanding at a time.
type pendingGate struct {
	kind     string
	taskID   string // empty for session-level gates such as budget_warning
	replyCh  chan GateResponse
}

type pendingQuestion struct {
	taskID  string
	replyCh chan QuestionResponse
}

// RespondToGate delivers a caller's gate decision. It is an error to
// call this when no gate is pending.
func (s *Scheduler) RespondToGate(ctx context.Context, approved bool, feedback string) *apperrors.AppError {
	s.mu.Lock()
	g := s.pendingGate
	s.mu.Unlock()

	if g == nil {
		return apperrors.Conflict("no human gate is pending")
	}
	select {
	case g.replyCh <- GateResponse{Approved: approved, Feedback: feedback}:
		return nil
	case <-ctx.Done():
		return apperrors.Internal("gate response delivery cancelled", ctx.Err())
	}
}

// RespondToQuestion delivers a caller's answer to a pending mid-task
// question.
func (s *Scheduler) RespondToQuestion(ctx context.Context, taskID string, answers map[string]any) *apperrors.AppError {
	s.mu.Lock()
	q := s.pendingQuestion
	s.mu.Unlock()

	if q == nil || q.taskID != taskID {
		return apperrors.Conflict("no question is pending for this task")
	}
	select {
	case q.replyCh <- QuestionResponse{Answers: answers}:
		return nil
	case <-ctx.Done():
		return apperrors.Internal("question response delivery cancelled", ctx.Err())
	}
}

// HasPendingGate reports whether a gate is currently open.
func (s *Scheduler) HasPendingGate() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingGate != nil
}
