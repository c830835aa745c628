package eventstream

import (
	"context"
	"sync"
)

// Stream is a single-writer, single-reader-per-session ordered event
// channel. Delivery is FIFO and reliable: if the consumer is slow, Emit
// blocks (back-pressure) rather than dropping events.
type Stream struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool

	// accumulated log snapshots, for the /git and /tests endpoints and
	// the consumer's "request the full accumulated event log" contract.
	gitLog  []Event
	testLog []Event
}

// New returns a Stream with the given channel buffer size. A buffer of
// 0 gives the strictest possible back-pressure; sessions typically use
// a small buffer so a burst of agent_output events does not stall the
// scheduler on every single emit.
func New(buffer int) *Stream {
	return &Stream{ch: make(chan Event, buffer)}
}

// Emit appends ev to the stream, blocking if the consumer has not kept
// up (back-pressure) or the context is cancelled. It records commit and
// test events into their respective snapshot logs as a side effect,
// preserving emission order.
func (s *Stream) Emit(ctx context.Context, ev Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	switch ev.Type {
	case TypeCommitCreated:
		s.gitLog = append(s.gitLog, ev)
	case TypeTestResult:
		s.testLog = append(s.testLog, ev)
	}
	s.mu.Unlock()

	select {
	case s.ch <- ev:
	case <-ctx.Done():
	}
}

// Events returns the receive side of the stream for the one downstream
// consumer.
func (s *Stream) Events() <-chan Event {
	return s.ch
}

// Close signals no further events will be emitted. Idempotent.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// GitLog returns a snapshot of every commit_created event emitted so far.
func (s *Stream) GitLog() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.gitLog))
	copy(out, s.gitLog)
	return out
}

// TestLog returns a snapshot of every test_result event emitted so far.
func (s *Stream) TestLog() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.testLog))
	copy(out, s.testLog)
	return out
}
