package eventstream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitOrderPreserved(t *testing.T) {
	s := New(4)
	ctx := context.Background()

	go func() {
		s.Emit(ctx, Event{Type: TypePlanningStarted})
		s.Emit(ctx, Event{Type: TypeTaskStarted, TaskID: "t1"})
		s.Emit(ctx, Event{Type: TypeTaskCompleted, TaskID: "t1"})
		s.Close()
	}()

	var got []Type
	for ev := range s.Events() {
		got = append(got, ev.Type)
	}

	want := []Type{TypePlanningStarted, TypeTaskStarted, TypeTaskCompleted}
	assert.Equal(t, want, got)
}

func TestEmitBlocksOnFullBuffer(t *testing.T) {
	s := New(0)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		s.Emit(ctx, Event{Type: TypeTaskStarted})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("emit did not return after context cancellation")
	}
}

func TestCloseIdempotent(t *testing.T) {
	s := New(1)
	s.Close()
	s.Close() // must not panic
}

func TestGitAndTestLogSnapshots(t *testing.T) {
	s := New(4)
	ctx := context.Background()

	s.Emit(ctx, Event{Type: TypeCommitCreated, SHA: "abc123", TaskID: "t1"})
	s.Emit(ctx, Event{Type: TypeTestResult, TestName: "unit", Passed: true})
	<-s.Events()
	<-s.Events()

	gitLog := s.GitLog()
	require.Len(t, gitLog, 1)
	assert.Equal(t, "abc123", gitLog[0].SHA)

	testLog := s.TestLog()
	require.Len(t, testLog, 1)
	assert.Equal(t, "unit", testLog[0].TestName)
}
