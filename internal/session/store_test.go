package session

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elisalabs/nugget-orchestrator/internal/common/apperrors"
	"github.com/elisalabs/nugget-orchestrator/internal/models"
)

func TestConcurrentStartOneWinnerOneConflict(t *testing.T) {
	s := New(time.Minute, nil)
	sess := s.Create()

	const n = 20
	var wins, conflicts int64
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			if err := s.TryStart(sess.ID); err != nil {
				if apperrors.Is(err, apperrors.CodeAlreadyStarted) {
					atomic.AddInt64(&conflicts, 1)
				}
				return
			}
			atomic.AddInt64(&wins, 1)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, wins)
	assert.EqualValues(t, n-1, conflicts)
}

func TestResetAllowsRetryAfterValidationFailure(t *testing.T) {
	s := New(time.Minute, nil)
	sess := s.Create()

	require.Nil(t, s.TryStart(sess.ID))
	s.Reset(sess.ID)

	assert.Nil(t, s.TryStart(sess.ID))
}

func TestGetUnknownSessionNotFound(t *testing.T) {
	s := New(time.Minute, nil)
	_, err := s.Get("does-not-exist")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))
}

type fakeOrch struct {
	cancelled bool
	cleanedUp int
	snap      *models.Session
}

func (f *fakeOrch) Cancel()                   { f.cancelled = true }
func (f *fakeOrch) Snapshot() *models.Session { return f.snap }
func (f *fakeOrch) Cleanup() error            { f.cleanedUp++; return nil }

func TestStopCancelsOrchestratorAndIsIdempotent(t *testing.T) {
	s := New(10*time.Millisecond, nil)
	sess := s.Create()
	require.Nil(t, s.TryStart(sess.ID))

	orch := &fakeOrch{snap: sess}
	s.Started(sess.ID, orch)

	require.Nil(t, s.Stop(sess.ID))
	assert.True(t, orch.cancelled)

	assert.Nil(t, s.Stop(sess.ID))
}

func TestStopSchedulesWorkspaceCleanup(t *testing.T) {
	grace := 10 * time.Millisecond
	s := New(grace, nil)
	sess := s.Create()
	require.Nil(t, s.TryStart(sess.ID))

	orch := &fakeOrch{snap: sess}
	s.Started(sess.ID, orch)

	require.Nil(t, s.Stop(sess.ID))

	assert.Eventually(t, func() bool {
		return orch.cleanedUp == 1
	}, time.Second, 5*time.Millisecond, "expected Cleanup to run once after the grace period")
}
