// Package session implements SessionStore: the in-memory registry of
// sessions, each keyed by an opaque id and owning an orchestrator
// handle, cancel function, and cleanup timer.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/elisalabs/nugget-orchestrator/internal/common/apperrors"
	"github.com/elisalabs/nugget-orchestrator/internal/common/logger"
	"github.com/elisalabs/nugget-orchestrator/internal/models"
)

// Orchestrator is the narrow interface Store holds per session; the
// concrete type lives in internal/orchestrator, which would otherwise
// import internal/session and create a cycle.
type Orchestrator interface {
	Cancel()
	Snapshot() *models.Session
	Cleanup() error
}

// entry is the store's internal per-session record.
type entry struct {
	mu           sync.Mutex
	session      *models.Session
	orchestrator Orchestrator
	starting     bool // true strictly between CAS-win and either success or rollback
	cleanupTimer *time.Timer
}

// Store is the process-local session registry. Safe for concurrent use.
type Store struct {
	mu            sync.RWMutex
	entries       map[string]*entry
	cleanupGrace  time.Duration
	log           *logger.Logger
	stopCh        chan struct{}
}

// New returns an empty Store.
func New(cleanupGrace time.Duration, log *logger.Logger) *Store {
	return &Store{
		entries:      make(map[string]*entry),
		cleanupGrace: cleanupGrace,
		log:          log,
		stopCh:       make(chan struct{}),
	}
}

// Create returns a fresh idle session.
func (s *Store) Create() *models.Session {
	sess := &models.Session{
		ID:        uuid.NewString(),
		Phase:     models.PhaseIdle,
		CreatedAt: time.Now(),
	}
	s.mu.Lock()
	s.entries[sess.ID] = &entry{session: sess}
	s.mu.Unlock()
	return sess
}

// Get returns a snapshot of the session, or NotFound.
func (s *Store) Get(id string) (*models.Session, *apperrors.AppError) {
	e := s.lookup(id)
	if e == nil {
		return nil, apperrors.NotFound("session not found")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.orchestrator != nil {
		return e.orchestrator.Snapshot(), nil
	}
	return e.session, nil
}

func (s *Store) lookup(id string) *entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[id]
}

// TryStart performs the atomic idle -> planning transition: exactly
// one caller observes prior state idle and proceeds; every other
// concurrent caller gets AlreadyStarted immediately. The
// winning caller must call either Started (on success) or Reset (on
// subsequent validation failure) to leave the entry in a consistent
// state.
func (s *Store) TryStart(id string) *apperrors.AppError {
	e := s.lookup(id)
	if e == nil {
		return apperrors.NotFound("session not found")
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session.Phase != models.PhaseIdle || e.starting {
		return apperrors.AlreadyStarted(id)
	}
	e.starting = true
	e.session.Phase = models.PhasePlanning
	return nil
}

// Reset rolls a failed start back to idle: if validation subsequently
// fails, the phase must be reset to idle so a valid retry can proceed.
func (s *Store) Reset(id string) {
	e := s.lookup(id)
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.starting = false
	e.session.Phase = models.PhaseIdle
}

// Started installs the live orchestrator for a session once planning
// has genuinely begun, completing the TryStart/Started pair.
func (s *Store) Started(id string, orch Orchestrator) {
	e := s.lookup(id)
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.starting = false
	e.orchestrator = orch
}

// Stop cancels the session's orchestrator, if any, and schedules
// cleanup. Idempotent: stopping a session with no live orchestrator, or
// one already stopped, is a no-op.
func (s *Store) Stop(id string) *apperrors.AppError {
	e := s.lookup(id)
	if e == nil {
		return apperrors.NotFound("session not found")
	}
	e.mu.Lock()
	orch := e.orchestrator
	e.mu.Unlock()

	if orch != nil {
		orch.Cancel()
	}
	s.scheduleCleanup(id)
	return nil
}

// scheduleCleanup arms the per-session cleanup timer: after the
// configured grace period it removes the orchestrator-owned workspace
// directory (if any) and drops the session from the store. Exported
// behavior is idempotent: re-arming a timer for an already-scheduled
// session simply resets it.
func (s *Store) scheduleCleanup(id string) {
	e := s.lookup(id)
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cleanupTimer != nil {
		e.cleanupTimer.Stop()
	}
	e.cleanupTimer = time.AfterFunc(s.cleanupGrace, func() {
		s.cleanupWorkspace(id)
		s.remove(id)
		if s.log != nil {
			s.log.WithSession(id).Info("session removed after cleanup grace period")
		}
	})
}

// cleanupWorkspace removes the orchestrator-owned workspace directory
// for id, if a live orchestrator is installed.
func (s *Store) cleanupWorkspace(id string) {
	e := s.lookup(id)
	if e == nil {
		return
	}
	e.mu.Lock()
	orch := e.orchestrator
	e.mu.Unlock()

	if orch == nil {
		return
	}
	if err := orch.Cleanup(); err != nil && s.log != nil {
		s.log.WithSession(id).Warn("workspace cleanup failed", zap.Error(err))
	}
}

func (s *Store) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
}

// Shutdown stops all pending cleanup timers; used on process shutdown.
func (s *Store) Shutdown() {
	close(s.stopCh)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		e.mu.Lock()
		if e.cleanupTimer != nil {
			e.cleanupTimer.Stop()
		}
		e.mu.Unlock()
	}
}

// GateHandler and QuestionHandler let the transport deliver gate/
// question responses without the store needing to know the
// orchestrator's concrete type.
type GateHandler interface {
	RespondToGate(ctx context.Context, approved bool, feedback string) *apperrors.AppError
}

type QuestionHandler interface {
	RespondToQuestion(ctx context.Context, taskID string, answers map[string]any) *apperrors.AppError
}

// Lookup returns the live orchestrator for id if one exists and
// implements T, for transport handlers that need gate/question/export
// access narrower than the full Orchestrator interface.
func Lookup[T any](s *Store, id string) (T, bool) {
	var zero T
	e := s.lookup(id)
	if e == nil {
		return zero, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.orchestrator == nil {
		return zero, false
	}
	t, ok := e.orchestrator.(T)
	return t, ok
}
