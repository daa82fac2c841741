package stream

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the liveness state of a session.
type SessionStatus string

const (
	// SessionRunning means the worker has not reached a terminal state
	SessionRunning SessionStatus = "running"
	// SessionCompleted means the worker finished normally
	SessionCompleted SessionStatus = "completed"
	// SessionFailed means the worker returned an error or panicked
	SessionFailed SessionStatus = "failed"
)

// Session owns one bus plus the liveness bookkeeping for a single run:
// task identity, start time, terminal status. Exactly one worker emits
// into the bus and exactly one reader drains it.
type Session struct {
	TaskID    string
	RepoPath  string
	CreatedAt time.Time

	bus *Bus

	mu      sync.Mutex
	status  SessionStatus
	errMsg  string
	endedAt time.Time
}

// Bus returns the session's event bus.
func (s *Session) Bus() *Bus { return s.bus }

// Status returns the current liveness state and, for failed sessions, the
// failure message.
func (s *Session) Status() (SessionStatus, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, s.errMsg
}

// EndedAt returns when the session reached a terminal status, or the zero
// time while it is still running.
func (s *Session) EndedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endedAt
}

func (s *Session) markTerminal(status SessionStatus, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != SessionRunning {
		return
	}
	s.status = status
	s.errMsg = errMsg
	s.endedAt = time.Now()
}

// Go runs the worker on its own goroutine. The end event is emitted in a
// deferred block so it goes out on every exit path: normal return, error
// return, or panic. A panicking worker additionally produces an error
// event before end.
func (s *Session) Go(run func(bus *Bus) error) {
	go func() {
		defer s.bus.Emit(KindEnd, EndPayload{})

		defer func() {
			if r := recover(); r != nil {
				msg := fmt.Sprintf("worker panic: %v", r)
				s.bus.Emit(KindError, ErrorPayload{Message: msg})
				s.markTerminal(SessionFailed, msg)
			}
		}()

		if err := run(s.bus); err != nil {
			s.markTerminal(SessionFailed, err.Error())
			return
		}
		s.markTerminal(SessionCompleted, "")
	}()
}

// Store maps task identity to session. It is the only structure shared
// across sessions: inserts at start, terminal flag updates at end, and
// eviction of old terminal sessions. All operations are independent
// single-key updates.
type Store struct {
	mu        sync.RWMutex
	sessions  map[string]*Session
	retention time.Duration
}

// NewStore creates a store that evicts terminal sessions once they have
// been finished for longer than retention. A zero retention keeps
// sessions until process exit.
func NewStore(retention time.Duration) *Store {
	return &Store{
		sessions:  make(map[string]*Session),
		retention: retention,
	}
}

// Create registers a new session for repoPath and returns it. Eviction of
// expired terminal sessions piggybacks on creation so the map does not
// grow without bound.
func (st *Store) Create(repoPath string) *Session {
	session := &Session{
		TaskID:    uuid.New().String(),
		RepoPath:  repoPath,
		CreatedAt: time.Now(),
		bus:       NewBus(),
		status:    SessionRunning,
	}

	st.mu.Lock()
	st.evictLocked(time.Now())
	st.sessions[session.TaskID] = session
	st.mu.Unlock()
	return session
}

// Get returns the session for taskID.
func (st *Store) Get(taskID string) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[taskID]
	return s, ok
}

// Len returns the number of registered sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Evict removes terminal sessions older than the retention window and
// returns how many were removed.
func (st *Store) Evict(now time.Time) int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.evictLocked(now)
}

func (st *Store) evictLocked(now time.Time) int {
	if st.retention <= 0 {
		return 0
	}
	removed := 0
	for id, s := range st.sessions {
		endedAt := s.EndedAt()
		if !endedAt.IsZero() && now.Sub(endedAt) > st.retention {
			delete(st.sessions, id)
			removed++
		}
	}
	return removed
}
