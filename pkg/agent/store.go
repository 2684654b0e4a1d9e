package agent

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Session holds one identity's conversation state. All history access goes
// through methods that hold the session's own lock; handlers serialize a
// full query-response turn by calling Lock/Unlock around it, so concurrent
// requests for the same identity cannot interleave appends.
//
// The activity timestamp is atomic, not guarded by the session lock: the
// eviction sweep reads it while a handler may be holding the lock across a
// long completion call, and must not wait on that.
type Session struct {
	mu           sync.Mutex
	history      []Turn
	maxTurns     int
	lastActiveAt atomic.Int64 // unix nanoseconds
}

// touch records activity now.
func (s *Session) touch() {
	s.lastActiveAt.Store(time.Now().UnixNano())
}

// Lock acquires the session's exclusive lock for the duration of one
// read-modify-write cycle.
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases the session's exclusive lock.
func (s *Session) Unlock() { s.mu.Unlock() }

// Append adds a turn to the history. Caller must hold the session lock.
// When a max turn count is configured, the oldest turns are dropped to stay
// within the bound.
func (s *Session) Append(role Role, content string) {
	s.history = append(s.history, Turn{Role: role, Content: content})
	if s.maxTurns > 0 && len(s.history) > s.maxTurns {
		s.history = s.history[len(s.history)-s.maxTurns:]
	}
	s.touch()
}

// History returns a copy of the conversation so far. Caller must hold the
// session lock.
func (s *Session) History() []Turn {
	out := make([]Turn, len(s.history))
	copy(out, s.history)
	return out
}

// Clear truncates the history to empty. The session entry itself survives;
// the next Append reuses it. Caller must hold the session lock.
func (s *Session) Clear() {
	s.history = s.history[:0]
	s.touch()
}

// StoreConfig configures session retention. Zero values disable the
// corresponding bound.
type StoreConfig struct {
	// MaxTurns caps history length per session.
	MaxTurns int

	// IdleTTL evicts sessions idle for longer than this.
	IdleTTL time.Duration
}

// SessionStore maps identities to sessions. The map-level lock guards
// lookup and insert only; per-session serialization is the session's own
// lock. GetOrCreate is idempotent: repeated calls for the same identity
// return the same session.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	cfg      StoreConfig

	cancel context.CancelFunc
	done   chan struct{}
}

// NewSessionStore creates an empty session store.
func NewSessionStore(cfg StoreConfig) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*Session),
		cfg:      cfg,
	}
}

// GetOrCreate returns the session for the identity, creating it lazily on
// first access. The lookup counts as activity so a session handed out just
// before a sweep cannot be evicted underneath its caller.
func (s *SessionStore) GetOrCreate(identity string) *Session {
	s.mu.RLock()
	sess, ok := s.sessions[identity]
	if ok {
		sess.touch()
	}
	s.mu.RUnlock()
	if ok {
		return sess
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[identity]; ok {
		sess.touch()
		return sess
	}
	sess = &Session{maxTurns: s.cfg.MaxTurns}
	sess.touch()
	s.sessions[identity] = sess
	return sess
}

// Len returns the number of live sessions.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Cleanup removes sessions idle for longer than the configured TTL.
// A zero TTL makes this a no-op. The sweep never takes a session's lock, so
// a session stuck in a slow completion call cannot stall the store and block
// unrelated identities.
func (s *SessionStore) Cleanup() {
	if s.cfg.IdleTTL == 0 {
		return
	}

	cutoff := time.Now().Add(-s.cfg.IdleTTL).UnixNano()
	s.mu.Lock()
	defer s.mu.Unlock()
	for identity, sess := range s.sessions {
		if sess.lastActiveAt.Load() < cutoff {
			delete(s.sessions, identity)
		}
	}
}

// StartCleanupRoutine starts a background goroutine that periodically
// evicts idle sessions. The goroutine is stopped when Close is called.
func (s *SessionStore) StartCleanupRoutine(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Cleanup()
			}
		}
	}()
}

// Close stops the cleanup goroutine and waits for it to exit.
// It is safe to call Close even if StartCleanupRoutine was never called.
func (s *SessionStore) Close() error {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	return nil
}
