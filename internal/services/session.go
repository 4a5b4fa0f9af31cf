// Package services holds the application core: session lifecycle, memoized
// insights, and enrichment orchestration. Handlers stay thin and delegate
// here.
package services

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"shelfstats/internal/config"
	"shelfstats/internal/infrastructure"
	"shelfstats/internal/library"
)

// Service-level sentinel errors, mapped to API errors at the transport layer.
var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrStoreFull         = errors.New("session store full")
	ErrEnrichmentRunning = errors.New("enrichment already running")
	ErrNoEnrichment      = errors.New("no enrichment run")
)

// Session is one uploaded library and its derived state. The table reference
// is swapped atomically after enrichment; tables themselves are immutable.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu         sync.RWMutex
	table      *library.Table
	lastAccess time.Time
}

// Table returns the session's current table.
func (s *Session) Table() *library.Table {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.table
}

// SetTable replaces the session's table.
func (s *Session) SetTable(t *library.Table) {
	s.mu.Lock()
	s.table = t
	s.mu.Unlock()
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastAccess = now
	s.mu.Unlock()
}

// LastAccess returns when the session was last read or written.
func (s *Session) LastAccess() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastAccess
}

// SessionStore keeps uploaded sessions in memory and expires the ones that
// go idle.
type SessionStore struct {
	cfg    config.SessionConfig
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session

	janitorQuit chan struct{}
	janitorOnce sync.Once
}

// NewSessionStore creates a store. Call StartJanitor to enable expiry.
func NewSessionStore(cfg config.SessionConfig, logger *slog.Logger) *SessionStore {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return &SessionStore{
		cfg:         cfg,
		logger:      logger.With(slog.String("component", "session_store")),
		sessions:    make(map[string]*Session),
		janitorQuit: make(chan struct{}),
	}
}

// Create registers a new session around a table.
func (st *SessionStore) Create(table *library.Table) (*Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.cfg.MaxSessions > 0 && len(st.sessions) >= st.cfg.MaxSessions {
		return nil, ErrStoreFull
	}

	now := time.Now()
	session := &Session{
		ID:         uuid.New().String(),
		CreatedAt:  now,
		table:      table,
		lastAccess: now,
	}
	st.sessions[session.ID] = session

	st.logger.Info("session created",
		slog.String("session_id", session.ID),
		slog.Int("rows", table.Len()),
		slog.Int("active_sessions", len(st.sessions)))
	return session, nil
}

// Get returns a session and refreshes its idle clock.
func (st *SessionStore) Get(id string) (*Session, error) {
	st.mu.RLock()
	session, ok := st.sessions[id]
	st.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	session.touch(time.Now())
	return session, nil
}

// Delete removes a session. Deleting an unknown id is not an error.
func (st *SessionStore) Delete(id string) {
	st.mu.Lock()
	delete(st.sessions, id)
	st.mu.Unlock()
}

// Count returns the number of live sessions.
func (st *SessionStore) Count() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// StartJanitor launches the background sweep that drops idle sessions.
// expired is called with each removed session id after removal; it may be
// nil.
func (st *SessionStore) StartJanitor(expired func(id string)) {
	go func() {
		ticker := time.NewTicker(st.cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-st.janitorQuit:
				return
			case <-ticker.C:
				for _, id := range st.sweep(time.Now()) {
					if expired != nil {
						expired(id)
					}
				}
			}
		}
	}()
}

// StopJanitor stops the background sweep.
func (st *SessionStore) StopJanitor() {
	st.janitorOnce.Do(func() { close(st.janitorQuit) })
}

func (st *SessionStore) sweep(now time.Time) []string {
	st.mu.Lock()
	defer st.mu.Unlock()

	var removed []string
	for id, session := range st.sessions {
		if now.Sub(session.LastAccess()) > st.cfg.IdleTTL {
			delete(st.sessions, id)
			removed = append(removed, id)
		}
	}
	if len(removed) > 0 {
		st.logger.Info("expired idle sessions",
			slog.Int("removed", len(removed)),
			slog.Int("remaining", len(st.sessions)))
	}
	return removed
}
