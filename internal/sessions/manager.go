package sessions

import (
	"context"
	"sync"
	"time"

	logger "github.com/Bparsons0904/goLogger"
	"github.com/google/uuid"
)

// Manager owns every live session. Sessions never share a batch.
type Manager struct {
	mu        sync.RWMutex
	sessions  map[string]*Session
	config    Config
	publisher Publisher
	snapshots SnapshotStore
	recorder  RunRecorder
	log       logger.Logger
}

func NewManager(config Config, publisher Publisher, snapshots SnapshotStore, recorder RunRecorder) *Manager {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	if snapshots == nil {
		snapshots = nopSnapshots{}
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}

	return &Manager{
		sessions:  make(map[string]*Session),
		config:    config.withDefaults(),
		publisher: publisher,
		snapshots: snapshots,
		recorder:  recorder,
		log:       logger.New("sessions").File("manager"),
	}
}

func (m *Manager) Create(token string) *Session {
	log := m.log.Function("Create")

	session := newSession(uuid.New().String(), token, m.config, m.publisher, m.snapshots, m.recorder)

	m.mu.Lock()
	m.sessions[session.ID] = session
	count := len(m.sessions)
	m.mu.Unlock()

	log.Info("Session created", "sessionID", session.ID, "activeSessions", count)
	return session
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// View returns the current state of a session.
func (m *Manager) View(id string) (View, error) {
	session, err := m.Get(id)
	if err != nil {
		return View{}, err
	}
	return session.View(), nil
}

// Close tears a session down and forgets its wizard snapshot.
func (m *Manager) Close(ctx context.Context, id string) error {
	log := m.log.Function("Close")

	m.mu.Lock()
	session, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}

	session.Close()
	if err := m.snapshots.Delete(ctx, id); err != nil {
		log.Warn("Failed to delete wizard snapshot", "sessionID", id, "error", err)
	}
	return nil
}

// CloseIdle tears down sessions idle for longer than maxIdle. Sessions with a submit in
// flight are kept. Snapshots are left to expire so the wizard can still be resumed.
func (m *Manager) CloseIdle(maxIdle time.Duration) int {
	log := m.log.Function("CloseIdle")
	cutoff := time.Now().Add(-maxIdle)

	var idle []*Session
	m.mu.Lock()
	for id, session := range m.sessions {
		if session.Busy() || session.LastActive().After(cutoff) {
			continue
		}
		idle = append(idle, session)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, session := range idle {
		session.Close()
	}

	if len(idle) > 0 {
		log.Info("Closed idle sessions", "count", len(idle), "maxIdle", maxIdle)
	}
	return len(idle)
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Shutdown closes every session, cancelling in-flight polls.
func (m *Manager) Shutdown() {
	log := m.log.Function("Shutdown")

	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for id, session := range m.sessions {
		all = append(all, session)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, session := range all {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.Close()
		}(session)
	}
	wg.Wait()

	log.Info("All sessions closed", "count", len(all))
}
