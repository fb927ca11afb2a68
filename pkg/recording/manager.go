// Package recording captures raw stream chunks to disk and compiles them
// into a downloadable MP4 when the stream ends.
package recording

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/DGQW1/calhack-backend/internal/log"
)

// Manager tracks recording sessions under a storage directory.
type Manager struct {
	dir string

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates the storage directory if needed.
func NewManager(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create recording directory: %w", err)
	}
	return &Manager{dir: dir, sessions: make(map[string]*Session)}, nil
}

// Create starts a new recording session with its own directory.
func (m *Manager) Create() (*Session, error) {
	id := uuid.NewString()
	s, err := newSession(id, filepath.Join(m.dir, id))
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	log.Info("created recording session", "session_id", id)
	return s, nil
}

// Get returns a session by id, or nil.
func (m *Manager) Get(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id]
}

// Sessions returns info about all tracked sessions.
func (m *Manager) Sessions() []Info {
	m.mu.Lock()
	defer m.mu.Unlock()

	infos := make([]Info, 0, len(m.sessions))
	for _, s := range m.sessions {
		infos = append(infos, s.Info())
	}
	return infos
}

// Remove drops a session and deletes its files.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		s.cleanup()
		log.Info("removed recording session", "session_id", id)
	}
}

// CleanupOlderThan removes sessions created more than maxAge ago.
func (m *Manager) CleanupOlderThan(maxAge time.Duration) {
	cutoff := time.Now().Add(-maxAge)

	m.mu.Lock()
	var expired []string
	for id, s := range m.sessions {
		if s.CreatedAt.Before(cutoff) {
			expired = append(expired, id)
		}
	}
	m.mu.Unlock()

	for _, id := range expired {
		m.Remove(id)
	}
}
