package session

import (
	"sort"
	"sync"

	"github.com/rendis/flowcanvas/internal/registry"
	"github.com/rendis/flowcanvas/pkg/schema"
)

// DefaultID names the session used when a caller does not pick one.
const DefaultID = "default"

// Manager keeps the open sessions of a process, keyed by session id. All
// sessions share one catalog and one set of options.
type Manager struct {
	mu       sync.RWMutex
	catalog  *registry.Registry
	opts     Options
	sessions map[string]*Session
}

// NewManager creates a Manager. opts.ID is ignored.
func NewManager(catalog *registry.Registry, opts Options) *Manager {
	opts.ID = ""
	return &Manager{catalog: catalog, opts: opts, sessions: make(map[string]*Session)}
}

// Catalog returns the shared node type registry.
func (m *Manager) Catalog() *registry.Registry { return m.catalog }

// Open returns the session with the given id, creating it if needed. An empty
// id opens DefaultID.
func (m *Manager) Open(id string) (*Session, error) {
	if id == "" {
		id = DefaultID
	}
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		return s, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		return s, nil
	}
	opts := m.opts
	opts.ID = id
	s, err := New(m.catalog, opts)
	if err != nil {
		return nil, err
	}
	m.sessions[id] = s
	return s, nil
}

// Get returns an open session.
func (m *Manager) Get(id string) (*Session, error) {
	if id == "" {
		id = DefaultID
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "session %q is not open", id)
	}
	return s, nil
}

// Close forgets a session. It reports whether the session was open.
func (m *Manager) Close(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	return ok
}

// List returns the open sessions sorted by id.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}
