package server

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ici-language/ici-sub000/vm"
)

// Session is a workspace with its own module scope, so variables set by
// one evaluation are visible to the next.
type Session struct {
	ID    string
	Name  string
	Scope *vm.Map
}

// SessionStore manages workspace sessions. Create and Destroy touch
// reference counts and must run on the VM worker.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	nextID   atomic.Uint64
	handles  *HandleStore
}

// NewSessionStore creates a new session store.
func NewSessionStore(handles *HandleStore) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*Session),
		handles:  handles,
	}
}

// Create creates a new session with an optional name.
func (s *SessionStore) Create(v *vm.VM, name string) *Session {
	id := fmt.Sprintf("s-%d", s.nextID.Add(1))

	session := &Session{
		ID:    id,
		Name:  name,
		Scope: v.NewModuleScope(),
	}

	s.mu.Lock()
	s.sessions[id] = session
	s.mu.Unlock()

	return session
}

// Get retrieves a session by ID.
func (s *SessionStore) Get(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	return session, ok
}

// Destroy removes a session, drops its scope and releases all its handles.
func (s *SessionStore) Destroy(id string) bool {
	s.mu.Lock()
	session, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if !ok {
		return false
	}
	session.Scope.Decref()
	s.handles.ReleaseSession(id)
	return true
}

// DestroyAll destroys every session.
func (s *SessionStore) DestroyAll() {
	s.mu.RLock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	for _, id := range ids {
		s.Destroy(id)
	}
}
