package server

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ici-language/ici-sub000/vm"
)

// handle is a server-side reference to a VM object.
type handle struct {
	id        string
	value     vm.Object
	kind      string
	display   string
	sessionID string
	created   time.Time
	lastUsed  time.Time
}

// HandleStore maps opaque string IDs to VM objects. Each handle holds an
// extra-owner reference, so the collector treats the object as a root
// until the handle is released. Methods that add or drop references
// (Create, Release, ReleaseSession, Sweep) must run on the VM worker.
type HandleStore struct {
	mu      sync.RWMutex
	handles map[string]*handle
	nextID  atomic.Uint64
}

// NewHandleStore creates a new handle store.
func NewHandleStore() *HandleStore {
	return &HandleStore{
		handles: make(map[string]*handle),
	}
}

// Create registers a value and returns an opaque handle ID.
func (s *HandleStore) Create(value vm.Object, kind, display, sessionID string) string {
	id := fmt.Sprintf("h-%d", s.nextID.Add(1))
	value.Head().Incref()

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.handles[id] = &handle{
		id:        id,
		value:     value,
		kind:      kind,
		display:   display,
		sessionID: sessionID,
		created:   now,
		lastUsed:  now,
	}
	return id
}

// Lookup retrieves the value for a handle. Returns the value and true,
// or nil and false if the handle doesn't exist.
func (s *HandleStore) Lookup(id string) (vm.Object, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.handles[id]
	if !ok {
		return nil, false
	}
	h.lastUsed = time.Now()
	return h.value, true
}

// Len returns the number of live handles.
func (s *HandleStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.handles)
}

// Release removes a handle and drops its reference.
func (s *HandleStore) Release(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.handles[id]
	if !ok {
		return false
	}
	h.value.Head().Decref()
	delete(s.handles, id)
	return true
}

// ReleaseSession releases all handles owned by a session.
func (s *HandleStore) ReleaseSession(sessionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, h := range s.handles {
		if h.sessionID == sessionID {
			h.value.Head().Decref()
			delete(s.handles, id)
			removed++
		}
	}
	return removed
}

// ReleaseAll drops every handle.
func (s *HandleStore) ReleaseAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, h := range s.handles {
		h.value.Head().Decref()
		delete(s.handles, id)
	}
}

// Sweep removes handles that haven't been accessed within the TTL.
func (s *HandleStore) Sweep(ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-ttl)
	removed := 0
	for id, h := range s.handles {
		if h.lastUsed.Before(cutoff) {
			h.value.Head().Decref()
			delete(s.handles, id)
			removed++
		}
	}
	return removed
}

// StartSweeper runs periodic TTL sweeps on the worker in the background.
// Returns a stop function.
func (s *HandleStore) StartSweeper(worker *VMWorker, interval, ttl time.Duration) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				n, err := worker.Do(func(*vm.VM) interface{} { return s.Sweep(ttl) })
				if err == nil && n.(int) > 0 {
					log.Debugf("swept %d idle handles", n)
				}
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}
