package capture

import (
	"fmt"
	"sync"
)

// Registry owns at most one session per hosting context.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Create registers a new session for hostID. It fails when the host already
// has one; callers Destroy the old session first.
func (r *Registry) Create(hostID string, device Device, opts Options) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[hostID]; ok {
		return nil, fmt.Errorf("host %q already has a capture session", hostID)
	}
	s := NewSession(device, opts)
	r.sessions[hostID] = s
	return s, nil
}

func (r *Registry) Get(hostID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[hostID]
	return s, ok
}

// Destroy aborts any in-progress recording and forgets the host's session.
func (r *Registry) Destroy(hostID string) bool {
	r.mu.Lock()
	s, ok := r.sessions[hostID]
	delete(r.sessions, hostID)
	r.mu.Unlock()
	if ok {
		s.Abort()
	}
	return ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
