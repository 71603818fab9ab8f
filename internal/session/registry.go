package session

import (
	"sync"

	"github.com/google/uuid"
)

// Registry owns every live session, keyed by connection identity. Sessions
// are created on connection open and destroyed on close; destruction
// cancels any in-flight work.
type Registry struct {
	cfg Config

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry sharing cfg across sessions.
func NewRegistry(cfg Config) *Registry {
	return &Registry{cfg: cfg, sessions: make(map[string]*Session)}
}

// Open creates a session for a newly accepted connection and returns it.
func (r *Registry) Open(peer Peer) *Session {
	s := newSession(uuid.NewString(), r.cfg, peer)
	r.mu.Lock()
	r.sessions[s.id] = s
	r.mu.Unlock()
	return s
}

// Close destroys the session, cancelling any in-flight turn.
func (r *Registry) Close(id string) {
	r.mu.Lock()
	s := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if s != nil {
		s.Close()
	}
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
