package framesock

import (
	"sync"
	"time"
)

// Registry maps connection identities to their records.
//
// The reactor goroutine is the only writer of the map; the read lock lets
// other goroutines look connections up to queue replies.
type Registry struct {
	mu    sync.RWMutex
	conns map[ConnID]*Conn
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[ConnID]*Conn)}
}

// Create registers a new open connection with empty buffers and
// lastActive set to now. A stale record under the same id is released.
func (r *Registry) Create(id ConnID, addr string, now time.Time) *Conn {
	c := newConn(id, addr, now)

	r.mu.Lock()
	old := r.conns[id]
	r.conns[id] = c
	r.mu.Unlock()

	if old != nil {
		old.release()
	}
	return c
}

// Get returns the connection registered under id.
func (r *Registry) Get(id ConnID) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	return c, ok
}

// Touch refreshes the activity timestamp of id.
func (r *Registry) Touch(id ConnID, now time.Time) bool {
	c, ok := r.Get(id)
	if !ok {
		return false
	}
	c.touch(now)
	return true
}

// Enqueue appends p to the send queue of id without writing it. See
// Conn.enqueue for the meaning of arm, which may be nil.
func (r *Registry) Enqueue(id ConnID, p []byte, arm func(*Conn) error) error {
	c, ok := r.Get(id)
	if !ok {
		return ErrUnknownConnection
	}
	return c.enqueue(p, arm)
}

// Remove unregisters id, marks its record closed and releases its buffers.
// Removing an unknown id is a no-op.
func (r *Registry) Remove(id ConnID) (*Conn, bool) {
	r.mu.Lock()
	c, ok := r.conns[id]
	delete(r.conns, id)
	r.mu.Unlock()

	if ok {
		c.release()
	}
	return c, ok
}

// Snapshot returns the registered connections at the time of the call.
// Callers may remove entries while iterating the result.
func (r *Registry) Snapshot() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	return conns
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
