// Package runtime owns the process-local shared state of the relay.
package runtime

import (
	"care-relay/contract"
	"care-relay/domain"
	"sync"
)

// Registry maps logical identities to their live connection handles.
// State lives for the process lifetime only; clients re-register on
// reconnect.
type Registry struct {
	mu       sync.RWMutex
	sessions map[domain.Identity]contract.EventSink
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[domain.Identity]contract.EventSink),
	}
}

// Register upserts the handle for an identity. A re-registration from
// a new socket silently replaces the previous handle, which is what
// makes reconnect-with-new-socket work.
func (r *Registry) Register(id domain.Identity, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[id] = sink
}

func (r *Registry) Lookup(id domain.Identity) (contract.EventSink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sink, ok := r.sessions[id]
	return sink, ok
}

// Unregister removes the entry only if the stored handle is the one
// disconnecting. A stale disconnect racing a fresh registration must
// not evict the fresh handle.
func (r *Registry) Unregister(id domain.Identity, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.sessions[id]; ok && current == sink {
		delete(r.sessions, id)
	}
}

// UnregisterSink removes whatever identity is currently bound to the
// handle. In normal operation a handle registers under at most one
// identity.
func (r *Registry) UnregisterSink(sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, current := range r.sessions {
		if current == sink {
			delete(r.sessions, id)
		}
	}
}

func (r *Registry) Online() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.sessions)
}
