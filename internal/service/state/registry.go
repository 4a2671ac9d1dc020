package state

import (
	"sync"

	"github.com/sandevgo/reliefdesk/internal/core"
)

type slot struct {
	mu      sync.Mutex
	session Session
}

// Registry holds one Session per identity. Each session has a single writer
// at a time; a second writer gets core.ErrBusy instead of waiting.
type Registry struct {
	mu    sync.Mutex
	slots map[int64]*slot
}

func NewRegistry() *Registry {
	return &Registry{slots: make(map[int64]*slot)}
}

// Lease is exclusive access to one session until Release.
type Lease struct {
	registry *Registry
	id       int64
	slot     *slot
	released bool
}

// Acquire locks the identity's session or fails with core.ErrBusy.
// The slot is looked up and locked under the registry lock, so a slot
// dropped by Release is never handed out again.
func (r *Registry) Acquire(id int64) (*Lease, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.slots[id]
	if !ok {
		s = &slot{session: Session{IdentityID: id}}
		r.slots[id] = s
	}
	if !s.mu.TryLock() {
		return nil, core.ErrBusy
	}
	return &Lease{registry: r, id: id, slot: s}, nil
}

// Peek returns a copy of the session when nobody holds it.
func (r *Registry) Peek(id int64) (Session, bool) {
	r.mu.Lock()
	s, ok := r.slots[id]
	r.mu.Unlock()
	if !ok {
		return Session{IdentityID: id}, true
	}
	if !s.mu.TryLock() {
		return Session{}, false
	}
	defer s.mu.Unlock()
	return s.session, true
}

// IDs lists identities that currently have a session slot.
func (r *Registry) IDs() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]int64, 0, len(r.slots))
	for id := range r.slots {
		ids = append(ids, id)
	}
	return ids
}

func (l *Lease) Session() *Session {
	return &l.slot.session
}

// Release unlocks the session. A session left without an active flow
// gives up its slot.
func (l *Lease) Release() {
	if l.released {
		return
	}
	l.released = true
	if !l.slot.session.Phase.Active() {
		l.registry.mu.Lock()
		if l.registry.slots[l.id] == l.slot {
			delete(l.registry.slots, l.id)
		}
		l.registry.mu.Unlock()
	}
	l.slot.mu.Unlock()
}
