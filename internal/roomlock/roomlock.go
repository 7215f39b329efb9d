// Package roomlock provides the per-room mutual exclusion the engine
// uses to serialize snapshot mutators. Locks are created lazily per
// room code; different rooms never contend.
package roomlock

import "sync"

// Registry hands out one mutex per room code.
type Registry struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewRegistry creates an empty lock registry.
func NewRegistry() *Registry {
	return &Registry{locks: make(map[string]*sync.Mutex)}
}

// Acquire locks the room's mutex, creating it on first use, and
// returns the release function. Callers must release unconditionally,
// including on failure, and must not hold the lock across a broadcast.
func (r *Registry) Acquire(roomCode string) (release func()) {
	r.mu.Lock()
	l, ok := r.locks[roomCode]
	if !ok {
		l = &sync.Mutex{}
		r.locks[roomCode] = l
	}
	r.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Forget drops the room's mutex after the snapshot is deleted so the
// registry does not grow without bound.
func (r *Registry) Forget(roomCode string) {
	r.mu.Lock()
	delete(r.locks, roomCode)
	r.mu.Unlock()
}
