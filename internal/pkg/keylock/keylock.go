// Package keylock provides per-key exclusive locks with bounded waits.
// The engine uses one lock per listing id so that bid acceptance,
// booster changes and reactivation for a single listing are serialized
// while unrelated listings proceed in parallel.
package keylock

import (
	"errors"
	"sync"
	"time"
)

// ErrContention is returned when a lock cannot be acquired within the
// timeout. It is the only retryable error the engine emits; callers are
// expected to retry with backoff.
var ErrContention = errors.New("Resource is busy, please retry")

// DefaultTimeout bounds how long a request waits for a listing lock.
const DefaultTimeout = 2 * time.Second

type entry struct {
	ch   chan struct{} // capacity 1; holding the token means holding the lock
	refs int
}

// Registry hands out per-key locks. The zero value is not usable; call New.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func New() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Acquire blocks until the lock for key is held or the timeout elapses.
// On success it returns a release func; on timeout it returns ErrContention.
// The release func must be called exactly once.
func (r *Registry) Acquire(key string, timeout time.Duration) (func(), error) {
	r.mu.Lock()
	e, ok := r.entries[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		r.entries[key] = e
	}
	e.refs++
	r.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case e.ch <- struct{}{}:
		return func() {
			<-e.ch
			r.release(key, e)
		}, nil
	case <-timer.C:
		r.release(key, e)
		return nil, ErrContention
	}
}

// release drops a reference and removes the map entry once nobody holds or
// waits on it, so the registry does not grow with every listing ever seen.
func (r *Registry) release(key string, e *entry) {
	r.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(r.entries, key)
	}
	r.mu.Unlock()
}
