// Package sessions tracks live voice sessions by id. The registry is the
// only state shared across connection goroutines; everything else a
// session owns is confined to its own loop.
package sessions

import (
	"context"
	"sync"
)

// Handle is what the registry can do to a live session from outside its
// own goroutine.
type Handle struct {
	// Cancel asks the session to shut down. Safe to call more than once.
	Cancel func()

	// Notify sends a best-effort status text to the session's client.
	Notify func(message string) error
}

type entry struct {
	handle Handle
	once   sync.Once
}

// Registry is a concurrency-safe map of session id to handle. Registering
// an id that is already present atomically replaces the old entry and
// cancels the old session, so a reconnecting device never strands its
// previous connection.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	wg      sync.WaitGroup
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register adds a session and returns its unregister func. Unregister is
// idempotent. If the id was already registered, the previous entry is
// removed and its Cancel invoked before Register returns.
func (r *Registry) Register(id string, h Handle) (unregister func()) {
	e := &entry{handle: h}

	r.mu.Lock()
	old := r.entries[id]
	r.entries[id] = e
	r.wg.Add(1)
	r.mu.Unlock()

	if old != nil {
		r.remove(id, old)
		if old.handle.Cancel != nil {
			old.handle.Cancel()
		}
	}

	return func() { r.remove(id, e) }
}

func (r *Registry) remove(id string, e *entry) {
	e.once.Do(func() {
		r.mu.Lock()
		if r.entries[id] == e {
			delete(r.entries, id)
		}
		r.mu.Unlock()
		r.wg.Done()
	})
}

// Count reports the number of live sessions, for /health.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Active reports whether id currently maps to a live session.
func (r *Registry) Active(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[id]
	return ok
}

// NotifyAll sends a message to every live session, outside the lock so a
// slow client cannot stall registration.
func (r *Registry) NotifyAll(message string) (sent int) {
	var notifies []func(string) error
	r.mu.Lock()
	for _, e := range r.entries {
		if e.handle.Notify != nil {
			notifies = append(notifies, e.handle.Notify)
		}
	}
	r.mu.Unlock()

	for _, notify := range notifies {
		_ = notify(message)
		sent++
	}
	return sent
}

// CancelAll asks every live session to shut down.
func (r *Registry) CancelAll() (canceled int) {
	var cancels []func()
	r.mu.Lock()
	for _, e := range r.entries {
		if e.handle.Cancel != nil {
			cancels = append(cancels, e.handle.Cancel)
		}
	}
	r.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
		canceled++
	}
	return canceled
}

// Wait blocks until every registered session has unregistered or ctx is
// done, reporting which happened first.
func (r *Registry) Wait(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.wg.Wait()
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
