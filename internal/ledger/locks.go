package ledger

import "sync"

// lockRegistry hands out one mutex per sub-account id. Entries are created on
// first use and dropped only when the account is removed. sync.Mutex switches
// to FIFO hand-off under contention, so a waiter cannot starve.
type lockRegistry struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newLockRegistry() *lockRegistry {
	return &lockRegistry{locks: make(map[string]*sync.Mutex)}
}

// acquire blocks until the caller owns id's critical section and returns the
// release func.
func (r *lockRegistry) acquire(id string) func() {
	r.mu.Lock()
	l, ok := r.locks[id]
	if !ok {
		l = &sync.Mutex{}
		r.locks[id] = l
	}
	r.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// forget drops id's lock. Only call it while holding that lock, after the
// account is gone; ids are never reused.
func (r *lockRegistry) forget(id string) {
	r.mu.Lock()
	delete(r.locks, id)
	r.mu.Unlock()
}

func (r *lockRegistry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}
