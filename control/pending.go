package control

import (
	"encoding/json"
	"sync"
)

// outcome is the resolution of one pending request: the peer's result
// payload or an error (peer error response, or the synthetic shutdown
// error from failAll).
type outcome struct {
	result json.RawMessage
	err    error
}

// pendingTable correlates outbound request ids with their waiting callers.
// Each entry is a single-use buffered channel: resolved exactly once, by a
// matching response or by failAll at shutdown.
//
// The lock is held only for map mutation, never across I/O.
type pendingTable struct {
	mu       sync.Mutex
	closed   bool
	closeErr error
	waiters  map[string]chan outcome
}

func newPendingTable() *pendingTable {
	return &pendingTable{waiters: make(map[string]chan outcome)}
}

// register creates a completion channel for id. After failAll has run,
// register fails immediately with the closing error so a request sent at
// the exact moment of shutdown never hangs.
func (t *pendingTable) register(id string) (<-chan outcome, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, t.closeErr
	}
	ch := make(chan outcome, 1)
	t.waiters[id] = ch
	return ch, nil
}

// resolve delivers out to the waiter registered under id and removes the
// entry. Returns false if no waiter existed; the caller logs that case and
// moves on (the peer may answer a request the host already abandoned).
func (t *pendingTable) resolve(id string, out outcome) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	ch, ok := t.waiters[id]
	if !ok {
		return false
	}
	delete(t.waiters, id)
	ch <- out
	return true
}

// cancel silently removes an entry whose request never made it onto the
// wire (encode or write failure).
func (t *pendingTable) cancel(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.waiters, id)
}

// failAll drains every outstanding waiter with err and marks the table
// closed so later registrations fail fast. Called once, when the reader
// observes transport EOF.
func (t *pendingTable) failAll(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}
	t.closed = true
	t.closeErr = err
	for id, ch := range t.waiters {
		ch <- outcome{err: err}
		delete(t.waiters, id)
	}
}

// size returns the number of outstanding waiters.
func (t *pendingTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.waiters)
}
