package bridge

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// pendingCall is the bookkeeping record for one in-flight command awaiting
// its response. The outcome slots are written exactly once, before the
// completion channel is closed; waiters may read them only after observing
// the close.
type pendingCall struct {
	id        string
	sessionID string
	method    string
	createdAt time.Time
	deadline  time.Time

	done        chan struct{}
	result      json.RawMessage
	err         error
	completedAt time.Time
}

// complete writes the outcome slots and releases every waiter. Must be
// called at most once; the table's take semantics guarantee that.
func (p *pendingCall) complete(result json.RawMessage, err error) {
	p.result = result
	p.err = err
	p.completedAt = time.Now()
	close(p.done)
}

// duration returns the time from issue to completion.
func (p *pendingCall) duration() time.Duration {
	return p.completedAt.Sub(p.createdAt)
}

// pendingTable is the registry of in-flight calls, keyed by correlation id.
// It is the single source of truth for every calling convention: blocking,
// context-aware and callback-style waiters all observe the same entries.
// The mutex is held only for map lookups, never across I/O or waits.
type pendingTable struct {
	mu    sync.Mutex
	calls map[string]*pendingCall
}

func newPendingTable() *pendingTable {
	return &pendingTable{calls: make(map[string]*pendingCall)}
}

// add registers a new pending call with a fresh correlation id.
func (t *pendingTable) add(sessionID, method string, timeout time.Duration) *pendingCall {
	now := time.Now()
	p := &pendingCall{
		id:        uuid.NewString(),
		sessionID: sessionID,
		method:    method,
		createdAt: now,
		deadline:  now.Add(timeout),
		done:      make(chan struct{}),
	}

	t.mu.Lock()
	t.calls[p.id] = p
	t.mu.Unlock()
	return p
}

// take removes and returns the entry for the given correlation id. The
// second return is false when the id is absent, which is itself the signal
// to drop an orphaned response.
func (t *pendingTable) take(id string) (*pendingCall, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.calls[id]
	if ok {
		delete(t.calls, id)
	}
	return p, ok
}

// remove discards the entry if it is still registered. Called in a deferred
// cleanup at every issue site so a timed-out or interrupted waiter cannot
// leak its entry.
func (t *pendingTable) remove(id string) {
	t.mu.Lock()
	delete(t.calls, id)
	t.mu.Unlock()
}

// size returns the number of in-flight calls.
func (t *pendingTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}
