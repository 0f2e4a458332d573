package client

import (
	"encoding/json"
	"sync"
	"time"
)

// inflightCall is the shared handle for one outstanding upstream request.
// Followers wait on done and read the same payload and error as the leader.
type inflightCall struct {
	done    chan struct{}
	payload json.RawMessage
	err     error
	started time.Time
}

// inflightTable collapses concurrent identical requests onto a single
// dispatch. Entries older than maxAge are forcibly removed by the periodic
// sweep; that is a safety net against a dispatch that never completes, not
// the primary cleanup path.
type inflightTable struct {
	mu     sync.Mutex
	calls  map[string]*inflightCall
	maxAge time.Duration
	now    func() time.Time
}

func newInflightTable(maxAge time.Duration) *inflightTable {
	if maxAge <= 0 {
		maxAge = 5 * time.Minute
	}
	return &inflightTable{
		calls:  make(map[string]*inflightCall),
		maxAge: maxAge,
		now:    time.Now,
	}
}

// acquire returns the call handle for key and whether the caller is the
// leader who must perform the dispatch. A stale pending entry is replaced
// rather than joined.
func (t *inflightTable) acquire(key string) (*inflightCall, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if existing, ok := t.calls[key]; ok && now.Sub(existing.started) <= t.maxAge {
		return existing, false
	}

	call := &inflightCall{done: make(chan struct{}), started: now}
	t.calls[key] = call
	return call, true
}

// complete publishes the outcome to every follower and removes the entry so
// future requests either hit the cache or start fresh.
func (t *inflightTable) complete(key string, call *inflightCall, payload json.RawMessage, err error) {
	call.payload = payload
	call.err = err
	close(call.done)

	t.mu.Lock()
	if current, ok := t.calls[key]; ok && current == call {
		delete(t.calls, key)
	}
	t.mu.Unlock()
}

// sweep drops entries older than maxAge and returns how many were removed.
func (t *inflightTable) sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	removed := 0
	for key, call := range t.calls {
		if now.Sub(call.started) > t.maxAge {
			delete(t.calls, key)
			removed++
		}
	}
	return removed
}

func (t *inflightTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}
