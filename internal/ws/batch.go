package ws

import (
	"sync"
	"time"
)

// A batch whose client disconnects mid-way would otherwise stay pending
// forever; anything idle this long is dropped on the next call.
const batchExpiry = time.Minute

// batchTracker counts multi-item mutations down to their single invalidation.
// The expected size is declared up front on each item, so completion does not
// depend on the client sending a separate end marker.
type batchTracker struct {
	mu      sync.Mutex
	pending map[string]*batchState
}

type batchState struct {
	remaining int
	updated   time.Time
}

func newBatchTracker() *batchTracker {
	return &batchTracker{pending: make(map[string]*batchState)}
}

// complete records one finished item (success and failure both count) and
// reports whether the whole batch is now done.
func (t *batchTracker) complete(project string, b Batch) bool {
	if b.BatchID == "" || b.BatchSize <= 0 {
		return true
	}

	key := project + "/" + b.BatchID
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	for k, st := range t.pending {
		if now.Sub(st.updated) > batchExpiry {
			delete(t.pending, k)
		}
	}

	st, ok := t.pending[key]
	if !ok {
		st = &batchState{remaining: b.BatchSize}
		t.pending[key] = st
	}
	st.remaining--
	st.updated = now
	if st.remaining <= 0 {
		delete(t.pending, key)
		return true
	}
	return false
}
