package og

import (
	"sync"
	"time"
)

type result struct {
	ack OrderAck
	err error
}

// pendingRequest is one in-flight correlated request. done is buffered so
// the winning resolver never blocks.
type pendingRequest struct {
	id          string
	submittedAt time.Time
	timer       *time.Timer
	done        chan result
}

func (p *pendingRequest) deliver(res result) {
	if p.timer != nil {
		p.timer.Stop()
	}
	p.done <- res
}

// pendingTable maps correlation ids to in-flight requests. Resolution is
// exactly-once: every path removes the entry under the lock first (take),
// then acts on it, so the response handler, the timeout timer and the
// disconnect sweep cannot double-resolve.
type pendingTable struct {
	mu sync.Mutex
	m  map[string]*pendingRequest
}

func newPendingTable() *pendingTable {
	return &pendingTable{m: make(map[string]*pendingRequest)}
}

// add registers a new in-flight request and arms its timeout timer.
// onTimeout runs in the timer goroutine and receives the entry only if it
// is still pending at that point.
func (t *pendingTable) add(id string, timeout time.Duration, onTimeout func(*pendingRequest)) (*pendingRequest, error) {
	p := &pendingRequest{
		id:          id,
		submittedAt: time.Now(),
		done:        make(chan result, 1),
	}

	t.mu.Lock()
	if _, ok := t.m[id]; ok {
		t.mu.Unlock()
		return nil, ErrDuplicateReqID
	}
	t.m[id] = p
	p.timer = time.AfterFunc(timeout, func() {
		if won := t.take(id); won != nil {
			onTimeout(won)
		}
	})
	t.mu.Unlock()
	return p, nil
}

// take removes and returns the entry, or nil if already resolved.
func (t *pendingTable) take(id string) *pendingRequest {
	t.mu.Lock()
	p := t.m[id]
	delete(t.m, id)
	t.mu.Unlock()
	return p
}

// failAll rejects every in-flight request with err.
func (t *pendingTable) failAll(err error) {
	t.mu.Lock()
	drained := make([]*pendingRequest, 0, len(t.m))
	for id, p := range t.m {
		drained = append(drained, p)
		delete(t.m, id)
	}
	t.mu.Unlock()

	for _, p := range drained {
		p.deliver(result{err: err})
	}
}

func (t *pendingTable) len() int {
	t.mu.Lock()
	n := len(t.m)
	t.mu.Unlock()
	return n
}
