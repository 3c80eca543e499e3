package request

import (
	"context"
	"sync"
)

// inflight is one registered, unsettled request.
type inflight struct {
	token   string
	url     string
	dataKey string
	cancel  context.CancelCauseFunc

	// aborted entries stay registered until they settle but no longer match.
	aborted bool
}

// registry tracks in-flight requests in registration order.
type registry struct {
	mu      sync.Mutex
	entries []*inflight
}

// acquire applies the duplicate policy and registers req in one step.
// It returns false when req must be ignored. Under Abort the superseded
// request is cancelled and returned so the caller can log it.
func (r *registry) acquire(req *inflight, policy DuplicatePolicy, compareByData bool) (superseded *inflight, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if policy == Ignore || policy == Abort {
		for _, e := range r.entries {
			if e.aborted || e.url != req.url || (compareByData && e.dataKey != req.dataKey) {
				continue
			}
			if policy == Ignore {
				return nil, false
			}
			e.aborted = true
			e.cancel(ErrAborted)
			superseded = e
			break
		}
	}

	r.entries = append(r.entries, req)
	inflightRequests.Inc()
	return superseded, true
}

// release removes the entry with token and returns how many remain.
func (r *registry) release(token string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, e := range r.entries {
		if e.token == token {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			inflightRequests.Dec()
			break
		}
	}
	return len(r.entries)
}

// len returns the number of in-flight requests.
func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
