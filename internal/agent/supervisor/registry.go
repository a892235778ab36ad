package supervisor

import "sync"

// Registry holds cooperative cancellation signals keyed by research ID. A
// cancel request lands here and is observed by the supervisor at the start of
// its next tick; steps already in flight finish normally.
type Registry struct {
	mu        sync.Mutex
	cancelled map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{cancelled: make(map[string]struct{})}
}

// Cancel marks the run for termination at the next supervisor tick.
func (r *Registry) Cancel(researchID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelled[researchID] = struct{}{}
}

// IsCancelled reports whether a cancel request is pending for the run.
func (r *Registry) IsCancelled(researchID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.cancelled[researchID]
	return ok
}

// Clear removes the signal once the supervisor has acted on it.
func (r *Registry) Clear(researchID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cancelled, researchID)
}
