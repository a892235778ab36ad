package research

import (
	"sync"

	"github.com/arguslabs/argus/internal/agent/events"
)

// streamHub fans run events out to any number of subscribers per research ID.
// Publishing never blocks: a subscriber that stops draining loses events
// rather than stalling the run.
type streamHub struct {
	mu   sync.Mutex
	subs map[string][]chan events.Event
	done map[string]bool
}

func newStreamHub() *streamHub {
	return &streamHub{
		subs: make(map[string][]chan events.Event),
		done: make(map[string]bool),
	}
}

// Subscribe returns a channel of events for the run and a cancel func. A
// subscription to an already finished run gets a closed channel immediately.
func (h *streamHub) Subscribe(researchID string) (<-chan events.Event, func()) {
	ch := make(chan events.Event, 64)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done[researchID] {
		close(ch)
		return ch, func() {}
	}
	h.subs[researchID] = append(h.subs[researchID], ch)
	return ch, func() { h.unsubscribe(researchID, ch) }
}

func (h *streamHub) unsubscribe(researchID string, ch chan events.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.subs[researchID]
	for i, c := range subs {
		if c == ch {
			h.subs[researchID] = append(subs[:i], subs[i+1:]...)
			close(c)
			return
		}
	}
}

// Publish delivers ev to every live subscriber of the run.
func (h *streamHub) Publish(researchID string, ev events.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done[researchID] {
		return
	}
	for _, ch := range h.subs[researchID] {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Finish delivers the terminal event exactly once and closes every
// subscription; later Publish and Finish calls for the run are no-ops.
func (h *streamHub) Finish(researchID string, ev events.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done[researchID] {
		return
	}
	h.done[researchID] = true
	for _, ch := range h.subs[researchID] {
		select {
		case ch <- ev:
		default:
		}
		close(ch)
	}
	delete(h.subs, researchID)
}
