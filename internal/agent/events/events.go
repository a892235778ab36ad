package events

import "time"

// Event is one progress notification from a run: a step starting, finishing,
// skipping, or the driver reaching a terminal state.
type Event struct {
	Node      string                 `json:"node"`
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Sink consumes progress events. Implementations must not block; the driver
// emits from its single loop goroutine.
type Sink func(Event)

// Emit is a nil-safe helper for firing an event into a sink.
func Emit(sink Sink, node, status string, fields map[string]interface{}) {
	if sink == nil {
		return
	}
	sink(Event{Node: node, Status: status, Timestamp: time.Now().UTC(), Fields: fields})
}
