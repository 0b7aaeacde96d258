package bridge

import (
	"encoding/json"
	"fmt"

	"github.com/bytedance/sonic"
)

// EventKind tags a host event.
type EventKind string

const (
	KindGameplay    EventKind = "gameplay"
	KindInteraction EventKind = "interaction"
)

// Valid reports whether k is a known kind.
func (k EventKind) Valid() bool {
	return k == KindGameplay || k == KindInteraction
}

// Event is a host game event destined for the web app.
type Event struct {
	Kind   EventKind       `json:"type"`
	Params json.RawMessage `json:"params"`
}

// NewEvent builds an event, requiring params to be a JSON object.
func NewEvent(kind EventKind, params []byte) (Event, error) {
	if !kind.Valid() {
		return Event{}, fmt.Errorf("unknown event kind %q", kind)
	}
	if len(params) == 0 {
		params = []byte("{}")
	}

	var obj map[string]any
	if err := sonic.Unmarshal(params, &obj); err != nil || obj == nil {
		return Event{}, fmt.Errorf("event params must be a JSON object")
	}
	return Event{Kind: kind, Params: json.RawMessage(params)}, nil
}

func (e Event) message() Message {
	return Message{Type: TypeSubmitEvent, Payload: e}
}

// EventQueue is a bounded FIFO that drops its oldest entry on overflow.
// It is not safe for concurrent use.
type EventQueue struct {
	buf   []Event
	head  int
	count int
}

// NewEventQueue creates a queue holding at most capacity events.
func NewEventQueue(capacity int) *EventQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &EventQueue{buf: make([]Event, capacity)}
}

// Push appends e and reports how many events were evicted (0 or 1).
func (q *EventQueue) Push(e Event) int {
	tail := (q.head + q.count) % len(q.buf)
	q.buf[tail] = e
	if q.count < len(q.buf) {
		q.count++
		return 0
	}
	q.head = (q.head + 1) % len(q.buf)
	return 1
}

// Drain removes and returns every queued event, oldest first.
func (q *EventQueue) Drain() []Event {
	out := make([]Event, 0, q.count)
	for i := 0; i < q.count; i++ {
		idx := (q.head + i) % len(q.buf)
		out = append(out, q.buf[idx])
		q.buf[idx] = Event{}
	}
	q.head, q.count = 0, 0
	return out
}

func (q *EventQueue) Len() int { return q.count }
func (q *EventQueue) Cap() int { return len(q.buf) }
