package sim

import (
	"container/heap"
	"math"
)

// Callback is deferred work drained by the engine.
type Callback func() error

// Event is a scheduled callback.
type Event struct {
	time  float64
	seq   uint64
	label string
	owner *Agent
	fn    Callback
}

// Timestamp returns the simulation time the event fires at.
func (e *Event) Timestamp() float64 { return e.time }

// Seq returns the insertion sequence number used to break time ties.
func (e *Event) Seq() uint64 { return e.seq }

// Label names the kind of event ("started", "arrival", "plan").
func (e *Event) Label() string { return e.label }

// Owner returns the agent the event was scheduled for, or nil.
func (e *Event) Owner() *Agent { return e.owner }

// eventHeap implements heap.Interface.
// Ordering: time -> insertion sequence. Nothing else participates.
type eventHeap []*Event

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if h[i].time != h[j].time {
		return h[i].time < h[j].time
	}
	return h[i].seq < h[j].seq
}

func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) {
	*h = append(*h, x.(*Event))
}

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[0 : n-1]
	return item
}

// EventQueue is a time-ordered, FIFO-on-tie queue of callbacks.
// The sequence counter is owned by the queue so that replays of the same
// inputs assign the same sequence numbers.
type EventQueue struct {
	events  eventHeap
	nextSeq uint64
	now     float64
}

// NewEventQueue creates an empty queue positioned at time 0.
func NewEventQueue() *EventQueue {
	q := &EventQueue{events: make(eventHeap, 0)}
	heap.Init(&q.events)
	return q
}

// Len returns the number of pending events.
func (q *EventQueue) Len() int { return q.events.Len() }

// Now returns the drain position: the time of the last popped event.
func (q *EventQueue) Now() float64 { return q.now }

// Schedule enqueues fn at time at. It fails with InvalidScheduleError when at
// is before the drain position or is not a number.
func (q *EventQueue) Schedule(at float64, owner *Agent, label string, fn Callback) (*Event, error) {
	if math.IsNaN(at) {
		return nil, &InvalidScheduleError{At: at, Now: q.now, Reason: "time is NaN"}
	}
	if at < q.now {
		return nil, &InvalidScheduleError{At: at, Now: q.now}
	}
	q.nextSeq++
	ev := &Event{time: at, seq: q.nextSeq, label: label, owner: owner, fn: fn}
	heap.Push(&q.events, ev)
	return ev, nil
}

// PopNext removes and returns the next event and advances the drain
// position to its time. Returns nil when the queue is empty.
func (q *EventQueue) PopNext() *Event {
	if q.events.Len() == 0 {
		return nil
	}
	ev := heap.Pop(&q.events).(*Event)
	q.now = ev.time
	return ev
}

// Peek returns the next event without removing it.
func (q *EventQueue) Peek() *Event {
	if q.events.Len() == 0 {
		return nil
	}
	return q.events[0]
}
