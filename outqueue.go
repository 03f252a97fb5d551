package ircore

import (
	"sync"
	"time"
)

// Priority selects which out-queue an outbound command is enqueued onto.
type Priority uint8

const (
	PriorityImmediate Priority = iota
	PriorityHigh
	PriorityLow
)

// outItem is one queued frame plus enough context to re-emit outbound
// signal events and bind a redirect at send time.
type outItem struct {
	message  *Message
	tags     Tags
	modified bool
	redirect *Redirect

	// priority carries the caller's requested queue; enqueue may override
	// it to PriorityImmediate for pre-registration traffic.
	priority Priority
}

// outQueue implements a three-FIFO anti-flood drain: immediate drains
// completely on every tick; then one high-priority message is sent, or
// one low-priority message if high is empty.
type outQueue struct {
	mu sync.Mutex

	immediate []outItem
	high      []outItem
	low       []outItem

	// antiFlood is the minimum interval between non-immediate sends; 0
	// disables pacing and drains everything immediately.
	antiFlood time.Duration

	send func(outItem)
}

func newOutQueue(antiFlood time.Duration, send func(outItem)) *outQueue {
	return &outQueue{antiFlood: antiFlood, send: send}
}

func (q *outQueue) enqueue(item outItem, priority Priority, preRegistration bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if preRegistration {
		priority = PriorityImmediate
	}

	switch priority {
	case PriorityImmediate:
		q.immediate = append(q.immediate, item)
	case PriorityHigh:
		q.high = append(q.high, item)
	default:
		q.low = append(q.low, item)
	}
}

// Depth returns the number of queued messages per priority, for metrics.
func (q *outQueue) Depth() (immediate, high, low int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.immediate), len(q.high), len(q.low)
}

// drain is invoked on send and on every anti-flood tick. It always
// drains immediate completely, then sends at most one high-or-low
// message (high preferred) unless anti-flood is disabled, in which case
// every queue is drained.
func (q *outQueue) drain() {
	q.mu.Lock()
	items := q.immediate
	q.immediate = nil

	var next *outItem
	if q.antiFlood <= 0 {
		items = append(items, q.high...)
		items = append(items, q.low...)
		q.high = nil
		q.low = nil
	} else if len(q.high) > 0 {
		it := q.high[0]
		q.high = q.high[1:]
		next = &it
	} else if len(q.low) > 0 {
		it := q.low[0]
		q.low = q.low[1:]
		next = &it
	}
	q.mu.Unlock()

	for _, it := range items {
		q.send(it)
	}
	if next != nil {
		q.send(*next)
	}
}

func (q *outQueue) flushAll() {
	q.mu.Lock()
	items := append(q.immediate, append(q.high, q.low...)...)
	q.immediate, q.high, q.low = nil, nil, nil
	q.mu.Unlock()

	for _, it := range items {
		q.send(it)
	}
}
