package connection

import (
	"context"
	"sync"
	"time"

	"github.com/keepmind9/relaybot/internal/message"
)

// Queue is the thread-safe outbound FIFO of a connection.
//
// Messages implementing message.Deferred are not eligible until their ready
// time; they do not hold back the items queued behind them.
type Queue struct {
	mu     sync.Mutex
	items  []message.Message
	notify chan struct{}
}

// NewQueue creates an empty queue
func NewQueue() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

// Push appends msg and wakes a waiting writer
func (q *Queue) Push(msg message.Message) {
	if msg == nil {
		return
	}

	q.mu.Lock()
	q.items = append(q.items, msg)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Requeue puts msgs back at the head of the queue in their original order
func (q *Queue) Requeue(msgs []message.Message) {
	if len(msgs) == 0 {
		return
	}

	q.mu.Lock()
	items := make([]message.Message, 0, len(msgs)+len(q.items))
	items = append(items, msgs...)
	q.items = append(items, q.items...)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Ready is signalled whenever an item is pushed
func (q *Queue) Ready() <-chan struct{} {
	return q.notify
}

// Len returns the number of queued items, eligible or not
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Take removes and returns every item eligible at now, preserving order
func (q *Queue) Take(now time.Time) []message.Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil
	}

	var taken []message.Message
	kept := q.items[:0]
	for _, item := range q.items {
		if eligible(item, now) {
			taken = append(taken, item)
			continue
		}
		kept = append(kept, item)
	}
	// drop references held by the tail of the backing array
	for i := len(kept); i < len(q.items); i++ {
		q.items[i] = nil
	}
	q.items = kept
	return taken
}

// NextReady returns the earliest ready time among waiting deferred items
func (q *Queue) NextReady() (time.Time, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var next time.Time
	found := false
	for _, item := range q.items {
		d, ok := item.(message.Deferred)
		if !ok {
			continue
		}
		at := d.ReadyAt()
		if !found || at.Before(next) {
			next = at
			found = true
		}
	}
	return next, found
}

// Wait blocks until an item is pushed, the earliest deferred item becomes
// due, or ctx ends. It returns false once ctx is done.
func (q *Queue) Wait(ctx context.Context) bool {
	var timer *time.Timer
	var wake <-chan time.Time
	if at, ok := q.NextReady(); ok {
		timer = time.NewTimer(time.Until(at))
		wake = timer.C
		defer timer.Stop()
	}

	select {
	case <-ctx.Done():
		return false
	case <-q.notify:
	case <-wake:
	}
	return true
}

func eligible(msg message.Message, now time.Time) bool {
	d, ok := msg.(message.Deferred)
	if !ok {
		return true
	}
	return !now.Before(d.ReadyAt())
}
