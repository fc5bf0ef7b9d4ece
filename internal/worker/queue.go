package worker

import "sync"

// Queue is an unbounded FIFO. Push never blocks; consumers poll with TryPop
// and may wait on Ready for the next push.
type Queue[T any] struct {
	mu    sync.Mutex
	items []T
	ready chan struct{}
}

// NewQueue returns an empty queue.
func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{ready: make(chan struct{}, 1)}
}

// Push appends item to the tail of the queue.
func (q *Queue[T]) Push(item T) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()

	// Coalesce wake-ups: one pending signal is enough for a single consumer.
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// TryPop removes and returns the head of the queue without blocking.
func (q *Queue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	item := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	if len(q.items) == 0 {
		// Release the backing array once drained.
		q.items = nil
	}
	return item, true
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Ready is signalled after a Push. A receive does not guarantee an item is
// still available; callers should follow up with TryPop.
func (q *Queue[T]) Ready() <-chan struct{} {
	return q.ready
}
