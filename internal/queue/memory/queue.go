// Package memory provides the in-process work queue.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/media-catalog-crawler/internal/catalog"
)

var errQueueClosed = errors.New("queue closed")

// Queue is an unbounded FIFO of work items. Enqueue never blocks; Dequeue waits for
// an item or for the context to end.
type Queue struct {
	mu     sync.Mutex
	items  []catalog.WorkItem
	ready  chan struct{}
	done   chan struct{}
	closed bool
}

// NewQueue constructs an empty queue.
func NewQueue() *Queue {
	return &Queue{
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Enqueue appends an item to the tail of the queue.
func (q *Queue) Enqueue(item catalog.WorkItem) error {
	if item == nil {
		return errors.New("work item is nil")
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return errQueueClosed
	}
	q.items = append(q.items, item)
	q.mu.Unlock()
	q.signal()
	return nil
}

// Dequeue removes and returns the head of the queue, blocking until one is available.
func (q *Queue) Dequeue(ctx context.Context) (catalog.WorkItem, error) {
	for {
		if item, ok := q.pop(); ok {
			return item, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("dequeue canceled: %w", ctx.Err())
		case <-q.done:
			if item, ok := q.pop(); ok {
				return item, nil
			}
			return nil, errQueueClosed
		case <-q.ready:
		}
	}
}

func (q *Queue) pop() (catalog.WorkItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	item := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	if len(q.items) > 0 {
		// wake another waiting consumer for the remainder
		q.signal()
	}
	return item, true
}

func (q *Queue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Count returns a snapshot of the number of pending items.
func (q *Queue) Count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// IsEmpty reports whether the queue had no pending items at the time of the call.
func (q *Queue) IsEmpty() bool {
	return q.Count() == 0
}

// Close rejects further enqueues and wakes blocked consumers once drained.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}
