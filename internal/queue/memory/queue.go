// Package memory provides the in-process scan queue.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/govjob-scanner/internal/jobs"
)

// ErrClosed is returned once the queue has been shut down.
var ErrClosed = jobs.ErrQueueClosed

// Queue is a bounded in-memory queue with context-aware operations.
type Queue struct {
	ch       chan jobs.QueueItem
	done     chan struct{}
	mu       sync.RWMutex
	stopOnce sync.Once
	closed   bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{
		ch:   make(chan jobs.QueueItem, capacity),
		done: make(chan struct{}),
	}
}

// Enqueue pushes a scan into the queue or returns if the context ends or the queue closes.
func (q *Queue) Enqueue(ctx context.Context, item jobs.QueueItem) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case <-q.done:
		return ErrClosed
	case q.ch <- item:
		return nil
	}
}

// Dequeue pops the next scan, respecting context cancellation. Items buffered before Close are
// still delivered.
func (q *Queue) Dequeue(ctx context.Context) (jobs.QueueItem, error) {
	select {
	case <-ctx.Done():
		return jobs.QueueItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case item, ok := <-q.ch:
		if !ok {
			return jobs.QueueItem{}, ErrClosed
		}
		return item, nil
	}
}

// Close stops accepting new items. It is safe to call more than once.
func (q *Queue) Close() {
	q.stopOnce.Do(func() {
		close(q.done)
		q.mu.Lock()
		defer q.mu.Unlock()
		q.closed = true
		close(q.ch)
	})
}
