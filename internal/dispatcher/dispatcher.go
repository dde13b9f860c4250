// Package dispatcher owns the scan worker pool and is the API's entry point onto the scan queue.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/govjob-scanner/internal/jobs"
	"github.com/JakeFAU/govjob-scanner/internal/worker"
)

// Dispatcher runs a fixed set of workers against one queue.
type Dispatcher struct {
	queue   jobs.Queue
	workers []*worker.Worker
}

// New creates a Dispatcher.
func New(queue jobs.Queue, workers []*worker.Worker) *Dispatcher {
	return &Dispatcher{queue: queue, workers: workers}
}

// Size is the number of workers Run starts.
func (d *Dispatcher) Size() int {
	return len(d.workers)
}

// Run starts every worker and blocks until all of them have returned, which happens once ctx
// ends or the queue is closed and drained.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Go(func() { w.Run(ctx) })
	}
	wg.Wait()
}

// Cancel stops a running scan. It reports false when no worker holds it.
func (d *Dispatcher) Cancel(scanID string) bool {
	for _, w := range d.workers {
		if w.Cancel(scanID) {
			return true
		}
	}
	return false
}

// Enqueue hands a submitted scan to the pool.
func (d *Dispatcher) Enqueue(ctx context.Context, item jobs.QueueItem) error {
	if err := d.queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("enqueue scan %s: %w", item.ScanID, err)
	}
	return nil
}
