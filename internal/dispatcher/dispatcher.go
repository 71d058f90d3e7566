// Package dispatcher owns the background queue and its single consumer.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/media-catalog-crawler/internal/catalog"
	"github.com/JakeFAU/media-catalog-crawler/internal/worker"
)

// Dispatcher feeds queued work to the worker loop.
type Dispatcher struct {
	queue  catalog.WorkQueue
	worker *worker.Worker
}

// New creates a Dispatcher.
func New(queue catalog.WorkQueue, w *worker.Worker) *Dispatcher {
	return &Dispatcher{
		queue:  queue,
		worker: w,
	}
}

// Run starts the worker and blocks until the context finishes.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	if d.worker != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.worker.Run(ctx)
		}()
	}
	<-ctx.Done()
	wg.Wait()
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(item catalog.WorkItem) error {
	if err := d.queue.Enqueue(item); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}

// Pending returns the advisory number of queued items.
func (d *Dispatcher) Pending() int {
	return d.queue.Count()
}
