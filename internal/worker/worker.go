// Package worker implements the single consumer loop for queued background work.
package worker

import (
	"context"
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/JakeFAU/media-catalog-crawler/internal/catalog"
	"github.com/JakeFAU/media-catalog-crawler/internal/metrics"
)

// Worker consumes queue items and executes them one at a time.
type Worker struct {
	queue  catalog.WorkQueue
	logger *zap.Logger
}

// New constructs a Worker.
func New(queue catalog.WorkQueue, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:  queue,
		logger: logger,
	}
}

// Run blocks, consuming queue items until the context finishes. Items still queued at
// shutdown are abandoned.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("worker started")
	defer w.logger.Info("worker stopped")
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		if err := w.execute(ctx, item); err != nil {
			w.logger.Error("work item failed", zap.Error(err), zap.Int("pending", w.queue.Count()))
			continue
		}
		metrics.ObserveWorkItem("ok")
	}
}

func (w *Worker) execute(ctx context.Context, item catalog.WorkItem) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			metrics.ObserveWorkItem("panic")
			w.logger.Error("work item panicked", zap.Any("panic", rec), zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("work item panicked: %v", rec)
		}
	}()
	if err := item(ctx); err != nil {
		metrics.ObserveWorkItem("error")
		return fmt.Errorf("execute work item: %w", err)
	}
	return nil
}
