// Package cancellation records and answers crawl cancellation requests.
package cancellation

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/media-catalog-crawler/internal/catalog"
	"github.com/JakeFAU/media-catalog-crawler/internal/metrics"
)

// Coordinator is the single place crawl jobs move through Cancelling to Cancelled.
type Coordinator struct {
	store  catalog.CrawlJobStore
	clock  catalog.Clock
	logger *zap.Logger
}

// New constructs a Coordinator.
func New(store catalog.CrawlJobStore, clock catalog.Clock, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{store: store, clock: clock, logger: logger}
}

// RequestCancellation asks a Pending or Running crawl to stop. It returns false, with no
// state change, when the job is already in any other status. Unknown ids return
// catalog.ErrNotFound.
func (c *Coordinator) RequestCancellation(ctx context.Context, jobID, requesterID, reason string) (bool, error) {
	ok, err := c.store.RequestCrawlCancellation(ctx, jobID, requesterID, reason, c.clock.Now())
	if err != nil {
		return false, fmt.Errorf("request cancellation of crawl %s: %w", jobID, err)
	}
	if ok {
		c.logger.Info("crawl cancellation requested",
			zap.String("crawl_id", jobID),
			zap.String("requested_by", requesterID),
			zap.String("reason", reason),
		)
	}
	return ok, nil
}

// IsCancellationRequested is polled by a running crawl between pages.
func (c *Coordinator) IsCancellationRequested(ctx context.Context, jobID string) (bool, error) {
	requested, err := c.store.IsCrawlCancellationRequested(ctx, jobID)
	if err != nil {
		return false, fmt.Errorf("check cancellation of crawl %s: %w", jobID, err)
	}
	return requested, nil
}

// MarkCancelled finalizes a crawl that observed its cancellation request, persisting
// the counters it reached.
func (c *Coordinator) MarkCancelled(ctx context.Context, jobID string, counters catalog.CrawlCounters) error {
	landed, err := c.store.FinishCrawlJob(ctx, jobID, catalog.CrawlCancelled, "", counters, c.clock.Now())
	if err != nil {
		return fmt.Errorf("mark crawl %s cancelled: %w", jobID, err)
	}
	metrics.ObserveCrawlJob(string(landed))
	c.logger.Info("crawl cancelled",
		zap.String("crawl_id", jobID),
		zap.String("status", string(landed)),
		zap.Int64("files_processed", counters.FilesProcessed),
	)
	return nil
}
