package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"runtime/debug"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/media-catalog-crawler/internal/catalog"
	"github.com/JakeFAU/media-catalog-crawler/internal/metrics"
)

// errCancelled is returned by the crawl loop when it observed a cancellation request.
var errCancelled = errors.New("crawl cancelled")

// visitTracker records which normalized URLs a single crawl has already queued.
type visitTracker struct {
	seen sync.Map
}

// MarkIfNew stores the URL if it has not been seen before and returns true.
func (t *visitTracker) MarkIfNew(u *url.URL) bool {
	_, loaded := t.seen.LoadOrStore(normalize(u).String(), struct{}{})
	return !loaded
}

func (s *Service) execute(run *crawlRun) {
	defer s.wg.Done()
	logger := s.logger.With(zap.String("crawl_id", run.id))

	err := s.crawlSafely(s.baseCtx, run, logger)

	// terminal writes must land even when the service is shutting down
	ctx := context.WithoutCancel(s.baseCtx)
	if err == nil {
		if requested, checkErr := s.deps.Coordinator.IsCancellationRequested(ctx, run.id); checkErr == nil && requested {
			err = errCancelled
		}
	}
	counters := run.counters()
	switch {
	case errors.Is(err, errCancelled):
		if markErr := s.deps.Coordinator.MarkCancelled(ctx, run.id, counters); markErr != nil {
			logger.Error("failed to mark crawl cancelled", zap.Error(markErr))
		}
	case err != nil:
		s.finish(ctx, run, catalog.CrawlFailed, err.Error(), counters, logger)
		logger.Error("crawl failed", zap.Error(err))
	default:
		s.finish(ctx, run, catalog.CrawlCompleted, "", counters, logger)
	}

	s.mu.Lock()
	delete(s.runs, run.id)
	s.mu.Unlock()
	close(run.done)

	logger.Info("crawl finished",
		zap.Int64("files_found", counters.FilesFound),
		zap.Int64("files_successful", counters.FilesSuccessful),
		zap.Int64("files_with_errors", counters.FilesWithErrors),
	)
}

func (s *Service) finish(
	ctx context.Context,
	run *crawlRun,
	status catalog.CrawlStatus,
	errText string,
	counters catalog.CrawlCounters,
	logger *zap.Logger,
) {
	landed, err := s.deps.Store.FinishCrawlJob(ctx, run.id, status, errText, counters, s.deps.Clock.Now())
	if err != nil {
		logger.Error("failed to record crawl result", zap.String("status", string(status)), zap.Error(err))
		return
	}
	if landed != status {
		logger.Info("crawl result superseded",
			zap.String("requested", string(status)),
			zap.String("stored", string(landed)),
		)
	}
	metrics.ObserveCrawlJob(string(landed))
}

// crawlSafely converts a panic anywhere in the crawl into a Failed result.
func (s *Service) crawlSafely(ctx context.Context, run *crawlRun, logger *zap.Logger) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("crawl panicked", zap.Any("panic", rec), zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("crawl panicked: %v", rec)
		}
	}()
	return s.crawl(ctx, run, logger)
}

func (s *Service) crawl(ctx context.Context, run *crawlRun, logger *zap.Logger) error {
	classify := newClassifier(s.cfg.Extensions, run.startURL)
	visited := &visitTracker{}
	frontier := []*url.URL{run.startURL}
	visited.MarkIfNew(run.startURL)
	pages := 0

	for len(frontier) > 0 {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("crawl interrupted: %w", err)
		}
		if err := s.checkCancelled(ctx, run.id); err != nil {
			return err
		}

		current := frontier[0]
		frontier = frontier[1:]

		if classify.isFile(current) {
			s.catalogFile(ctx, run, current.String(), logger)
			continue
		}

		if err := s.deps.Pacer.Wait(ctx, current.String()); err != nil {
			return fmt.Errorf("crawl interrupted: %w", err)
		}
		links := s.fetchLinks(ctx, current, logger)
		s.deps.Pacer.Done(current.String())
		pages++

		for _, href := range links {
			target, err := resolve(current, href)
			if err != nil {
				if classify.hasFileSuffix(href) {
					s.catalogFile(ctx, run, href, logger)
				}
				continue
			}
			switch {
			case classify.isFile(target):
				if visited.MarkIfNew(target) {
					s.catalogFile(ctx, run, target.String(), logger)
				}
			case classify.isDirectory(target):
				if visited.MarkIfNew(target) {
					frontier = append(frontier, target)
				}
			}
		}

		if pages%s.cfg.ProgressEvery == 0 {
			if err := s.checkCancelled(ctx, run.id); err != nil {
				return err
			}
			if err := s.deps.Store.UpdateCrawlProgress(ctx, run.id, run.counters()); err != nil {
				logger.Warn("failed to flush crawl progress", zap.Error(err))
			}
		}
	}
	return nil
}

func (s *Service) checkCancelled(ctx context.Context, id string) error {
	requested, err := s.deps.Coordinator.IsCancellationRequested(ctx, id)
	if err != nil {
		return fmt.Errorf("check cancellation: %w", err)
	}
	if requested {
		return errCancelled
	}
	return nil
}

// fetchLinks downloads a directory listing. Failures are logged and yield no links.
func (s *Service) fetchLinks(ctx context.Context, page *url.URL, logger *zap.Logger) []string {
	listing, err := s.deps.Fetcher.FetchListing(ctx, page.String())
	switch {
	case err != nil:
		metrics.ObservePage(page.String(), "error")
		logger.Warn("failed to fetch listing", zap.String("url", page.String()), zap.Error(err))
		return nil
	case listing.StatusCode < 200 || listing.StatusCode >= 300:
		metrics.ObservePage(page.String(), "http_error")
		logger.Warn("listing returned error status",
			zap.String("url", page.String()),
			zap.Int("status_code", listing.StatusCode),
		)
		return nil
	case !listing.HTML:
		metrics.ObservePage(page.String(), "skipped")
		logger.Info("skipping non-html content",
			zap.String("url", page.String()),
			zap.String("content_type", listing.ContentType),
		)
		return nil
	}
	metrics.ObservePage(page.String(), "ok")
	return listing.Links
}
