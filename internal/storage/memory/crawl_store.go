package memory

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/JakeFAU/media-catalog-crawler/internal/catalog"
)

// CreateCrawlJob stores a new crawl record.
func (s *Store) CreateCrawlJob(_ context.Context, job catalog.CrawlJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.crawls[job.ID]; exists {
		return errors.New("crawl job already exists")
	}
	s.crawls[job.ID] = cloneCrawl(job)
	return nil
}

// GetCrawlJob fetches a crawl by ID.
func (s *Store) GetCrawlJob(_ context.Context, id string) (catalog.CrawlJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.crawls[id]
	if !ok {
		return catalog.CrawlJob{}, catalog.ErrNotFound
	}
	return cloneCrawl(job), nil
}

// ListCrawlJobs returns all crawls, newest first.
func (s *Store) ListCrawlJobs(_ context.Context) ([]catalog.CrawlJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]catalog.CrawlJob, 0, len(s.crawls))
	for _, job := range s.crawls {
		out = append(out, cloneCrawl(job))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

// UpdateCrawlStatus sets the status of a crawl that is neither terminal nor cancelling.
func (s *Store) UpdateCrawlStatus(_ context.Context, id string, status catalog.CrawlStatus) error {
	return s.mutateCrawl(id, func(job *catalog.CrawlJob) {
		if !job.Status.Terminal() && job.Status != catalog.CrawlCancelling {
			job.Status = status
		}
	})
}

// UpdateCrawlProgress replaces the counters of a crawl.
func (s *Store) UpdateCrawlProgress(_ context.Context, id string, counters catalog.CrawlCounters) error {
	return s.mutateCrawl(id, func(job *catalog.CrawlJob) {
		job.Counters = counters
	})
}

// FinishCrawlJob records a terminal status, error text, final counters, and end time.
// An accepted cancellation wins over any other outcome.
func (s *Store) FinishCrawlJob(
	_ context.Context,
	id string,
	status catalog.CrawlStatus,
	errText string,
	counters catalog.CrawlCounters,
	at time.Time,
) (catalog.CrawlStatus, error) {
	var landed catalog.CrawlStatus
	err := s.mutateCrawl(id, func(job *catalog.CrawlJob) {
		if job.Status.Terminal() {
			landed = job.Status
			return
		}
		if job.Status == catalog.CrawlCancelling {
			status = catalog.CrawlCancelled
		}
		job.Status = status
		job.ErrorMessage = errText
		job.Counters = counters
		job.EndedAt = pointerTime(at)
		landed = status
	})
	if err != nil {
		return "", err
	}
	return landed, nil
}

// RequestCrawlCancellation records a cancellation request when the crawl still accepts one.
func (s *Store) RequestCrawlCancellation(
	_ context.Context,
	id, requestedBy, reason string,
	at time.Time,
) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.crawls[id]
	if !ok {
		return false, catalog.ErrNotFound
	}
	if !job.CanBeCancelled() {
		return false, nil
	}
	job.CancellationRequested = true
	job.CancellationRequestedAt = pointerTime(at)
	job.CancellationRequestedBy = requestedBy
	job.CancellationReason = reason
	job.Status = catalog.CrawlCancelling
	s.crawls[id] = job
	return true, nil
}

// IsCrawlCancellationRequested reads the cancellation flag.
func (s *Store) IsCrawlCancellationRequested(_ context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.crawls[id]
	if !ok {
		return false, catalog.ErrNotFound
	}
	return job.CancellationRequested, nil
}

func (s *Store) mutateCrawl(id string, fn func(*catalog.CrawlJob)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.crawls[id]
	if !ok {
		return catalog.ErrNotFound
	}
	fn(&job)
	s.crawls[id] = job
	return nil
}
