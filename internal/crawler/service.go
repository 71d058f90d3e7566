package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/JakeFAU/media-catalog-crawler/internal/catalog"
	"github.com/JakeFAU/media-catalog-crawler/internal/metrics"
)

// ErrInvalidStartURL is returned when a crawl is requested for something other than an
// absolute http(s) URL.
var ErrInvalidStartURL = errors.New("invalid start url")

// Coordinator answers and finalizes crawl cancellation requests.
type Coordinator interface {
	RequestCancellation(ctx context.Context, jobID, requesterID, reason string) (bool, error)
	IsCancellationRequested(ctx context.Context, jobID string) (bool, error)
	MarkCancelled(ctx context.Context, jobID string, counters catalog.CrawlCounters) error
}

// Pacer spaces out page fetches against one server. Wait is called before a listing
// fetch and Done once it has finished.
type Pacer interface {
	Wait(ctx context.Context, rawURL string) error
	Done(rawURL string)
}

// Config tunes crawl behavior.
type Config struct {
	// ProgressEvery is the number of listing pages between progress flushes.
	ProgressEvery int
	// Extensions is the file allowlist; empty means Extensions.
	Extensions []string
}

// Deps bundles the collaborators of a Service.
type Deps struct {
	Store       catalog.Store
	Fetcher     catalog.Fetcher
	Coordinator Coordinator
	Pacer       Pacer
	Hasher      catalog.Hasher
	IDs         catalog.IDGenerator
	Clock       catalog.Clock
	Logger      *zap.Logger
}

// Service starts crawls and serves their status.
type Service struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup

	mu   sync.Mutex
	runs map[string]*crawlRun
}

// crawlRun is the live state of one crawl, shared between its goroutine and readers.
type crawlRun struct {
	id       string
	startURL *url.URL
	userID   string

	found      atomic.Int64
	successful atomic.Int64
	withErrors atomic.Int64

	done chan struct{}
}

// counters reads successful and errors before found so that processed never exceeds
// found in a snapshot.
func (r *crawlRun) counters() catalog.CrawlCounters {
	successful := r.successful.Load()
	withErrors := r.withErrors.Load()
	found := r.found.Load()
	return catalog.CrawlCounters{
		FilesFound:      found,
		FilesProcessed:  successful + withErrors,
		FilesSuccessful: successful,
		FilesWithErrors: withErrors,
	}
}

// NewService constructs a Service. Crawls it starts run until they finish or Shutdown
// is called.
func NewService(deps Deps, cfg Config) *Service {
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = 10
	}
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = Extensions
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Service{
		deps:    deps,
		cfg:     cfg,
		logger:  deps.Logger,
		baseCtx: ctx,
		stop:    stop,
		runs:    make(map[string]*crawlRun),
	}
}

// StartCrawl persists a new crawl and starts it in the background, returning its id.
func (s *Service) StartCrawl(ctx context.Context, startURL, userID string) (string, error) {
	root, err := parseStartURL(startURL)
	if err != nil {
		return "", err
	}
	id, err := s.deps.IDs.NewID()
	if err != nil {
		return "", fmt.Errorf("generate crawl id: %w", err)
	}
	job := catalog.CrawlJob{
		ID:        id,
		StartURL:  root.String(),
		UserID:    userID,
		Status:    catalog.CrawlPending,
		StartedAt: s.deps.Clock.Now(),
	}
	if err := s.deps.Store.CreateCrawlJob(ctx, job); err != nil {
		return "", fmt.Errorf("create crawl job: %w", err)
	}
	if err := s.deps.Store.UpdateCrawlStatus(ctx, id, catalog.CrawlRunning); err != nil {
		return "", fmt.Errorf("mark crawl running: %w", err)
	}

	run := &crawlRun{id: id, startURL: root, userID: userID, done: make(chan struct{})}
	s.mu.Lock()
	s.runs[id] = run
	s.mu.Unlock()

	s.wg.Add(1)
	go s.execute(run)

	metrics.ObserveCrawlJob(string(catalog.CrawlRunning))
	s.logger.Info("crawl started",
		zap.String("crawl_id", id),
		zap.String("start_url", job.StartURL),
		zap.String("user_id", userID),
	)
	return id, nil
}

func parseStartURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidStartURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q is not an absolute http(s) url", ErrInvalidStartURL, raw)
	}
	return normalize(u), nil
}

// GetCrawlJob returns the persisted record, with live counters while the crawl runs.
func (s *Service) GetCrawlJob(ctx context.Context, id string) (catalog.CrawlJob, error) {
	job, err := s.deps.Store.GetCrawlJob(ctx, id)
	if err != nil {
		return catalog.CrawlJob{}, fmt.Errorf("get crawl job %s: %w", id, err)
	}
	return s.overlay(job), nil
}

// ListCrawlJobs returns every crawl, newest first.
func (s *Service) ListCrawlJobs(ctx context.Context) ([]catalog.CrawlJob, error) {
	jobs, err := s.deps.Store.ListCrawlJobs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list crawl jobs: %w", err)
	}
	for i := range jobs {
		jobs[i] = s.overlay(jobs[i])
	}
	return jobs, nil
}

func (s *Service) overlay(job catalog.CrawlJob) catalog.CrawlJob {
	s.mu.Lock()
	run, ok := s.runs[job.ID]
	s.mu.Unlock()
	if ok && !job.Status.Terminal() {
		job.Counters = run.counters()
	}
	return job
}

// RequestCancellation asks a crawl to stop at its next cancellation check.
func (s *Service) RequestCancellation(ctx context.Context, id, userID, reason string) (bool, error) {
	ok, err := s.deps.Coordinator.RequestCancellation(ctx, id, userID, reason)
	if err != nil {
		return false, fmt.Errorf("cancel crawl: %w", err)
	}
	return ok, nil
}

// ProblematicURIs lists the diagnostics recorded by a crawl.
func (s *Service) ProblematicURIs(ctx context.Context, id string) ([]catalog.ProblematicURI, error) {
	if _, err := s.deps.Store.GetCrawlJob(ctx, id); err != nil {
		return nil, fmt.Errorf("get crawl job %s: %w", id, err)
	}
	problems, err := s.deps.Store.ListProblematicURIs(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list problematic uris: %w", err)
	}
	return problems, nil
}

// ExtensionStats counts cataloged files per extension.
func (s *Service) ExtensionStats(ctx context.Context) ([]catalog.ExtensionStat, error) {
	stats, err := s.deps.Store.ExtensionStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("extension stats: %w", err)
	}
	return stats, nil
}

// Wait blocks until the crawl reaches a terminal status or ctx ends, then returns its record.
func (s *Service) Wait(ctx context.Context, id string) (catalog.CrawlJob, error) {
	s.mu.Lock()
	run, ok := s.runs[id]
	s.mu.Unlock()
	if ok {
		select {
		case <-run.done:
		case <-ctx.Done():
			return catalog.CrawlJob{}, fmt.Errorf("wait for crawl %s: %w", id, ctx.Err())
		}
	}
	return s.GetCrawlJob(ctx, id)
}

// Shutdown interrupts running crawls and waits for them to record a terminal status.
func (s *Service) Shutdown(ctx context.Context) error {
	s.stop()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("crawler shutdown: %w", ctx.Err())
	}
}
