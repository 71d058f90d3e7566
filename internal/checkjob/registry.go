// Package checkjob tracks on-demand availability check jobs from submission to a
// terminal state.
package checkjob

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/JakeFAU/media-catalog-crawler/internal/catalog"
	"github.com/JakeFAU/media-catalog-crawler/internal/metrics"
)

// ErrNoFiles is returned when a job would have nothing to check.
var ErrNoFiles = errors.New("no files to check")

// Enqueuer accepts deferred work for the worker loop.
type Enqueuer interface {
	Enqueue(item catalog.WorkItem) error
}

// Checker probes files and answers which files are due for a probe.
type Checker interface {
	CheckFiles(ctx context.Context, fileIDs []int64, checkedBy string) ([]catalog.StatusCheck, error)
	FilesNeedingCheck(ctx context.Context) ([]catalog.File, error)
}

// FileLister lists every cataloged file id.
type FileLister interface {
	ListFileIDs(ctx context.Context) ([]int64, error)
}

// Options tunes job execution.
type Options struct {
	BatchSize  int
	BatchDelay time.Duration
	// Retention is how long a terminal job stays queryable.
	Retention time.Duration
}

// DefaultOptions returns the production settings.
func DefaultOptions() Options {
	return Options{
		BatchSize:  5,
		BatchDelay: 3 * time.Second,
		Retention:  time.Hour,
	}
}

type entry struct {
	job    catalog.CheckJob
	cancel context.CancelFunc
}

// Registry owns every check job. Active jobs live in a map guarded by mu; terminal jobs
// move to an expiring cache and are dropped after Retention.
type Registry struct {
	enqueuer Enqueuer
	checker  Checker
	files    FileLister
	ids      catalog.IDGenerator
	clock    catalog.Clock
	opts     Options
	logger   *zap.Logger

	mu       sync.Mutex
	active   map[string]*entry
	finished *cache.Cache
}

// New constructs a Registry.
func New(
	enqueuer Enqueuer,
	checker Checker,
	files FileLister,
	ids catalog.IDGenerator,
	clock catalog.Clock,
	opts Options,
	logger *zap.Logger,
) *Registry {
	defaults := DefaultOptions()
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaults.BatchSize
	}
	if opts.BatchDelay < 0 {
		opts.BatchDelay = 0
	}
	if opts.Retention <= 0 {
		opts.Retention = defaults.Retention
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		enqueuer: enqueuer,
		checker:  checker,
		files:    files,
		ids:      ids,
		clock:    clock,
		opts:     opts,
		logger:   logger,
		active:   make(map[string]*entry),
		finished: cache.New(opts.Retention, opts.Retention/2),
	}
}

// StartJob records a Queued job for the given file ids and enqueues its work. Duplicate
// ids are checked once. The registry itself imposes no upper bound on the id count.
func (r *Registry) StartJob(_ context.Context, fileIDs []int64, userID string) (string, error) {
	ids := distinct(fileIDs)
	if len(ids) == 0 {
		return "", ErrNoFiles
	}
	jobID, err := r.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("generate job id: %w", err)
	}

	// the job outlives the request that started it
	jobCtx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	r.active[jobID] = &entry{
		job: catalog.CheckJob{
			ID:         jobID,
			UserID:     userID,
			Status:     catalog.CheckJobQueued,
			CreatedAt:  r.clock.Now(),
			TotalFiles: len(ids),
		},
		cancel: cancel,
	}
	r.mu.Unlock()

	item := func(workerCtx context.Context) error {
		return r.run(workerCtx, jobCtx, jobID, ids, userID)
	}
	if err := r.enqueuer.Enqueue(item); err != nil {
		r.mu.Lock()
		delete(r.active, jobID)
		r.mu.Unlock()
		cancel()
		return "", fmt.Errorf("enqueue check job: %w", err)
	}
	metrics.ObserveCheckJob(string(catalog.CheckJobQueued))
	r.logger.Info("check job queued",
		zap.String("job_id", jobID),
		zap.String("user_id", userID),
		zap.Int("total_files", len(ids)),
	)
	return jobID, nil
}

// StartAllFilesJob starts a job covering the whole catalog.
func (r *Registry) StartAllFilesJob(ctx context.Context, userID string) (string, error) {
	ids, err := r.files.ListFileIDs(ctx)
	if err != nil {
		return "", fmt.Errorf("list file ids: %w", err)
	}
	return r.StartJob(ctx, ids, userID)
}

// StartFilesNeedingCheckJob starts a job covering files never checked or checked too
// long ago.
func (r *Registry) StartFilesNeedingCheckJob(ctx context.Context, userID string) (string, error) {
	files, err := r.checker.FilesNeedingCheck(ctx)
	if err != nil {
		return "", fmt.Errorf("list files needing check: %w", err)
	}
	ids := make([]int64, 0, len(files))
	for _, f := range files {
		ids = append(ids, f.ID)
	}
	return r.StartJob(ctx, ids, userID)
}

// GetJobStatus returns a snapshot of a job. Jobs past their retention report false.
func (r *Registry) GetJobStatus(jobID string) (catalog.CheckJob, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.active[jobID]; ok {
		return e.job, true
	}
	if v, ok := r.finished.Get(jobID); ok {
		job, _ := v.(catalog.CheckJob)
		return job, true
	}
	return catalog.CheckJob{}, false
}

// GetActiveJobs returns every non-terminal job, newest first.
func (r *Registry) GetActiveJobs() []catalog.CheckJob {
	r.mu.Lock()
	jobs := make([]catalog.CheckJob, 0, len(r.active))
	for _, e := range r.active {
		jobs = append(jobs, e.job)
	}
	r.mu.Unlock()
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID > jobs[j].ID
		}
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs
}

// CancelJob signals the job and marks it Cancelled. It returns false when the job is
// unknown or already terminal.
func (r *Registry) CancelJob(jobID string) bool {
	if !r.finish(jobID, catalog.CheckJobCancelled, "") {
		return false
	}
	r.logger.Info("check job cancelled", zap.String("job_id", jobID))
	return true
}

func (r *Registry) run(workerCtx, jobCtx context.Context, jobID string, ids []int64, userID string) (err error) {
	ctx, stop := context.WithCancel(workerCtx)
	defer stop()
	unhook := context.AfterFunc(jobCtx, stop)
	defer unhook()

	defer func() {
		if rec := recover(); rec != nil {
			r.finish(jobID, catalog.CheckJobFailed, fmt.Sprintf("check job panicked: %v", rec))
			err = fmt.Errorf("check job %s panicked: %v", jobID, rec)
		}
	}()

	if !r.markRunning(jobID) {
		return nil
	}
	for start := 0; start < len(ids); start += r.opts.BatchSize {
		if start > 0 {
			if err := r.clock.Sleep(ctx, r.opts.BatchDelay); err != nil {
				r.interrupted(jobCtx, jobID, err)
				return nil
			}
		}
		if ctx.Err() != nil || r.isTerminal(jobID) {
			r.interrupted(jobCtx, jobID, ctx.Err())
			return nil
		}
		batch := ids[start:min(start+r.opts.BatchSize, len(ids))]
		results, checkErr := r.checker.CheckFiles(ctx, batch, userID)
		if !r.recordBatch(jobID, results) {
			return nil
		}
		if checkErr != nil {
			if ctx.Err() != nil {
				r.interrupted(jobCtx, jobID, checkErr)
				return nil
			}
			r.finish(jobID, catalog.CheckJobFailed, checkErr.Error())
			return nil
		}
	}
	if r.finish(jobID, catalog.CheckJobCompleted, "") {
		job, _ := r.GetJobStatus(jobID)
		r.logger.Info("check job completed",
			zap.String("job_id", jobID),
			zap.Int("processed", job.ProcessedFiles),
			zap.Int("available", job.AvailableFiles),
			zap.Int("unavailable", job.UnavailableFiles),
		)
	}
	return nil
}

// interrupted settles a job whose context ended: Cancelled when the job itself was
// cancelled, Failed when the worker is shutting down.
func (r *Registry) interrupted(jobCtx context.Context, jobID string, cause error) {
	if jobCtx.Err() != nil {
		r.finish(jobID, catalog.CheckJobCancelled, "")
		return
	}
	msg := "check job interrupted"
	if cause != nil {
		msg = fmt.Sprintf("check job interrupted: %v", cause)
	}
	r.finish(jobID, catalog.CheckJobFailed, msg)
}

func (r *Registry) markRunning(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.active[jobID]
	if !ok || e.job.Status != catalog.CheckJobQueued {
		return false
	}
	now := r.clock.Now()
	e.job.Status = catalog.CheckJobRunning
	e.job.StartedAt = &now
	metrics.ObserveCheckJob(string(catalog.CheckJobRunning))
	return true
}

func (r *Registry) isTerminal(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.active[jobID]
	return !ok
}

// recordBatch folds batch results into the job counters. Results for a job that became
// terminal while the batch ran are discarded and false is returned.
func (r *Registry) recordBatch(jobID string, results []catalog.StatusCheck) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.active[jobID]
	if !ok {
		return false
	}
	for _, res := range results {
		e.job.ProcessedFiles++
		if res.IsAccessible {
			e.job.AvailableFiles++
		} else {
			e.job.UnavailableFiles++
		}
	}
	return true
}

// finish is the single compare-and-set into a terminal status.
func (r *Registry) finish(jobID string, status catalog.CheckJobStatus, errText string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.active[jobID]
	if !ok {
		return false
	}
	now := r.clock.Now()
	e.job.Status = status
	e.job.CompletedAt = &now
	e.job.ErrorMessage = errText
	e.cancel()
	delete(r.active, jobID)
	r.finished.Set(jobID, e.job, r.opts.Retention)
	metrics.ObserveCheckJob(string(status))
	if status == catalog.CheckJobFailed {
		r.logger.Error("check job failed", zap.String("job_id", jobID), zap.String("error", errText))
	}
	return true
}

func distinct(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
