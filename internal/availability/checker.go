// Package availability probes cataloged files and records the outcome of every probe.
package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/media-catalog-crawler/internal/catalog"
	"github.com/JakeFAU/media-catalog-crawler/internal/metrics"
)

// Config controls batch probing.
type Config struct {
	// BatchSize bounds how many probes run concurrently and how many ids share a batch.
	BatchSize int
	// BatchDelay is the pause between consecutive batches.
	BatchDelay time.Duration
	// StaleAfter is the age after which a file's last check no longer counts.
	StaleAfter time.Duration
}

// DefaultConfig returns the production batch settings.
func DefaultConfig() Config {
	return Config{
		BatchSize:  5,
		BatchDelay: time.Second,
		StaleAfter: 24 * time.Hour,
	}
}

// Checker issues HEAD probes for cataloged files.
type Checker struct {
	store   catalog.FileStore
	fetcher catalog.Fetcher
	clock   catalog.Clock
	cfg     Config
	logger  *zap.Logger
}

// New constructs a Checker.
func New(store catalog.FileStore, fetcher catalog.Fetcher, clock catalog.Clock, cfg Config, logger *zap.Logger) *Checker {
	defaults := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaults.BatchSize
	}
	if cfg.BatchDelay < 0 {
		cfg.BatchDelay = 0
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = defaults.StaleAfter
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{
		store:   store,
		fetcher: fetcher,
		clock:   clock,
		cfg:     cfg,
		logger:  logger,
	}
}

// CheckFile probes one file and persists the result. Unknown ids are returned as errors
// without writing anything.
func (c *Checker) CheckFile(ctx context.Context, fileID int64, checkedBy string) (catalog.StatusCheck, error) {
	file, err := c.store.GetFile(ctx, fileID)
	if err != nil {
		return catalog.StatusCheck{}, fmt.Errorf("load file %d: %w", fileID, err)
	}
	return c.probe(ctx, file, checkedBy)
}

// probe runs to completion once started: a caller's cancellation is observed between
// batches, never by aborting a request in flight. The fetcher's timeout bounds it.
func (c *Checker) probe(ctx context.Context, file catalog.File, checkedBy string) (catalog.StatusCheck, error) {
	ctx = context.WithoutCancel(ctx)
	checkedAt := c.clock.Now()
	res, probeErr := c.fetcher.Probe(ctx, file.Path)
	check := classify(res, probeErr)
	check.FileID = file.ID
	check.CheckedAt = checkedAt
	check.CheckedBy = checkedBy
	check.ResponseTime = res.Duration

	if err := c.store.RecordStatusCheck(ctx, &check); err != nil {
		return check, fmt.Errorf("record status check for file %d: %w", file.ID, err)
	}
	metrics.ObserveProbe(file.Path, string(check.Outcome), check.ResponseTime)
	c.logger.Debug("file probed",
		zap.Int64("file_id", file.ID),
		zap.String("outcome", string(check.Outcome)),
		zap.Int("status_code", check.StatusCode),
	)
	return check, nil
}

func classify(res catalog.ProbeResult, err error) catalog.StatusCheck {
	switch {
	case err == nil && res.Success():
		return catalog.StatusCheck{
			Outcome:      catalog.ProbeAccessible,
			StatusCode:   res.StatusCode,
			IsAccessible: true,
		}
	case err == nil:
		return catalog.StatusCheck{
			Outcome:      catalog.ProbeInaccessible,
			StatusCode:   res.StatusCode,
			ErrorMessage: fmt.Sprintf("HTTP %d %s", res.StatusCode, res.Status),
		}
	case errors.Is(err, catalog.ErrProbeTimeout):
		return catalog.StatusCheck{
			Outcome:      catalog.ProbeTimeout,
			StatusCode:   catalog.StatusCodeTimeout,
			ErrorMessage: "Request timeout",
		}
	default:
		return catalog.StatusCheck{
			Outcome:      catalog.ProbeNetworkError,
			StatusCode:   catalog.StatusCodeNetworkError,
			ErrorMessage: err.Error(),
		}
	}
}

// CheckFiles probes ids in batches of BatchSize, pausing BatchDelay between batches.
// Each distinct id is probed at most once. Files that could not be probed or recorded
// are left out of the results and reported together in the returned error once every
// batch has run. Context cancellation stops before the next batch and returns the
// results gathered so far.
func (c *Checker) CheckFiles(ctx context.Context, fileIDs []int64, checkedBy string) ([]catalog.StatusCheck, error) {
	ids := dedupe(fileIDs)
	results := make([]catalog.StatusCheck, 0, len(ids))
	var failures []error
	for start := 0; start < len(ids); start += c.cfg.BatchSize {
		if start > 0 {
			if err := c.clock.Sleep(ctx, c.cfg.BatchDelay); err != nil {
				return results, fmt.Errorf("check files: %w", err)
			}
		}
		if err := ctx.Err(); err != nil {
			return results, fmt.Errorf("check files: %w", err)
		}
		end := min(start+c.cfg.BatchSize, len(ids))
		checks, errs := c.checkBatch(ctx, ids[start:end], checkedBy)
		results = append(results, checks...)
		failures = append(failures, errs...)
	}
	if len(failures) > 0 {
		return results, fmt.Errorf("check files: %d of %d failed: %w", len(failures), len(ids), errors.Join(failures...))
	}
	return results, nil
}

func (c *Checker) checkBatch(ctx context.Context, ids []int64, checkedBy string) ([]catalog.StatusCheck, []error) {
	slots := make([]*catalog.StatusCheck, len(ids))
	errs := make([]error, len(ids))
	var g errgroup.Group
	g.SetLimit(c.cfg.BatchSize)
	for i, id := range ids {
		g.Go(func() error {
			check, err := c.CheckFile(ctx, id, checkedBy)
			if err != nil {
				c.logger.Warn("file check failed", zap.Int64("file_id", id), zap.Error(err))
				errs[i] = err
				return nil
			}
			slots[i] = &check
			return nil
		})
	}
	_ = g.Wait()
	out := make([]catalog.StatusCheck, 0, len(ids))
	var failed []error
	for i, check := range slots {
		if check != nil {
			out = append(out, *check)
		} else if errs[i] != nil {
			failed = append(failed, errs[i])
		}
	}
	return out, failed
}

// CheckAllFiles probes every cataloged file.
func (c *Checker) CheckAllFiles(ctx context.Context, checkedBy string) ([]catalog.StatusCheck, error) {
	ids, err := c.store.ListFileIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list file ids: %w", err)
	}
	return c.CheckFiles(ctx, ids, checkedBy)
}

// FilesNeedingCheck lists files never probed or last probed more than StaleAfter ago.
func (c *Checker) FilesNeedingCheck(ctx context.Context) ([]catalog.File, error) {
	files, err := c.store.ListFilesNeedingCheck(ctx, c.clock.Now().Add(-c.cfg.StaleAfter))
	if err != nil {
		return nil, fmt.Errorf("list files needing check: %w", err)
	}
	return files, nil
}

// UnavailableFiles lists files whose most recent probe failed.
func (c *Checker) UnavailableFiles(ctx context.Context) ([]catalog.File, error) {
	files, err := c.store.ListUnavailableFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list unavailable files: %w", err)
	}
	return files, nil
}

// LatestStatusCheck returns the newest probe of a file.
func (c *Checker) LatestStatusCheck(ctx context.Context, fileID int64) (catalog.StatusCheck, error) {
	check, err := c.store.LatestStatusCheck(ctx, fileID)
	if err != nil {
		return catalog.StatusCheck{}, fmt.Errorf("latest status check for file %d: %w", fileID, err)
	}
	return check, nil
}

// StatusHistory returns up to limit probes of a file, newest first.
func (c *Checker) StatusHistory(ctx context.Context, fileID int64, limit int) ([]catalog.StatusCheck, error) {
	history, err := c.store.StatusHistory(ctx, fileID, limit)
	if err != nil {
		return nil, fmt.Errorf("status history for file %d: %w", fileID, err)
	}
	return history, nil
}

func dedupe(ids []int64) []int64 {
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
