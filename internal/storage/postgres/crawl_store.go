package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/media-catalog-crawler/internal/catalog"
)

const crawlColumns = `id, start_url, user_id, status, started_at, ended_at, files_found,
	files_processed, files_successful, files_with_errors, error_message,
	cancellation_requested, cancellation_requested_at, cancellation_requested_by,
	cancellation_reason`

func scanCrawl(row scanner) (catalog.CrawlJob, error) {
	var (
		j      catalog.CrawlJob
		status string
	)
	err := row.Scan(
		&j.ID,
		&j.StartURL,
		&j.UserID,
		&status,
		&j.StartedAt,
		&j.EndedAt,
		&j.Counters.FilesFound,
		&j.Counters.FilesProcessed,
		&j.Counters.FilesSuccessful,
		&j.Counters.FilesWithErrors,
		&j.ErrorMessage,
		&j.CancellationRequested,
		&j.CancellationRequestedAt,
		&j.CancellationRequestedBy,
		&j.CancellationReason,
	)
	j.Status = catalog.CrawlStatus(status)
	return j, err
}

// CreateCrawlJob inserts a new crawl record.
func (s *Store) CreateCrawlJob(ctx context.Context, job catalog.CrawlJob) error {
	query := `
INSERT INTO crawl_jobs (
	id,
	start_url,
	user_id,
	status,
	started_at
) VALUES (
	$1,$2,$3,$4,$5
)`
	if _, err := s.pool.Exec(ctx, query, job.ID, job.StartURL, job.UserID, string(job.Status), job.StartedAt); err != nil {
		return fmt.Errorf("insert crawl job: %w", mapError(err))
	}
	return nil
}

// GetCrawlJob fetches a crawl by ID.
func (s *Store) GetCrawlJob(ctx context.Context, id string) (catalog.CrawlJob, error) {
	job, err := scanCrawl(s.pool.QueryRow(ctx, `SELECT `+crawlColumns+` FROM crawl_jobs WHERE id = $1`, id))
	if err != nil {
		return catalog.CrawlJob{}, mapError(err)
	}
	return job, nil
}

// ListCrawlJobs returns all crawls, newest first.
func (s *Store) ListCrawlJobs(ctx context.Context) ([]catalog.CrawlJob, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+crawlColumns+` FROM crawl_jobs ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list crawl jobs: %w", mapError(err))
	}
	jobs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (catalog.CrawlJob, error) {
		return scanCrawl(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scan crawl jobs: %w", err)
	}
	return jobs, nil
}

// UpdateCrawlStatus sets the status of a crawl that is neither terminal nor cancelling.
func (s *Store) UpdateCrawlStatus(ctx context.Context, id string, status catalog.CrawlStatus) error {
	tag, err := s.pool.Exec(ctx, `UPDATE crawl_jobs SET status = $2
WHERE id = $1 AND status NOT IN ('Completed', 'Failed', 'Cancelled', 'Cancelling')`, id, string(status))
	if err != nil {
		return fmt.Errorf("update crawl status: %w", mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return s.requireCrawl(ctx, id)
	}
	return nil
}

// UpdateCrawlProgress replaces the counters of a crawl.
func (s *Store) UpdateCrawlProgress(ctx context.Context, id string, counters catalog.CrawlCounters) error {
	tag, err := s.pool.Exec(ctx, `UPDATE crawl_jobs
SET files_found = $2, files_processed = $3, files_successful = $4, files_with_errors = $5
WHERE id = $1`,
		id,
		counters.FilesFound,
		counters.FilesProcessed,
		counters.FilesSuccessful,
		counters.FilesWithErrors,
	)
	if err != nil {
		return fmt.Errorf("update crawl progress: %w", mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

// FinishCrawlJob records a terminal status, error text, final counters, and end time in one
// conditional update. An accepted cancellation wins over any other outcome.
func (s *Store) FinishCrawlJob(
	ctx context.Context,
	id string,
	status catalog.CrawlStatus,
	errText string,
	counters catalog.CrawlCounters,
	at time.Time,
) (catalog.CrawlStatus, error) {
	var landed string
	err := s.pool.QueryRow(ctx, `UPDATE crawl_jobs
SET status = CASE WHEN status = 'Cancelling' THEN 'Cancelled' ELSE $2 END,
	error_message = $3, files_found = $4, files_processed = $5,
	files_successful = $6, files_with_errors = $7, ended_at = $8
WHERE id = $1 AND status NOT IN ('Completed', 'Failed', 'Cancelled')
RETURNING status`,
		id,
		string(status),
		errText,
		counters.FilesFound,
		counters.FilesProcessed,
		counters.FilesSuccessful,
		counters.FilesWithErrors,
		at,
	).Scan(&landed)
	if errors.Is(err, pgx.ErrNoRows) {
		// already terminal, or missing
		err = s.pool.QueryRow(ctx, `SELECT status FROM crawl_jobs WHERE id = $1`, id).Scan(&landed)
	}
	if err != nil {
		return "", fmt.Errorf("finish crawl job: %w", mapError(err))
	}
	return catalog.CrawlStatus(landed), nil
}

// RequestCrawlCancellation flips a Pending or Running crawl to Cancelling in one
// conditional update.
func (s *Store) RequestCrawlCancellation(
	ctx context.Context,
	id, requestedBy, reason string,
	at time.Time,
) (bool, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE crawl_jobs
SET cancellation_requested = TRUE, cancellation_requested_at = $2,
	cancellation_requested_by = $3, cancellation_reason = $4, status = 'Cancelling'
WHERE id = $1 AND status IN ('Pending', 'Running')`, id, at, requestedBy, reason)
	if err != nil {
		return false, fmt.Errorf("request crawl cancellation: %w", mapError(err))
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	if err := s.requireCrawl(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// IsCrawlCancellationRequested reads the cancellation flag.
func (s *Store) IsCrawlCancellationRequested(ctx context.Context, id string) (bool, error) {
	var requested bool
	err := s.pool.QueryRow(ctx, `SELECT cancellation_requested FROM crawl_jobs WHERE id = $1`, id).Scan(&requested)
	if err != nil {
		return false, mapError(err)
	}
	return requested, nil
}

func (s *Store) requireCrawl(ctx context.Context, id string) error {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM crawl_jobs WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check crawl exists: %w", mapError(err))
	}
	if !exists {
		return catalog.ErrNotFound
	}
	return nil
}
