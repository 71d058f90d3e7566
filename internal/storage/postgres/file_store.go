package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/media-catalog-crawler/internal/catalog"
)

const fileColumns = `id, path, name, extension, size_bytes, hash, last_check_accessible,
	last_checked_at, processing_status, crawl_job_id, created_at`

const checkColumns = `id, file_id, checked_at, outcome, status_code, is_accessible,
	response_time_ms, error_message, checked_by`

const defaultHistoryLimit = 50

func scanFile(row scanner) (catalog.File, error) {
	var f catalog.File
	err := row.Scan(
		&f.ID,
		&f.Path,
		&f.Name,
		&f.Extension,
		&f.Size,
		&f.Hash,
		&f.LastCheckAccessible,
		&f.LastCheckedAt,
		&f.ProcessingStatus,
		&f.CrawlJobID,
		&f.CreatedAt,
	)
	return f, err
}

func scanCheck(row scanner) (catalog.StatusCheck, error) {
	var (
		c       catalog.StatusCheck
		outcome string
		ms      int64
	)
	err := row.Scan(
		&c.ID,
		&c.FileID,
		&c.CheckedAt,
		&outcome,
		&c.StatusCode,
		&c.IsAccessible,
		&ms,
		&c.ErrorMessage,
		&c.CheckedBy,
	)
	c.Outcome = catalog.ProbeOutcome(outcome)
	c.ResponseTime = time.Duration(ms) * time.Millisecond
	return c, err
}

func (s *Store) queryFiles(ctx context.Context, query string, args ...any) ([]catalog.File, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	files, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (catalog.File, error) {
		return scanFile(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scan files: %w", err)
	}
	return files, nil
}

// GetFile fetches a file by ID.
func (s *Store) GetFile(ctx context.Context, id int64) (catalog.File, error) {
	f, err := scanFile(s.pool.QueryRow(ctx, `SELECT `+fileColumns+` FROM files WHERE id = $1`, id))
	if err != nil {
		return catalog.File{}, mapError(err)
	}
	return f, nil
}

// FileExists reports whether a file with the canonical path is cataloged.
func (s *Store) FileExists(ctx context.Context, path string) (bool, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM files WHERE path = $1)`, path).Scan(&exists); err != nil {
		return false, fmt.Errorf("check file exists: %w", mapError(err))
	}
	return exists, nil
}

// InsertFile stores a new file and assigns its ID.
func (s *Store) InsertFile(ctx context.Context, file *catalog.File) error {
	query := `
INSERT INTO files (
	path,
	name,
	extension,
	size_bytes,
	hash,
	last_check_accessible,
	last_checked_at,
	processing_status,
	crawl_job_id,
	created_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10
) RETURNING id`
	err := s.pool.QueryRow(ctx, query,
		file.Path,
		file.Name,
		file.Extension,
		file.Size,
		file.Hash,
		file.LastCheckAccessible,
		file.LastCheckedAt,
		file.ProcessingStatus,
		file.CrawlJobID,
		file.CreatedAt,
	).Scan(&file.ID)
	if err != nil {
		return mapError(err)
	}
	return nil
}

// ListFileIDs returns every file ID in ascending order.
func (s *Store) ListFileIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM files ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list file ids: %w", mapError(err))
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("scan file ids: %w", err)
	}
	return ids, nil
}

// ListFilesNeedingCheck returns files never checked or last checked before the cutoff.
func (s *Store) ListFilesNeedingCheck(ctx context.Context, checkedBefore time.Time) ([]catalog.File, error) {
	return s.queryFiles(ctx, `SELECT `+fileColumns+` FROM files
WHERE last_checked_at IS NULL OR last_checked_at < $1
ORDER BY id`, checkedBefore)
}

// ListUnavailableFiles returns files whose last check failed.
func (s *Store) ListUnavailableFiles(ctx context.Context) ([]catalog.File, error) {
	return s.queryFiles(ctx, `SELECT `+fileColumns+` FROM files
WHERE last_check_accessible = FALSE
ORDER BY id`)
}

// RecordStatusCheck inserts the history row and updates the file summary in one
// transaction.
func (s *Store) RecordStatusCheck(ctx context.Context, check *catalog.StatusCheck) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin status check: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, `
INSERT INTO file_status_checks (
	file_id,
	checked_at,
	outcome,
	status_code,
	is_accessible,
	response_time_ms,
	error_message,
	checked_by
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8
) RETURNING id`,
		check.FileID,
		check.CheckedAt,
		string(check.Outcome),
		check.StatusCode,
		check.IsAccessible,
		check.ResponseTime.Milliseconds(),
		check.ErrorMessage,
		check.CheckedBy,
	).Scan(&check.ID)
	if err != nil {
		return fmt.Errorf("insert status check: %w", mapError(err))
	}

	if _, err := tx.Exec(ctx, `UPDATE files SET last_check_accessible = $1, last_checked_at = $2 WHERE id = $3`,
		check.IsAccessible, check.CheckedAt, check.FileID); err != nil {
		return fmt.Errorf("update file summary: %w", mapError(err))
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit status check: %w", err)
	}
	return nil
}

// LatestStatusCheck returns the newest check for a file.
func (s *Store) LatestStatusCheck(ctx context.Context, fileID int64) (catalog.StatusCheck, error) {
	c, err := scanCheck(s.pool.QueryRow(ctx, `SELECT `+checkColumns+` FROM file_status_checks
WHERE file_id = $1
ORDER BY checked_at DESC, id DESC
LIMIT 1`, fileID))
	if err != nil {
		return catalog.StatusCheck{}, mapError(err)
	}
	return c, nil
}

// StatusHistory returns up to limit checks for a file, newest first.
func (s *Store) StatusHistory(ctx context.Context, fileID int64, limit int) ([]catalog.StatusCheck, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	rows, err := s.pool.Query(ctx, `SELECT `+checkColumns+` FROM file_status_checks
WHERE file_id = $1
ORDER BY checked_at DESC, id DESC
LIMIT $2`, fileID, limit)
	if err != nil {
		return nil, fmt.Errorf("status history: %w", mapError(err))
	}
	checks, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (catalog.StatusCheck, error) {
		return scanCheck(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scan status checks: %w", err)
	}
	return checks, nil
}

// ExtensionStats counts files per extension, most common first.
func (s *Store) ExtensionStats(ctx context.Context) ([]catalog.ExtensionStat, error) {
	rows, err := s.pool.Query(ctx, `SELECT extension, COUNT(*) FROM files
GROUP BY extension
ORDER BY COUNT(*) DESC, extension`)
	if err != nil {
		return nil, fmt.Errorf("extension stats: %w", mapError(err))
	}
	stats, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (catalog.ExtensionStat, error) {
		var st catalog.ExtensionStat
		err := row.Scan(&st.Extension, &st.Count)
		return st, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan extension stats: %w", err)
	}
	return stats, nil
}
