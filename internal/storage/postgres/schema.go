package postgres

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS files (
	id BIGSERIAL PRIMARY KEY,
	path TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	extension TEXT NOT NULL,
	size_bytes BIGINT NOT NULL DEFAULT 0,
	hash TEXT NOT NULL,
	last_check_accessible BOOLEAN,
	last_checked_at TIMESTAMPTZ,
	processing_status TEXT NOT NULL,
	crawl_job_id TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS files_extension_idx ON files (extension)`,
	`CREATE TABLE IF NOT EXISTS file_status_checks (
	id BIGSERIAL PRIMARY KEY,
	file_id BIGINT NOT NULL REFERENCES files (id) ON DELETE CASCADE,
	checked_at TIMESTAMPTZ NOT NULL,
	outcome TEXT NOT NULL,
	status_code INTEGER NOT NULL,
	is_accessible BOOLEAN NOT NULL,
	response_time_ms BIGINT NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	checked_by TEXT NOT NULL DEFAULT ''
)`,
	`CREATE INDEX IF NOT EXISTS file_status_checks_file_idx ON file_status_checks (file_id, checked_at DESC)`,
	`CREATE TABLE IF NOT EXISTS crawl_jobs (
	id TEXT PRIMARY KEY,
	start_url TEXT NOT NULL,
	user_id TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	started_at TIMESTAMPTZ NOT NULL,
	ended_at TIMESTAMPTZ,
	files_found BIGINT NOT NULL DEFAULT 0,
	files_processed BIGINT NOT NULL DEFAULT 0,
	files_successful BIGINT NOT NULL DEFAULT 0,
	files_with_errors BIGINT NOT NULL DEFAULT 0,
	error_message TEXT NOT NULL DEFAULT '',
	cancellation_requested BOOLEAN NOT NULL DEFAULT FALSE,
	cancellation_requested_at TIMESTAMPTZ,
	cancellation_requested_by TEXT NOT NULL DEFAULT '',
	cancellation_reason TEXT NOT NULL DEFAULT ''
)`,
	`CREATE TABLE IF NOT EXISTS problematic_uris (
	id BIGSERIAL PRIMARY KEY,
	crawl_job_id TEXT NOT NULL REFERENCES crawl_jobs (id) ON DELETE CASCADE,
	original_uri VARCHAR(2000) NOT NULL,
	sanitized_uri VARCHAR(2000) NOT NULL,
	file_name VARCHAR(500) NOT NULL DEFAULT '',
	extension VARCHAR(50) NOT NULL DEFAULT '',
	error_type TEXT NOT NULL,
	error_details VARCHAR(2000) NOT NULL DEFAULT '',
	store_error VARCHAR(1000) NOT NULL DEFAULT '',
	discovered_at TIMESTAMPTZ NOT NULL,
	resolved BOOLEAN NOT NULL DEFAULT FALSE
)`,
	`CREATE INDEX IF NOT EXISTS problematic_uris_crawl_idx ON problematic_uris (crawl_job_id)`,
}

// EnsureSchema creates the catalog tables when they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
