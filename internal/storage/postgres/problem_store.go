package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/media-catalog-crawler/internal/catalog"
)

// RecordProblematicURI inserts a diagnostic row and assigns its ID.
func (s *Store) RecordProblematicURI(ctx context.Context, problem *catalog.ProblematicURI) error {
	query := `
INSERT INTO problematic_uris (
	crawl_job_id,
	original_uri,
	sanitized_uri,
	file_name,
	extension,
	error_type,
	error_details,
	store_error,
	discovered_at,
	resolved
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10
) RETURNING id`
	err := s.pool.QueryRow(ctx, query,
		problem.CrawlJobID,
		problem.OriginalURI,
		problem.SanitizedURI,
		problem.FileName,
		problem.Extension,
		problem.ErrorType,
		problem.ErrorDetails,
		problem.StoreError,
		problem.DiscoveredAt,
		problem.Resolved,
	).Scan(&problem.ID)
	if err != nil {
		return fmt.Errorf("insert problematic uri: %w", mapError(err))
	}
	return nil
}

// ListProblematicURIs returns the diagnostics of one crawl in discovery order.
func (s *Store) ListProblematicURIs(ctx context.Context, crawlJobID string) ([]catalog.ProblematicURI, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, crawl_job_id, original_uri, sanitized_uri, file_name,
	extension, error_type, error_details, store_error, discovered_at, resolved
FROM problematic_uris
WHERE crawl_job_id = $1
ORDER BY id`, crawlJobID)
	if err != nil {
		return nil, fmt.Errorf("list problematic uris: %w", mapError(err))
	}
	problems, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (catalog.ProblematicURI, error) {
		var p catalog.ProblematicURI
		err := row.Scan(
			&p.ID,
			&p.CrawlJobID,
			&p.OriginalURI,
			&p.SanitizedURI,
			&p.FileName,
			&p.Extension,
			&p.ErrorType,
			&p.ErrorDetails,
			&p.StoreError,
			&p.DiscoveredAt,
			&p.Resolved,
		)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan problematic uris: %w", err)
	}
	return problems, nil
}
