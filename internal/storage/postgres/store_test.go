package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/media-catalog-crawler/internal/catalog"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewStoreWithPool(mock)
	require.NoError(t, err)
	return store, mock
}

func TestNewStoreWithPoolRequiresPool(t *testing.T) {
	t.Parallel()

	_, err := NewStoreWithPool(nil)
	require.Error(t, err)
}

func TestStoreInsertFileAssignsID(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Unix(1723291200, 0).UTC()
	file := &catalog.File{
		Path:             "https://media.example.org/talk.mp4",
		Name:             "talk.mp4",
		Extension:        ".mp4",
		Size:             1234,
		Hash:             "abc123",
		ProcessingStatus: catalog.FileCataloged,
		CrawlJobID:       "crawl-1",
		CreatedAt:        now,
	}

	mock.ExpectQuery("INSERT INTO files").
		WithArgs(
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
		).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))

	require.NoError(t, store.InsertFile(context.Background(), file))
	require.Equal(t, int64(7), file.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreInsertFileMapsDriverErrors(t *testing.T) {
	t.Parallel()

	t.Run("unique violation", func(t *testing.T) {
		t.Parallel()
		store, mock := newMockStore(t)
		mock.ExpectQuery("INSERT INTO files").
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(&pgconn.PgError{Code: codeUniqueViolation, ConstraintName: "files_path_key"})

		err := store.InsertFile(context.Background(), &catalog.File{Path: "p"})
		require.ErrorIs(t, err, catalog.ErrDuplicate)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("encoding", func(t *testing.T) {
		t.Parallel()
		store, mock := newMockStore(t)
		mock.ExpectQuery("INSERT INTO files").
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(&pgconn.PgError{
				Code:    codeCharacterNotInRepertoire,
				Message: "invalid byte sequence for encoding \"UTF8\": 0x00",
			})

		err := store.InsertFile(context.Background(), &catalog.File{Path: "p"})
		var encErr *catalog.EncodingError
		require.True(t, errors.As(err, &encErr))
		require.Contains(t, encErr.Message, "0x00")
	})
}

func TestStoreGetFileNotFound(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("FROM files WHERE id").
		WithArgs(int64(99)).
		WillReturnError(pgx.ErrNoRows)

	_, err := store.GetFile(context.Background(), 99)
	require.ErrorIs(t, err, catalog.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreListFilesNeedingCheck(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	cutoff := time.Unix(1723204800, 0).UTC()
	created := cutoff.Add(-72 * time.Hour)
	checked := cutoff.Add(-time.Hour)
	accessible := false

	cols := []string{
		"id", "path", "name", "extension", "size_bytes", "hash", "last_check_accessible",
		"last_checked_at", "processing_status", "crawl_job_id", "created_at",
	}
	mock.ExpectQuery(`WHERE last_checked_at IS NULL OR last_checked_at < \$1`).
		WithArgs(cutoff).
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow(int64(1), "https://m/a.mp4", "a.mp4", ".mp4", int64(10), "h1", &accessible, &checked,
				catalog.FileCataloged, "crawl-1", created).
			AddRow(int64(2), "https://m/b.pdf", "b.pdf", ".pdf", int64(0), "h2", nil, nil,
				catalog.FileCataloged, "crawl-1", created))

	files, err := store.ListFilesNeedingCheck(context.Background(), cutoff)
	require.NoError(t, err)
	require.Len(t, files, 2)
	require.NotNil(t, files[0].LastCheckAccessible)
	require.False(t, *files[0].LastCheckAccessible)
	require.Equal(t, checked, *files[0].LastCheckedAt)
	require.Nil(t, files[1].LastCheckAccessible)
	require.Nil(t, files[1].LastCheckedAt)
	require.Equal(t, ".pdf", files[1].Extension)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreRecordStatusCheckCommits(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Unix(1723291200, 0).UTC()
	check := &catalog.StatusCheck{
		FileID:       3,
		CheckedAt:    now,
		Outcome:      catalog.ProbeInaccessible,
		StatusCode:   404,
		ResponseTime: 150 * time.Millisecond,
		ErrorMessage: "HTTP 404 Not Found",
		CheckedBy:    "job-1",
	}

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO file_status_checks").
		WithArgs(int64(3), now, "Inaccessible", 404, false, int64(150), "HTTP 404 Not Found", "job-1").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(11)))
	mock.ExpectExec("UPDATE files SET last_check_accessible").
		WithArgs(false, now, int64(3)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()
	mock.ExpectRollback()

	require.NoError(t, store.RecordStatusCheck(context.Background(), check))
	require.Equal(t, int64(11), check.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreRecordStatusCheckUnknownFile(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO file_status_checks").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: codeForeignKeyViolation, ConstraintName: "file_status_checks_file_id_fkey"})
	mock.ExpectRollback()

	err := store.RecordStatusCheck(context.Background(), &catalog.StatusCheck{FileID: 404})
	require.ErrorIs(t, err, catalog.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreStatusHistoryDefaultsLimit(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Unix(1723291200, 0).UTC()
	cols := []string{"id", "file_id", "checked_at", "outcome", "status_code", "is_accessible",
		"response_time_ms", "error_message", "checked_by"}
	mock.ExpectQuery("FROM file_status_checks").
		WithArgs(int64(3), defaultHistoryLimit).
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow(int64(2), int64(3), now, "Timeout", 408, false, int64(30000), "Request timeout", "").
			AddRow(int64(1), int64(3), now.Add(-time.Hour), "Accessible", 200, true, int64(12), "", "job-1"))

	history, err := store.StatusHistory(context.Background(), 3, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, catalog.ProbeTimeout, history[0].Outcome)
	require.Equal(t, 30*time.Second, history[0].ResponseTime)
	require.True(t, history[1].IsAccessible)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreExtensionStats(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT extension, COUNT").
		WillReturnRows(pgxmock.NewRows([]string{"extension", "count"}).
			AddRow(".mp4", int64(4)).
			AddRow(".srt", int64(1)))

	stats, err := store.ExtensionStats(context.Background())
	require.NoError(t, err)
	require.Equal(t, []catalog.ExtensionStat{{Extension: ".mp4", Count: 4}, {Extension: ".srt", Count: 1}}, stats)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreRequestCrawlCancellation(t *testing.T) {
	t.Parallel()

	now := time.Unix(1723291200, 0).UTC()

	t.Run("accepted", func(t *testing.T) {
		t.Parallel()
		store, mock := newMockStore(t)
		mock.ExpectExec(`UPDATE crawl_jobs\s+SET cancellation_requested = TRUE`).
			WithArgs("crawl-1", now, "alice", "wrong tree").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		ok, err := store.RequestCrawlCancellation(context.Background(), "crawl-1", "alice", "wrong tree", now)
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("terminal", func(t *testing.T) {
		t.Parallel()
		store, mock := newMockStore(t)
		mock.ExpectExec(`UPDATE crawl_jobs\s+SET cancellation_requested = TRUE`).
			WithArgs("crawl-1", now, "alice", "").
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM crawl_jobs`).
			WithArgs("crawl-1").
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

		ok, err := store.RequestCrawlCancellation(context.Background(), "crawl-1", "alice", "", now)
		require.NoError(t, err)
		require.False(t, ok)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown", func(t *testing.T) {
		t.Parallel()
		store, mock := newMockStore(t)
		mock.ExpectExec(`UPDATE crawl_jobs\s+SET cancellation_requested = TRUE`).
			WithArgs("missing", now, "alice", "").
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM crawl_jobs`).
			WithArgs("missing").
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

		_, err := store.RequestCrawlCancellation(context.Background(), "missing", "alice", "", now)
		require.ErrorIs(t, err, catalog.ErrNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStoreUpdateCrawlStatusSkipsFinishedJobs(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE crawl_jobs SET status = \$2`).
		WithArgs("crawl-1", "Running").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM crawl_jobs`).
		WithArgs("crawl-1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	require.NoError(t, store.UpdateCrawlStatus(context.Background(), "crawl-1", catalog.CrawlRunning))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreFinishCrawlJob(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	end := time.Unix(1723294800, 0).UTC()
	counters := catalog.CrawlCounters{FilesFound: 3, FilesProcessed: 3, FilesSuccessful: 2, FilesWithErrors: 1}
	finish := `UPDATE crawl_jobs\s+SET status = CASE WHEN status = 'Cancelling' THEN 'Cancelled' ELSE \$2 END`
	mock.ExpectQuery(finish).
		WithArgs("crawl-1", "Completed", "", int64(3), int64(3), int64(2), int64(1), end).
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("Completed"))
	mock.ExpectQuery(finish).
		WithArgs("crawl-2", "Completed", "", int64(3), int64(3), int64(2), int64(1), end).
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("Cancelled"))
	mock.ExpectQuery(finish).
		WithArgs("crawl-3", "Failed", "boom", int64(0), int64(0), int64(0), int64(0), end).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`SELECT status FROM crawl_jobs WHERE id = \$1`).
		WithArgs("crawl-3").
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("Cancelled"))
	mock.ExpectQuery(finish).
		WithArgs("missing", "Failed", "boom", int64(0), int64(0), int64(0), int64(0), end).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`SELECT status FROM crawl_jobs WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	ctx := context.Background()
	landed, err := store.FinishCrawlJob(ctx, "crawl-1", catalog.CrawlCompleted, "", counters, end)
	require.NoError(t, err)
	require.Equal(t, catalog.CrawlCompleted, landed)

	landed, err = store.FinishCrawlJob(ctx, "crawl-2", catalog.CrawlCompleted, "", counters, end)
	require.NoError(t, err)
	require.Equal(t, catalog.CrawlCancelled, landed)

	landed, err = store.FinishCrawlJob(ctx, "crawl-3", catalog.CrawlFailed, "boom", catalog.CrawlCounters{}, end)
	require.NoError(t, err)
	require.Equal(t, catalog.CrawlCancelled, landed)

	_, err = store.FinishCrawlJob(ctx, "missing", catalog.CrawlFailed, "boom", catalog.CrawlCounters{}, end)
	require.ErrorIs(t, err, catalog.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreGetCrawlJob(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	started := time.Unix(1723291200, 0).UTC()
	requested := started.Add(time.Minute)
	cols := []string{
		"id", "start_url", "user_id", "status", "started_at", "ended_at", "files_found",
		"files_processed", "files_successful", "files_with_errors", "error_message",
		"cancellation_requested", "cancellation_requested_at", "cancellation_requested_by",
		"cancellation_reason",
	}
	mock.ExpectQuery("FROM crawl_jobs WHERE id").
		WithArgs("crawl-1").
		WillReturnRows(pgxmock.NewRows(cols).AddRow(
			"crawl-1", "https://media.example.org/", "alice", "Cancelling", started, nil,
			int64(5), int64(5), int64(4), int64(1), "",
			true, &requested, "bob", "wrong tree",
		))

	job, err := store.GetCrawlJob(context.Background(), "crawl-1")
	require.NoError(t, err)
	require.Equal(t, catalog.CrawlCancelling, job.Status)
	require.Nil(t, job.EndedAt)
	require.Equal(t, int64(4), job.Counters.FilesSuccessful)
	require.True(t, job.CancellationRequested)
	require.Equal(t, requested, *job.CancellationRequestedAt)
	require.Equal(t, "bob", job.CancellationRequestedBy)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreProblematicURIs(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Unix(1723291200, 0).UTC()
	problem := &catalog.ProblematicURI{
		CrawlJobID:   "crawl-1",
		OriginalURI:  "https://m/bad?name.mp4",
		SanitizedURI: "https://m/badname.mp4",
		FileName:     "badname.mp4",
		Extension:    ".mp4",
		ErrorType:    catalog.ProblemProblematicCharacters,
		ErrorDetails: "file_name: null byte 0x00 at 3",
		DiscoveredAt: now,
	}
	mock.ExpectQuery("INSERT INTO problematic_uris").
		WithArgs("crawl-1", problem.OriginalURI, problem.SanitizedURI, "badname.mp4", ".mp4",
			catalog.ProblemProblematicCharacters, problem.ErrorDetails, "", now, false).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(1)))

	cols := []string{"id", "crawl_job_id", "original_uri", "sanitized_uri", "file_name", "extension",
		"error_type", "error_details", "store_error", "discovered_at", "resolved"}
	mock.ExpectQuery("FROM problematic_uris").
		WithArgs("crawl-1").
		WillReturnRows(pgxmock.NewRows(cols).AddRow(
			int64(1), "crawl-1", problem.OriginalURI, problem.SanitizedURI, "badname.mp4", ".mp4",
			catalog.ProblemProblematicCharacters, problem.ErrorDetails, "", now, false,
		))

	ctx := context.Background()
	require.NoError(t, store.RecordProblematicURI(ctx, problem))
	require.Equal(t, int64(1), problem.ID)

	rows, err := store.ListProblematicURIs(ctx, "crawl-1")
	require.NoError(t, err)
	require.Equal(t, []catalog.ProblematicURI{*problem}, rows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreEnsureSchema(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	for range schema {
		mock.ExpectExec("CREATE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	}
	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
