package catalog

import (
	"context"
	"time"
)

// WorkItem is a deferred unit of background work. Errors are logged by the worker only.
type WorkItem func(ctx context.Context) error

// CheckJobStatus enumerates the lifecycle of an on-demand availability check.
type CheckJobStatus string

const (
	// CheckJobQueued indicates the job has been accepted but not started.
	CheckJobQueued CheckJobStatus = "Queued"
	// CheckJobRunning indicates batches are being probed.
	CheckJobRunning CheckJobStatus = "Running"
	// CheckJobCompleted indicates every batch was processed.
	CheckJobCompleted CheckJobStatus = "Completed"
	// CheckJobFailed indicates the job aborted with an error.
	CheckJobFailed CheckJobStatus = "Failed"
	// CheckJobCancelled indicates the job was cancelled before finishing.
	CheckJobCancelled CheckJobStatus = "Cancelled"
)

// Terminal reports whether the status can no longer change.
func (s CheckJobStatus) Terminal() bool {
	switch s {
	case CheckJobCompleted, CheckJobFailed, CheckJobCancelled:
		return true
	default:
		return false
	}
}

// CheckJob is a point-in-time snapshot of an availability check job.
type CheckJob struct {
	ID               string         `json:"job_id"`
	UserID           string         `json:"user_id,omitempty"`
	Status           CheckJobStatus `json:"status"`
	CreatedAt        time.Time      `json:"created_at"`
	StartedAt        *time.Time     `json:"started_at,omitempty"`
	CompletedAt      *time.Time     `json:"completed_at,omitempty"`
	TotalFiles       int            `json:"total_files"`
	ProcessedFiles   int            `json:"processed_files"`
	AvailableFiles   int            `json:"available_files"`
	UnavailableFiles int            `json:"unavailable_files"`
	ErrorMessage     string         `json:"error_message,omitempty"`
}

// ProgressPercentage returns processed/total as a percentage.
func (j CheckJob) ProgressPercentage() float64 {
	if j.TotalFiles == 0 {
		return 0
	}
	return float64(j.ProcessedFiles) / float64(j.TotalFiles) * 100
}

// IsCompleted reports whether the job reached a terminal status.
func (j CheckJob) IsCompleted() bool {
	return j.Status.Terminal()
}

// Duration returns the elapsed run time; zero until the job starts.
// Running jobs are measured against now.
func (j CheckJob) Duration(now time.Time) time.Duration {
	if j.StartedAt == nil {
		return 0
	}
	end := now
	if j.CompletedAt != nil {
		end = *j.CompletedAt
	}
	return end.Sub(*j.StartedAt)
}

// CrawlStatus enumerates the lifecycle of a crawl run.
type CrawlStatus string

const (
	// CrawlPending indicates the crawl record exists but traversal has not begun.
	CrawlPending CrawlStatus = "Pending"
	// CrawlRunning indicates traversal is in progress.
	CrawlRunning CrawlStatus = "Running"
	// CrawlCompleted indicates the frontier was exhausted.
	CrawlCompleted CrawlStatus = "Completed"
	// CrawlFailed indicates the crawl aborted with an error.
	CrawlFailed CrawlStatus = "Failed"
	// CrawlCancelling indicates a cancellation request awaits the crawler's next check.
	CrawlCancelling CrawlStatus = "Cancelling"
	// CrawlCancelled indicates the crawler honored a cancellation request.
	CrawlCancelled CrawlStatus = "Cancelled"
)

// Terminal reports whether the crawl status can no longer change.
func (s CrawlStatus) Terminal() bool {
	switch s {
	case CrawlCompleted, CrawlFailed, CrawlCancelled:
		return true
	default:
		return false
	}
}

// CrawlCounters tracks per-run cataloging progress.
type CrawlCounters struct {
	FilesFound      int64 `json:"files_found"`
	FilesProcessed  int64 `json:"files_processed"`
	FilesSuccessful int64 `json:"files_successful"`
	FilesWithErrors int64 `json:"files_with_errors"`
}

// CrawlJob is the persisted record of one crawl run.
type CrawlJob struct {
	ID                      string        `json:"crawl_id"`
	StartURL                string        `json:"start_url"`
	UserID                  string        `json:"user_id,omitempty"`
	Status                  CrawlStatus   `json:"status"`
	StartedAt               time.Time     `json:"started_at"`
	EndedAt                 *time.Time    `json:"ended_at,omitempty"`
	Counters                CrawlCounters `json:"counters"`
	ErrorMessage            string        `json:"error_message,omitempty"`
	CancellationRequested   bool          `json:"cancellation_requested"`
	CancellationRequestedAt *time.Time    `json:"cancellation_requested_at,omitempty"`
	CancellationRequestedBy string        `json:"cancellation_requested_by,omitempty"`
	CancellationReason      string        `json:"cancellation_reason,omitempty"`
}

// CanBeCancelled reports whether a cancellation request would be accepted.
func (j CrawlJob) CanBeCancelled() bool {
	return j.Status == CrawlRunning || j.Status == CrawlPending
}

// ProcessingStatus values for cataloged files.
const (
	FileCataloged = "Cataloged"
)

// File is a cataloged remote asset.
type File struct {
	ID                  int64      `json:"id"`
	Path                string     `json:"path"`
	Name                string     `json:"name"`
	Extension           string     `json:"extension"`
	Size                int64      `json:"size"`
	Hash                string     `json:"hash"`
	LastCheckAccessible *bool      `json:"last_check_accessible,omitempty"`
	LastCheckedAt       *time.Time `json:"last_checked_at,omitempty"`
	ProcessingStatus    string     `json:"processing_status"`
	CrawlJobID          string     `json:"crawl_job_id,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}

// ProbeOutcome classifies a single availability probe.
type ProbeOutcome string

const (
	// ProbeAccessible is a 2xx answer.
	ProbeAccessible ProbeOutcome = "Accessible"
	// ProbeInaccessible is any non-2xx answer.
	ProbeInaccessible ProbeOutcome = "Inaccessible"
	// ProbeNetworkError is a transport failure.
	ProbeNetworkError ProbeOutcome = "NetworkError"
	// ProbeTimeout is a probe that exceeded its deadline.
	ProbeTimeout ProbeOutcome = "Timeout"
)

// Sentinel status codes recorded when no HTTP answer was received.
const (
	StatusCodeNetworkError = 0
	StatusCodeTimeout      = 408
)

// StatusCheck is one persisted probe history row.
type StatusCheck struct {
	ID           int64         `json:"id"`
	FileID       int64         `json:"file_id"`
	CheckedAt    time.Time     `json:"checked_at"`
	Outcome      ProbeOutcome  `json:"outcome"`
	StatusCode   int           `json:"status_code"`
	IsAccessible bool          `json:"is_accessible"`
	ResponseTime time.Duration `json:"response_time"`
	ErrorMessage string        `json:"error_message,omitempty"`
	CheckedBy    string        `json:"checked_by,omitempty"`
}

// Problem classification tags for ProblematicURI rows.
const (
	ProblemInvalidFilename       = "INVALID_FILENAME"
	ProblemProblematicCharacters = "PROBLEMATIC_CHARACTERS"
	ProblemEncodingError         = "POSTGRESQL_ENCODING_ERROR"
	ProblemDatabaseSaveError     = "DATABASE_SAVE_ERROR"
	ProblemProcessingError       = "PROCESSING_ERROR"
)

// ProblematicURI is a write-once diagnostic row for a URL that could not be cataloged cleanly.
type ProblematicURI struct {
	ID           int64     `json:"id"`
	CrawlJobID   string    `json:"crawl_job_id"`
	OriginalURI  string    `json:"original_uri"`
	SanitizedURI string    `json:"sanitized_uri"`
	FileName     string    `json:"file_name,omitempty"`
	Extension    string    `json:"extension,omitempty"`
	ErrorType    string    `json:"error_type"`
	ErrorDetails string    `json:"error_details,omitempty"`
	StoreError   string    `json:"store_error,omitempty"`
	DiscoveredAt time.Time `json:"discovered_at"`
	Resolved     bool      `json:"resolved"`
}

// ExtensionStat is the number of cataloged files sharing an extension.
type ExtensionStat struct {
	Extension string `json:"extension"`
	Count     int64  `json:"count"`
}

// ProbeResult is the outcome of a HEAD request against a remote file.
type ProbeResult struct {
	URL           string
	StatusCode    int
	Status        string
	ContentLength int64
	Duration      time.Duration
}

// Success reports whether the probe returned a 2xx status.
func (r ProbeResult) Success() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// ListingPage is a fetched directory listing.
type ListingPage struct {
	URL         string
	StatusCode  int
	ContentType string
	// HTML is false when the body was skipped because the response was not text/html.
	HTML  bool
	Links []string
}
