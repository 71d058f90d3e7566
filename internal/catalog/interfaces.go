package catalog

import (
	"context"
	"time"
)

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
	// Sleep pauses for d or until ctx ends, returning the context error in that case.
	Sleep(ctx context.Context, d time.Duration) error
}

// IDGenerator produces job identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// Hasher computes the catalog dedup key for a canonical URL.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// WorkQueue is the FIFO shared by the job producers and the worker loop.
type WorkQueue interface {
	Enqueue(item WorkItem) error
	Dequeue(ctx context.Context) (WorkItem, error)
	Count() int
}

// Fetcher performs the remote HTTP calls used by the prober and the crawler.
type Fetcher interface {
	Probe(ctx context.Context, url string) (ProbeResult, error)
	FetchListing(ctx context.Context, url string) (ListingPage, error)
}

// FileStore persists catalog entries and their probe history.
type FileStore interface {
	GetFile(ctx context.Context, id int64) (File, error)
	FileExists(ctx context.Context, path string) (bool, error)
	// InsertFile assigns file.ID. It returns ErrDuplicate or *EncodingError on rejection.
	InsertFile(ctx context.Context, file *File) error
	ListFileIDs(ctx context.Context) ([]int64, error)
	ListFilesNeedingCheck(ctx context.Context, checkedBefore time.Time) ([]File, error)
	ListUnavailableFiles(ctx context.Context) ([]File, error)
	// RecordStatusCheck stores the history row and updates the file's last-check fields.
	RecordStatusCheck(ctx context.Context, check *StatusCheck) error
	LatestStatusCheck(ctx context.Context, fileID int64) (StatusCheck, error)
	StatusHistory(ctx context.Context, fileID int64, limit int) ([]StatusCheck, error)
	ExtensionStats(ctx context.Context) ([]ExtensionStat, error)
}

// CrawlJobStore persists crawl runs and their cancellation state.
type CrawlJobStore interface {
	CreateCrawlJob(ctx context.Context, job CrawlJob) error
	GetCrawlJob(ctx context.Context, id string) (CrawlJob, error)
	ListCrawlJobs(ctx context.Context) ([]CrawlJob, error)
	UpdateCrawlStatus(ctx context.Context, id string, status CrawlStatus) error
	UpdateCrawlProgress(ctx context.Context, id string, counters CrawlCounters) error
	// FinishCrawlJob moves a crawl to a terminal status and returns the status actually
	// stored. A crawl in Cancelling always lands in Cancelled, and a crawl that is already
	// terminal is left untouched.
	FinishCrawlJob(
		ctx context.Context,
		id string,
		status CrawlStatus,
		errText string,
		counters CrawlCounters,
		at time.Time,
	) (CrawlStatus, error)
	// RequestCrawlCancellation flips the job to Cancelling only while it is Pending or Running.
	RequestCrawlCancellation(ctx context.Context, id, requestedBy, reason string, at time.Time) (bool, error)
	IsCrawlCancellationRequested(ctx context.Context, id string) (bool, error)
}

// ProblemStore persists ProblematicURI diagnostics.
type ProblemStore interface {
	RecordProblematicURI(ctx context.Context, problem *ProblematicURI) error
	ListProblematicURIs(ctx context.Context, crawlJobID string) ([]ProblematicURI, error)
}

// Store is the full catalog persistence surface.
type Store interface {
	FileStore
	CrawlJobStore
	ProblemStore
}
