// Package memory provides an in-memory catalog store for development and tests.
package memory

import (
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/JakeFAU/media-catalog-crawler/internal/catalog"
)

const defaultHistoryLimit = 50

// Store implements catalog.Store with maps guarded by a single RWMutex.
type Store struct {
	mu       sync.RWMutex
	files    map[int64]catalog.File
	paths    map[string]int64
	checks   map[int64][]catalog.StatusCheck
	crawls   map[string]catalog.CrawlJob
	problems map[string][]catalog.ProblematicURI

	nextFileID    int64
	nextCheckID   int64
	nextProblemID int64
}

var _ catalog.Store = (*Store)(nil)

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		files:    make(map[int64]catalog.File),
		paths:    make(map[string]int64),
		checks:   make(map[int64][]catalog.StatusCheck),
		crawls:   make(map[string]catalog.CrawlJob),
		problems: make(map[string][]catalog.ProblematicURI),
	}
}

// checkEncoding mirrors the store's refusal of NUL and malformed UTF-8.
func checkEncoding(values ...string) error {
	for _, v := range values {
		if strings.IndexByte(v, 0) >= 0 {
			return &catalog.EncodingError{Message: `invalid byte sequence for encoding "UTF8": 0x00`}
		}
		if !utf8.ValidString(v) {
			return &catalog.EncodingError{Message: fmt.Sprintf(`invalid byte sequence for encoding "UTF8" in %q`, v)}
		}
	}
	return nil
}

func cloneFile(f catalog.File) catalog.File {
	if f.LastCheckAccessible != nil {
		v := *f.LastCheckAccessible
		f.LastCheckAccessible = &v
	}
	f.LastCheckedAt = cloneTime(f.LastCheckedAt)
	return f
}

func cloneCrawl(j catalog.CrawlJob) catalog.CrawlJob {
	j.EndedAt = cloneTime(j.EndedAt)
	j.CancellationRequestedAt = cloneTime(j.CancellationRequestedAt)
	return j
}
