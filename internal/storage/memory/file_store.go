package memory

import (
	"context"
	"sort"
	"time"

	"github.com/JakeFAU/media-catalog-crawler/internal/catalog"
)

// GetFile fetches a file by ID.
func (s *Store) GetFile(_ context.Context, id int64) (catalog.File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.files[id]
	if !ok {
		return catalog.File{}, catalog.ErrNotFound
	}
	return cloneFile(f), nil
}

// FileExists reports whether a file with the canonical path is cataloged.
func (s *Store) FileExists(_ context.Context, path string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.paths[path]
	return ok, nil
}

// InsertFile stores a new file, rejecting duplicate paths and unencodable text.
func (s *Store) InsertFile(_ context.Context, file *catalog.File) error {
	if err := checkEncoding(file.Path, file.Name, file.Extension); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.paths[file.Path]; exists {
		return catalog.ErrDuplicate
	}
	s.nextFileID++
	file.ID = s.nextFileID
	s.files[file.ID] = cloneFile(*file)
	s.paths[file.Path] = file.ID
	return nil
}

// ListFileIDs returns every file ID in ascending order.
func (s *Store) ListFileIDs(_ context.Context) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int64, 0, len(s.files))
	for id := range s.files {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// ListFilesNeedingCheck returns files never checked or last checked before the cutoff.
func (s *Store) ListFilesNeedingCheck(_ context.Context, checkedBefore time.Time) ([]catalog.File, error) {
	return s.filterFiles(func(f catalog.File) bool {
		return f.LastCheckedAt == nil || f.LastCheckedAt.Before(checkedBefore)
	}), nil
}

// ListUnavailableFiles returns files whose last check failed.
func (s *Store) ListUnavailableFiles(_ context.Context) ([]catalog.File, error) {
	return s.filterFiles(func(f catalog.File) bool {
		return f.LastCheckAccessible != nil && !*f.LastCheckAccessible
	}), nil
}

func (s *Store) filterFiles(keep func(catalog.File) bool) []catalog.File {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]catalog.File, 0)
	for _, f := range s.files {
		if keep(f) {
			out = append(out, cloneFile(f))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RecordStatusCheck appends a history row and updates the file summary in one step.
func (s *Store) RecordStatusCheck(_ context.Context, check *catalog.StatusCheck) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[check.FileID]
	if !ok {
		return catalog.ErrNotFound
	}
	s.nextCheckID++
	check.ID = s.nextCheckID
	s.checks[check.FileID] = append(s.checks[check.FileID], *check)
	accessible := check.IsAccessible
	f.LastCheckAccessible = &accessible
	f.LastCheckedAt = pointerTime(check.CheckedAt)
	s.files[f.ID] = f
	return nil
}

// LatestStatusCheck returns the most recent probe for a file.
func (s *Store) LatestStatusCheck(_ context.Context, fileID int64) (catalog.StatusCheck, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.checks[fileID]
	if len(history) == 0 {
		return catalog.StatusCheck{}, catalog.ErrNotFound
	}
	return history[len(history)-1], nil
}

// StatusHistory returns up to limit probes for a file, newest first.
func (s *Store) StatusHistory(_ context.Context, fileID int64, limit int) ([]catalog.StatusCheck, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.checks[fileID]
	out := make([]catalog.StatusCheck, 0, min(len(history), limit))
	for i := len(history) - 1; i >= 0; i-- {
		if len(out) == limit {
			break
		}
		out = append(out, history[i])
	}
	return out, nil
}

// ExtensionStats counts cataloged files per extension, most common first.
func (s *Store) ExtensionStats(_ context.Context) ([]catalog.ExtensionStat, error) {
	s.mu.RLock()
	counts := make(map[string]int64)
	for _, f := range s.files {
		counts[f.Extension]++
	}
	s.mu.RUnlock()
	out := make([]catalog.ExtensionStat, 0, len(counts))
	for ext, n := range counts {
		out = append(out, catalog.ExtensionStat{Extension: ext, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Extension < out[j].Extension
	})
	return out, nil
}

// RecordProblematicURI stores a diagnostic row for a crawl.
func (s *Store) RecordProblematicURI(_ context.Context, problem *catalog.ProblematicURI) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextProblemID++
	problem.ID = s.nextProblemID
	s.problems[problem.CrawlJobID] = append(s.problems[problem.CrawlJobID], *problem)
	return nil
}

// ListProblematicURIs returns the diagnostics recorded for a crawl in insertion order.
func (s *Store) ListProblematicURIs(_ context.Context, crawlJobID string) ([]catalog.ProblematicURI, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.problems[crawlJobID]
	out := make([]catalog.ProblematicURI, len(rows))
	copy(out, rows)
	return out, nil
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	return pointerTime(*t)
}
