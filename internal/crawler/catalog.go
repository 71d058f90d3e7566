package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/media-catalog-crawler/internal/catalog"
	"github.com/JakeFAU/media-catalog-crawler/internal/metrics"
	"github.com/JakeFAU/media-catalog-crawler/internal/sanitize"
)

// Column limits for ProblematicURI text.
const (
	maxURILen        = 2000
	maxFileNameLen   = 500
	maxExtensionLen  = 50
	maxDetailsLen    = 2000
	maxStoreErrorLen = 1000
)

// catalogResult is the outcome of one cataloging attempt.
type catalogResult string

const (
	resultInserted    catalogResult = "inserted"
	resultExisting    catalogResult = "existing"
	resultInvalid     catalogResult = "invalid"
	resultUnreachable catalogResult = "unreachable"
	resultRejected    catalogResult = "rejected"
	resultError       catalogResult = "error"
)

func (r catalogResult) successful() bool {
	return r == resultInserted || r == resultExisting
}

// catalogFile runs one cataloging attempt and counts it exactly once.
func (s *Service) catalogFile(ctx context.Context, run *crawlRun, rawURL string, logger *zap.Logger) {
	run.found.Add(1)
	result := s.catalogSafely(ctx, run, rawURL, logger)
	if result.successful() {
		run.successful.Add(1)
	} else {
		run.withErrors.Add(1)
	}
	metrics.ObserveCatalogFile(string(result))
}

func (s *Service) catalogSafely(ctx context.Context, run *crawlRun, rawURL string, logger *zap.Logger) (result catalogResult) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("file processing panicked", zap.String("url", rawURL), zap.Any("panic", rec))
			s.recordProblem(ctx, run, catalog.ProblematicURI{
				OriginalURI:  rawURL,
				SanitizedURI: sanitize.Inspect(rawURL).Sanitized,
				ErrorType:    catalog.ProblemProcessingError,
				ErrorDetails: fmt.Sprintf("unexpected failure: %v", rec),
			}, logger)
			result = resultError
		}
	}()
	return s.catalogOne(ctx, run, rawURL, logger)
}

func (s *Service) catalogOne(ctx context.Context, run *crawlRun, rawURL string, logger *zap.Logger) catalogResult {
	u, err := url.Parse(rawURL)
	if err != nil {
		s.recordProblem(ctx, run, catalog.ProblematicURI{
			OriginalURI:  rawURL,
			SanitizedURI: sanitize.Inspect(rawURL).Sanitized,
			ErrorType:    catalog.ProblemInvalidFilename,
			ErrorDetails: fmt.Sprintf("unparseable url: %v", err),
		}, logger)
		return resultInvalid
	}

	rawName, rawExt := fileNameParts(u)
	nameReport := sanitize.Inspect(rawName)
	name := nameReport.Sanitized
	_, ext := fileNameParts(&url.URL{Path: name})
	if rawName == "" || rawExt == "" || ext == "" {
		s.recordProblem(ctx, run, catalog.ProblematicURI{
			OriginalURI:  rawURL,
			SanitizedURI: sanitize.Inspect(rawURL).Sanitized,
			FileName:     rawName,
			Extension:    rawExt,
			ErrorType:    catalog.ProblemInvalidFilename,
			ErrorDetails: "Invalid filename or extension after processing",
		}, logger)
		return resultInvalid
	}

	canonical := normalize(u).String()
	canonicalReport := sanitize.Inspect(canonical)
	pathReport := sanitize.Inspect(u.Path)
	if !nameReport.Clean() || !pathReport.Clean() || !canonicalReport.Clean() {
		details := joinNonEmpty(
			sanitize.Describe("url", canonicalReport.Findings),
			sanitize.Describe("path", pathReport.Findings),
			sanitize.Describe("file_name", nameReport.Findings),
		)
		logger.Warn("file has problematic characters, cataloging sanitized copy",
			zap.String("url", rawURL),
			zap.String("details", details),
		)
		s.recordProblem(ctx, run, catalog.ProblematicURI{
			OriginalURI:  rawURL,
			SanitizedURI: canonicalReport.Sanitized,
			FileName:     name,
			Extension:    ext,
			ErrorType:    catalog.ProblemProblematicCharacters,
			ErrorDetails: details,
		}, logger)
	}
	canonical = canonicalReport.Sanitized

	exists, err := s.deps.Store.FileExists(ctx, canonical)
	if err != nil {
		logger.Warn("catalog lookup failed", zap.String("url", canonical), zap.Error(err))
		s.recordProblem(ctx, run, catalog.ProblematicURI{
			OriginalURI:  rawURL,
			SanitizedURI: canonical,
			FileName:     name,
			Extension:    ext,
			ErrorType:    catalog.ProblemDatabaseSaveError,
			ErrorDetails: "catalog lookup failed",
			StoreError:   err.Error(),
		}, logger)
		return resultError
	}
	if exists {
		logger.Debug("file already cataloged", zap.String("url", canonical))
		return resultExisting
	}

	file := catalog.File{
		Path:             canonical,
		Name:             name,
		Extension:        ext,
		ProcessingStatus: catalog.FileCataloged,
		CrawlJobID:       run.id,
		CreatedAt:        s.deps.Clock.Now(),
	}
	probe, err := s.deps.Fetcher.Probe(ctx, canonical)
	switch {
	case err != nil:
		// an unreachable HEAD leaves size and accessibility unknown
		logger.Warn("could not verify file", zap.String("url", canonical), zap.Error(err))
	case !probe.Success():
		logger.Warn("file not accessible",
			zap.String("url", canonical),
			zap.Int("status_code", probe.StatusCode),
		)
		return resultUnreachable
	default:
		accessible := true
		checkedAt := file.CreatedAt
		file.Size = max(probe.ContentLength, 0)
		file.LastCheckAccessible = &accessible
		file.LastCheckedAt = &checkedAt
	}

	hash, err := s.deps.Hasher.Hash([]byte(canonical))
	if err != nil {
		s.recordProblem(ctx, run, catalog.ProblematicURI{
			OriginalURI:  rawURL,
			SanitizedURI: canonical,
			FileName:     name,
			Extension:    ext,
			ErrorType:    catalog.ProblemProcessingError,
			ErrorDetails: fmt.Sprintf("hash url: %v", err),
		}, logger)
		return resultError
	}
	file.Hash = hash

	return s.insertFile(ctx, run, rawURL, &file, logger)
}

func (s *Service) insertFile(ctx context.Context, run *crawlRun, rawURL string, file *catalog.File, logger *zap.Logger) catalogResult {
	err := s.deps.Store.InsertFile(ctx, file)
	if err == nil {
		logger.Debug("file cataloged",
			zap.String("url", file.Path),
			zap.Int64("file_id", file.ID),
			zap.Int64("size", file.Size),
		)
		return resultInserted
	}
	if errors.Is(err, catalog.ErrDuplicate) {
		logger.Debug("file cataloged concurrently", zap.String("url", file.Path))
		return resultExisting
	}

	problem := catalog.ProblematicURI{
		OriginalURI:  rawURL,
		SanitizedURI: file.Path,
		FileName:     file.Name,
		Extension:    file.Extension,
		StoreError:   err.Error(),
	}
	var encErr *catalog.EncodingError
	if errors.As(err, &encErr) {
		problem.ErrorType = catalog.ProblemEncodingError
		problem.ErrorDetails = "store rejected the file record for its encoding"
		problem.StoreError = encErr.Message
		logger.Warn("store rejected file encoding", zap.String("url", file.Path), zap.Error(err))
	} else {
		problem.ErrorType = catalog.ProblemDatabaseSaveError
		problem.ErrorDetails = "failed to save file record"
		logger.Error("failed to save file", zap.String("url", file.Path), zap.Error(err))
	}
	s.recordProblem(ctx, run, problem, logger)
	return resultRejected
}

// recordProblem bounds every text column before persisting the diagnostic. Failures to
// persist it are logged and otherwise ignored.
func (s *Service) recordProblem(ctx context.Context, run *crawlRun, problem catalog.ProblematicURI, logger *zap.Logger) {
	problem.CrawlJobID = run.id
	problem.DiscoveredAt = s.deps.Clock.Now()
	problem.OriginalURI = sanitize.ForStorage(problem.OriginalURI, maxURILen)
	problem.SanitizedURI = sanitize.ForStorage(problem.SanitizedURI, maxURILen)
	problem.FileName = sanitize.ForStorage(problem.FileName, maxFileNameLen)
	problem.Extension = sanitize.ForStorage(problem.Extension, maxExtensionLen)
	problem.ErrorDetails = sanitize.ForStorage(problem.ErrorDetails, maxDetailsLen)
	problem.StoreError = sanitize.ForStorage(problem.StoreError, maxStoreErrorLen)

	if err := s.deps.Store.RecordProblematicURI(ctx, &problem); err != nil {
		logger.Error("failed to record problematic uri",
			zap.String("url", problem.OriginalURI),
			zap.String("error_type", problem.ErrorType),
			zap.Error(err),
		)
		return
	}
	metrics.ObserveProblematicURI(problem.ErrorType)
}

func joinNonEmpty(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "; ")
}
