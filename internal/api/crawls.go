package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/media-catalog-crawler/internal/catalog"
	"github.com/JakeFAU/media-catalog-crawler/internal/crawler"
)

type startCrawlRequest struct {
	URL string `json:"url"`
}

type cancelCrawlRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) startCrawl(w http.ResponseWriter, r *http.Request) {
	var req startCrawlRequest
	if err := decodeJSON(r, &req); err != nil || req.URL == "" {
		writeError(w, http.StatusBadRequest, "url required")
		return
	}
	id, err := s.deps.Crawls.StartCrawl(r.Context(), req.URL, userID(r))
	if err != nil {
		if errors.Is(err, crawler.ErrInvalidStartURL) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("start crawl failed", zap.Error(err))
		writeError(w, statusFor(err), "failed to start crawl")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"crawl_id": id})
}

func (s *Server) listCrawls(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.deps.Crawls.ListCrawlJobs(r.Context())
	if err != nil {
		s.logger.Error("list crawls failed", zap.Error(err))
		writeError(w, statusFor(err), "failed to list crawls")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"crawls": jobs})
}

func (s *Server) getCrawl(w http.ResponseWriter, r *http.Request) {
	job, err := s.deps.Crawls.GetCrawlJob(r.Context(), chi.URLParam(r, "crawl_id"))
	if err != nil {
		writeCrawlError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) cancelCrawl(w http.ResponseWriter, r *http.Request) {
	var req cancelCrawlRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	id := chi.URLParam(r, "crawl_id")
	cancelled, err := s.deps.Crawls.RequestCancellation(r.Context(), id, userID(r), req.Reason)
	if err != nil {
		writeCrawlError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"crawl_id": id, "cancelled": cancelled})
}

func (s *Server) listProblems(w http.ResponseWriter, r *http.Request) {
	problems, err := s.deps.Crawls.ProblematicURIs(r.Context(), chi.URLParam(r, "crawl_id"))
	if err != nil {
		writeCrawlError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"problems": problems})
}

func (s *Server) extensionStats(w http.ResponseWriter, r *http.Request) {
	if cached, ok := s.stats.Get(extensionStatsKey); ok {
		writeJSON(w, http.StatusOK, map[string]any{"extensions": cached})
		return
	}
	stats, err := s.deps.Crawls.ExtensionStats(r.Context())
	if err != nil {
		s.logger.Error("extension stats failed", zap.Error(err))
		writeError(w, statusFor(err), "failed to load extension stats")
		return
	}
	s.stats.SetDefault(extensionStatsKey, stats)
	writeJSON(w, http.StatusOK, map[string]any{"extensions": stats})
}

func writeCrawlError(w http.ResponseWriter, err error) {
	if errors.Is(err, catalog.ErrNotFound) {
		writeError(w, http.StatusNotFound, "crawl not found")
		return
	}
	writeError(w, statusFor(err), err.Error())
}
