package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/JakeFAU/media-catalog-crawler/internal/catalog"
	"github.com/JakeFAU/media-catalog-crawler/internal/clock/system"
	"github.com/JakeFAU/media-catalog-crawler/internal/config"
	"github.com/JakeFAU/media-catalog-crawler/internal/metrics"
)

const (
	maxCheckFiles       = 1000
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
	extensionStatsTTL   = 30 * time.Second
	extensionStatsKey   = "extension_stats"
	anonymousUser       = "anonymous"
)

// CheckJobs starts and tracks availability check jobs.
type CheckJobs interface {
	StartJob(ctx context.Context, fileIDs []int64, userID string) (string, error)
	StartAllFilesJob(ctx context.Context, userID string) (string, error)
	StartFilesNeedingCheckJob(ctx context.Context, userID string) (string, error)
	GetJobStatus(jobID string) (catalog.CheckJob, bool)
	GetActiveJobs() []catalog.CheckJob
	CancelJob(jobID string) bool
}

// Availability answers probe history queries.
type Availability interface {
	LatestStatusCheck(ctx context.Context, fileID int64) (catalog.StatusCheck, error)
	StatusHistory(ctx context.Context, fileID int64, limit int) ([]catalog.StatusCheck, error)
	UnavailableFiles(ctx context.Context) ([]catalog.File, error)
}

// Crawls starts, inspects, and cancels directory crawls.
type Crawls interface {
	StartCrawl(ctx context.Context, startURL, userID string) (string, error)
	GetCrawlJob(ctx context.Context, id string) (catalog.CrawlJob, error)
	ListCrawlJobs(ctx context.Context) ([]catalog.CrawlJob, error)
	RequestCancellation(ctx context.Context, id, userID, reason string) (bool, error)
	ProblematicURIs(ctx context.Context, id string) ([]catalog.ProblematicURI, error)
	ExtensionStats(ctx context.Context) ([]catalog.ExtensionStat, error)
}

// Deps bundles the services behind the HTTP surface.
type Deps struct {
	Checks       CheckJobs
	Availability Availability
	Crawls       Crawls
	Clock        catalog.Clock
	// Ready reports whether downstream dependencies are reachable; nil means always ready.
	Ready func(ctx context.Context) error
}

// Server wires HTTP handlers to the check registry, prober, and crawler.
type Server struct {
	router   chi.Router
	deps     Deps
	cfg      config.Config
	logger   *zap.Logger
	maxFiles int
	stats    *cache.Cache
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = system.New()
	}
	maxFiles := cfg.Checks.MaxFilesPerJob
	if maxFiles <= 0 || maxFiles > maxCheckFiles {
		maxFiles = maxCheckFiles
	}
	s := &Server{
		deps:     deps,
		cfg:      cfg,
		logger:   logger,
		maxFiles: maxFiles,
		stats:    cache.New(extensionStatsTTL, 2*extensionStatsTTL),
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(timeoutMiddleware(60 * time.Second))
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Route("/checks", func(r chi.Router) {
			r.Post("/", s.startCheckJob)
			r.Post("/all", s.startAllFilesJob)
			r.Post("/stale", s.startFilesNeedingCheckJob)
			r.Get("/", s.listActiveCheckJobs)
			r.Route("/{job_id}", func(r chi.Router) {
				r.Get("/", s.getCheckJob)
				r.Post("/cancel", s.cancelCheckJob)
			})
		})
		r.Route("/files", func(r chi.Router) {
			r.Get("/unavailable", s.listUnavailableFiles)
			r.Get("/{file_id}/checks", s.getStatusHistory)
			r.Get("/{file_id}/checks/latest", s.getLatestStatusCheck)
		})
		r.Route("/crawls", func(r chi.Router) {
			r.Post("/", s.startCrawl)
			r.Get("/", s.listCrawls)
			r.Route("/{crawl_id}", func(r chi.Router) {
				r.Get("/", s.getCrawl)
				r.Post("/cancel", s.cancelCrawl)
				r.Get("/problems", s.listProblems)
			})
		})
		r.Get("/stats/extensions", s.extensionStats)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Ready(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func userID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get("X-User-ID")); id != "" {
		return id
	}
	return anonymousUser
}

// decodeJSON reads an optional JSON body; an empty body leaves dst untouched.
func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
