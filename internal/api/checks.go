package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/media-catalog-crawler/internal/catalog"
	"github.com/JakeFAU/media-catalog-crawler/internal/checkjob"
)

type startCheckRequest struct {
	FileIDs []int64 `json:"file_ids"`
}

// checkJobView adds the derived progress fields to a job snapshot.
type checkJobView struct {
	catalog.CheckJob
	ProgressPercentage float64 `json:"progress_percentage"`
	IsCompleted        bool    `json:"is_completed"`
	DurationSeconds    float64 `json:"duration_seconds"`
}

func (s *Server) viewCheckJob(job catalog.CheckJob) checkJobView {
	return checkJobView{
		CheckJob:           job,
		ProgressPercentage: job.ProgressPercentage(),
		IsCompleted:        job.IsCompleted(),
		DurationSeconds:    job.Duration(s.deps.Clock.Now()).Seconds(),
	}
}

func (s *Server) startCheckJob(w http.ResponseWriter, r *http.Request) {
	var req startCheckRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.FileIDs) == 0 {
		writeError(w, http.StatusBadRequest, "file_ids required")
		return
	}
	if len(req.FileIDs) > s.maxFiles {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("at most %d file_ids per job", s.maxFiles))
		return
	}
	jobID, err := s.deps.Checks.StartJob(r.Context(), req.FileIDs, userID(r))
	s.respondStarted(w, jobID, err)
}

func (s *Server) startAllFilesJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := s.deps.Checks.StartAllFilesJob(r.Context(), userID(r))
	s.respondStarted(w, jobID, err)
}

func (s *Server) startFilesNeedingCheckJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := s.deps.Checks.StartFilesNeedingCheckJob(r.Context(), userID(r))
	s.respondStarted(w, jobID, err)
}

func (s *Server) respondStarted(w http.ResponseWriter, jobID string, err error) {
	switch {
	case errors.Is(err, checkjob.ErrNoFiles):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		s.logger.Error("start check job failed", zap.Error(err))
		writeError(w, statusFor(err), "failed to start check job")
	default:
		writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
	}
}

func (s *Server) listActiveCheckJobs(w http.ResponseWriter, _ *http.Request) {
	jobs := s.deps.Checks.GetActiveJobs()
	views := make([]checkJobView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, s.viewCheckJob(job))
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": views})
}

func (s *Server) getCheckJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.deps.Checks.GetJobStatus(chi.URLParam(r, "job_id"))
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, s.viewCheckJob(job))
}

func (s *Server) cancelCheckJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if _, ok := s.deps.Checks.GetJobStatus(jobID); !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	cancelled := s.deps.Checks.CancelJob(jobID)
	writeJSON(w, http.StatusOK, map[string]any{"job_id": jobID, "cancelled": cancelled})
}

func (s *Server) listUnavailableFiles(w http.ResponseWriter, r *http.Request) {
	files, err := s.deps.Availability.UnavailableFiles(r.Context())
	if err != nil {
		s.logger.Error("list unavailable files failed", zap.Error(err))
		writeError(w, statusFor(err), "failed to list unavailable files")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}

func (s *Server) getStatusHistory(w http.ResponseWriter, r *http.Request) {
	fileID, ok := parseFileID(w, r)
	if !ok {
		return
	}
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}
	history, err := s.deps.Availability.StatusHistory(r.Context(), fileID, limit)
	if err != nil {
		writeError(w, statusFor(err), "failed to load status history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"file_id": fileID, "checks": history})
}

func (s *Server) getLatestStatusCheck(w http.ResponseWriter, r *http.Request) {
	fileID, ok := parseFileID(w, r)
	if !ok {
		return
	}
	check, err := s.deps.Availability.LatestStatusCheck(r.Context(), fileID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no status check recorded")
			return
		}
		writeError(w, statusFor(err), "failed to load status check")
		return
	}
	writeJSON(w, http.StatusOK, check)
}

func parseFileID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "file_id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid file id")
		return 0, false
	}
	return id, true
}
