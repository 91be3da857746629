package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/remotehive-dev/jobscraper/internal/engine"
	"github.com/remotehive-dev/jobscraper/internal/scrape"
)

type startJobRequest struct {
	SourceID          *string `json:"source_id"`
	Mode              string  `json:"mode"`
	MaxConcurrency    int     `json:"max_concurrency"`
	RequestsPerMinute int     `json:"requests_per_minute"`
}

func (s *Server) startJob(w http.ResponseWriter, r *http.Request) {
	var req startJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	mode := scrape.Mode(req.Mode)
	if req.Mode == "" {
		mode = scrape.ModeAuto
	}
	if !mode.Valid() {
		writeError(w, http.StatusBadRequest, "mode must be auto, feed, or html")
		return
	}
	job, err := s.engine.Start(r.Context(), engine.StartRequest{
		SourceID:          req.SourceID,
		Mode:              mode,
		Requester:         "api:" + r.RemoteAddr,
		MaxConcurrency:    req.MaxConcurrency,
		RequestsPerMinute: req.RequestsPerMinute,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"job": job})
}

func (s *Server) hardReset(w http.ResponseWriter, r *http.Request) {
	canceled, err := s.engine.HardReset(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"canceled_jobs": canceled,
		"engine":        s.engine.Health(),
	})
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	filter := scrape.JobFilter{
		Status:   scrape.JobStatus(r.URL.Query().Get("status")),
		SourceID: r.URL.Query().Get("source_id"),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = limit
	}
	var err error
	if filter.Since, err = parseTimeParam(r, "since"); err != nil {
		writeError(w, http.StatusBadRequest, "invalid since timestamp")
		return
	}
	if filter.Until, err = parseTimeParam(r, "until"); err != nil {
		writeError(w, http.StatusBadRequest, "invalid until timestamp")
		return
	}
	jobs, err := s.jobs.ListJobs(r.Context(), filter)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs, "count": len(jobs)})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.GetJob(r.Context(), chi.URLParam(r, "job_id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job": job})
}

func (s *Server) listJobRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.runs.ListRuns(r.Context(), scrape.RunFilter{
		JobID:  chi.URLParam(r, "job_id"),
		Status: scrape.RunStatus(r.URL.Query().Get("status")),
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs, "count": len(runs)})
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	filter := scrape.RunFilter{
		JobID:    r.URL.Query().Get("job_id"),
		SourceID: r.URL.Query().Get("source_id"),
		Status:   scrape.RunStatus(r.URL.Query().Get("status")),
	}
	var err error
	if filter.Since, err = parseTimeParam(r, "since"); err != nil {
		writeError(w, http.StatusBadRequest, "invalid since timestamp")
		return
	}
	if filter.Until, err = parseTimeParam(r, "until"); err != nil {
		writeError(w, http.StatusBadRequest, "invalid until timestamp")
		return
	}
	runs, err := s.runs.ListRuns(r.Context(), filter)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs, "count": len(runs)})
}

func (s *Server) pauseJob(w http.ResponseWriter, r *http.Request) {
	s.signalJob(w, r, s.engine.Pause, "pausing")
}

func (s *Server) resumeJob(w http.ResponseWriter, r *http.Request) {
	s.signalJob(w, r, s.engine.Resume, "resuming")
}

func (s *Server) stopJob(w http.ResponseWriter, r *http.Request) {
	s.signalJob(w, r, s.engine.Stop, "stopping")
}

func (s *Server) signalJob(w http.ResponseWriter, r *http.Request, signal func(ctx context.Context, jobID string) error, verb string) {
	jobID := chi.URLParam(r, "job_id")
	if err := signal(r.Context(), jobID); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID, "state": verb})
}
