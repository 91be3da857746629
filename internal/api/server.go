// Package api exposes the HTTP control plane and read surface for the
// ingestion engine.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/remotehive-dev/jobscraper/internal/config"
	"github.com/remotehive-dev/jobscraper/internal/engine"
	"github.com/remotehive-dev/jobscraper/internal/metrics"
	"github.com/remotehive-dev/jobscraper/internal/middleware"
	"github.com/remotehive-dev/jobscraper/internal/scheduler"
	"github.com/remotehive-dev/jobscraper/internal/scrape"
)

// Server wires HTTP handlers to the engine, scheduler, and stores.
type Server struct {
	router    chi.Router
	engine    *engine.Engine
	scheduler *scheduler.Scheduler

	sources   scrape.SourceStore
	schedules scrape.ScheduleStore
	jobs      scrape.JobStore
	runs      scrape.RunStore
	records   scrape.RecordStore

	cfg    config.Config
	logger *zap.Logger
}

// Options bundles the server's collaborators.
type Options struct {
	Engine    *engine.Engine
	Scheduler *scheduler.Scheduler
	Sources   scrape.SourceStore
	Schedules scrape.ScheduleStore
	Jobs      scrape.JobStore
	Runs      scrape.RunStore
	Records   scrape.RecordStore
	Config    config.Config
}

// NewServer constructs a Server with middleware and routes.
func NewServer(opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		engine:    opts.Engine,
		scheduler: opts.Scheduler,
		sources:   opts.Sources,
		schedules: opts.Schedules,
		jobs:      opts.Jobs,
		runs:      opts.Runs,
		records:   opts.Records,
		cfg:       opts.Config,
		logger:    logger.Named("api"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(s.logger))
	r.Use(middleware.Recover(s.logger))
	r.Use(middleware.Metrics)
	r.Use(middleware.Timeout(60 * time.Second))
	if s.cfg.Auth.Enabled {
		r.Use(middleware.APIKey(s.cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/engine", func(r chi.Router) {
			r.Post("/start", s.startJob)
			r.Post("/hard-reset", s.hardReset)
			r.Get("/health", s.engineHealth)
		})
		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", s.listJobs)
			r.Route("/{job_id}", func(r chi.Router) {
				r.Get("/", s.getJob)
				r.Get("/runs", s.listJobRuns)
				r.Post("/pause", s.pauseJob)
				r.Post("/resume", s.resumeJob)
				r.Post("/stop", s.stopJob)
			})
		})
		r.Route("/sources", func(r chi.Router) {
			r.Post("/", s.createSource)
			r.Get("/", s.listSources)
			r.Route("/{source_id}", func(r chi.Router) {
				r.Get("/", s.getSource)
				r.Put("/", s.updateSource)
				r.Delete("/", s.deactivateSource)
			})
		})
		r.Route("/schedules", func(r chi.Router) {
			r.Post("/", s.upsertSchedule)
			r.Get("/", s.listSchedules)
			r.Get("/{schedule_id}", s.getSchedule)
		})
		r.Route("/postings", func(r chi.Router) {
			r.Get("/", s.listPostings)
			r.Post("/publish", s.publishPostings)
		})
		r.Route("/maintenance", func(r chi.Router) {
			r.Post("/rescore", s.rescore)
			r.Post("/reindex-failed", s.reindexFailed)
		})
		r.Get("/runs", s.listRuns)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	// The store answers a trivial read when the backend is reachable.
	if _, err := s.jobs.ListJobs(r.Context(), scrape.JobFilter{Limit: 1}); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) engineHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Health())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeStoreError maps the store sentinels to HTTP statuses.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scrape.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, scrape.ErrAlreadyExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, scrape.ErrAlreadyTerminal), errors.Is(err, scrape.ErrIllegalTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, engine.ErrQueueFull):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// parseTimeParam reads an optional RFC 3339 query parameter.
func parseTimeParam(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
