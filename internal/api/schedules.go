package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/remotehive-dev/jobscraper/internal/scrape"
)

type scheduleRequest struct {
	ID                string  `json:"id"`
	SourceID          *string `json:"source_id"`
	Cron              string  `json:"cron"`
	IntervalSeconds   int     `json:"interval_seconds"`
	Timezone          string  `json:"timezone"`
	Paused            bool    `json:"paused"`
	Enabled           bool    `json:"enabled"`
	MaxConcurrency    int     `json:"max_concurrency"`
	RequestsPerMinute int     `json:"requests_per_minute"`
}

func (s *Server) upsertSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	sch, err := s.scheduler.Upsert(r.Context(), scrape.Schedule{
		ID:                req.ID,
		SourceID:          req.SourceID,
		CronExpr:          req.Cron,
		Interval:          time.Duration(req.IntervalSeconds) * time.Second,
		Timezone:          req.Timezone,
		Paused:            req.Paused,
		Enabled:           req.Enabled,
		MaxConcurrency:    req.MaxConcurrency,
		RequestsPerMinute: req.RequestsPerMinute,
	})
	if err != nil {
		if errors.Is(err, scrape.ErrInvalidSchedule) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"schedule": sch})
}

func (s *Server) getSchedule(w http.ResponseWriter, r *http.Request) {
	sch, err := s.schedules.GetSchedule(r.Context(), chi.URLParam(r, "schedule_id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"schedule": sch})
}

func (s *Server) listSchedules(w http.ResponseWriter, r *http.Request) {
	filter := scrape.ScheduleFilter{SourceID: r.URL.Query().Get("source_id")}
	if raw := r.URL.Query().Get("enabled"); raw != "" {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid enabled flag")
			return
		}
		filter.Enabled = &enabled
	}
	schs, err := s.schedules.ListSchedules(r.Context(), filter)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"schedules": schs, "count": len(schs)})
}
