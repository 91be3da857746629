package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/remotehive-dev/jobscraper/internal/scrape"
)

func (s *Server) listPostings(w http.ResponseWriter, r *http.Request) {
	filter := scrape.NormalizedFilter{
		Region:  r.URL.Query().Get("region"),
		Company: r.URL.Query().Get("company"),
	}
	if raw := r.URL.Query().Get("published"); raw != "" {
		published, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid published flag")
			return
		}
		filter.Published = &published
	}
	if raw := r.URL.Query().Get("min_score"); raw != "" {
		minScore, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid min_score")
			return
		}
		filter.MinScore = minScore
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = limit
	}
	postings, err := s.records.ListNormalizedJobs(r.Context(), filter)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"postings": postings, "count": len(postings)})
}

type publishRequest struct {
	IDs []string `json:"ids"`
}

func (s *Server) publishPostings(w http.ResponseWriter, r *http.Request) {
	var req publishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "ids required")
		return
	}
	published, err := s.engine.Publish(r.Context(), req.IDs)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"published": published, "count": len(published)})
}

func (s *Server) rescore(w http.ResponseWriter, r *http.Request) {
	updated, err := s.engine.Rescore(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": updated})
}

type reindexRequest struct {
	Since string `json:"since"`
}

func (s *Server) reindexFailed(w http.ResponseWriter, r *http.Request) {
	var req reindexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	since := time.Now().Add(-24 * time.Hour)
	if req.Since != "" {
		parsed, err := time.Parse(time.RFC3339, req.Since)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid since timestamp")
			return
		}
		since = parsed
	}
	jobs, err := s.engine.ReindexFailedRuns(r.Context(), since)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs, "count": len(jobs)})
}
