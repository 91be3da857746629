package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/remotehive-dev/jobscraper/internal/scrape"
)

type sourceRequest struct {
	Name    string `json:"name"`
	BaseURL string `json:"base_url"`
	FeedURL string `json:"feed_url"`
	Region  string `json:"region"`
	Active  *bool  `json:"active"`
	Notes   string `json:"notes"`
}

func (req sourceRequest) validate() string {
	if req.Name == "" {
		return "name is required"
	}
	if req.BaseURL == "" {
		return "base_url is required"
	}
	if u, err := url.Parse(req.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return "base_url must be an absolute URL"
	}
	if req.FeedURL != "" {
		if u, err := url.Parse(req.FeedURL); err != nil || u.Scheme == "" || u.Host == "" {
			return "feed_url must be an absolute URL"
		}
	}
	return ""
}

func (s *Server) createSource(w http.ResponseWriter, r *http.Request) {
	var req sourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	src, err := s.sources.CreateSource(r.Context(), scrape.Source{
		Name:    req.Name,
		BaseURL: req.BaseURL,
		FeedURL: req.FeedURL,
		Region:  req.Region,
		Active:  active,
		Notes:   req.Notes,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"source": src})
}

func (s *Server) updateSource(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "source_id")
	existing, err := s.sources.GetSource(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	var req sourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	existing.Name = req.Name
	existing.BaseURL = req.BaseURL
	existing.FeedURL = req.FeedURL
	existing.Region = req.Region
	existing.Notes = req.Notes
	if req.Active != nil {
		existing.Active = *req.Active
	}
	src, err := s.sources.UpdateSource(r.Context(), existing)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"source": src})
}

// deactivateSource handles DELETE. Sources are never hard-deleted; historical
// runs keep their reference.
func (s *Server) deactivateSource(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "source_id")
	if err := s.sources.DeactivateSource(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"source_id": id, "status": "deactivated"})
}

func (s *Server) getSource(w http.ResponseWriter, r *http.Request) {
	src, err := s.sources.GetSource(r.Context(), chi.URLParam(r, "source_id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"source": src})
}

func (s *Server) listSources(w http.ResponseWriter, r *http.Request) {
	filter := scrape.SourceFilter{Region: r.URL.Query().Get("region")}
	if raw := r.URL.Query().Get("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid active flag")
			return
		}
		filter.Active = &active
	}
	srcs, err := s.sources.ListSources(r.Context(), filter)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": srcs, "count": len(srcs)})
}
