package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/remotehive-dev/jobscraper/internal/scrape"
)

// CreateJob stores a new job in queued status.
func (s *Store) CreateJob(_ context.Context, job scrape.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s: %w", job.ID, scrape.ErrAlreadyExists)
	}
	if job.Status == "" {
		job.Status = scrape.JobStatusQueued
	}
	if job.QueuedAt.IsZero() {
		job.QueuedAt = s.clock.Now()
	}
	s.jobs[job.ID] = job
	return nil
}

// ClaimJob moves a queued job to running and stamps its start time. A job
// canceled while queued (hard reset) fails the claim.
func (s *Store) ClaimJob(_ context.Context, id string) (scrape.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return scrape.Job{}, fmt.Errorf("job %s: %w", id, scrape.ErrNotFound)
	}
	if job.Status != scrape.JobStatusQueued {
		return scrape.Job{}, fmt.Errorf("claim job %s in status %s: %w", id, job.Status, scrape.ErrIllegalTransition)
	}
	job.Status = scrape.JobStatusRunning
	now := s.clock.Now()
	job.StartedAt = &now
	s.jobs[id] = job
	return job, nil
}

// UpdateJobStatus applies one state machine transition. Terminal statuses are
// write-once; illegal moves are rejected.
func (s *Store) UpdateJobStatus(_ context.Context, id string, status scrape.JobStatus, errText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job %s: %w", id, scrape.ErrNotFound)
	}
	if job.Status == status {
		return nil // idempotent
	}
	if job.Status.Terminal() {
		return fmt.Errorf("job %s already %s: %w", id, job.Status, scrape.ErrAlreadyTerminal)
	}
	if !job.Status.CanTransitionTo(status) {
		return fmt.Errorf("job %s: %s -> %s: %w", id, job.Status, status, scrape.ErrIllegalTransition)
	}
	now := s.clock.Now()
	if status == scrape.JobStatusRunning && job.StartedAt == nil {
		job.StartedAt = &now
	}
	if status.Terminal() {
		job.FinishedAt = &now
	}
	job.Status = status
	if errText != "" {
		job.LastError = errText
	}
	s.jobs[id] = job
	return nil
}

// AddJobCounts increments the aggregate counters.
func (s *Store) AddJobCounts(_ context.Context, id string, found, saved int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job %s: %w", id, scrape.ErrNotFound)
	}
	job.ItemsFound += found
	job.ItemsSaved += saved
	s.jobs[id] = job
	return nil
}

// GetJob fetches one job by id.
func (s *Store) GetJob(_ context.Context, id string) (scrape.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return scrape.Job{}, fmt.Errorf("job %s: %w", id, scrape.ErrNotFound)
	}
	return job, nil
}

// ListJobs returns jobs matching the filter, newest first.
func (s *Store) ListJobs(_ context.Context, f scrape.JobFilter) ([]scrape.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]scrape.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		if f.Status != "" && job.Status != f.Status {
			continue
		}
		if f.SourceID != "" && (job.SourceID == nil || *job.SourceID != f.SourceID) {
			continue
		}
		if f.Since != nil && job.QueuedAt.Before(*f.Since) {
			continue
		}
		if f.Until != nil && job.QueuedAt.After(*f.Until) {
			continue
		}
		out = append(out, job)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QueuedAt.After(out[j].QueuedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// CancelActive forces every queued, running, or paused job to canceled.
func (s *Store) CancelActive(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	var ids []string
	for id, job := range s.jobs {
		switch job.Status {
		case scrape.JobStatusQueued, scrape.JobStatusRunning, scrape.JobStatusPaused:
			job.Status = scrape.JobStatusCanceled
			job.FinishedAt = &now
			s.jobs[id] = job
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}
