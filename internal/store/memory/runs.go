package memory

import (
	"context"
	"sort"
	"time"

	"github.com/remotehive-dev/jobscraper/internal/scrape"
)

// RecordRun appends one finished fetch attempt.
func (s *Store) RecordRun(_ context.Context, run scrape.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run)
	return nil
}

// ListRuns returns runs matching the filter, newest first.
func (s *Store) ListRuns(_ context.Context, f scrape.RunFilter) ([]scrape.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []scrape.Run
	for _, run := range s.runs {
		if f.JobID != "" && run.JobID != f.JobID {
			continue
		}
		if f.SourceID != "" && run.SourceID != f.SourceID {
			continue
		}
		if f.Status != "" && run.Status != f.Status {
			continue
		}
		if f.Since != nil && run.StartedAt.Before(*f.Since) {
			continue
		}
		if f.Until != nil && run.StartedAt.After(*f.Until) {
			continue
		}
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// FailedRuns returns failed runs started at or after since.
func (s *Store) FailedRuns(ctx context.Context, since time.Time) ([]scrape.Run, error) {
	return s.ListRuns(ctx, scrape.RunFilter{Status: scrape.RunStatusFailed, Since: &since})
}
