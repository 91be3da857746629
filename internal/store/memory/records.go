package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/remotehive-dev/jobscraper/internal/scrape"
)

// InsertRawRecord performs the idempotent dedup upsert: a fingerprint or
// source URL seen before drops the record and returns false.
func (s *Store) InsertRawRecord(_ context.Context, rec scrape.RawRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.byFingerprint[rec.Fingerprint]; dup {
		return false, nil
	}
	if _, dup := s.bySourceURL[rec.SourceURL]; dup {
		return false, nil
	}
	s.raw[rec.ID] = rec
	s.byFingerprint[rec.Fingerprint] = rec.ID
	s.bySourceURL[rec.SourceURL] = rec.ID
	return true, nil
}

// InsertNormalizedJob stores the cleaned entity for a raw record.
func (s *Store) InsertNormalizedJob(_ context.Context, job scrape.NormalizedJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.raw[job.RawRecordID]; !ok {
		return fmt.Errorf("raw record %s: %w", job.RawRecordID, scrape.ErrNotFound)
	}
	s.normalized[job.ID] = job
	return nil
}

// GetRawRecord fetches one raw record by id.
func (s *Store) GetRawRecord(_ context.Context, id string) (scrape.RawRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.raw[id]
	if !ok {
		return scrape.RawRecord{}, fmt.Errorf("raw record %s: %w", id, scrape.ErrNotFound)
	}
	return rec, nil
}

// ListNormalizedJobs returns normalized jobs matching the filter, newest
// posted first.
func (s *Store) ListNormalizedJobs(_ context.Context, f scrape.NormalizedFilter) ([]scrape.NormalizedJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]scrape.NormalizedJob, 0, len(s.normalized))
	for _, job := range s.normalized {
		if f.Region != "" && job.Region != f.Region {
			continue
		}
		if f.Company != "" && !strings.EqualFold(job.Company, f.Company) {
			continue
		}
		if f.Published != nil && job.Published != *f.Published {
			continue
		}
		if f.MinScore > 0 && job.QualityScore < f.MinScore {
			continue
		}
		out = append(out, job)
	}
	sort.Slice(out, func(i, j int) bool {
		pi, pj := out[i].PostedAt, out[j].PostedAt
		switch {
		case pi == nil && pj == nil:
			return out[i].ID < out[j].ID
		case pi == nil:
			return false
		case pj == nil:
			return true
		default:
			return pi.After(*pj)
		}
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// MarkPublished flips the publish flag for the given ids and returns the
// newly published rows. Unknown and already-published ids are skipped, so
// the call is idempotent across retries.
func (s *Store) MarkPublished(_ context.Context, ids []string) ([]scrape.NormalizedJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []scrape.NormalizedJob
	for _, id := range ids {
		job, ok := s.normalized[id]
		if !ok || job.Published {
			continue
		}
		job.Published = true
		s.normalized[id] = job
		out = append(out, job)
	}
	return out, nil
}

// UpdateQualityScore overwrites a stored score. Only the explicit rescore
// maintenance pass calls this.
func (s *Store) UpdateQualityScore(_ context.Context, id string, score float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.normalized[id]
	if !ok {
		return fmt.Errorf("normalized job %s: %w", id, scrape.ErrNotFound)
	}
	job.QualityScore = score
	s.normalized[id] = job
	return nil
}
