package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/remotehive-dev/jobscraper/internal/scrape"
)

// UpsertSchedule creates or replaces a schedule config.
func (s *Store) UpsertSchedule(_ context.Context, sch scrape.Schedule) (scrape.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	if existing, ok := s.schedules[sch.ID]; ok {
		sch.CreatedAt = existing.CreatedAt
		sch.LastFire = existing.LastFire
	} else {
		sch.CreatedAt = now
	}
	sch.UpdatedAt = now
	s.schedules[sch.ID] = sch
	return sch, nil
}

// GetSchedule fetches one schedule by id.
func (s *Store) GetSchedule(_ context.Context, id string) (scrape.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sch, ok := s.schedules[id]
	if !ok {
		return scrape.Schedule{}, fmt.Errorf("schedule %s: %w", id, scrape.ErrNotFound)
	}
	return sch, nil
}

// ListSchedules returns schedules matching the filter.
func (s *Store) ListSchedules(_ context.Context, f scrape.ScheduleFilter) ([]scrape.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]scrape.Schedule, 0, len(s.schedules))
	for _, sch := range s.schedules {
		if f.SourceID != "" && (sch.SourceID == nil || *sch.SourceID != f.SourceID) {
			continue
		}
		if f.Enabled != nil && sch.Enabled != *f.Enabled {
			continue
		}
		out = append(out, sch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// DueSchedules returns enabled schedules whose next fire time has passed.
// Paused schedules are included; the scheduler advances them without firing.
func (s *Store) DueSchedules(_ context.Context, now time.Time) ([]scrape.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []scrape.Schedule
	for _, sch := range s.schedules {
		if !sch.Enabled || sch.NextFire == nil {
			continue
		}
		if !sch.NextFire.After(now) {
			out = append(out, sch)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// MarkFired records a fire and the recomputed next fire time.
func (s *Store) MarkFired(_ context.Context, id string, last, next time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sch, ok := s.schedules[id]
	if !ok {
		return fmt.Errorf("schedule %s: %w", id, scrape.ErrNotFound)
	}
	sch.LastFire = &last
	sch.NextFire = &next
	sch.UpdatedAt = s.clock.Now()
	s.schedules[id] = sch
	return nil
}
