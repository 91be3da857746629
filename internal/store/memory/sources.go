package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/remotehive-dev/jobscraper/internal/scrape"
)

// CreateSource stores a new source descriptor.
func (s *Store) CreateSource(_ context.Context, src scrape.Source) (scrape.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sources[src.ID]; exists {
		return scrape.Source{}, fmt.Errorf("source %s: %w", src.ID, scrape.ErrAlreadyExists)
	}
	now := s.clock.Now()
	src.CreatedAt = now
	src.UpdatedAt = now
	s.sources[src.ID] = src
	return src, nil
}

// UpdateSource replaces an existing source's editable fields.
func (s *Store) UpdateSource(_ context.Context, src scrape.Source) (scrape.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.sources[src.ID]
	if !ok {
		return scrape.Source{}, fmt.Errorf("source %s: %w", src.ID, scrape.ErrNotFound)
	}
	src.CreatedAt = existing.CreatedAt
	src.ETag = existing.ETag
	src.LastModified = existing.LastModified
	src.UpdatedAt = s.clock.Now()
	s.sources[src.ID] = src
	return src, nil
}

// DeactivateSource soft-deletes a source; historical runs keep referencing it.
func (s *Store) DeactivateSource(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[id]
	if !ok {
		return fmt.Errorf("source %s: %w", id, scrape.ErrNotFound)
	}
	src.Active = false
	src.UpdatedAt = s.clock.Now()
	s.sources[id] = src
	return nil
}

// GetSource fetches one source by id.
func (s *Store) GetSource(_ context.Context, id string) (scrape.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src, ok := s.sources[id]
	if !ok {
		return scrape.Source{}, fmt.Errorf("source %s: %w", id, scrape.ErrNotFound)
	}
	return src, nil
}

// ListSources returns sources matching the filter, name-ordered.
func (s *Store) ListSources(_ context.Context, f scrape.SourceFilter) ([]scrape.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]scrape.Source, 0, len(s.sources))
	for _, src := range s.sources {
		if f.Region != "" && src.Region != f.Region {
			continue
		}
		if f.Active != nil && src.Active != *f.Active {
			continue
		}
		out = append(out, src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// SaveFetchCache stores the conditional-fetch tokens for a source.
func (s *Store) SaveFetchCache(_ context.Context, id, etag, lastModified string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[id]
	if !ok {
		return fmt.Errorf("source %s: %w", id, scrape.ErrNotFound)
	}
	src.ETag = etag
	src.LastModified = lastModified
	src.UpdatedAt = s.clock.Now()
	s.sources[id] = src
	return nil
}
