package memory

import (
	"context"

	"github.com/remotehive-dev/jobscraper/internal/scrape"
)

// LoadEngineState returns the singleton row, creating an idle one on first
// access.
func (s *Store) LoadEngineState(_ context.Context) (scrape.EngineSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stateInit {
		s.state = scrape.EngineSnapshot{
			Status:    scrape.EngineIdle,
			Heartbeat: s.clock.Now(),
		}
		s.stateInit = true
	}
	return s.state, nil
}

// SaveEngineState overwrites the singleton row.
func (s *Store) SaveEngineState(_ context.Context, snap scrape.EngineSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = snap
	s.stateInit = true
	return nil
}
