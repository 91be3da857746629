package engine

import (
	"context"
	"sync"

	"github.com/remotehive-dev/jobscraper/internal/scrape"
)

// Gate is the cooperative pause/stop control for one running job. The
// orchestrator calls Wait at target boundaries; control handlers flip the
// gate from another goroutine. Stop wins over pause and is sticky.
type Gate struct {
	mu      sync.Mutex
	paused  bool
	stopped bool
	resume  chan struct{}
	stop    chan struct{}
}

// NewGate returns an open gate.
func NewGate() *Gate {
	return &Gate{
		resume: make(chan struct{}),
		stop:   make(chan struct{}),
	}
}

// Pause closes the gate. Returns false when the job was already paused or
// stopped, so callers can keep the control endpoint idempotent.
func (g *Gate) Pause() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopped || g.paused {
		return false
	}
	g.paused = true
	return true
}

// Resume reopens a paused gate.
func (g *Gate) Resume() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopped || !g.paused {
		return false
	}
	g.paused = false
	close(g.resume)
	g.resume = make(chan struct{})
	return true
}

// Stop marks the job for graceful stop. A paused job stops too.
func (g *Gate) Stop() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopped {
		return false
	}
	g.stopped = true
	close(g.stop)
	return true
}

// Stopped reports whether Stop has been requested.
func (g *Gate) Stopped() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stopped
}

// Paused reports whether the gate is currently closed.
func (g *Gate) Paused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paused
}

// Wait is the boundary check. It returns nil immediately when the gate is
// open, blocks while paused, returns ErrJobStopped once Stop has been called,
// and ctx.Err() when the context ends first. onPause and onResume fire once
// per pause episode, on the waiting goroutine, so the caller can flip the
// persisted job status.
func (g *Gate) Wait(ctx context.Context, onPause, onResume func()) error {
	notified := false
	for {
		g.mu.Lock()
		if g.stopped {
			g.mu.Unlock()
			if notified && onResume != nil {
				onResume()
			}
			return scrape.ErrJobStopped
		}
		if !g.paused {
			g.mu.Unlock()
			if notified && onResume != nil {
				onResume()
			}
			return nil
		}
		resume, stop := g.resume, g.stop
		g.mu.Unlock()

		if !notified {
			notified = true
			if onPause != nil {
				onPause()
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
		case <-resume:
		}
	}
}

// gateSet tracks the gate for every in-flight job.
type gateSet struct {
	mu    sync.Mutex
	gates map[string]*Gate
}

func newGateSet() *gateSet {
	return &gateSet{gates: make(map[string]*Gate)}
}

func (s *gateSet) add(jobID string) *Gate {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := NewGate()
	s.gates[jobID] = g
	return g
}

func (s *gateSet) remove(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.gates, jobID)
}

func (s *gateSet) get(jobID string) (*Gate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.gates[jobID]
	return g, ok
}

// stopAll stops every gate, for hard reset.
func (s *gateSet) stopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.gates {
		g.Stop()
	}
}
