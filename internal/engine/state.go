// Package engine runs the managed scrape pipeline: a fixed worker pool over
// a bounded job queue, a per-job orchestrator, and the control plane that
// starts, pauses, resumes, stops, and hard-resets work.
package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/remotehive-dev/jobscraper/internal/metrics"
	"github.com/remotehive-dev/jobscraper/internal/scrape"
)

// State is the process-wide engine state behind a serialized update path.
// Every mutation happens under one mutex and is persisted before release, so
// concurrent jobs cannot lose transitions.
type State struct {
	mu         sync.Mutex
	snap       scrape.EngineSnapshot
	pausedJobs int

	store  scrape.StateStore
	clock  scrape.Clock
	logger *zap.Logger
}

// NewState loads (or bootstraps) the singleton row and resets it to idle:
// workers from a previous process are gone.
func NewState(ctx context.Context, store scrape.StateStore, clock scrape.Clock, logger *zap.Logger) (*State, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	snap, err := store.LoadEngineState(ctx)
	if err != nil {
		return nil, err
	}
	snap.Status = scrape.EngineIdle
	snap.ActiveWorkers = 0
	snap.QueueDepth = 0
	snap.Heartbeat = clock.Now()
	if err := store.SaveEngineState(ctx, snap); err != nil {
		return nil, err
	}
	s := &State{snap: snap, store: store, clock: clock, logger: logger.Named("engine_state")}
	s.export()
	return s, nil
}

// Snapshot returns the current observable state.
func (s *State) Snapshot() scrape.EngineSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// JobStarted records a worker picking up a job.
func (s *State) JobStarted(ctx context.Context) {
	s.update(ctx, func() {
		s.snap.ActiveWorkers++
	})
}

// JobFinished records a worker completing a job.
func (s *State) JobFinished(ctx context.Context) {
	s.update(ctx, func() {
		if s.snap.ActiveWorkers > 0 {
			s.snap.ActiveWorkers--
		}
	})
}

// JobPaused and JobResumed track how many active jobs sit behind a pause
// gate; the engine reads "paused" when every active job does.
func (s *State) JobPaused(ctx context.Context) {
	s.update(ctx, func() { s.pausedJobs++ })
}

// JobResumed is the inverse of JobPaused.
func (s *State) JobResumed(ctx context.Context) {
	s.update(ctx, func() {
		if s.pausedJobs > 0 {
			s.pausedJobs--
		}
	})
}

// SetQueueDepth publishes the pending-work depth.
func (s *State) SetQueueDepth(ctx context.Context, depth int) {
	s.update(ctx, func() {
		s.snap.QueueDepth = depth
	})
}

// ForceIdle zeroes the state during a hard reset.
func (s *State) ForceIdle(ctx context.Context) {
	s.update(ctx, func() {
		s.snap.ActiveWorkers = 0
		s.snap.QueueDepth = 0
		s.pausedJobs = 0
	})
}

// Heartbeat stamps the state row and self-heals a stuck "running" status:
// running with zero workers longer than one interval reverts to idle.
func (s *State) Heartbeat(ctx context.Context, interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	persisted, err := s.store.LoadEngineState(ctx)
	if err == nil && persisted.Status == scrape.EngineRunning && s.snap.ActiveWorkers == 0 &&
		s.clock.Now().Sub(persisted.Heartbeat) >= interval {
		s.logger.Warn("engine state stuck running with no workers, reverting to idle")
		s.snap.Status = scrape.EngineIdle
	}
	s.snap.Heartbeat = s.clock.Now()
	if err := s.store.SaveEngineState(ctx, s.snap); err != nil {
		s.logger.Error("persist engine state", zap.Error(err))
	}
	s.export()
}

// RunHeartbeat drives Heartbeat on a ticker until ctx ends.
func (s *State) RunHeartbeat(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Heartbeat(ctx, interval)
		}
	}
}

// update is the single serialized mutation path: apply, derive status,
// persist, export metrics, all under the lock.
func (s *State) update(ctx context.Context, mutate func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mutate()
	s.deriveStatus()
	s.snap.Heartbeat = s.clock.Now()
	if err := s.store.SaveEngineState(ctx, s.snap); err != nil {
		s.logger.Error("persist engine state", zap.Error(err))
	}
	s.export()
}

// deriveStatus computes the coarse status from worker and pause counts.
func (s *State) deriveStatus() {
	switch {
	case s.snap.ActiveWorkers == 0:
		s.snap.Status = scrape.EngineIdle
	case s.pausedJobs >= s.snap.ActiveWorkers:
		s.snap.Status = scrape.EnginePaused
	default:
		s.snap.Status = scrape.EngineRunning
	}
}

func (s *State) export() {
	metrics.SetEngineStatus(string(s.snap.Status))
	metrics.SetActiveWorkers(s.snap.ActiveWorkers)
	metrics.SetQueueDepth(s.snap.QueueDepth)
}
