package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/remotehive-dev/jobscraper/internal/clock/system"
	"github.com/remotehive-dev/jobscraper/internal/scrape"
	storemem "github.com/remotehive-dev/jobscraper/internal/store/memory"
)

func TestStateDerivesStatusFromCounts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storemem.New(system.New())
	state, err := NewState(ctx, store, system.New(), zap.NewNop())
	require.NoError(t, err)
	require.Equal(t, scrape.EngineIdle, state.Snapshot().Status)

	state.JobStarted(ctx)
	require.Equal(t, scrape.EngineRunning, state.Snapshot().Status)
	require.Equal(t, 1, state.Snapshot().ActiveWorkers)

	// Every active job paused means the engine reads paused.
	state.JobPaused(ctx)
	require.Equal(t, scrape.EnginePaused, state.Snapshot().Status)
	state.JobResumed(ctx)
	require.Equal(t, scrape.EngineRunning, state.Snapshot().Status)

	state.JobFinished(ctx)
	require.Equal(t, scrape.EngineIdle, state.Snapshot().Status)
	require.Zero(t, state.Snapshot().ActiveWorkers)

	// Mutations persist through the store.
	persisted, err := store.LoadEngineState(ctx)
	require.NoError(t, err)
	require.Equal(t, scrape.EngineIdle, persisted.Status)
}

func TestStateBootResetsToIdle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storemem.New(system.New())
	require.NoError(t, store.SaveEngineState(ctx, scrape.EngineSnapshot{
		Status:        scrape.EngineRunning,
		ActiveWorkers: 3,
		QueueDepth:    7,
	}))

	state, err := NewState(ctx, store, system.New(), zap.NewNop())
	require.NoError(t, err)
	snap := state.Snapshot()
	require.Equal(t, scrape.EngineIdle, snap.Status)
	require.Zero(t, snap.ActiveWorkers)
	require.Zero(t, snap.QueueDepth)
}

func TestStateHeartbeatHealsStuckRunning(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storemem.New(system.New())
	state, err := NewState(ctx, store, system.New(), zap.NewNop())
	require.NoError(t, err)

	// Simulate a foreign writer leaving a stale "running" row with no
	// workers alive.
	require.NoError(t, store.SaveEngineState(ctx, scrape.EngineSnapshot{
		Status:    scrape.EngineRunning,
		Heartbeat: time.Now().Add(-time.Minute),
	}))

	state.Heartbeat(ctx, 15*time.Second)
	snap := state.Snapshot()
	require.Equal(t, scrape.EngineIdle, snap.Status)

	persisted, err := store.LoadEngineState(ctx)
	require.NoError(t, err)
	require.Equal(t, scrape.EngineIdle, persisted.Status)
	require.WithinDuration(t, time.Now(), persisted.Heartbeat, 5*time.Second)
}

func TestStateForceIdle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storemem.New(system.New())
	state, err := NewState(ctx, store, system.New(), zap.NewNop())
	require.NoError(t, err)

	state.JobStarted(ctx)
	state.JobStarted(ctx)
	state.SetQueueDepth(ctx, 5)

	state.ForceIdle(ctx)
	snap := state.Snapshot()
	require.Equal(t, scrape.EngineIdle, snap.Status)
	require.Zero(t, snap.ActiveWorkers)
	require.Zero(t, snap.QueueDepth)
}
