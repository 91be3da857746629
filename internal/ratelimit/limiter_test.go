package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWaitGrantsFullBudgetImmediately(t *testing.T) {
	t.Parallel()

	l := New(Config{RequestsPerMinute: 30})

	// 60 concurrent requests against one domain: the 30-token budget grants
	// exactly 30 immediately, the rest block until replenishment and get cut
	// off by the deadline here.
	var granted, deferred int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 60; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
			defer cancel()
			err := l.Wait(ctx, "https://boards.example.com/jobs", 0)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				deferred++
			} else {
				granted++
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 30, granted)
	require.Equal(t, 30, deferred)
}

func TestWaitBlocksUntilReplenished(t *testing.T) {
	t.Parallel()

	// 600/min replenishes one token every 100ms.
	l := New(Config{RequestsPerMinute: 600, Burst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://acme.com/a", 0))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://acme.com/b", 0))
	require.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestWaitIsolatesDomains(t *testing.T) {
	t.Parallel()

	l := New(Config{RequestsPerMinute: 1, Burst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://a.com/1", 0))

	// Domain B must not be starved by domain A's spent budget.
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://b.com/1", 0))
	require.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestWaitSharesBudgetAcrossSubdomains(t *testing.T) {
	t.Parallel()

	l := New(Config{RequestsPerMinute: 1, Burst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://boards.acme.com/x", 0))

	// Same registrable domain: budget already spent.
	blocked, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	require.Error(t, l.Wait(blocked, "https://careers.acme.com/y", 0))
}

func TestWaitPerMinuteOverride(t *testing.T) {
	t.Parallel()

	l := New(Config{RequestsPerMinute: 1})
	ctx := context.Background()

	// The schedule override lifts the domain's budget well above default.
	for i := 0; i < 10; i++ {
		require.NoError(t, l.Wait(ctx, "https://fast.example.org/feed", 120))
	}
}

func TestWaitDeadlineAbandonsAttempt(t *testing.T) {
	t.Parallel()

	l := New(Config{RequestsPerMinute: 1, Burst: 1})
	ctx := context.Background()
	require.NoError(t, l.Wait(ctx, "https://slow.example.net/", 0))

	deadline, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	err := l.Wait(deadline, "https://slow.example.net/", 0)
	require.Error(t, err)
}
