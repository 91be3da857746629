package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/remotehive-dev/jobscraper/internal/scrape"
)

// LoadEngineState returns the singleton row, creating an idle one at
// bootstrap.
func (s *Store) LoadEngineState(ctx context.Context) (scrape.EngineSnapshot, error) {
	var snap scrape.EngineSnapshot
	err := s.db.QueryRow(ctx, `
SELECT status, heartbeat, active_workers, queue_depth FROM engine_state WHERE id`).Scan(
		&snap.Status, &snap.Heartbeat, &snap.ActiveWorkers, &snap.QueueDepth,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		snap = scrape.EngineSnapshot{Status: scrape.EngineIdle, Heartbeat: s.clock.Now()}
		if saveErr := s.SaveEngineState(ctx, snap); saveErr != nil {
			return scrape.EngineSnapshot{}, saveErr
		}
		return snap, nil
	}
	if err != nil {
		return scrape.EngineSnapshot{}, fmt.Errorf("load engine state: %w", err)
	}
	return snap, nil
}

// SaveEngineState upserts the singleton row.
func (s *Store) SaveEngineState(ctx context.Context, snap scrape.EngineSnapshot) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO engine_state (id, status, heartbeat, active_workers, queue_depth)
VALUES (TRUE, $1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET
	status = EXCLUDED.status,
	heartbeat = EXCLUDED.heartbeat,
	active_workers = EXCLUDED.active_workers,
	queue_depth = EXCLUDED.queue_depth`,
		snap.Status, snap.Heartbeat, snap.ActiveWorkers, snap.QueueDepth)
	if err != nil {
		return fmt.Errorf("save engine state: %w", err)
	}
	return nil
}
