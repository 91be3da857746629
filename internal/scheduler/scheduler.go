// Package scheduler turns stored schedules into queued scrape jobs. It
// evaluates due schedules on a fixed tick; a schedule that was paused or a
// process that was down does not replay missed fires, the next fire is always
// computed from the current evaluation time.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/remotehive-dev/jobscraper/internal/engine"
	"github.com/remotehive-dev/jobscraper/internal/scrape"
)

// minInterval guards against schedules that would hammer a source.
const minInterval = time.Minute

// JobStarter is the slice of the engine the scheduler needs.
type JobStarter interface {
	Start(ctx context.Context, req engine.StartRequest) (scrape.Job, error)
}

// Scheduler drives schedule evaluation.
type Scheduler struct {
	schedules scrape.ScheduleStore
	starter   JobStarter
	ids       scrape.IDGenerator
	clock     scrape.Clock
	tick      time.Duration
	logger    *zap.Logger
}

// New builds a Scheduler.
func New(schedules scrape.ScheduleStore, starter JobStarter, ids scrape.IDGenerator, clock scrape.Clock, tick time.Duration, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tick <= 0 {
		tick = 15 * time.Second
	}
	return &Scheduler{
		schedules: schedules,
		starter:   starter,
		ids:       ids,
		clock:     clock,
		tick:      tick,
		logger:    logger.Named("scheduler"),
	}
}

// Upsert validates the schedule, stamps its next fire time, and persists it.
// New schedules get an ID here.
func (s *Scheduler) Upsert(ctx context.Context, sch scrape.Schedule) (scrape.Schedule, error) {
	if err := Validate(sch); err != nil {
		return scrape.Schedule{}, err
	}
	if sch.ID == "" {
		id, err := s.ids.NewID()
		if err != nil {
			return scrape.Schedule{}, fmt.Errorf("generate schedule id: %w", err)
		}
		sch.ID = id
	}
	next, err := NextFire(sch, s.clock.Now())
	if err != nil {
		return scrape.Schedule{}, err
	}
	sch.NextFire = &next
	return s.schedules.UpsertSchedule(ctx, sch)
}

// Validate checks the recurrence definition: exactly one of a cron
// expression or a fixed interval, a parseable timezone, and a sane floor.
func Validate(sch scrape.Schedule) error {
	hasCron := sch.CronExpr != ""
	hasInterval := sch.Interval > 0
	switch {
	case hasCron && hasInterval:
		return fmt.Errorf("%w: set cron or interval, not both", scrape.ErrInvalidSchedule)
	case !hasCron && !hasInterval:
		return fmt.Errorf("%w: set cron or interval", scrape.ErrInvalidSchedule)
	}
	if hasInterval && sch.Interval < minInterval {
		return fmt.Errorf("%w: interval %s below minimum %s", scrape.ErrInvalidSchedule, sch.Interval, minInterval)
	}
	if hasCron {
		if _, err := cron.ParseStandard(sch.CronExpr); err != nil {
			return fmt.Errorf("%w: parse cron %q: %v", scrape.ErrInvalidSchedule, sch.CronExpr, err)
		}
	}
	if sch.Timezone != "" {
		if _, err := time.LoadLocation(sch.Timezone); err != nil {
			return fmt.Errorf("%w: load timezone %q: %v", scrape.ErrInvalidSchedule, sch.Timezone, err)
		}
	}
	return nil
}

// NextFire computes the fire time after now. Cron schedules evaluate in
// their configured timezone; interval schedules simply add the interval, so
// a downtime gap never produces a catch-up burst.
func NextFire(sch scrape.Schedule, now time.Time) (time.Time, error) {
	if sch.CronExpr == "" {
		return now.Add(sch.Interval), nil
	}
	loc := time.UTC
	if sch.Timezone != "" {
		var err error
		if loc, err = time.LoadLocation(sch.Timezone); err != nil {
			return time.Time{}, fmt.Errorf("load timezone %q: %w", sch.Timezone, err)
		}
	}
	expr, err := cron.ParseStandard(sch.CronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron %q: %w", sch.CronExpr, err)
	}
	return expr.Next(now.In(loc)), nil
}

// Run evaluates due schedules until ctx ends.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Evaluate(ctx)
		}
	}
}

// Evaluate fires every due schedule once. Paused schedules advance their
// bookkeeping without creating a job; a due time reached several times over
// during downtime still fires at most once.
func (s *Scheduler) Evaluate(ctx context.Context) {
	now := s.clock.Now()
	due, err := s.schedules.DueSchedules(ctx, now)
	if err != nil {
		s.logger.Error("list due schedules", zap.Error(err))
		return
	}
	for _, sch := range due {
		next, err := NextFire(sch, now)
		if err != nil {
			s.logger.Error("compute next fire", zap.String("schedule_id", sch.ID), zap.Error(err))
			continue
		}
		if err := s.schedules.MarkFired(ctx, sch.ID, now, next); err != nil {
			s.logger.Error("mark schedule fired", zap.String("schedule_id", sch.ID), zap.Error(err))
			continue
		}
		if sch.Paused {
			s.logger.Debug("paused schedule advanced", zap.String("schedule_id", sch.ID))
			continue
		}
		job, err := s.starter.Start(ctx, engine.StartRequest{
			SourceID:          sch.SourceID,
			Mode:              scrape.ModeAuto,
			Requester:         "scheduler:" + sch.ID,
			MaxConcurrency:    sch.MaxConcurrency,
			RequestsPerMinute: sch.RequestsPerMinute,
		})
		if err != nil {
			s.logger.Warn("start scheduled job", zap.String("schedule_id", sch.ID), zap.Error(err))
			continue
		}
		s.logger.Info("schedule fired",
			zap.String("schedule_id", sch.ID),
			zap.String("job_id", job.ID),
			zap.Time("next_fire", next))
	}
}
