// Package scheduler runs the midnight rollover: every open utilisation
// interval is closed into yesterday's bucket and reopened for today.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/hprobot/fleetd/internal/robot"
	"github.com/hprobot/fleetd/internal/store"
)

// DefaultSchedule fires at local midnight.
const DefaultSchedule = "0 0 * * *"

// DailyReset re-opens every robot's stats cursor on a cron schedule.
// A missed fire is harmless: the stats accumulator splits multi-day
// intervals at midnight on the next write anyway.
type DailyReset struct {
	store store.Store
	stats *robot.DailyStats
	cron  *cron.Cron
	log   zerolog.Logger

	now func() time.Time
}

// DailyResetConfig configures the rollover job.
type DailyResetConfig struct {
	Store store.Store
	Stats *robot.DailyStats
	// Schedule is a standard five-field cron expression.
	Schedule string
	Logger   zerolog.Logger
}

// NewDailyReset creates the rollover job.
func NewDailyReset(cfg DailyResetConfig) *DailyReset {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	s := &DailyReset{
		store: cfg.Store,
		stats: cfg.Stats,
		cron:  cron.New(),
		log:   cfg.Logger.With().Str("component", "scheduler").Logger(),
		now:   time.Now,
	}
	if _, err := s.cron.AddFunc(cfg.Schedule, func() { s.ResetNow() }); err != nil {
		s.log.Error().Err(err).Str("schedule", cfg.Schedule).Msg("invalid cron expression")
	}
	return s
}

// Start begins firing on the schedule.
func (s *DailyReset) Start() {
	s.cron.Start()
	s.log.Info().Msg("daily reset scheduled")
}

// Stop halts the schedule and waits for a running reset to finish.
func (s *DailyReset) Stop() {
	<-s.cron.Stop().Done()
}

// ResetNow rolls every open cursor over immediately and returns how
// many robots were rolled.
func (s *DailyReset) ResetNow() int {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rolled := 0
	for _, key := range s.store.Scan(ctx, robot.CursorKeyPattern) {
		mapName, robotID, ok := robot.ParseCursorKey(key)
		if !ok {
			continue
		}
		state, _, open := s.stats.CursorState(ctx, mapName, robotID)
		if !open {
			continue
		}
		s.stats.StartState(ctx, mapName, robotID, state, s.now())
		rolled++
	}
	s.log.Info().Int("rolled", rolled).Msg("daily reset complete")
	return rolled
}
