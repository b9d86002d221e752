package scheduler

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/hprobot/fleetd/internal/robot"
	"github.com/hprobot/fleetd/internal/store"
)

func at(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestResetRollsOpenCursors(t *testing.T) {
	mem := store.NewMemory()
	stats := robot.NewDailyStats(robot.DailyStatsConfig{
		Store:     mem,
		BucketTTL: 30 * 24 * time.Hour,
		Logger:    zerolog.Nop(),
	})
	ctx := context.Background()

	stats.StartState(ctx, "smartfarm_x", "r1", robot.OpWorking, at("2026-08-23T22:00:00Z"))
	stats.StartState(ctx, "smartfarm_x", "r2", robot.OpCharging, at("2026-08-23T23:00:00Z"))

	reset := NewDailyReset(DailyResetConfig{
		Store:  mem,
		Stats:  stats,
		Logger: zerolog.Nop(),
	})
	midnight := at("2026-08-24T00:00:00Z")
	reset.now = func() time.Time { return midnight }

	if rolled := reset.ResetNow(); rolled != 2 {
		t.Fatalf("rolled = %d, want 2", rolled)
	}

	// Yesterday's buckets hold the closed intervals.
	y1 := stats.Get(ctx, "smartfarm_x", "r1", at("2026-08-23T12:00:00Z"))
	if got := y1[robot.OpWorking]; math.Abs(got-7200) > 0.001 {
		t.Errorf("r1 working yesterday = %v, want 7200", got)
	}
	y2 := stats.Get(ctx, "smartfarm_x", "r2", at("2026-08-23T12:00:00Z"))
	if got := y2[robot.OpCharging]; math.Abs(got-3600) > 0.001 {
		t.Errorf("r2 charging yesterday = %v, want 3600", got)
	}

	// Cursors reopened at midnight with the same state.
	state, startedAt, ok := stats.CursorState(ctx, "smartfarm_x", "r1")
	if !ok || state != robot.OpWorking || !startedAt.Equal(midnight) {
		t.Fatalf("r1 cursor = (%v, %v, %v)", state, startedAt, ok)
	}
}

func TestResetWithNoCursorsIsNoOp(t *testing.T) {
	mem := store.NewMemory()
	stats := robot.NewDailyStats(robot.DailyStatsConfig{
		Store:     mem,
		BucketTTL: 30 * 24 * time.Hour,
		Logger:    zerolog.Nop(),
	})
	reset := NewDailyReset(DailyResetConfig{Store: mem, Stats: stats, Logger: zerolog.Nop()})
	if rolled := reset.ResetNow(); rolled != 0 {
		t.Fatalf("rolled = %d, want 0", rolled)
	}
}

func TestInvalidScheduleDoesNotPanic(t *testing.T) {
	mem := store.NewMemory()
	stats := robot.NewDailyStats(robot.DailyStatsConfig{
		Store:     mem,
		BucketTTL: 30 * 24 * time.Hour,
		Logger:    zerolog.Nop(),
	})
	reset := NewDailyReset(DailyResetConfig{
		Store:    mem,
		Stats:    stats,
		Schedule: "not a schedule",
		Logger:   zerolog.Nop(),
	})
	reset.Start()
	reset.Stop()
}
