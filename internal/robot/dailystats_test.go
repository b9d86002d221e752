package robot

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/hprobot/fleetd/internal/store"
)

func newTestStats(t *testing.T) *DailyStats {
	t.Helper()
	return NewDailyStats(DailyStatsConfig{
		Store:     store.NewMemory(),
		BucketTTL: 30 * 24 * time.Hour,
		Logger:    zerolog.Nop(),
	})
}

func at(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func approx(a, b float64) bool { return math.Abs(a-b) < 0.001 }

func TestStartStateAccumulates(t *testing.T) {
	d := newTestStats(t)
	ctx := context.Background()

	d.StartState(ctx, "m1", "r1", OpWorking, at("2026-08-24T10:00:00Z"))
	d.StartState(ctx, "m1", "r1", OpCharging, at("2026-08-24T10:10:00Z"))
	d.StartState(ctx, "m1", "r1", OpIdle, at("2026-08-24T10:15:00Z"))

	d.now = func() time.Time { return at("2026-08-24T10:15:00Z") }
	stats := d.Get(ctx, "m1", "r1", at("2026-08-24T00:00:00Z"))

	if !approx(stats[OpWorking], 600) {
		t.Errorf("working = %v, want 600", stats[OpWorking])
	}
	if !approx(stats[OpCharging], 300) {
		t.Errorf("charging = %v, want 300", stats[OpCharging])
	}
}

func TestGetIncludesOpenInterval(t *testing.T) {
	d := newTestStats(t)
	ctx := context.Background()

	d.StartState(ctx, "m1", "r1", OpWorking, at("2026-08-24T10:00:00Z"))
	d.now = func() time.Time { return at("2026-08-24T10:05:00Z") }

	stats := d.Get(ctx, "m1", "r1", at("2026-08-24T12:00:00Z"))
	if !approx(stats[OpWorking], 300) {
		t.Errorf("working = %v, want 300 from the open interval", stats[OpWorking])
	}

	// Yesterday's bucket must not see today's open interval.
	stats = d.Get(ctx, "m1", "r1", at("2026-08-23T12:00:00Z"))
	if !approx(stats[OpWorking], 0) {
		t.Errorf("working yesterday = %v, want 0", stats[OpWorking])
	}
}

func TestMidnightSplit(t *testing.T) {
	d := newTestStats(t)
	ctx := context.Background()

	// 23:30 to 01:30 next day: one hour on each side of midnight plus
	// the half hours.
	d.StartState(ctx, "m1", "r1", OpWorking, at("2026-08-23T23:30:00Z"))
	d.StartState(ctx, "m1", "r1", OpIdle, at("2026-08-24T01:30:00Z"))

	d.now = func() time.Time { return at("2026-08-24T01:30:00Z") }

	day1 := d.Get(ctx, "m1", "r1", at("2026-08-23T00:00:00Z"))
	if !approx(day1[OpWorking], 1800) {
		t.Errorf("day1 working = %v, want 1800", day1[OpWorking])
	}
	day2 := d.Get(ctx, "m1", "r1", at("2026-08-24T00:00:00Z"))
	if !approx(day2[OpWorking], 5400) {
		t.Errorf("day2 working = %v, want 5400", day2[OpWorking])
	}
}

func TestMultiDaySplit(t *testing.T) {
	d := newTestStats(t)
	ctx := context.Background()

	d.StartState(ctx, "m1", "r1", OpCharging, at("2026-08-21T12:00:00Z"))
	d.StartState(ctx, "m1", "r1", OpIdle, at("2026-08-23T12:00:00Z"))

	d.now = func() time.Time { return at("2026-08-23T12:00:00Z") }

	wants := map[string]float64{
		"2026-08-21T00:00:00Z": 12 * 3600,
		"2026-08-22T00:00:00Z": 24 * 3600,
		"2026-08-23T00:00:00Z": 12 * 3600,
	}
	for day, want := range wants {
		got := d.Get(ctx, "m1", "r1", at(day))
		if !approx(got[OpCharging], want) {
			t.Errorf("charging on %s = %v, want %v", day, got[OpCharging], want)
		}
	}
}

func TestCursorState(t *testing.T) {
	d := newTestStats(t)
	ctx := context.Background()

	if _, _, ok := d.CursorState(ctx, "m1", "r1"); ok {
		t.Fatal("expected no cursor before first StartState")
	}

	start := at("2026-08-24T08:00:00Z")
	d.StartState(ctx, "m1", "r1", OpWorking, start)

	state, startedAt, ok := d.CursorState(ctx, "m1", "r1")
	if !ok || state != OpWorking || !startedAt.Equal(start) {
		t.Fatalf("cursor = (%v, %v, %v), want (working, %v, true)", state, startedAt, ok, start)
	}
}

func TestFormatted(t *testing.T) {
	d := newTestStats(t)
	ctx := context.Background()

	d.StartState(ctx, "m1", "r1", OpWorking, at("2026-08-24T10:00:00Z"))
	d.StartState(ctx, "m1", "r1", OpCharging, at("2026-08-24T10:45:00Z"))
	d.StartState(ctx, "m1", "r1", OpIdle, at("2026-08-24T11:00:00Z"))
	d.now = func() time.Time { return at("2026-08-24T11:00:00Z") }

	out := d.Formatted(ctx, "m1", "r1", at("2026-08-24T11:00:00Z"))
	if out.Date != "2026-08-24" {
		t.Errorf("date = %q", out.Date)
	}
	if !approx(out.TotalSeconds, 3600) {
		t.Errorf("total = %v, want 3600", out.TotalSeconds)
	}
	if got := out.States[OpWorking].Percentage; !approx(got, 75) {
		t.Errorf("working pct = %v, want 75", got)
	}
	if got := out.States[OpCharging].Minutes; !approx(got, 15) {
		t.Errorf("charging minutes = %v, want 15", got)
	}
}

func TestParseCursorKey(t *testing.T) {
	mapName, robotID, ok := ParseCursorKey("robot:current_state:smartfarm_x:r1")
	if !ok || mapName != "smartfarm_x" || robotID != "r1" {
		t.Fatalf("got (%q, %q, %v)", mapName, robotID, ok)
	}
	if _, _, ok := ParseCursorKey("robot:state:smartfarm_x:r1"); ok {
		t.Fatal("expected rejection of non-cursor key")
	}
}
