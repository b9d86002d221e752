package robot

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/hprobot/fleetd/internal/grid"
	"github.com/hprobot/fleetd/internal/store"
)

func newTestService(t *testing.T) (*Service, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	stats := NewDailyStats(DailyStatsConfig{
		Store:     mem,
		BucketTTL: 30 * 24 * time.Hour,
		Logger:    zerolog.Nop(),
	})
	svc := NewService(ServiceConfig{
		Store:              mem,
		Stats:              stats,
		ChargingNode:       func(string) grid.NodeRef { return grid.SubRef(1, 0) },
		NodeCountGlitchMax: 10,
		ArriveTTL:          180 * time.Second,
		Logger:             zerolog.Nop(),
	})
	return svc, mem
}

func ref(id int) *grid.NodeRef {
	r := grid.Base(id)
	return &r
}

func TestUpdatePositionDerivesStatus(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		current grid.NodeRef
		final   *grid.NodeRef
		want    Status
	}{
		{"working away from home", grid.Base(5), ref(10), StatusWorking},
		{"returning home", grid.Base(5), func() *grid.NodeRef { r := grid.SubRef(1, 0); return &r }(), StatusReturn},
		{"waiting at home", grid.SubRef(1, 0), nil, StatusWaiting},
		{"bare home node counts as home", grid.Base(1), nil, StatusWaiting},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			robotID := "r" + string(rune('a'+i))
			if !svc.UpdatePosition(ctx, "smartfarm_x", robotID, tt.current, tt.final) {
				t.Fatal("UpdatePosition failed")
			}
			r, ok := svc.Get(ctx, "smartfarm_x", robotID)
			if !ok || r.Status != tt.want {
				t.Fatalf("status = %q, want %q", r.Status, tt.want)
			}
		})
	}
}

func TestUpdatePositionChargingAtHome(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	svc.UpdateBattery(ctx, "smartfarm_x", "r1", 80, 1)
	svc.UpdatePosition(ctx, "smartfarm_x", "r1", grid.SubRef(1, 0), nil)

	r, _ := svc.Get(ctx, "smartfarm_x", "r1")
	if r.Status != StatusCharging {
		t.Fatalf("status = %q, want CHARGING", r.Status)
	}
}

func TestUpdateBatteryRecomputesAtHome(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	svc.UpdatePosition(ctx, "smartfarm_x", "r1", grid.SubRef(1, 0), nil)
	if r, _ := svc.Get(ctx, "smartfarm_x", "r1"); r.Status != StatusWaiting {
		t.Fatalf("status = %q, want WAITING", r.Status)
	}

	svc.UpdateBattery(ctx, "smartfarm_x", "r1", 60, 1)
	if r, _ := svc.Get(ctx, "smartfarm_x", "r1"); r.Status != StatusCharging {
		t.Fatalf("status = %q, want CHARGING after plugging in", r.Status)
	}

	svc.UpdateBattery(ctx, "smartfarm_x", "r1", 100, 0)
	if r, _ := svc.Get(ctx, "smartfarm_x", "r1"); r.Status != StatusWaiting {
		t.Fatalf("status = %q, want WAITING after unplugging", r.Status)
	}
}

func TestUpdateBatteryAwayFromHomeKeepsStatus(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	svc.UpdatePosition(ctx, "smartfarm_x", "r1", grid.Base(5), ref(10))
	svc.UpdateBattery(ctx, "smartfarm_x", "r1", 47, 0)

	r, _ := svc.Get(ctx, "smartfarm_x", "r1")
	if r.Status != StatusWorking {
		t.Fatalf("status = %q, want WORKING", r.Status)
	}
	if r.BatteryLevel != 47 {
		t.Fatalf("battery = %d, want 47", r.BatteryLevel)
	}
}

func TestNodeCountDeltas(t *testing.T) {
	tests := []struct {
		name string
		from string
		to   grid.NodeRef
		want int
	}{
		{"same base sub distance", "5-1", grid.SubRef(5, 4), 3},
		{"same base backwards", "5-3", grid.SubRef(5, 1), 2},
		{"centre to centre full segment", "5", grid.Base(4), 5},
		{"centre to centre with subs", "5-0", grid.SubRef(4, 0), 5},
		{"cross node with sub", "5-4", grid.SubRef(6, 0), 1},
		{"no movement", "5-2", grid.SubRef(5, 2), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService(t)
			ctx := context.Background()

			from, err := grid.ParseNodeRef(tt.from)
			if err != nil {
				t.Fatal(err)
			}
			svc.UpdatePosition(ctx, "smartfarm_x", "r1", from, nil)
			svc.UpdatePosition(ctx, "smartfarm_x", "r1", tt.to, nil)

			r, _ := svc.Get(ctx, "smartfarm_x", "r1")
			if r.NodeCount != tt.want {
				t.Fatalf("node_count = %d, want %d", r.NodeCount, tt.want)
			}
		})
	}
}

func TestNodeCountFirstPositionIsZero(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	svc.UpdatePosition(ctx, "smartfarm_x", "r1", grid.SubRef(5, 3), nil)
	r, _ := svc.Get(ctx, "smartfarm_x", "r1")
	if r.NodeCount != 0 {
		t.Fatalf("node_count = %d, want 0 on first position", r.NodeCount)
	}
}

func TestNodeCountGlitchDiscarded(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	// A glitchMax of 10 cannot be exceeded by the delta rules above,
	// so pin a lower threshold and drive a full-segment hop past it.
	svc.glitchMax = 3

	svc.UpdatePosition(ctx, "smartfarm_x", "r1", grid.Base(5), nil)
	svc.UpdatePosition(ctx, "smartfarm_x", "r1", grid.Base(4), nil)

	r, _ := svc.Get(ctx, "smartfarm_x", "r1")
	if r.NodeCount != 0 {
		t.Fatalf("node_count = %d, want 0 after glitch discard", r.NodeCount)
	}
}

func TestSetStatusAndArriveMarker(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	node := grid.Base(8)
	svc.SetStatus(ctx, "smartfarm_x", "r1", StatusDone, &node)
	svc.MarkArrived(ctx, "smartfarm_x", "r1", node)

	r, _ := svc.Get(ctx, "smartfarm_x", "r1")
	if r.Status != StatusDone || r.CurrentNode != "8" {
		t.Fatalf("got status %q at %q", r.Status, r.CurrentNode)
	}
	if marker, ok := svc.Arrived(ctx, "smartfarm_x", "r1"); !ok || marker != "8" {
		t.Fatalf("arrive marker = (%q, %v)", marker, ok)
	}
}

func TestSnapshotPublishedOnUpdate(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()

	var got []string
	mem.Subscribe(ctx, "smartfarm_x/robot/r1/state", func(_, payload string) {
		got = append(got, payload)
	})

	svc.UpdatePosition(ctx, "smartfarm_x", "r1", grid.Base(5), ref(10))
	if len(got) != 1 {
		t.Fatalf("snapshots published = %d, want 1", len(got))
	}

	var snap Robot
	if err := json.Unmarshal([]byte(got[0]), &snap); err != nil {
		t.Fatal(err)
	}
	if snap.CurrentNode != "5" || snap.FinalNode != "10" || snap.Status != StatusWorking {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestStatsRollOnlyOnBucketChange(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }
	svc.stats.now = func() time.Time { return base }

	svc.UpdatePosition(ctx, "smartfarm_x", "r1", grid.Base(5), ref(10))
	_, startedAt, _ := svc.stats.CursorState(ctx, "smartfarm_x", "r1")

	// Another WORKING update must not reset the open interval.
	svc.now = func() time.Time { return base.Add(time.Minute) }
	svc.UpdatePosition(ctx, "smartfarm_x", "r1", grid.Base(6), nil)

	state, after, _ := svc.stats.CursorState(ctx, "smartfarm_x", "r1")
	if state != OpWorking || !after.Equal(startedAt) {
		t.Fatalf("cursor moved on no-op status: (%v, %v)", state, after)
	}
}

func TestAllAndDelete(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	svc.UpdatePosition(ctx, "smartfarm_x", "r1", grid.Base(5), nil)
	svc.UpdatePosition(ctx, "smartfarm_x", "r2", grid.Base(7), nil)
	svc.UpdatePosition(ctx, "smartfarm_y", "r3", grid.Base(2), nil)

	all := svc.All(ctx, "smartfarm_x")
	if len(all) != 2 {
		t.Fatalf("robots in map = %d, want 2", len(all))
	}
	if all["r1"].CurrentNode != "5" || all["r2"].CurrentNode != "7" {
		t.Fatalf("unexpected records: %+v", all)
	}

	svc.Delete(ctx, "smartfarm_x", "r1")
	if _, ok := svc.Get(ctx, "smartfarm_x", "r1"); ok {
		t.Fatal("r1 still present after delete")
	}
	if len(svc.All(ctx, "smartfarm_x")) != 1 {
		t.Fatal("expected one robot after delete")
	}
}
