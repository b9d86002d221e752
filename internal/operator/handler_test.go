package operator

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/hprobot/fleetd/internal/config"
	"github.com/hprobot/fleetd/internal/grid"
	"github.com/hprobot/fleetd/internal/robot"
	"github.com/hprobot/fleetd/internal/store"
	"github.com/hprobot/fleetd/internal/workqueue"
)

type pubMsg struct {
	topic   string
	payload string
}

type fakePub struct {
	mu   sync.Mutex
	msgs []pubMsg
}

func (f *fakePub) Publish(topic string, payload []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, pubMsg{topic: topic, payload: string(payload)})
	return true
}

func (f *fakePub) all() []pubMsg {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]pubMsg(nil), f.msgs...)
}

type fixture struct {
	h      *Handler
	pub    *fakePub
	mem    *store.Memory
	robots *robot.Service
	queue  *workqueue.Pool
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := store.NewMemory()
	repo := grid.NewRepo(mem, zerolog.Nop())
	t.Cleanup(repo.Close)

	repo.SeedMap(context.Background(), config.MapDef{
		Name: "smartfarm_x",
		Line: &config.LineDef{Count: 10},
	})

	stats := robot.NewDailyStats(robot.DailyStatsConfig{
		Store:     mem,
		BucketTTL: 30 * 24 * time.Hour,
		Logger:    zerolog.Nop(),
	})
	home := func(string) grid.NodeRef { return grid.SubRef(1, 0) }
	robots := robot.NewService(robot.ServiceConfig{
		Store:              mem,
		Stats:              stats,
		ChargingNode:       home,
		NodeCountGlitchMax: 10,
		ArriveTTL:          180 * time.Second,
		Logger:             zerolog.Nop(),
	})

	pub := &fakePub{}
	queue := workqueue.New(64, zerolog.Nop())
	h := New(Config{
		Robots:       robots,
		Grid:         repo,
		Pub:          pub,
		Queue:        queue,
		MapPrefix:    "smartfarm_",
		ChargingNode: home,
		Logger:       zerolog.Nop(),
	})
	return &fixture{h: h, pub: pub, mem: mem, robots: robots, queue: queue}
}

func (f *fixture) deliver(payload string) {
	f.h.Handle(Channel, payload)
	f.queue.Close()
}

func (f *fixture) lastButton(t *testing.T) (string, string) {
	t.Helper()
	msgs := f.pub.all()
	if len(msgs) == 0 {
		t.Fatal("no button publish")
	}
	last := msgs[len(msgs)-1]
	var btn buttonPayload
	if err := json.Unmarshal([]byte(last.payload), &btn); err != nil {
		t.Fatal(err)
	}
	return last.topic, btn.FinalNode
}

func placeRobot(t *testing.T, f *fixture, node string) {
	t.Helper()
	ref, err := grid.ParseNodeRef(node)
	if err != nil {
		t.Fatal(err)
	}
	f.robots.UpdatePosition(context.Background(), "smartfarm_x", "r1", ref, nil)
}

func TestStartPushesLeftNeighbour(t *testing.T) {
	f := newFixture(t)
	placeRobot(t, f, "5")

	f.deliver(`{"type":"start","mapName":"smartfarm_x","robotId":"r1"}`)

	topic, final := f.lastButton(t)
	if topic != "smartfarm_x/r1/server/button" || final != "6" {
		t.Fatalf("got (%q, %q)", topic, final)
	}
}

func TestStartWithoutNeighbourIgnored(t *testing.T) {
	f := newFixture(t)
	placeRobot(t, f, "10") // end of the line, no l edge

	f.deliver(`{"type":"start","mapName":"smartfarm_x","robotId":"r1"}`)
	if len(f.pub.all()) != 0 {
		t.Fatal("expected no publish")
	}
}

func TestNextSteps(t *testing.T) {
	tests := []struct {
		name string
		at   string
		want string
	}{
		{"from centre", "5", "5-1"},
		{"from centre with sub", "5-0", "5-1"},
		{"mid edge", "5-2", "5-3"},
		{"last quarter crosses", "5-4", "6-0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			placeRobot(t, f, tt.at)

			f.deliver(`{"type":"next","farmName":"smartfarm_x","robotId":"r1"}`)

			_, final := f.lastButton(t)
			if final != tt.want {
				t.Fatalf("final_node = %q, want %q", final, tt.want)
			}
		})
	}
}

func TestNextAtLineEndIgnored(t *testing.T) {
	f := newFixture(t)
	placeRobot(t, f, "10") // sub 0 and no l edge to enter

	f.deliver(`{"type":"next","mapName":"smartfarm_x","robotId":"r1"}`)
	if len(f.pub.all()) != 0 {
		t.Fatal("expected no publish")
	}
}

func TestReturnPushesHomeAndFlipsStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	placeRobot(t, f, "5-3")

	f.deliver(`{"type":"return","mapName":"smartfarm_x","robotId":"r1"}`)

	topic, final := f.lastButton(t)
	if topic != "smartfarm_x/r1/server/button" || final != "1-0" {
		t.Fatalf("got (%q, %q)", topic, final)
	}
	if r, _ := f.robots.Get(ctx, "smartfarm_x", "r1"); r.Status != robot.StatusReturn {
		t.Fatalf("status = %q, want RETURN", r.Status)
	}
}

func TestReturnWithoutPositionStillPushes(t *testing.T) {
	f := newFixture(t)

	f.deliver(`{"type":"return","mapName":"smartfarm_x","robotId":"r1"}`)
	_, final := f.lastButton(t)
	if final != "1-0" {
		t.Fatalf("final_node = %q, want 1-0", final)
	}
}

func TestAdmissionAndValidation(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"foreign map", `{"type":"start","mapName":"warehouse_x","robotId":"r1"}`},
		{"missing robot", `{"type":"start","mapName":"smartfarm_x"}`},
		{"missing type", `{"mapName":"smartfarm_x","robotId":"r1"}`},
		{"not json", `garbage`},
		{"unknown type", `{"type":"dance","mapName":"smartfarm_x","robotId":"r1"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			placeRobot(t, f, "5")
			f.deliver(tt.payload)
			if len(f.pub.all()) != 0 {
				t.Fatalf("expected no publish, got %v", f.pub.all())
			}
		})
	}
}

func TestAttachLegacyChannel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	placeRobot(t, f, "5")

	cancel, ok := f.h.Attach(ctx, f.mem, true)
	if !ok {
		t.Fatal("attach failed")
	}
	defer cancel()

	f.mem.Publish(ctx, LegacyChannel, `{"type":"start","mapName":"smartfarm_x","robotId":"r1"}`)
	f.queue.Close()

	if _, final := f.lastButton(t); final != "6" {
		t.Fatalf("final = %q, want 6", final)
	}
}
