package main

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/hprobot/fleetd/internal/config"
	"github.com/hprobot/fleetd/internal/grid"
	"github.com/hprobot/fleetd/internal/store"
)

func TestChargingNodeResolver(t *testing.T) {
	maps := []config.MapDef{
		{Name: "smartfarm_a", ChargingNode: "3-2"},
		{Name: "smartfarm_b", ChargingNode: "not a node"},
	}
	resolve := chargingNodeResolver(maps)

	if got := resolve("smartfarm_a"); got.String() != "3-2" {
		t.Fatalf("smartfarm_a home = %q, want 3-2", got)
	}
	// Unparseable and unknown maps both fall back to the default stop.
	if got := resolve("smartfarm_b"); got.String() != "1-0" {
		t.Fatalf("smartfarm_b home = %q, want 1-0", got)
	}
	if got := resolve("smartfarm_z"); got.String() != "1-0" {
		t.Fatalf("unknown map home = %q, want 1-0", got)
	}
}

func TestSeedMapsIsIdempotent(t *testing.T) {
	mem := store.NewMemory()
	repo := grid.NewRepo(mem, zerolog.Nop())
	defer repo.Close()

	maps := []config.MapDef{{
		Name: "smartfarm_x",
		Line: &config.LineDef{Count: 5},
	}}
	seedMaps(repo, maps, zerolog.Nop())
	seedMaps(repo, maps, zerolog.Nop())

	nodes := repo.GetAllNodes(context.Background(), "smartfarm_x")
	if len(nodes) != 5 {
		t.Fatalf("nodes = %d, want 5", len(nodes))
	}
}
