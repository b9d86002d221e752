package grid

import (
	"context"

	"github.com/hprobot/fleetd/internal/config"
)

// SeedMap materialises a map definition into the node table. Idempotent:
// a map that already has nodes is left untouched so occupancy survives
// process restarts.
func (r *Repo) SeedMap(ctx context.Context, def config.MapDef) (created int, skipped bool) {
	if r.HasNodes(ctx, def.Name) {
		return 0, true
	}

	var nodes []Node
	switch {
	case def.Line != nil:
		nodes = lineNodes(def.Line.Count, def.Line.SwapEnds)
	default:
		nodes = make([]Node, 0, len(def.Nodes))
		for _, n := range def.Nodes {
			nodes = append(nodes, Node{ID: n.ID, L: n.L, R: n.R, U: n.U, D: n.D})
		}
	}

	for _, n := range nodes {
		if r.PutNode(ctx, def.Name, n) {
			created++
		}
	}
	return created, false
}

// lineNodes builds a 1..count line graph. Plain layout chains the ids in
// order: each node's l points one id up, r one id down. With swapEnds
// the first two nodes trade places, so travel order reads
// [count] ← ... ← [3] ← [1] ← [2] and node 2 is the physical end of the
// rail. The resulting asymmetric ends are deliberate.
func lineNodes(count int, swapEnds bool) []Node {
	nodes := make([]Node, 0, count)
	for id := 1; id <= count; id++ {
		var n Node
		switch {
		case swapEnds && id == 1:
			n = Node{ID: 1, L: 3, R: 2}
		case swapEnds && id == 2:
			n = Node{ID: 2, L: 1, R: 0}
		case swapEnds && id == 3:
			n = Node{ID: 3, L: 4, R: 1}
		default:
			next := id + 1
			if id == count {
				next = 0
			}
			n = Node{ID: id, L: next, R: id - 1}
		}
		nodes = append(nodes, n)
	}
	return nodes
}
