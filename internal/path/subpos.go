package path

import "github.com/hprobot/fleetd/internal/grid"

// dirAt returns the outgoing direction for the i-th node of a route.
// The last node has no outgoing edge and reuses the arrival direction,
// so every emitted step carries a direction.
func dirAt(dirs []grid.Direction, i int) grid.Direction {
	if i < len(dirs) {
		return dirs[i]
	}
	return dirs[len(dirs)-1]
}

// ExpandForward turns a node route into its fine-grained sub-position
// sequence. The first node contributes startSub through 4, intermediate
// nodes the full 0 through 4, and the last node 0 through endSub.
// Requires len(route) >= 2.
func ExpandForward(route []int, dirs []grid.Direction, startSub, endSub int) []Step {
	if len(route) < 2 {
		return nil
	}
	var steps []Step
	for s := startSub; s <= grid.MaxSubPosition; s++ {
		steps = append(steps, Step{Node: route[0], Sub: s, Dir: dirAt(dirs, 0)})
	}
	for i := 1; i < len(route)-1; i++ {
		for s := 0; s <= grid.MaxSubPosition; s++ {
			steps = append(steps, Step{Node: route[i], Sub: s, Dir: dirAt(dirs, i)})
		}
	}
	last := len(route) - 1
	for s := 0; s <= endSub; s++ {
		steps = append(steps, Step{Node: route[last], Sub: s, Dir: dirAt(dirs, last)})
	}
	return steps
}

// ExpandReturn turns a node route into the compressed return-home
// sequence. The current node walks its sub-positions downward from
// startSub-1 to 0 (or contributes a single 0 step when already at 0);
// every later node contributes only its centre stop, so quarter stops
// are skipped on the way home. Requires len(route) >= 2.
func ExpandReturn(route []int, dirs []grid.Direction, startSub int) []Step {
	if len(route) < 2 {
		return nil
	}
	var steps []Step
	if startSub > 0 {
		for s := startSub - 1; s >= 0; s-- {
			steps = append(steps, Step{Node: route[0], Sub: s, Dir: dirAt(dirs, 0)})
		}
	} else {
		steps = append(steps, Step{Node: route[0], Sub: 0, Dir: dirAt(dirs, 0)})
	}
	for i := 1; i < len(route); i++ {
		steps = append(steps, Step{Node: route[i], Sub: 0, Dir: dirAt(dirs, i)})
	}
	return steps
}
