package path

import (
	"fmt"
	"strings"

	"github.com/hprobot/fleetd/internal/grid"
)

// FormatPath encodes a node route as
//
//	{end}!{start},{dirs[0]}/{path[1]},{dirs[1]}/.../{path[n-2]},{dirs[n-2]}/
//
// The final node is intentionally not emitted: the device infers arrival
// from the "{end}!" prefix. The trailing slash is part of the format.
// Requires len(path) >= 2.
func FormatPath(end, start int, path []int, dirs []grid.Direction) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d!%d,%s/", end, start, dirs[0])
	for i := 1; i < len(path)-1; i++ {
		fmt.Fprintf(&b, "%d,%s/", path[i], dirs[i])
	}
	return b.String()
}

// NoPath is the sentinel emitted when no route exists or the route was
// blocked down to the start node: "face down, you are at start".
func NoPath(end, start string) string {
	return end + "!/d~" + start
}

// FormatNodeStep encodes a single node-to-node hop without
// sub-position displays: "{next}/{d}~{next}!{cur},{d}/".
func FormatNodeStep(next, cur int, dir grid.Direction) string {
	return fmt.Sprintf("%d/%s~%d!%d,%s/", next, dir, next, cur, dir)
}

// Step is one fine-grained stop in a sub-position sequence.
type Step struct {
	Node int
	Sub  int
	Dir  grid.Direction
}

// FormatSteps encodes a sub-position sequence as
//
//	{final}/{lastDir}~{end display}!{start display},{firstDir}/{n}-{s},{d}/.../
//
// The first step fills the start-display slot and the last step the
// end-display slot; only interior steps appear in the body, so the
// destination is never emitted there. Requires len(steps) >= 2.
func FormatSteps(steps []Step) string {
	head := steps[0]
	tail := steps[len(steps)-1]

	var b strings.Builder
	fmt.Fprintf(&b, "%d/%s~%d-%d!%d-%d,%s/",
		tail.Node, tail.Dir, tail.Node, tail.Sub, head.Node, head.Sub, head.Dir)
	for _, st := range steps[1 : len(steps)-1] {
		fmt.Fprintf(&b, "%d-%d,%s/", st.Node, st.Sub, st.Dir)
	}
	return b.String()
}
