package path

import "github.com/hprobot/fleetd/internal/grid"

// CutPath truncates a route at the first node (scanning from index 1)
// that either no longer exists or is occupied by another robot. The
// start node is never rejected, even if it shows someone else's
// occupation: a robot may always leave the cell it is standing on.
// A returned path of length <= 1 means "cannot move".
//
// Pure over its snapshots: applying it twice yields the same result.
func CutPath(
	nodes map[int]grid.Node,
	occupied map[int]string,
	path []int,
	dirs []grid.Direction,
	robotID string,
) ([]int, []grid.Direction) {
	if len(path) == 0 {
		return nil, nil
	}

	cut := len(path)
	for i := 1; i < len(path); i++ {
		if _, ok := nodes[path[i]]; !ok {
			cut = i
			break
		}
		if holder, ok := occupied[path[i]]; ok && holder != robotID {
			cut = i
			break
		}
	}

	dirCut := cut
	if dirCut > len(dirs) {
		dirCut = len(dirs)
	}
	return path[:cut], dirs[:dirCut]
}
