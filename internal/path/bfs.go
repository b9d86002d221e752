// Package path plans routes over the node grid and encodes them into the
// delimited path strings the robots consume.
package path

import "github.com/hprobot/fleetd/internal/grid"

// BFS finds the shortest path from start to end over a node snapshot.
// Neighbours are visited in the fixed l,r,u,d order, which decides
// tie-breaks between equal-length routes. Zero-labelled neighbours are
// skipped. Returns empty slices when either endpoint is unknown or no
// route exists; dirs[i] is the direction taken from nodes[i] to
// nodes[i+1], so len(dirs) == len(path)-1.
func BFS(nodes map[int]grid.Node, start, end int) ([]int, []grid.Direction) {
	if len(nodes) == 0 {
		return nil, nil
	}
	if _, ok := nodes[start]; !ok {
		return nil, nil
	}
	if _, ok := nodes[end]; !ok {
		return nil, nil
	}

	type entry struct {
		node int
		path []int
		dirs []grid.Direction
	}
	queue := []entry{{node: start, path: []int{start}}}
	visited := map[int]bool{start: true}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if cur.node == end {
			return cur.path, cur.dirs
		}

		node := nodes[cur.node]
		for _, dir := range grid.Directions {
			next := node.Neighbour(dir)
			if next == 0 || visited[next] {
				continue
			}
			if _, ok := nodes[next]; !ok {
				continue
			}
			visited[next] = true
			path := append(append([]int{}, cur.path...), next)
			dirs := append(append([]grid.Direction{}, cur.dirs...), dir)
			queue = append(queue, entry{node: next, path: path, dirs: dirs})
		}
	}
	return nil, nil
}
