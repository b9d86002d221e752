package grid

// Direction is one of the four outgoing edges of a node.
type Direction string

const (
	DirLeft  Direction = "l"
	DirRight Direction = "r"
	DirUp    Direction = "u"
	DirDown  Direction = "d"
)

// Directions is the fixed neighbour visit order. BFS tie-breaks depend
// on it, so it must not change.
var Directions = [4]Direction{DirLeft, DirRight, DirUp, DirDown}

// ValidDirection reports whether s is one of l, r, u, d.
func ValidDirection(s string) bool {
	switch Direction(s) {
	case DirLeft, DirRight, DirUp, DirDown:
		return true
	}
	return false
}

// Node is one grid cell. A neighbour id of 0 means no neighbour in that
// direction. Adjacency is not required to be symmetric.
type Node struct {
	ID int  `json:"-"`
	L  int  `json:"l"`
	R  int  `json:"r"`
	U  int  `json:"u"`
	D  int  `json:"d"`
}

// Neighbour returns the node id in the given direction (0 if none).
func (n Node) Neighbour(dir Direction) int {
	switch dir {
	case DirLeft:
		return n.L
	case DirRight:
		return n.R
	case DirUp:
		return n.U
	case DirDown:
		return n.D
	}
	return 0
}

// FirstNeighbour returns the first non-zero neighbour in l,r,u,d order.
func (n Node) FirstNeighbour() (Direction, int, bool) {
	for _, dir := range Directions {
		if id := n.Neighbour(dir); id != 0 {
			return dir, id, true
		}
	}
	return "", 0, false
}
