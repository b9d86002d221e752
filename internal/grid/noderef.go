// Package grid models the per-map node table: 4-neighbour adjacency and
// node occupancy with compare-and-set semantics.
package grid

import (
	"fmt"
	"strconv"
	"strings"
)

// MaxSubPosition is the last quarter stop on a node's outgoing edge.
// Sub-position 0 is the node centre; 1..4 are the quarter stops.
const MaxSubPosition = 4

// NodeRef addresses either a bare node ("7") or a sub-position on its
// outgoing edge ("7-2"). Convert to and from strings at ingress/egress
// only; everything else works on the parsed form.
type NodeRef struct {
	Node   int
	Sub    int
	HasSub bool
}

// Base returns a bare reference to node id.
func Base(id int) NodeRef { return NodeRef{Node: id} }

// SubRef returns a sub-position reference.
func SubRef(id, sub int) NodeRef { return NodeRef{Node: id, Sub: sub, HasSub: true} }

// ParseNodeRef parses "7" or "7-2" forms.
func ParseNodeRef(s string) (NodeRef, error) {
	s = strings.TrimSpace(s)
	base, subStr, found := strings.Cut(s, "-")
	id, err := strconv.Atoi(base)
	if err != nil {
		return NodeRef{}, fmt.Errorf("node ref %q: %w", s, err)
	}
	if !found {
		return Base(id), nil
	}
	sub, err := strconv.Atoi(subStr)
	if err != nil {
		return NodeRef{}, fmt.Errorf("node ref %q: %w", s, err)
	}
	if sub < 0 || sub > MaxSubPosition {
		return NodeRef{}, fmt.Errorf("node ref %q: sub-position out of range", s)
	}
	return SubRef(id, sub), nil
}

// String renders the wire form: "7" or "7-2".
func (r NodeRef) String() string {
	if !r.HasSub {
		return strconv.Itoa(r.Node)
	}
	return strconv.Itoa(r.Node) + "-" + strconv.Itoa(r.Sub)
}

// SubOrZero returns the sub-position, treating a bare reference as the
// node centre.
func (r NodeRef) SubOrZero() int {
	if !r.HasSub {
		return 0
	}
	return r.Sub
}

// SamePlace reports whether two references address the same physical
// stop, treating "7" and "7-0" as equal.
func (r NodeRef) SamePlace(o NodeRef) bool {
	return r.Node == o.Node && r.SubOrZero() == o.SubOrZero()
}
