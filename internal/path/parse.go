package path

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hprobot/fleetd/internal/grid"
)

// Kind discriminates the three path string forms.
type Kind int

const (
	KindNormal Kind = iota
	KindSub
	KindNoPath
)

// Hop is one display or body segment of a parsed path string. Sub is -1
// when the segment carries no sub-position.
type Hop struct {
	Node int
	Sub  int
	Dir  grid.Direction
}

func (h Hop) display() string {
	if h.Sub < 0 {
		return strconv.Itoa(h.Node)
	}
	return fmt.Sprintf("%d-%d", h.Node, h.Sub)
}

// Parsed is the structured form of a path string. String re-emits the
// exact text Parse consumed.
type Parsed struct {
	Kind     Kind
	Final    int            // sub form only, the display before the '~'
	FinalDir grid.Direction // sub and no-path forms
	End      Hop            // destination display, Dir unused
	Start    Hop            // start display, Dir is the first direction
	Body     []Hop
}

// Parse decodes any of the three path string forms.
func Parse(s string) (Parsed, error) {
	switch {
	case strings.Contains(s, "!/"):
		return parseNoPath(s)
	case strings.Contains(s, "~"):
		return parseSub(s)
	default:
		return parseNormal(s)
	}
}

// String re-emits the path string.
func (p Parsed) String() string {
	var b strings.Builder
	switch p.Kind {
	case KindNoPath:
		fmt.Fprintf(&b, "%s!/%s~%s", p.End.display(), p.FinalDir, p.Start.display())
		return b.String()
	case KindSub:
		fmt.Fprintf(&b, "%d/%s~%s!%s,%s/", p.Final, p.FinalDir, p.End.display(), p.Start.display(), p.Start.Dir)
	default:
		fmt.Fprintf(&b, "%s!%s,%s/", p.End.display(), p.Start.display(), p.Start.Dir)
	}
	for _, h := range p.Body {
		fmt.Fprintf(&b, "%s,%s/", h.display(), h.Dir)
	}
	return b.String()
}

func parseNoPath(s string) (Parsed, error) {
	end, rest, _ := strings.Cut(s, "!/")
	dir, start, ok := strings.Cut(rest, "~")
	if !ok {
		return Parsed{}, fmt.Errorf("path: malformed no-path string %q", s)
	}
	endHop, err := parseDisplay(end)
	if err != nil {
		return Parsed{}, err
	}
	startHop, err := parseDisplay(start)
	if err != nil {
		return Parsed{}, err
	}
	d := grid.Direction(dir)
	if !grid.ValidDirection(dir) {
		return Parsed{}, fmt.Errorf("path: bad direction %q in %q", dir, s)
	}
	return Parsed{Kind: KindNoPath, FinalDir: d, End: endHop, Start: startHop}, nil
}

func parseSub(s string) (Parsed, error) {
	head, tail, _ := strings.Cut(s, "~")
	finalStr, dirStr, ok := strings.Cut(head, "/")
	if !ok {
		return Parsed{}, fmt.Errorf("path: malformed sub path head in %q", s)
	}
	final, err := strconv.Atoi(finalStr)
	if err != nil {
		return Parsed{}, fmt.Errorf("path: bad final node in %q: %w", s, err)
	}
	finalDir := grid.Direction(dirStr)
	if !grid.ValidDirection(dirStr) {
		return Parsed{}, fmt.Errorf("path: bad direction %q in %q", dirStr, s)
	}

	p, err := parseNormal(tail)
	if err != nil {
		return Parsed{}, err
	}
	p.Kind = KindSub
	p.Final = final
	p.FinalDir = finalDir
	return p, nil
}

func parseNormal(s string) (Parsed, error) {
	end, rest, ok := strings.Cut(s, "!")
	if !ok {
		return Parsed{}, fmt.Errorf("path: missing '!' in %q", s)
	}
	endHop, err := parseDisplay(end)
	if err != nil {
		return Parsed{}, err
	}

	segs := strings.Split(strings.TrimSuffix(rest, "/"), "/")
	if len(segs) == 0 || segs[0] == "" {
		return Parsed{}, fmt.Errorf("path: empty segment list in %q", s)
	}

	hops := make([]Hop, 0, len(segs))
	for _, seg := range segs {
		disp, dirStr, ok := strings.Cut(seg, ",")
		if !ok {
			return Parsed{}, fmt.Errorf("path: malformed segment %q in %q", seg, s)
		}
		h, err := parseDisplay(disp)
		if err != nil {
			return Parsed{}, err
		}
		h.Dir = grid.Direction(dirStr)
		if !grid.ValidDirection(dirStr) {
			return Parsed{}, fmt.Errorf("path: bad direction %q in %q", dirStr, s)
		}
		hops = append(hops, h)
	}

	return Parsed{Kind: KindNormal, End: endHop, Start: hops[0], Body: hops[1:]}, nil
}

func parseDisplay(s string) (Hop, error) {
	ref, err := grid.ParseNodeRef(s)
	if err != nil {
		return Hop{}, fmt.Errorf("path: bad node display %q: %w", s, err)
	}
	h := Hop{Node: ref.Node, Sub: -1}
	if ref.HasSub {
		h.Sub = ref.Sub
	}
	return h, nil
}
