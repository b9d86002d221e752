package grid

import "testing"

func TestParseNodeRef(t *testing.T) {
	tests := []struct {
		in     string
		want   NodeRef
		wantOK bool
	}{
		{"7", Base(7), true},
		{"7-2", SubRef(7, 2), true},
		{"7-0", SubRef(7, 0), true},
		{" 7-4 ", SubRef(7, 4), true},
		{"7-5", NodeRef{}, false},
		{"7-", NodeRef{}, false},
		{"-2", NodeRef{}, false},
		{"abc", NodeRef{}, false},
		{"", NodeRef{}, false},
	}
	for _, tt := range tests {
		got, err := ParseNodeRef(tt.in)
		if (err == nil) != tt.wantOK {
			t.Errorf("ParseNodeRef(%q) err = %v", tt.in, err)
			continue
		}
		if err == nil && got != tt.want {
			t.Errorf("ParseNodeRef(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestNodeRefString(t *testing.T) {
	if got := Base(7).String(); got != "7" {
		t.Errorf("Base(7) = %q", got)
	}
	if got := SubRef(7, 0).String(); got != "7-0" {
		t.Errorf("SubRef(7,0) = %q", got)
	}
}

func TestSamePlace(t *testing.T) {
	if !Base(7).SamePlace(SubRef(7, 0)) {
		t.Error("7 and 7-0 should be the same place")
	}
	if Base(7).SamePlace(SubRef(7, 1)) {
		t.Error("7 and 7-1 are different places")
	}
	if Base(7).SamePlace(Base(8)) {
		t.Error("7 and 8 are different places")
	}
}

func TestFirstNeighbourOrder(t *testing.T) {
	n := Node{R: 2, U: 3}
	dir, id, ok := n.FirstNeighbour()
	if !ok || dir != DirRight || id != 2 {
		t.Fatalf("got (%v, %d, %v), want (r, 2, true)", dir, id, ok)
	}
	if _, _, ok := (Node{}).FirstNeighbour(); ok {
		t.Fatal("isolated node has no neighbour")
	}
}
