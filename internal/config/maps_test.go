package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeMapsFile(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "maps.yaml")
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadMapsDefaults(t *testing.T) {
	defs, err := LoadMaps("", "smartfarm_")
	if err != nil {
		t.Fatal(err)
	}
	if len(defs) != 2 {
		t.Fatalf("maps = %d, want 2", len(defs))
	}
	for _, d := range defs {
		if d.ChargingNode != "1-0" {
			t.Errorf("map %s charging node = %q", d.Name, d.ChargingNode)
		}
	}
}

func TestLoadMapsFromFile(t *testing.T) {
	p := writeMapsFile(t, `
maps:
  - name: smartfarm_alpha
    charging_node: "2-0"
    line:
      count: 30
      swap_ends: true
  - name: smartfarm_beta
    nodes:
      - {id: 1, l: 2}
      - {id: 2, r: 1}
`)
	defs, err := LoadMaps(p, "smartfarm_")
	if err != nil {
		t.Fatal(err)
	}
	if len(defs) != 2 {
		t.Fatalf("maps = %d", len(defs))
	}
	alpha := defs[0]
	if alpha.Name != "smartfarm_alpha" || alpha.ChargingNode != "2-0" {
		t.Fatalf("alpha = %+v", alpha)
	}
	if alpha.Line == nil || alpha.Line.Count != 30 || !alpha.Line.SwapEnds {
		t.Fatalf("alpha line = %+v", alpha.Line)
	}
	beta := defs[1]
	if beta.ChargingNode != "1-0" {
		t.Fatalf("beta charging node = %q, want default", beta.ChargingNode)
	}
	if len(beta.Nodes) != 2 || beta.Nodes[0].L != 2 {
		t.Fatalf("beta nodes = %+v", beta.Nodes)
	}
}

func TestLoadMapsRejectsWrongPrefix(t *testing.T) {
	p := writeMapsFile(t, `
maps:
  - name: warehouse_z
    line:
      count: 10
`)
	if _, err := LoadMaps(p, "smartfarm_"); err == nil {
		t.Fatal("expected prefix error")
	}
}

func TestLoadMapsRejectsEmptyLayout(t *testing.T) {
	p := writeMapsFile(t, `
maps:
  - name: smartfarm_empty
`)
	if _, err := LoadMaps(p, "smartfarm_"); err == nil {
		t.Fatal("expected layout error")
	}
}

func TestLoadMapsRejectsShortLine(t *testing.T) {
	p := writeMapsFile(t, `
maps:
  - name: smartfarm_tiny
    line:
      count: 1
`)
	if _, err := LoadMaps(p, "smartfarm_"); err == nil {
		t.Fatal("expected line count error")
	}
}

func TestLoadMapsMissingFile(t *testing.T) {
	if _, err := LoadMaps("/does/not/exist.yaml", "smartfarm_"); err == nil {
		t.Fatal("expected read error")
	}
}

func TestFindMap(t *testing.T) {
	defs := DefaultMaps()
	if _, ok := FindMap(defs, "smartfarm_testbed"); !ok {
		t.Fatal("known map not found")
	}
	if _, ok := FindMap(defs, "smartfarm_nowhere"); ok {
		t.Fatal("unknown map found")
	}
}
