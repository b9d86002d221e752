package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// MapDef describes one map: its name, charging node, and node layout.
// Nodes come either from an explicit node list or a generated line.
type MapDef struct {
	Name         string        `yaml:"name"`
	ChargingNode string        `yaml:"charging_node"`
	Line         *LineDef      `yaml:"line,omitempty"`
	Nodes        []NodeLayout  `yaml:"nodes,omitempty"`
}

// LineDef generates a 1..Count line graph. With SwapEnds the first two
// nodes trade places so the layout reads [Count] ← ... ← [3] ← [1] ← [2],
// matching the deployed rail where the charger sits one cell in from the end.
type LineDef struct {
	Count    int  `yaml:"count"`
	SwapEnds bool `yaml:"swap_ends"`
}

// NodeLayout is one explicitly-authored node.
type NodeLayout struct {
	ID int `yaml:"id"`
	L  int `yaml:"l"`
	R  int `yaml:"r"`
	U  int `yaml:"u"`
	D  int `yaml:"d"`
}

type mapsFile struct {
	Maps []MapDef `yaml:"maps"`
}

// LoadMaps reads map definitions from path, or returns the built-in
// defaults when path is empty. Every map name must carry prefix.
func LoadMaps(path, prefix string) ([]MapDef, error) {
	defs := DefaultMaps()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("maps file: %w", err)
		}
		var f mapsFile
		if err := yaml.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("maps file %s: %w", path, err)
		}
		if len(f.Maps) > 0 {
			defs = f.Maps
		}
	}

	for i := range defs {
		d := &defs[i]
		if !strings.HasPrefix(d.Name, prefix) {
			return nil, fmt.Errorf("map %q: name must start with %q", d.Name, prefix)
		}
		if d.ChargingNode == "" {
			d.ChargingNode = "1-0"
		}
		if d.Line == nil && len(d.Nodes) == 0 {
			return nil, fmt.Errorf("map %q: needs either line or nodes", d.Name)
		}
		if d.Line != nil && d.Line.Count < 2 {
			return nil, fmt.Errorf("map %q: line count must be at least 2", d.Name)
		}
	}
	return defs, nil
}

// DefaultMaps returns the built-in map set used when no maps file is given.
func DefaultMaps() []MapDef {
	return []MapDef{
		{
			Name:         "smartfarm_gangnam",
			ChargingNode: "1-0",
			Line:         &LineDef{Count: 60, SwapEnds: true},
		},
		{
			Name:         "smartfarm_testbed",
			ChargingNode: "1-0",
			Line:         &LineDef{Count: 10},
		},
	}
}

// FindMap returns the definition for mapName, if present.
func FindMap(defs []MapDef, mapName string) (MapDef, bool) {
	for _, d := range defs {
		if d.Name == mapName {
			return d, true
		}
	}
	return MapDef{}, false
}
