package api

import (
	"net/http"

	"github.com/hprobot/fleetd/internal/config"
	"github.com/hprobot/fleetd/internal/grid"
	"github.com/hprobot/fleetd/internal/path"
)

type findPathRequest struct {
	StartNode int    `json:"start_node"`
	EndNode   int    `json:"end_node"`
	RobotID   string `json:"robot_id"`
}

type findPathResponse struct {
	Path       string   `json:"path"`
	Nodes      []int    `json:"nodes"`
	Directions []string `json:"directions"`
	Truncated  bool     `json:"truncated"`
}

// HandleFindPath returns a handler for POST /api/v1/maps/{map}/paths/find.
// It previews the same plan the robots receive: BFS over the adjacency
// snapshot, then truncation at the first foreign occupancy. No route at
// all is a 404; a plan cut down to the start node alone is a 409.
func HandleFindPath(defs []config.MapDef, repo *grid.Repo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		def, ok := requireKnownMap(w, r, defs)
		if !ok {
			return
		}
		var req findPathRequest
		if err := DecodeBody(r, &req); err != nil {
			writeDecodeBodyError(w, err)
			return
		}
		if req.StartNode <= 0 || req.EndNode <= 0 {
			writeInvalidArgument(w, "start_node and end_node: required")
			return
		}

		nodes := repo.GetAllNodes(r.Context(), def.Name)
		route, dirs := path.BFS(nodes, req.StartNode, req.EndNode)
		if len(route) == 0 {
			writeNotFound(w, "no route between the given nodes")
			return
		}

		occupied := repo.ListOccupied(r.Context(), def.Name)
		cutRoute, cutDirs := path.CutPath(nodes, occupied, route, dirs, req.RobotID)
		if len(cutRoute) <= 1 {
			writeConflict(w, "route blocked by occupied nodes")
			return
		}

		dirStrs := make([]string, len(cutDirs))
		for i, d := range cutDirs {
			dirStrs[i] = string(d)
		}
		WriteJSON(w, http.StatusOK, findPathResponse{
			Path:       path.FormatPath(req.EndNode, req.StartNode, cutRoute, cutDirs),
			Nodes:      cutRoute,
			Directions: dirStrs,
			Truncated:  len(cutRoute) < len(route),
		})
	}
}
