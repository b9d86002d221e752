package api

import (
	"net/http"
	"sort"
	"strconv"

	"github.com/hprobot/fleetd/internal/config"
	"github.com/hprobot/fleetd/internal/grid"
)

type nodeView struct {
	ID         int    `json:"id"`
	L          int    `json:"l"`
	R          int    `json:"r"`
	U          int    `json:"u"`
	D          int    `json:"d"`
	OccupiedBy string `json:"occupied_by,omitempty"`
}

// HandleListNodes returns a handler for GET /api/v1/maps/{map}/nodes.
// The adjacency snapshot is joined with occupancy so one call shows the
// whole board.
func HandleListNodes(defs []config.MapDef, repo *grid.Repo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		def, ok := requireKnownMap(w, r, defs)
		if !ok {
			return
		}
		nodes := repo.GetAllNodes(r.Context(), def.Name)
		occupied := repo.ListOccupied(r.Context(), def.Name)

		list := make([]nodeView, 0, len(nodes))
		for id, n := range nodes {
			list = append(list, nodeView{
				ID: id, L: n.L, R: n.R, U: n.U, D: n.D,
				OccupiedBy: occupied[id],
			})
		}
		sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
		WriteJSON(w, http.StatusOK, map[string]any{
			"map_name":   def.Name,
			"node_count": len(list),
			"nodes":      list,
		})
	}
}

// HandleListOccupied returns a handler for GET /api/v1/maps/{map}/nodes/occupied.
func HandleListOccupied(defs []config.MapDef, repo *grid.Repo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		def, ok := requireKnownMap(w, r, defs)
		if !ok {
			return
		}
		occupied := repo.ListOccupied(r.Context(), def.Name)
		out := make(map[string]string, len(occupied))
		for id, robotID := range occupied {
			out[strconv.Itoa(id)] = robotID
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"map_name": def.Name,
			"occupied": out,
		})
	}
}

type occupancyRequest struct {
	RobotID string `json:"robot_id"`
}

// HandleOccupyNode returns a handler for
// POST /api/v1/maps/{map}/nodes/{node}/actions/occupy.
// A node held by another robot yields 409; claiming a node the robot
// already holds is idempotent.
func HandleOccupyNode(defs []config.MapDef, repo *grid.Repo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		def, ok := requireKnownMap(w, r, defs)
		if !ok {
			return
		}
		id, ok := requireNodeParam(w, r)
		if !ok {
			return
		}
		var req occupancyRequest
		if err := DecodeBody(r, &req); err != nil {
			writeDecodeBodyError(w, err)
			return
		}
		if req.RobotID == "" {
			writeInvalidArgument(w, "robot_id: required")
			return
		}

		if repo.Occupy(r.Context(), def.Name, id, req.RobotID) {
			WriteJSON(w, http.StatusOK, map[string]any{"node": id, "occupied_by": req.RobotID})
			return
		}
		holder, held := repo.OccupiedBy(r.Context(), def.Name, id)
		switch {
		case held && holder == req.RobotID:
			WriteJSON(w, http.StatusOK, map[string]any{"node": id, "occupied_by": req.RobotID})
		case held:
			writeConflict(w, "node "+strconv.Itoa(id)+" is occupied by "+holder)
		default:
			writeNotFound(w, "node not found: "+strconv.Itoa(id))
		}
	}
}

// HandleReleaseNode returns a handler for
// POST /api/v1/maps/{map}/nodes/{node}/actions/release.
// With a robot_id the release is conditional on that robot holding the
// node; with an empty one it clears unconditionally.
func HandleReleaseNode(defs []config.MapDef, repo *grid.Repo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		def, ok := requireKnownMap(w, r, defs)
		if !ok {
			return
		}
		id, ok := requireNodeParam(w, r)
		if !ok {
			return
		}
		var req occupancyRequest
		if err := DecodeBody(r, &req); err != nil {
			writeDecodeBodyError(w, err)
			return
		}

		released := repo.Release(r.Context(), def.Name, id, req.RobotID)
		WriteJSON(w, http.StatusOK, map[string]any{"node": id, "released": released})
	}
}
