package api

import (
	"net/http"

	"github.com/hprobot/fleetd/internal/buildinfo"
	"github.com/hprobot/fleetd/internal/config"
	"github.com/hprobot/fleetd/internal/scheduler"
)

type mapSummary struct {
	Name         string `json:"name"`
	ChargingNode string `json:"charging_node"`
}

// HandleSystemInfo returns a handler for GET /api/v1/system/info.
func HandleSystemInfo(defs []config.MapDef) http.HandlerFunc {
	maps := make([]mapSummary, 0, len(defs))
	for _, d := range defs {
		maps = append(maps, mapSummary{Name: d.Name, ChargingNode: d.ChargingNode})
	}
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]any{
			"version":    buildinfo.Version,
			"git_commit": buildinfo.GitCommit,
			"build_time": buildinfo.BuildTime,
			"maps":       maps,
		})
	}
}

// HandleDailyReset returns a handler for
// POST /api/v1/system/actions/daily-reset. It rolls every open
// utilisation cursor immediately, same as the midnight fire.
func HandleDailyReset(reset *scheduler.DailyReset) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rolled := reset.ResetNow()
		WriteJSON(w, http.StatusOK, map[string]int{"rolled": rolled})
	}
}

// HandleListMaps returns a handler for GET /api/v1/maps.
func HandleListMaps(defs []config.MapDef) http.HandlerFunc {
	maps := make([]mapSummary, 0, len(defs))
	for _, d := range defs {
		maps = append(maps, mapSummary{Name: d.Name, ChargingNode: d.ChargingNode})
	}
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]any{"maps": maps})
	}
}
