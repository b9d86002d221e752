package api

import (
	"net/http"

	"github.com/hprobot/fleetd/internal/config"
	"github.com/hprobot/fleetd/internal/robot"
)

// HandleDailyStats returns a handler for
// GET /api/v1/maps/{map}/robots/{robot}/daily-stats.
// Defaults to today; ?date=YYYY-MM-DD selects another day and
// ?formatted=true switches to the percentage report.
func HandleDailyStats(defs []config.MapDef, stats *robot.DailyStats) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		def, ok := requireKnownMap(w, r, defs)
		if !ok {
			return
		}
		robotID := PathParam(r, "robot")

		day, ok := parseDateQueryOrWriteInvalid(w, r, "date")
		if !ok {
			return
		}
		formatted, err := ParseBoolQuery(r, "formatted")
		if err != nil {
			writeInvalidArgument(w, err.Error())
			return
		}

		if formatted != nil && *formatted {
			WriteJSON(w, http.StatusOK, stats.Formatted(r.Context(), def.Name, robotID, day))
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"map_name": def.Name,
			"robot_id": robotID,
			"date":     day.Format("2006-01-02"),
			"stats":    stats.Get(r.Context(), def.Name, robotID, day),
		})
	}
}
