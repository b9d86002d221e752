package api

import (
	"net/http"
	"sort"
	"time"

	"github.com/hprobot/fleetd/internal/config"
	"github.com/hprobot/fleetd/internal/grid"
	"github.com/hprobot/fleetd/internal/robot"
)

type mapRobotsResponse struct {
	MapName    string        `json:"map_name"`
	RobotCount int           `json:"robot_count"`
	Robots     []robot.Robot `json:"robots"`
}

// HandleListRobots returns a handler for GET /api/v1/maps/{map}/robots.
func HandleListRobots(defs []config.MapDef, robots *robot.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		def, ok := requireKnownMap(w, r, defs)
		if !ok {
			return
		}
		byID := robots.All(r.Context(), def.Name)
		list := make([]robot.Robot, 0, len(byID))
		for _, rb := range byID {
			list = append(list, rb)
		}
		sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
		WriteJSON(w, http.StatusOK, mapRobotsResponse{
			MapName:    def.Name,
			RobotCount: len(list),
			Robots:     list,
		})
	}
}

// HandleGetRobot returns a handler for GET /api/v1/maps/{map}/robots/{robot}.
func HandleGetRobot(defs []config.MapDef, robots *robot.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		def, ok := requireKnownMap(w, r, defs)
		if !ok {
			return
		}
		robotID := PathParam(r, "robot")
		rb, found := robots.Get(r.Context(), def.Name, robotID)
		if !found {
			writeNotFound(w, "robot not found: "+robotID)
			return
		}
		WriteJSON(w, http.StatusOK, rb)
	}
}

// HandleDeleteRobot returns a handler for DELETE /api/v1/maps/{map}/robots/{robot}.
func HandleDeleteRobot(defs []config.MapDef, robots *robot.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		def, ok := requireKnownMap(w, r, defs)
		if !ok {
			return
		}
		robotID := PathParam(r, "robot")
		if _, found := robots.Get(r.Context(), def.Name, robotID); !found {
			writeNotFound(w, "robot not found: "+robotID)
			return
		}
		robots.Delete(r.Context(), def.Name, robotID)
		WriteJSON(w, http.StatusOK, map[string]string{"deleted": robotID})
	}
}

// HandleReleaseRobotNodes returns a handler for
// POST /api/v1/maps/{map}/robots/{robot}/actions/release-nodes.
// It clears every occupancy claim the robot still holds.
func HandleReleaseRobotNodes(defs []config.MapDef, repo *grid.Repo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		def, ok := requireKnownMap(w, r, defs)
		if !ok {
			return
		}
		robotID := PathParam(r, "robot")
		released := repo.ReleaseAll(r.Context(), def.Name, robotID)
		WriteJSON(w, http.StatusOK, map[string]any{
			"robot_id": robotID,
			"released": released,
		})
	}
}

// The dummy fixture: robot "1" parked at node 2, full battery, with a
// plausible utilisation day already on the books.
var dummyStatsBuckets = map[robot.OperationState]float64{
	robot.OpWorking:        14400,
	robot.OpCharging:       3600,
	robot.OpFullChargeIdle: 7200,
	robot.OpIdle:           3600,
}

// HandleSeedDummyRobot returns a handler for POST /api/v1/maps/{map}/robots/dummy.
func HandleSeedDummyRobot(defs []config.MapDef, robots *robot.Service, stats *robot.DailyStats) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		def, ok := requireKnownMap(w, r, defs)
		if !ok {
			return
		}
		rb := robot.Robot{
			ID:           "1",
			Map:          def.Name,
			CurrentNode:  "2",
			BatteryLevel: 100,
			Status:       robot.StatusWaiting,
		}
		robots.Seed(r.Context(), def.Name, rb)
		stats.SeedDay(r.Context(), def.Name, rb.ID, time.Now(), dummyStatsBuckets, robot.OpIdle)
		WriteJSON(w, http.StatusCreated, rb)
	}
}

// HandleSeedDummyStats returns a handler for
// POST /api/v1/maps/{map}/robots/dummy/stats/{date}.
func HandleSeedDummyStats(defs []config.MapDef, stats *robot.DailyStats) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		def, ok := requireKnownMap(w, r, defs)
		if !ok {
			return
		}
		day, err := time.ParseInLocation("2006-01-02", PathParam(r, "date"), time.Local)
		if err != nil {
			writeInvalidArgument(w, "date: must be a YYYY-MM-DD date")
			return
		}
		stats.SeedDay(r.Context(), def.Name, "1", day, dummyStatsBuckets, robot.OpIdle)
		WriteJSON(w, http.StatusCreated, map[string]string{
			"robot_id": "1",
			"date":     day.Format("2006-01-02"),
		})
	}
}
