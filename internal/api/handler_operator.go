package api

import (
	"encoding/json"
	"net/http"

	"github.com/hprobot/fleetd/internal/config"
	"github.com/hprobot/fleetd/internal/operator"
	"github.com/hprobot/fleetd/internal/store"
)

type operatorCommandRequest struct {
	Type    string `json:"type"`
	MapName string `json:"map_name"`
	RobotID string `json:"robot_id"`
}

func validCommandType(t string) bool {
	switch t {
	case "start", "next", "return":
		return true
	}
	return false
}

// HandleOperatorCommand returns a handler for POST /api/v1/operator/commands.
// The command is relayed onto the operator channel, so API-driven and
// panel-driven commands take the identical code path from there on.
func HandleOperatorCommand(defs []config.MapDef, st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req operatorCommandRequest
		if err := DecodeBody(r, &req); err != nil {
			writeDecodeBodyError(w, err)
			return
		}
		if !validCommandType(req.Type) {
			writeInvalidArgument(w, "type: must be start, next or return")
			return
		}
		if req.RobotID == "" {
			writeInvalidArgument(w, "robot_id: required")
			return
		}
		if _, ok := config.FindMap(defs, req.MapName); !ok {
			writeNotFound(w, "map not found: "+req.MapName)
			return
		}

		payload, err := json.Marshal(map[string]string{
			"type":    req.Type,
			"mapName": req.MapName,
			"robotId": req.RobotID,
		})
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to encode command")
			return
		}
		if !st.Publish(r.Context(), operator.Channel, string(payload)) {
			WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to publish command")
			return
		}
		WriteJSON(w, http.StatusAccepted, map[string]any{
			"published": true,
			"channel":   operator.Channel,
		})
	}
}
