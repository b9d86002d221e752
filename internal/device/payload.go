package device

// Wire payloads for the robot command topics. Robots send numbers as
// strings in several fields; conversion happens in the handlers.

type pathPlanPayload struct {
	CurrentNode string `json:"current_node"`
	FinalNode   string `json:"final_node"`
}

type batteryPayload struct {
	BatteryState         string `json:"battery_state"`
	BatteryChargingState int    `json:"battery_charging_state"`
}

type arrivePayload struct {
	CurrentNode string `json:"current_node"`
}

type removePathPayload struct {
	CurrentNode string `json:"current_node"`
}

type nextPayload struct {
	CurrentNode string `json:"current_node"`
	SubPosition *int   `json:"sub_position"`
	Direction   string `json:"direction"`
}

type pathResponse struct {
	Path string `json:"path"`
}

type arriveResponse struct {
	YesOrNo string `json:"yes_or_no"`
}

// storeEvent is relayed on the smartfarm:robot channel for dashboards.
type storeEvent struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}
