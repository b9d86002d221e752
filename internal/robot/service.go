package robot

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/hprobot/fleetd/internal/grid"
	"github.com/hprobot/fleetd/internal/store"
)

func stateKey(mapName, robotID string) string {
	return "robot:state:" + mapName + ":" + robotID
}

func arriveKey(mapName, robotID string) string {
	return "robot:arrive:" + mapName + ":" + robotID
}

func stateChannel(mapName, robotID string) string {
	return mapName + "/robot/" + robotID + "/state"
}

// Robot is the stored operational record of one robot.
type Robot struct {
	ID            string `json:"robot_id"`
	Map           string `json:"map_name"`
	CurrentNode   string `json:"current_node,omitempty"`
	FinalNode     string `json:"final_node,omitempty"`
	BatteryLevel  int    `json:"battery_level"`
	ChargingState int    `json:"charging_state"`
	Status        Status `json:"status,omitempty"`
	NodeCount     int    `json:"node_count"`
	UpdatedAt     string `json:"updated_at,omitempty"`
}

// Service owns the robot records. Every mutator writes through to the
// store, re-derives the status, rolls the utilisation interval and
// publishes a snapshot on the robot's state channel.
type Service struct {
	store        store.Store
	stats        *DailyStats
	chargingNode func(mapName string) grid.NodeRef
	glitchMax    int
	arriveTTL    time.Duration
	log          zerolog.Logger

	now func() time.Time
}

// ServiceConfig configures a robot Service.
type ServiceConfig struct {
	Store store.Store
	Stats *DailyStats
	// ChargingNode resolves the charging stop of a map.
	ChargingNode func(mapName string) grid.NodeRef
	// NodeCountGlitchMax discards movement deltas above this value.
	NodeCountGlitchMax int
	// ArriveTTL bounds the lifetime of arrival markers.
	ArriveTTL time.Duration
	Logger    zerolog.Logger
}

// NewService creates the robot state service.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		store:        cfg.Store,
		stats:        cfg.Stats,
		chargingNode: cfg.ChargingNode,
		glitchMax:    cfg.NodeCountGlitchMax,
		arriveTTL:    cfg.ArriveTTL,
		log:          cfg.Logger.With().Str("component", "robot").Logger(),
		now:          time.Now,
	}
}

// UpdatePosition records a new position and, when final is non-nil, a
// new destination. Status is re-derived from the charging-node rules
// and the movement delta is added to the node counter.
func (s *Service) UpdatePosition(ctx context.Context, mapName, robotID string, current grid.NodeRef, final *grid.NodeRef) bool {
	key := stateKey(mapName, robotID)
	prev, existed := s.Get(ctx, mapName, robotID)

	if !s.store.HSet(ctx, key, "current_node", current.String()) {
		return false
	}
	if final != nil {
		s.store.HSet(ctx, key, "final_node", final.String())
	}

	count := s.nextNodeCount(prev, existed, current, mapName, robotID)
	s.store.HSet(ctx, key, "node_count", strconv.Itoa(count))
	s.store.HSet(ctx, key, "updated_at", s.now().Format(time.RFC3339Nano))

	finalRef := final
	if finalRef == nil {
		if ref, err := grid.ParseNodeRef(prev.FinalNode); prev.FinalNode != "" && err == nil {
			finalRef = &ref
		}
	}
	status := s.deriveStatus(mapName, current, finalRef, prev.ChargingState)
	s.store.HSet(ctx, key, "status", string(status))

	s.rollStats(ctx, mapName, robotID, status, prev.BatteryLevel)
	s.publishSnapshot(ctx, mapName, robotID)
	return true
}

// UpdateBattery records a battery reading. At the charging node the
// status is re-derived, so plugging in flips WAITING to CHARGING.
func (s *Service) UpdateBattery(ctx context.Context, mapName, robotID string, level, chargingState int) bool {
	key := stateKey(mapName, robotID)
	prev, _ := s.Get(ctx, mapName, robotID)

	if !s.store.HSet(ctx, key, "battery_level", strconv.Itoa(level)) {
		return false
	}
	s.store.HSet(ctx, key, "charging_state", strconv.Itoa(chargingState))
	s.store.HSet(ctx, key, "updated_at", s.now().Format(time.RFC3339Nano))

	status := prev.Status
	if cur, err := grid.ParseNodeRef(prev.CurrentNode); prev.CurrentNode != "" && err == nil {
		if cur.SamePlace(s.chargingNode(mapName)) {
			var finalRef *grid.NodeRef
			if ref, err := grid.ParseNodeRef(prev.FinalNode); prev.FinalNode != "" && err == nil {
				finalRef = &ref
			}
			status = s.deriveStatus(mapName, cur, finalRef, chargingState)
			s.store.HSet(ctx, key, "status", string(status))
		}
	}

	if status != "" {
		s.rollStats(ctx, mapName, robotID, status, level)
	}
	s.publishSnapshot(ctx, mapName, robotID)
	return true
}

// SetStatus forces a status. Only the arrive and robot_error events use
// it; everything else goes through the derived rules.
func (s *Service) SetStatus(ctx context.Context, mapName, robotID string, status Status, node *grid.NodeRef) bool {
	key := stateKey(mapName, robotID)
	prev, _ := s.Get(ctx, mapName, robotID)

	if !s.store.HSet(ctx, key, "status", string(status)) {
		return false
	}
	if node != nil {
		s.store.HSet(ctx, key, "current_node", node.String())
	}
	s.store.HSet(ctx, key, "updated_at", s.now().Format(time.RFC3339Nano))

	s.rollStats(ctx, mapName, robotID, status, prev.BatteryLevel)
	s.publishSnapshot(ctx, mapName, robotID)
	return true
}

// MarkArrived writes the short-lived arrival marker.
func (s *Service) MarkArrived(ctx context.Context, mapName, robotID string, node grid.NodeRef) bool {
	return s.store.Set(ctx, arriveKey(mapName, robotID), node.String(), s.arriveTTL)
}

// Arrived returns the arrival marker while it is still live.
func (s *Service) Arrived(ctx context.Context, mapName, robotID string) (string, bool) {
	return s.store.Get(ctx, arriveKey(mapName, robotID))
}

// Get reads one robot record. The second return is false when the robot
// has never been seen.
func (s *Service) Get(ctx context.Context, mapName, robotID string) (Robot, bool) {
	raw := s.store.HGetAll(ctx, stateKey(mapName, robotID))
	if len(raw) == 0 {
		return Robot{ID: robotID, Map: mapName}, false
	}
	return robotFromHash(mapName, robotID, raw), true
}

// All returns every robot record in a map.
func (s *Service) All(ctx context.Context, mapName string) map[string]Robot {
	prefix := stateKey(mapName, "")
	out := make(map[string]Robot)
	for _, key := range s.store.Scan(ctx, prefix+"*") {
		robotID := key[len(prefix):]
		if robotID == "" {
			continue
		}
		raw := s.store.HGetAll(ctx, key)
		if len(raw) == 0 {
			continue
		}
		out[robotID] = robotFromHash(mapName, robotID, raw)
	}
	return out
}

// Seed writes a robot record verbatim, skipping status derivation and
// stats rollover. Admin fixture endpoints use it to stage test robots.
func (s *Service) Seed(ctx context.Context, mapName string, r Robot) bool {
	key := stateKey(mapName, r.ID)
	if !s.store.HSet(ctx, key, "current_node", r.CurrentNode) {
		return false
	}
	if r.FinalNode != "" {
		s.store.HSet(ctx, key, "final_node", r.FinalNode)
	}
	s.store.HSet(ctx, key, "battery_level", strconv.Itoa(r.BatteryLevel))
	s.store.HSet(ctx, key, "charging_state", strconv.Itoa(r.ChargingState))
	s.store.HSet(ctx, key, "status", string(r.Status))
	s.store.HSet(ctx, key, "node_count", strconv.Itoa(r.NodeCount))
	s.store.HSet(ctx, key, "updated_at", s.now().Format(time.RFC3339Nano))
	return true
}

// Delete removes a robot record.
func (s *Service) Delete(ctx context.Context, mapName, robotID string) bool {
	return s.store.Del(ctx, stateKey(mapName, robotID))
}

func robotFromHash(mapName, robotID string, raw map[string]string) Robot {
	r := Robot{ID: robotID, Map: mapName}
	r.CurrentNode = raw["current_node"]
	r.FinalNode = raw["final_node"]
	r.Status = Status(raw["status"])
	r.UpdatedAt = raw["updated_at"]
	r.BatteryLevel, _ = strconv.Atoi(raw["battery_level"])
	r.ChargingState, _ = strconv.Atoi(raw["charging_state"])
	r.NodeCount, _ = strconv.Atoi(raw["node_count"])
	return r
}

// deriveStatus applies the position rules: at the charging stop the
// robot is CHARGING or WAITING depending on the charger flag; anywhere
// else it is RETURN when heading home and WORKING otherwise.
func (s *Service) deriveStatus(mapName string, current grid.NodeRef, final *grid.NodeRef, chargingState int) Status {
	home := s.chargingNode(mapName)
	if current.SamePlace(home) {
		if chargingState == 1 {
			return StatusCharging
		}
		return StatusWaiting
	}
	if final != nil && final.SamePlace(home) {
		return StatusReturn
	}
	return StatusWorking
}

// nextNodeCount folds the movement delta between the previous and new
// position into the travel counter. Within a node the delta is the
// sub-position distance; a centre-to-centre hop counts a full segment
// of 5 because return paths skip the quarter stops; everything else is
// a single step. Oversized deltas are sensor glitches and are dropped.
func (s *Service) nextNodeCount(prev Robot, existed bool, current grid.NodeRef, mapName, robotID string) int {
	if !existed || prev.CurrentNode == "" {
		return 0
	}
	prevRef, err := grid.ParseNodeRef(prev.CurrentNode)
	if err != nil {
		return prev.NodeCount
	}

	var delta int
	switch {
	case prevRef.SamePlace(current):
		delta = 0
	case prevRef.Node == current.Node:
		delta = current.SubOrZero() - prevRef.SubOrZero()
		if delta < 0 {
			delta = -delta
		}
	case prevRef.SubOrZero() == 0 && current.SubOrZero() == 0:
		delta = 5
	default:
		delta = 1
	}

	if delta > s.glitchMax {
		s.log.Warn().
			Str("map", mapName).Str("robot", robotID).
			Str("from", prev.CurrentNode).Str("to", current.String()).
			Int("delta", delta).
			Msg("movement delta above glitch threshold, discarded")
		return prev.NodeCount
	}
	return prev.NodeCount + delta
}

// rollStats maps the status to its utilisation bucket and opens a new
// interval only when the bucket actually changed.
func (s *Service) rollStats(ctx context.Context, mapName, robotID string, status Status, batteryLevel int) {
	op, ok := OperationStateFor(status, batteryLevel)
	if !ok {
		return
	}
	if cur, _, open := s.stats.CursorState(ctx, mapName, robotID); open && cur == op {
		return
	}
	s.stats.StartState(ctx, mapName, robotID, op, s.now())
}

func (s *Service) publishSnapshot(ctx context.Context, mapName, robotID string) {
	r, ok := s.Get(ctx, mapName, robotID)
	if !ok {
		return
	}
	payload, err := json.Marshal(r)
	if err != nil {
		return
	}
	s.store.Publish(ctx, stateChannel(mapName, robotID), string(payload))
}
