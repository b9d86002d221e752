// Package device handles the robot-originated command topics: path
// planning, battery telemetry, arrival, occupancy release and error
// reporting.
package device

import (
	"context"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hprobot/fleetd/internal/bus"
	"github.com/hprobot/fleetd/internal/grid"
	"github.com/hprobot/fleetd/internal/path"
	"github.com/hprobot/fleetd/internal/robot"
	"github.com/hprobot/fleetd/internal/store"
	"github.com/hprobot/fleetd/internal/workqueue"
)

// TopicFilter matches every robot command topic.
const TopicFilter = "+/+/robot/+"

// eventChannel carries REMOVE and ERROR relays for store subscribers.
const eventChannel = "smartfarm:robot"

const handleTimeout = 10 * time.Second

func pathKey(mapName, robotID string) string {
	return "robot:path:" + mapName + ":" + robotID
}

// Handler dispatches messages on {map}/{robot}/robot/{command}. Work is
// funneled through a per-robot serial queue, so two events for the same
// robot never interleave.
type Handler struct {
	robots   *robot.Service
	grid     *grid.Repo
	store    store.Store
	pub      bus.Publisher
	queue    *workqueue.Pool
	prefix   string
	charging func(mapName string) grid.NodeRef

	batteryMaxVolt float64
	batteryMinVolt float64

	log zerolog.Logger
}

// Config configures the device handler.
type Config struct {
	Robots *robot.Service
	Grid   *grid.Repo
	Store  store.Store
	Pub    bus.Publisher
	Queue  *workqueue.Pool
	// MapPrefix is the admission rule: topics whose map segment does
	// not start with it are dropped.
	MapPrefix string
	// ChargingNode resolves a map's charging stop.
	ChargingNode   func(mapName string) grid.NodeRef
	BatteryMaxVolt float64
	BatteryMinVolt float64
	Logger         zerolog.Logger
}

// New creates the device handler.
func New(cfg Config) *Handler {
	return &Handler{
		robots:         cfg.Robots,
		grid:           cfg.Grid,
		store:          cfg.Store,
		pub:            cfg.Pub,
		queue:          cfg.Queue,
		prefix:         cfg.MapPrefix,
		charging:       cfg.ChargingNode,
		batteryMaxVolt: cfg.BatteryMaxVolt,
		batteryMinVolt: cfg.BatteryMinVolt,
		log:            cfg.Logger.With().Str("component", "device").Logger(),
	}
}

// Handle is the bus callback. It validates the topic shape and map
// admission, then queues the command on the robot's serial queue.
func (h *Handler) Handle(topic, payload string) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[2] != "robot" {
		return
	}
	mapName, robotID, command := parts[0], parts[1], parts[3]

	if !strings.HasPrefix(mapName, h.prefix) {
		h.log.Warn().Str("map", mapName).Str("topic", topic).Msg("map name rejected by admission rule")
		return
	}

	h.queue.Submit(mapName+"/"+robotID, func() {
		ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
		defer cancel()
		h.dispatch(ctx, mapName, robotID, command, payload)
	})
}

func (h *Handler) dispatch(ctx context.Context, mapName, robotID, command, payload string) {
	switch command {
	case "path_plan":
		h.handlePathPlan(ctx, mapName, robotID, payload)
	case "battery":
		h.handleBattery(ctx, mapName, robotID, payload)
	case "arrive":
		h.handleArrive(ctx, mapName, robotID, payload)
	case "remove_path":
		h.handleRemovePath(ctx, mapName, robotID, payload)
	case "next":
		h.handleNext(ctx, mapName, robotID, payload)
	case "robot_error":
		h.handleError(ctx, mapName, robotID, payload)
	default:
		h.log.Debug().Str("command", command).Msg("unknown robot command")
	}
}

func (h *Handler) handlePathPlan(ctx context.Context, mapName, robotID, payload string) {
	var req pathPlanPayload
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		h.log.Warn().Err(err).Str("robot", robotID).Msg("malformed path_plan payload")
		return
	}

	if strings.Contains(req.FinalNode, "-") {
		h.handleSubPlan(ctx, mapName, robotID, req)
		return
	}

	current, err := grid.ParseNodeRef(req.CurrentNode)
	if err != nil {
		h.log.Warn().Err(err).Str("robot", robotID).Msg("bad current_node")
		return
	}
	requested, err := strconv.Atoi(req.FinalNode)
	if err != nil {
		h.log.Warn().Err(err).Str("robot", robotID).Msg("bad final_node")
		return
	}

	home := h.charging(mapName)
	destination := requested
	isReturn := requested == 0 || requested == home.Node
	if isReturn {
		destination = home.Node
	}

	finalRef := grid.Base(destination)
	if isReturn {
		finalRef = home
	}
	h.robots.UpdatePosition(ctx, mapName, robotID, current, &finalRef)

	// A mid-segment robot heading somewhere new is routed to the far
	// edge of its destination.
	if current.HasSub && !isReturn {
		req.FinalNode = strconv.Itoa(destination) + "-" + strconv.Itoa(grid.MaxSubPosition)
		h.handleSubPlan(ctx, mapName, robotID, req)
		return
	}

	if isReturn && current.HasSub {
		h.sendReturnPath(ctx, mapName, robotID, current, home)
		return
	}

	h.sendNodePath(ctx, mapName, robotID, current.Node, destination)
}

// sendNodePath plans, truncates and publishes a plain node-level route.
func (h *Handler) sendNodePath(ctx context.Context, mapName, robotID string, start, end int) {
	nodes := h.grid.GetAllNodes(ctx, mapName)
	occupied := h.grid.ListOccupied(ctx, mapName)

	route, dirs := path.BFS(nodes, start, end)
	route, dirs = path.CutPath(nodes, occupied, route, dirs, robotID)

	if len(route) <= 1 {
		h.sendNoPath(ctx, mapName, robotID, strconv.Itoa(end), strconv.Itoa(start))
		return
	}

	actualEnd := route[len(route)-1]
	pathStr := path.FormatPath(actualEnd, start, route, dirs)
	h.sendPath(ctx, mapName, robotID, pathStr)

	if actualEnd != end {
		h.log.Info().Str("robot", robotID).Int("cut_at", actualEnd).Int("requested", end).Msg("path cut by occupancy")
	}
}

// sendReturnPath emits the compressed fine-grained route home: the
// current node unwinds its sub-positions, later nodes stop only at
// their centres.
func (h *Handler) sendReturnPath(ctx context.Context, mapName, robotID string, current, home grid.NodeRef) {
	nodes := h.grid.GetAllNodes(ctx, mapName)
	occupied := h.grid.ListOccupied(ctx, mapName)

	route, dirs := path.BFS(nodes, current.Node, home.Node)
	route, dirs = path.CutPath(nodes, occupied, route, dirs, robotID)

	if len(route) <= 1 {
		h.sendNoPath(ctx, mapName, robotID, home.String(), current.String())
		return
	}

	steps := path.ExpandReturn(route, dirs, current.SubOrZero())
	h.sendPath(ctx, mapName, robotID, path.FormatSteps(steps))
}

// handleSubPlan serves a destination with a sub-position.
func (h *Handler) handleSubPlan(ctx context.Context, mapName, robotID string, req pathPlanPayload) {
	target, err := grid.ParseNodeRef(req.FinalNode)
	if err != nil || !target.HasSub {
		h.log.Warn().Str("robot", robotID).Str("final", req.FinalNode).Msg("bad sub-position destination")
		return
	}
	current, err := grid.ParseNodeRef(req.CurrentNode)
	if err != nil {
		h.log.Warn().Err(err).Str("robot", robotID).Msg("bad current_node")
		return
	}

	if current.Node == target.Node {
		h.sendSameNodeStep(ctx, mapName, robotID, current, target)
		return
	}

	startSub := grid.MaxSubPosition
	if current.HasSub {
		startSub = current.Sub
	}

	nodes := h.grid.GetAllNodes(ctx, mapName)
	route, dirs := path.BFS(nodes, current.Node, target.Node)
	if len(route) < 2 {
		h.sendNoPath(ctx, mapName, robotID, target.String(), current.String())
		return
	}

	steps := path.ExpandForward(route, dirs, startSub, target.Sub)
	h.sendPath(ctx, mapName, robotID, path.FormatSteps(steps))
}

// sendSameNodeStep moves a robot between sub-positions of the node it
// is already on. The direction comes from the robot's stored
// destination when one exists, falling back to the node's first open
// edge.
func (h *Handler) sendSameNodeStep(ctx context.Context, mapName, robotID string, current, target grid.NodeRef) {
	dir := h.sameNodeDirection(ctx, mapName, robotID, current.Node)

	startSub := target.Sub - 1
	if current.HasSub {
		startSub = current.Sub
	}

	steps := []path.Step{
		{Node: current.Node, Sub: startSub, Dir: dir},
		{Node: target.Node, Sub: target.Sub, Dir: dir},
	}
	h.sendPath(ctx, mapName, robotID, path.FormatSteps(steps))
}

func (h *Handler) sameNodeDirection(ctx context.Context, mapName, robotID string, nodeID int) grid.Direction {
	if rec, ok := h.robots.Get(ctx, mapName, robotID); ok && rec.FinalNode != "" {
		if final, err := grid.ParseNodeRef(rec.FinalNode); err == nil && final.Node != nodeID {
			nodes := h.grid.GetAllNodes(ctx, mapName)
			if _, dirs := path.BFS(nodes, nodeID, final.Node); len(dirs) > 0 {
				return dirs[0]
			}
		}
	}
	if node, ok := h.grid.GetNode(ctx, mapName, nodeID); ok {
		if dir, _, found := node.FirstNeighbour(); found {
			return dir
		}
	}
	return grid.DirLeft
}

func (h *Handler) handleBattery(ctx context.Context, mapName, robotID, payload string) {
	var req batteryPayload
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		h.log.Warn().Err(err).Str("robot", robotID).Msg("malformed battery payload")
		return
	}
	volts, err := strconv.ParseFloat(req.BatteryState, 64)
	if err != nil {
		h.log.Warn().Err(err).Str("robot", robotID).Msg("bad battery_state")
		return
	}

	percent := h.batteryPercent(volts, req.BatteryChargingState)
	h.robots.UpdateBattery(ctx, mapName, robotID, percent, req.BatteryChargingState)
	h.log.Debug().Str("robot", robotID).Int("percent", percent).Float64("volts", volts).Msg("battery updated")
}

// batteryPercent converts a voltage reading into a clamped percentage.
// A charging robot reads high, so the charger's contribution is
// subtracted before scaling.
func (h *Handler) batteryPercent(volts float64, chargingState int) int {
	if chargingState == 1 {
		volts -= (h.batteryMaxVolt - volts) * 0.07
	}
	percent := int(math.Round((volts - h.batteryMinVolt) / (h.batteryMaxVolt - h.batteryMinVolt) * 100))
	if percent < 0 {
		return 0
	}
	if percent > 100 {
		return 100
	}
	return percent
}

func (h *Handler) handleArrive(ctx context.Context, mapName, robotID, payload string) {
	var req arrivePayload
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		h.log.Warn().Err(err).Str("robot", robotID).Msg("malformed arrive payload")
		return
	}
	node, err := grid.ParseNodeRef(req.CurrentNode)
	if err != nil {
		h.log.Warn().Err(err).Str("robot", robotID).Msg("bad current_node")
		return
	}

	h.robots.SetStatus(ctx, mapName, robotID, robot.StatusDone, &node)
	h.robots.MarkArrived(ctx, mapName, robotID, node)

	released := h.grid.ReleaseAll(ctx, mapName, robotID)
	h.log.Info().Str("robot", robotID).Str("node", node.String()).Int("released", released).Msg("robot arrived")

	h.publishJSON(mapName+"/"+robotID+"/server/arrive", arriveResponse{YesOrNo: "yes"})
}

func (h *Handler) handleRemovePath(ctx context.Context, mapName, robotID, payload string) {
	var req removePathPayload
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		h.log.Warn().Err(err).Str("robot", robotID).Msg("malformed remove_path payload")
		return
	}
	node, err := grid.ParseNodeRef(req.CurrentNode)
	if err != nil {
		h.log.Warn().Err(err).Str("robot", robotID).Msg("bad current_node")
		return
	}

	if !h.grid.Release(ctx, mapName, node.Node, robotID) {
		h.log.Warn().Str("robot", robotID).Int("node", node.Node).Msg("release failed")
	}
	h.relayEvent(ctx, "REMOVE", payload)
}

func (h *Handler) handleNext(ctx context.Context, mapName, robotID, payload string) {
	var req nextPayload
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		h.log.Warn().Err(err).Str("robot", robotID).Msg("malformed next payload")
		return
	}
	if !grid.ValidDirection(req.Direction) {
		h.log.Warn().Str("robot", robotID).Str("direction", req.Direction).Msg("bad direction")
		return
	}
	current, err := grid.ParseNodeRef(req.CurrentNode)
	if err != nil {
		h.log.Warn().Err(err).Str("robot", robotID).Msg("bad current_node")
		return
	}
	dir := grid.Direction(req.Direction)

	if req.SubPosition != nil {
		sub := *req.SubPosition
		if sub < grid.MaxSubPosition {
			steps := []path.Step{
				{Node: current.Node, Sub: sub, Dir: dir},
				{Node: current.Node, Sub: sub + 1, Dir: dir},
			}
			h.sendPath(ctx, mapName, robotID, path.FormatSteps(steps))
			return
		}
		next, ok := h.neighbour(ctx, mapName, robotID, current.Node, dir)
		if !ok {
			return
		}
		steps := []path.Step{
			{Node: current.Node, Sub: sub, Dir: dir},
			{Node: next, Sub: 0, Dir: dir},
		}
		h.sendPath(ctx, mapName, robotID, path.FormatSteps(steps))
		return
	}

	next, ok := h.neighbour(ctx, mapName, robotID, current.Node, dir)
	if !ok {
		return
	}
	h.sendPath(ctx, mapName, robotID, path.FormatNodeStep(next, current.Node, dir))
}

func (h *Handler) neighbour(ctx context.Context, mapName, robotID string, nodeID int, dir grid.Direction) (int, bool) {
	node, ok := h.grid.GetNode(ctx, mapName, nodeID)
	if !ok {
		h.log.Warn().Str("robot", robotID).Int("node", nodeID).Msg("node not found")
		return 0, false
	}
	next := node.Neighbour(dir)
	if next == 0 {
		h.log.Warn().Str("robot", robotID).Int("node", nodeID).Str("direction", string(dir)).Msg("no neighbour in direction")
		return 0, false
	}
	return next, true
}

func (h *Handler) handleError(ctx context.Context, mapName, robotID, payload string) {
	h.robots.SetStatus(ctx, mapName, robotID, robot.StatusError, nil)
	h.relayEvent(ctx, "ERROR", payload)
	h.log.Warn().Str("robot", robotID).Str("payload", payload).Msg("robot reported error")
}

// sendPath publishes a planned route and records it for the admin API.
func (h *Handler) sendPath(ctx context.Context, mapName, robotID, pathStr string) {
	h.publishJSON(mapName+"/"+robotID+"/server/path_plan", pathResponse{Path: pathStr})
	h.persistPath(ctx, mapName, robotID, pathStr, "success")
}

func (h *Handler) sendNoPath(ctx context.Context, mapName, robotID, end, start string) {
	sentinel := path.NoPath(end, start)
	h.publishJSON(mapName+"/"+robotID+"/server/path_plan", pathResponse{Path: sentinel})
	h.persistPath(ctx, mapName, robotID, sentinel, "blocked")
	h.log.Info().Str("robot", robotID).Str("start", start).Str("end", end).Msg("path blocked or not found")
}

func (h *Handler) persistPath(ctx context.Context, mapName, robotID, pathStr, status string) {
	key := pathKey(mapName, robotID)
	h.store.HSet(ctx, key, "path", pathStr)
	h.store.HSet(ctx, key, "status", status)
	h.store.HSet(ctx, key, "updated_at", time.Now().Format(time.RFC3339Nano))
}

// relayEvent republishes a device payload on the store event channel.
func (h *Handler) relayEvent(ctx context.Context, eventType, payload string) {
	var inner any
	if err := json.Unmarshal([]byte(payload), &inner); err != nil {
		inner = payload
	}
	raw, err := json.Marshal(storeEvent{Type: eventType, Payload: inner})
	if err != nil {
		return
	}
	h.store.Publish(ctx, eventChannel, string(raw))
}

func (h *Handler) publishJSON(topic string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if !h.pub.Publish(topic, raw) {
		h.log.Warn().Str("topic", topic).Msg("response publish failed")
	}
}
