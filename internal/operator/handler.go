// Package operator handles dashboard-originated commands arriving on
// the store's pub/sub channel and turns them into button pushes on the
// robots' outbound topics.
package operator

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hprobot/fleetd/internal/bus"
	"github.com/hprobot/fleetd/internal/grid"
	"github.com/hprobot/fleetd/internal/robot"
	"github.com/hprobot/fleetd/internal/store"
	"github.com/hprobot/fleetd/internal/workqueue"
)

// Channel is the operator command channel.
const Channel = "smartfarm"

// LegacyChannel is the pre-rename command channel, still emitted by old
// dashboard builds. Subscribed only when enabled in config.
const LegacyChannel = "robot:command"

const handleTimeout = 10 * time.Second

type commandPayload struct {
	Type     string `json:"type"`
	MapName  string `json:"mapName"`
	FarmName string `json:"farmName"`
	RobotID  string `json:"robotId"`
}

// mapName accepts both key spellings; dashboards disagree on which one
// they send.
func (p commandPayload) mapName() string {
	if p.MapName != "" {
		return p.MapName
	}
	return p.FarmName
}

type buttonPayload struct {
	FinalNode string `json:"final_node"`
}

// Handler consumes operator commands. Like the device handler it
// serializes work per robot.
type Handler struct {
	robots   *robot.Service
	grid     *grid.Repo
	pub      bus.Publisher
	queue    *workqueue.Pool
	prefix   string
	charging func(mapName string) grid.NodeRef
	log      zerolog.Logger
}

// Config configures the operator handler.
type Config struct {
	Robots       *robot.Service
	Grid         *grid.Repo
	Pub          bus.Publisher
	Queue        *workqueue.Pool
	MapPrefix    string
	ChargingNode func(mapName string) grid.NodeRef
	Logger       zerolog.Logger
}

// New creates the operator handler.
func New(cfg Config) *Handler {
	return &Handler{
		robots:   cfg.Robots,
		grid:     cfg.Grid,
		pub:      cfg.Pub,
		queue:    cfg.Queue,
		prefix:   cfg.MapPrefix,
		charging: cfg.ChargingNode,
		log:      cfg.Logger.With().Str("component", "operator").Logger(),
	}
}

// Attach subscribes the handler to the operator channel, plus the
// legacy channel when asked for. The returned cancel detaches both.
func (h *Handler) Attach(ctx context.Context, st store.Store, legacy bool) (func(), bool) {
	cancels := make([]func(), 0, 2)
	cancel, ok := st.Subscribe(ctx, Channel, h.Handle)
	if !ok {
		return func() {}, false
	}
	cancels = append(cancels, cancel)

	if legacy {
		if c, ok := st.Subscribe(ctx, LegacyChannel, h.Handle); ok {
			cancels = append(cancels, c)
		}
	}
	return func() {
		for _, c := range cancels {
			c()
		}
	}, true
}

// Handle is the pub/sub callback.
func (h *Handler) Handle(_ string, payload string) {
	var cmd commandPayload
	if err := json.Unmarshal([]byte(payload), &cmd); err != nil {
		h.log.Warn().Err(err).Msg("malformed operator command")
		return
	}
	mapName := cmd.mapName()
	if cmd.Type == "" || mapName == "" || cmd.RobotID == "" {
		h.log.Warn().Str("payload", payload).Msg("operator command missing required fields")
		return
	}
	if !strings.HasPrefix(mapName, h.prefix) {
		h.log.Warn().Str("map", mapName).Msg("map name rejected by admission rule")
		return
	}

	h.queue.Submit(mapName+"/"+cmd.RobotID, func() {
		ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
		defer cancel()
		h.dispatch(ctx, cmd.Type, mapName, cmd.RobotID)
	})
}

func (h *Handler) dispatch(ctx context.Context, cmdType, mapName, robotID string) {
	switch cmdType {
	case "start":
		h.handleStart(ctx, mapName, robotID)
	case "next":
		h.handleNext(ctx, mapName, robotID)
	case "return":
		h.handleReturn(ctx, mapName, robotID)
	default:
		h.log.Warn().Str("type", cmdType).Msg("unknown operator command")
	}
}

// currentRef loads the robot's parsed position.
func (h *Handler) currentRef(ctx context.Context, mapName, robotID string) (grid.NodeRef, bool) {
	rec, ok := h.robots.Get(ctx, mapName, robotID)
	if !ok || rec.CurrentNode == "" {
		h.log.Warn().Str("map", mapName).Str("robot", robotID).Msg("robot has no known position")
		return grid.NodeRef{}, false
	}
	ref, err := grid.ParseNodeRef(rec.CurrentNode)
	if err != nil {
		h.log.Warn().Err(err).Str("robot", robotID).Msg("corrupt current_node")
		return grid.NodeRef{}, false
	}
	return ref, true
}

// handleStart points the robot at its left neighbour.
func (h *Handler) handleStart(ctx context.Context, mapName, robotID string) {
	current, ok := h.currentRef(ctx, mapName, robotID)
	if !ok {
		return
	}
	next, ok := h.leftNeighbour(ctx, mapName, robotID, current.Node)
	if !ok {
		return
	}
	h.pushButton(mapName, robotID, strconv.Itoa(next))
}

// handleNext advances the robot one sub-position, crossing to the left
// neighbour's centre from the last quarter stop. Sub-positions live on
// the outgoing edge, so entering them requires the edge to exist.
func (h *Handler) handleNext(ctx context.Context, mapName, robotID string) {
	current, ok := h.currentRef(ctx, mapName, robotID)
	if !ok {
		return
	}

	switch sub := current.SubOrZero(); {
	case sub == 0:
		if _, ok := h.leftNeighbour(ctx, mapName, robotID, current.Node); !ok {
			return
		}
		h.pushButton(mapName, robotID, grid.SubRef(current.Node, 1).String())
	case sub < grid.MaxSubPosition:
		h.pushButton(mapName, robotID, grid.SubRef(current.Node, sub+1).String())
	default:
		next, ok := h.leftNeighbour(ctx, mapName, robotID, current.Node)
		if !ok {
			return
		}
		h.pushButton(mapName, robotID, grid.SubRef(next, 0).String())
	}
}

// handleReturn sends the robot home and flips it to RETURN through the
// derived-status rules.
func (h *Handler) handleReturn(ctx context.Context, mapName, robotID string) {
	home := h.charging(mapName)
	if current, ok := h.currentRef(ctx, mapName, robotID); ok {
		h.robots.UpdatePosition(ctx, mapName, robotID, current, &home)
	}
	h.pushButton(mapName, robotID, home.String())
}

func (h *Handler) leftNeighbour(ctx context.Context, mapName, robotID string, nodeID int) (int, bool) {
	node, ok := h.grid.GetNode(ctx, mapName, nodeID)
	if !ok {
		h.log.Warn().Str("robot", robotID).Int("node", nodeID).Msg("node not found")
		return 0, false
	}
	next := node.Neighbour(grid.DirLeft)
	if next == 0 {
		h.log.Warn().Str("robot", robotID).Int("node", nodeID).Msg("no left neighbour")
		return 0, false
	}
	return next, true
}

func (h *Handler) pushButton(mapName, robotID, finalNode string) {
	raw, err := json.Marshal(buttonPayload{FinalNode: finalNode})
	if err != nil {
		return
	}
	topic := mapName + "/" + robotID + "/server/button"
	if !h.pub.Publish(topic, raw) {
		h.log.Warn().Str("topic", topic).Msg("button publish failed")
		return
	}
	h.log.Info().Str("map", mapName).Str("robot", robotID).Str("final_node", finalNode).Msg("button pushed")
}
