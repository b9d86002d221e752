// Package conntrack materialises broker connect/disconnect events into
// per-client presence records, so the admin API can answer "which
// devices are online" without talking to the broker.
package conntrack

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hprobot/fleetd/internal/scanloop"
	"github.com/hprobot/fleetd/internal/store"
)

// TopicFilter covers both broker client events. Requires the broker to
// have connection event reporting enabled (mosquitto: sys_interval plus
// connection_messages).
const TopicFilter = "events/client/#"

const (
	topicConnected    = "events/client/connected"
	topicDisconnected = "events/client/disconnected"
)

func recordKey(device, mapName, deviceID string) string {
	return "mqtt:connection:" + device + ":" + mapName + ":" + deviceID
}

// RecordKeyPattern matches every presence record.
const RecordKeyPattern = "mqtt:connection:*"

// Identity is a parsed client id: {device}-{map}-{deviceId}-{uuid}.
// The uuid segment contains hyphens itself, so splitting stops after
// the first three.
type Identity struct {
	Device   string
	Map      string
	DeviceID string
	UUID     string
}

// ParseClientID splits and validates a broker client id.
func ParseClientID(clientID string) (Identity, error) {
	parts := strings.SplitN(clientID, "-", 4)
	if len(parts) != 4 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return Identity{}, fmt.Errorf("conntrack: client id %q is not device-map-id-uuid", clientID)
	}
	if _, err := uuid.Parse(parts[3]); err != nil {
		return Identity{}, fmt.Errorf("conntrack: client id %q: bad uuid: %w", clientID, err)
	}
	return Identity{Device: parts[0], Map: parts[1], DeviceID: parts[2], UUID: parts[3]}, nil
}

type clientEvent struct {
	ClientID  string `json:"clientid"`
	Username  string `json:"username"`
	IPAddress string `json:"ipaddress"`
	Reason    string `json:"reason"`
}

// Tracker consumes broker client events and keeps presence records
// fresh. A background sweep drops records whose client never emitted a
// disconnect.
type Tracker struct {
	store      store.Store
	retention  time.Duration
	sweepEvery time.Duration
	log        zerolog.Logger

	now func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// Config configures a Tracker.
type Config struct {
	Store store.Store
	// Retention drops presence records not refreshed within it.
	Retention   time.Duration
	SweepPeriod time.Duration
	Logger      zerolog.Logger
}

// New creates a connection tracker.
func New(cfg Config) *Tracker {
	return &Tracker{
		store:      cfg.Store,
		retention:  cfg.Retention,
		sweepEvery: cfg.SweepPeriod,
		log:        cfg.Logger.With().Str("component", "conntrack").Logger(),
		now:        time.Now,
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Handle is the bus callback for events/client/# topics.
func (t *Tracker) Handle(topic, payload string) {
	var ev clientEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		t.log.Warn().Err(err).Str("topic", topic).Msg("malformed client event")
		return
	}

	id, err := ParseClientID(ev.ClientID)
	if err != nil {
		t.log.Warn().Err(err).Str("client_id", ev.ClientID).Msg("skipping unrecognised client id")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	switch topic {
	case topicConnected:
		t.connected(ctx, id, ev)
	case topicDisconnected:
		t.disconnected(ctx, id, ev)
	default:
		t.log.Debug().Str("topic", topic).Msg("unknown client event topic")
	}
}

func (t *Tracker) connected(ctx context.Context, id Identity, ev clientEvent) {
	key := recordKey(id.Device, id.Map, id.DeviceID)
	t.store.HSet(ctx, key, "client_id", ev.ClientID)
	t.store.HSet(ctx, key, "uuid", id.UUID)
	t.store.HSet(ctx, key, "username", ev.Username)
	t.store.HSet(ctx, key, "ip", ev.IPAddress)
	t.store.HSet(ctx, key, "connected_at", t.now().Format(time.RFC3339Nano))
	t.store.HDel(ctx, key, "disconnected_at")
	t.log.Info().Str("device", id.Device).Str("map", id.Map).Str("id", id.DeviceID).Str("ip", ev.IPAddress).Msg("client connected")
}

func (t *Tracker) disconnected(ctx context.Context, id Identity, ev clientEvent) {
	t.store.Del(ctx, recordKey(id.Device, id.Map, id.DeviceID))
	t.log.Info().Str("device", id.Device).Str("map", id.Map).Str("id", id.DeviceID).Str("reason", ev.Reason).Msg("client disconnected")
}

// Record returns one presence record.
func (t *Tracker) Record(ctx context.Context, device, mapName, deviceID string) (map[string]string, bool) {
	rec := t.store.HGetAll(ctx, recordKey(device, mapName, deviceID))
	return rec, len(rec) > 0
}

// List returns every live presence record keyed by record key.
func (t *Tracker) List(ctx context.Context) map[string]map[string]string {
	out := make(map[string]map[string]string)
	for _, key := range t.store.Scan(ctx, RecordKeyPattern) {
		if rec := t.store.HGetAll(ctx, key); len(rec) > 0 {
			out[key] = rec
		}
	}
	return out
}

// StartSweeper runs the stale-record sweep until Stop is called.
func (t *Tracker) StartSweeper() {
	go func() {
		defer close(t.done)
		jitter := t.sweepEvery / 4
		scanloop.Run(t.stopCh, t.sweepEvery, jitter, t.sweep)
	}()
}

// Stop halts the sweeper and waits for a running sweep to finish.
func (t *Tracker) Stop() {
	t.stopOnce.Do(func() { close(t.stopCh) })
	<-t.done
}

// sweep drops records whose connect timestamp is past retention. Covers
// clients that vanished without a disconnect event.
func (t *Tracker) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := t.now().Add(-t.retention)
	removed := 0
	for _, key := range t.store.Scan(ctx, RecordKeyPattern) {
		raw, ok := t.store.HGet(ctx, key, "connected_at")
		if !ok {
			continue
		}
		connectedAt, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil || connectedAt.Before(cutoff) {
			if t.store.Del(ctx, key) {
				removed++
			}
		}
	}
	if removed > 0 {
		t.log.Info().Int("removed", removed).Msg("swept stale connection records")
	}
}
