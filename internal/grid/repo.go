package grid

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/maypok86/otter"
	"github.com/rs/zerolog"

	"github.com/hprobot/fleetd/internal/store"
)

// Key layout. Adjacency and occupancy live in separate hashes so that
// occupancy writes can use the store's conditional primitives without
// rewriting node JSON.
func nodesKey(mapName string) string    { return "nodes:" + mapName }
func occupiedKey(mapName string) string { return "nodes:occupied:" + mapName }

const nodeCacheTTL = 30 * time.Second

// Repo provides node lookup and occupancy CRUD over the store.
// Adjacency reads go through a small TTL cache; occupancy always hits
// the store, since it is the contended column.
type Repo struct {
	store store.Store
	cache otter.CacheWithVariableTTL[string, Node]
	log   zerolog.Logger
}

// NewRepo creates a node repository.
func NewRepo(st store.Store, logger zerolog.Logger) *Repo {
	cache, err := otter.MustBuilder[string, Node](4096).
		Cost(func(_ string, _ Node) uint32 { return 1 }).
		WithVariableTTL().
		Build()
	if err != nil {
		panic("grid: failed to create node cache: " + err.Error())
	}
	return &Repo{
		store: st,
		cache: cache,
		log:   logger.With().Str("component", "grid").Logger(),
	}
}

// GetNode returns one node's adjacency.
func (r *Repo) GetNode(ctx context.Context, mapName string, id int) (Node, bool) {
	cacheKey := mapName + "/" + strconv.Itoa(id)
	if n, ok := r.cache.Get(cacheKey); ok {
		return n, true
	}
	raw, ok := r.store.HGet(ctx, nodesKey(mapName), strconv.Itoa(id))
	if !ok {
		return Node{}, false
	}
	var n Node
	if err := json.Unmarshal([]byte(raw), &n); err != nil {
		r.log.Warn().Err(err).Str("map", mapName).Int("node", id).Msg("corrupt node record")
		return Node{}, false
	}
	n.ID = id
	r.cache.Set(cacheKey, n, nodeCacheTTL)
	return n, true
}

// GetAllNodes returns the full adjacency snapshot for a map.
func (r *Repo) GetAllNodes(ctx context.Context, mapName string) map[int]Node {
	raw := r.store.HGetAll(ctx, nodesKey(mapName))
	nodes := make(map[int]Node, len(raw))
	for field, val := range raw {
		id, err := strconv.Atoi(field)
		if err != nil {
			continue
		}
		var n Node
		if err := json.Unmarshal([]byte(val), &n); err != nil {
			r.log.Warn().Err(err).Str("map", mapName).Int("node", id).Msg("corrupt node record")
			continue
		}
		n.ID = id
		nodes[id] = n
	}
	return nodes
}

// PutNode writes one node's adjacency and invalidates the cache entry.
func (r *Repo) PutNode(ctx context.Context, mapName string, n Node) bool {
	raw, err := json.Marshal(n)
	if err != nil {
		return false
	}
	ok := r.store.HSet(ctx, nodesKey(mapName), strconv.Itoa(n.ID), string(raw))
	if ok {
		r.cache.Delete(mapName + "/" + strconv.Itoa(n.ID))
	}
	return ok
}

// HasNodes reports whether the map already carries any node data.
func (r *Repo) HasNodes(ctx context.Context, mapName string) bool {
	return len(r.store.HGetAll(ctx, nodesKey(mapName))) > 0
}

// Occupy claims a node for a robot. Succeeds only when the node exists
// and is currently unoccupied; if two claims race, exactly one wins.
func (r *Repo) Occupy(ctx context.Context, mapName string, id int, robotID string) bool {
	if !r.store.HExists(ctx, nodesKey(mapName), strconv.Itoa(id)) {
		return false
	}
	return r.store.HSetNX(ctx, occupiedKey(mapName), strconv.Itoa(id), robotID)
}

// Release clears occupancy on a node. With a non-empty robotID the
// release only applies while that robot still holds the node, so it can
// never clear a claim a concurrent Occupy just took.
func (r *Repo) Release(ctx context.Context, mapName string, id int, robotID string) bool {
	if robotID == "" {
		return r.store.HDel(ctx, occupiedKey(mapName), strconv.Itoa(id))
	}
	return r.store.HDelIfEquals(ctx, occupiedKey(mapName), strconv.Itoa(id), robotID)
}

// ReleaseAll sweeps the map and clears every node occupied by robotID,
// returning the number released.
func (r *Repo) ReleaseAll(ctx context.Context, mapName, robotID string) int {
	released := 0
	for field, holder := range r.store.HGetAll(ctx, occupiedKey(mapName)) {
		if holder != robotID {
			continue
		}
		if r.store.HDelIfEquals(ctx, occupiedKey(mapName), field, robotID) {
			released++
		}
	}
	return released
}

// OccupiedBy returns the robot holding a node, if any.
func (r *Repo) OccupiedBy(ctx context.Context, mapName string, id int) (string, bool) {
	return r.store.HGet(ctx, occupiedKey(mapName), strconv.Itoa(id))
}

// ListOccupied returns the node→robot occupancy snapshot for a map.
func (r *Repo) ListOccupied(ctx context.Context, mapName string) map[int]string {
	raw := r.store.HGetAll(ctx, occupiedKey(mapName))
	out := make(map[int]string, len(raw))
	for field, robot := range raw {
		id, err := strconv.Atoi(field)
		if err != nil {
			continue
		}
		out[id] = robot
	}
	return out
}

// Close releases the node cache.
func (r *Repo) Close() {
	r.cache.Close()
}
