package robot

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hprobot/fleetd/internal/store"
)

const dateLayout = "2006-01-02"

// CursorKeyPattern matches every open-interval cursor; the daily reset
// scheduler scans it to roll all robots over the midnight boundary.
const CursorKeyPattern = "robot:current_state:*"

func statsKey(mapName, robotID string, day time.Time) string {
	return "robot:daily_stats:" + mapName + ":" + robotID + ":" + day.Format(dateLayout)
}

func cursorKey(mapName, robotID string) string {
	return "robot:current_state:" + mapName + ":" + robotID
}

// ParseCursorKey extracts the map and robot from a cursor key.
func ParseCursorKey(key string) (mapName, robotID string, ok bool) {
	parts := strings.SplitN(key, ":", 4)
	if len(parts) != 4 || parts[0] != "robot" || parts[1] != "current_state" {
		return "", "", false
	}
	return parts[2], parts[3], true
}

// DailyStats accumulates per-robot utilisation time into per-date hash
// buckets. A cursor records the currently open interval; closing it adds
// the elapsed seconds to the bucket of the date the interval started on,
// split at midnight when it spans days.
type DailyStats struct {
	store store.Store
	ttl   time.Duration
	log   zerolog.Logger

	now func() time.Time
}

// DailyStatsConfig configures a DailyStats service.
type DailyStatsConfig struct {
	Store store.Store
	// BucketTTL is applied to each date bucket on every write.
	BucketTTL time.Duration
	Logger    zerolog.Logger
}

// NewDailyStats creates the daily utilisation tracker.
func NewDailyStats(cfg DailyStatsConfig) *DailyStats {
	return &DailyStats{
		store: cfg.Store,
		ttl:   cfg.BucketTTL,
		log:   cfg.Logger.With().Str("component", "dailystats").Logger(),
		now:   time.Now,
	}
}

// StartState closes the currently open interval, if any, and opens a new
// one for state at t. Callers should skip the call when the state did
// not change, otherwise churn resets started_at without accumulating
// anything in between.
func (d *DailyStats) StartState(ctx context.Context, mapName, robotID string, state OperationState, t time.Time) {
	if t.IsZero() {
		t = d.now()
	}

	key := cursorKey(mapName, robotID)
	cursor := d.store.HGetAll(ctx, key)
	if prev, startedAt, ok := parseCursor(cursor); ok {
		d.splitAndAdd(ctx, mapName, robotID, prev, startedAt, t)
	}

	d.store.HSet(ctx, key, "state", string(state))
	d.store.HSet(ctx, key, "started_at", t.Format(time.RFC3339Nano))
	d.log.Debug().Str("map", mapName).Str("robot", robotID).Str("state", string(state)).Msg("state started")
}

// CursorState returns the open interval, if any.
func (d *DailyStats) CursorState(ctx context.Context, mapName, robotID string) (OperationState, time.Time, bool) {
	return parseCursor(d.store.HGetAll(ctx, cursorKey(mapName, robotID)))
}

func parseCursor(cursor map[string]string) (OperationState, time.Time, bool) {
	stateStr, ok1 := cursor["state"]
	startedStr, ok2 := cursor["started_at"]
	if !ok1 || !ok2 {
		return "", time.Time{}, false
	}
	startedAt, err := time.Parse(time.RFC3339Nano, startedStr)
	if err != nil {
		return "", time.Time{}, false
	}
	return OperationState(stateStr), startedAt, true
}

// splitAndAdd accumulates the interval into its date buckets. The usual
// case is a same-day interval; the midnight walk is the recovery path
// for missed daily reset fires.
func (d *DailyStats) splitAndAdd(ctx context.Context, mapName, robotID string, state OperationState, startedAt, endedAt time.Time) {
	if !endedAt.After(startedAt) {
		return
	}

	startDay := startOfDay(startedAt)
	endDay := startOfDay(endedAt)

	if startDay.Equal(endDay) {
		d.addDuration(ctx, mapName, robotID, state, endedAt.Sub(startedAt).Seconds(), startDay)
		return
	}

	d.log.Warn().
		Str("map", mapName).Str("robot", robotID).
		Str("from", startDay.Format(dateLayout)).Str("to", endDay.Format(dateLayout)).
		Msg("state interval spans multiple days, daily reset may have been missed")

	cur := startedAt
	for day := startDay; !day.After(endDay); day = day.AddDate(0, 0, 1) {
		segEnd := endedAt
		if day.Before(endDay) {
			segEnd = day.AddDate(0, 0, 1)
		}
		d.addDuration(ctx, mapName, robotID, state, segEnd.Sub(cur).Seconds(), day)
		cur = segEnd
	}
}

func (d *DailyStats) addDuration(ctx context.Context, mapName, robotID string, state OperationState, seconds float64, day time.Time) {
	if seconds <= 0 {
		return
	}
	key := statsKey(mapName, robotID, day)

	total := seconds
	if raw, ok := d.store.HGet(ctx, key, string(state)); ok {
		if prev, err := strconv.ParseFloat(raw, 64); err == nil {
			total += prev
		}
	}
	d.store.HSet(ctx, key, string(state), strconv.FormatFloat(total, 'f', -1, 64))
	d.store.Expire(ctx, key, d.ttl)
}

// SeedDay overwrites one date bucket with fixed values and opens a fresh
// cursor for cursorState at now. Admin fixture endpoints use it.
func (d *DailyStats) SeedDay(ctx context.Context, mapName, robotID string, day time.Time, buckets map[OperationState]float64, cursorState OperationState) {
	key := statsKey(mapName, robotID, startOfDay(day))
	for state, secs := range buckets {
		d.store.HSet(ctx, key, string(state), strconv.FormatFloat(secs, 'f', -1, 64))
	}
	d.store.Expire(ctx, key, d.ttl)

	cursor := cursorKey(mapName, robotID)
	d.store.HSet(ctx, cursor, "state", string(cursorState))
	d.store.HSet(ctx, cursor, "started_at", d.now().Format(time.RFC3339Nano))
}

// Get returns the accumulated seconds per bucket for one date. When the
// open cursor started on that date, the still-running interval is
// included.
func (d *DailyStats) Get(ctx context.Context, mapName, robotID string, day time.Time) map[OperationState]float64 {
	day = startOfDay(day)
	raw := d.store.HGetAll(ctx, statsKey(mapName, robotID, day))

	result := make(map[OperationState]float64, len(OperationStates))
	for _, st := range OperationStates {
		result[st] = 0
		if v, ok := raw[string(st)]; ok {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				result[st] = f
			}
		}
	}

	if state, startedAt, ok := parseCursor(d.store.HGetAll(ctx, cursorKey(mapName, robotID))); ok {
		if startOfDay(startedAt).Equal(day) {
			result[state] += d.now().Sub(startedAt).Seconds()
		}
	}
	return result
}

// StateBreakdown is one bucket of a formatted report.
type StateBreakdown struct {
	Seconds    float64 `json:"seconds"`
	Minutes    float64 `json:"minutes"`
	Hours      float64 `json:"hours"`
	Percentage float64 `json:"percentage"`
}

// FormattedStats is the rolled-up daily report served over the API.
type FormattedStats struct {
	Date         string                            `json:"date"`
	TotalSeconds float64                           `json:"total_seconds"`
	TotalHours   float64                           `json:"total_hours"`
	States       map[OperationState]StateBreakdown `json:"states"`
}

// Formatted returns the daily report with per-bucket percentages.
func (d *DailyStats) Formatted(ctx context.Context, mapName, robotID string, day time.Time) FormattedStats {
	day = startOfDay(day)
	stats := d.Get(ctx, mapName, robotID, day)

	var total float64
	for _, secs := range stats {
		total += secs
	}

	out := FormattedStats{
		Date:         day.Format(dateLayout),
		TotalSeconds: total,
		TotalHours:   round2(total / 3600),
		States:       make(map[OperationState]StateBreakdown, len(stats)),
	}
	for state, secs := range stats {
		var pct float64
		if total > 0 {
			pct = secs / total * 100
		}
		out.States[state] = StateBreakdown{
			Seconds:    round1(secs),
			Minutes:    round1(secs / 60),
			Hours:      round2(secs / 3600),
			Percentage: round1(pct),
		}
	}
	return out
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func round1(x float64) float64 { return math.Round(x*10) / 10 }
func round2(x float64) float64 { return math.Round(x*100) / 100 }
