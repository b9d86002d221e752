// Package store abstracts the shared key/value store: hash maps, string
// values with TTL, and pub/sub fan-out. Every mutator returns a boolean
// success and readers return zero values on failure, so callers degrade
// instead of crashing when the store is unreachable.
package store

import (
	"context"
	"time"
)

// Handler receives one pub/sub message.
type Handler func(channel, payload string)

// Store is the capability surface the controller requires.
//
// Occupancy relies on the two conditional operations: HSetNX is the
// acquire side and HDelIfEquals the release side, so a release can never
// clear an entry a concurrent acquire just took.
type Store interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttl time.Duration) bool
	Del(ctx context.Context, key string) bool
	Expire(ctx context.Context, key string, ttl time.Duration) bool

	HGet(ctx context.Context, key, field string) (string, bool)
	HSet(ctx context.Context, key, field, value string) bool
	HSetNX(ctx context.Context, key, field, value string) bool
	HGetAll(ctx context.Context, key string) map[string]string
	HDel(ctx context.Context, key, field string) bool
	HDelIfEquals(ctx context.Context, key, field, want string) bool
	HExists(ctx context.Context, key, field string) bool

	// Scan returns all keys matching a glob pattern ('*' wildcard).
	Scan(ctx context.Context, pattern string) []string

	Publish(ctx context.Context, channel, payload string) bool
	// Subscribe registers a handler for a channel pattern ('*' wildcard).
	// The returned cancel function stops delivery; ok is false when the
	// subscription could not be established.
	Subscribe(ctx context.Context, pattern string, h Handler) (cancel func(), ok bool)

	Close() error
}
