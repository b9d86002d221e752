package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// hdelIfEquals deletes a hash field only while it still holds the
// expected value. Runs server-side so it is linearisable with HSETNX.
var hdelIfEquals = redis.NewScript(`
if redis.call('HGET', KEYS[1], ARGV[1]) == ARGV[2] then
  return redis.call('HDEL', KEYS[1], ARGV[1])
end
return 0
`)

// Redis implements Store on a Redis server.
type Redis struct {
	client *redis.Client
	log    zerolog.Logger

	subMu   sync.Mutex
	pubsubs []*redis.PubSub
}

// RedisConfig configures the Redis store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Logger   zerolog.Logger
}

// NewRedis connects to Redis and verifies the connection with a ping.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &Redis{
		client: client,
		log:    cfg.Logger.With().Str("component", "store").Logger(),
	}, nil
}

func (r *Redis) fail(op string, err error) bool {
	if err != nil && err != redis.Nil {
		r.log.Warn().Err(err).Str("op", op).Msg("store operation failed")
	}
	return false
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool) {
	v, err := r.client.Get(ctx, key).Result()
	if err != nil {
		return "", r.fail("GET", err)
	}
	return v, true
}

func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) bool {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return r.fail("SET", err)
	}
	return true
}

func (r *Redis) Del(ctx context.Context, key string) bool {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return r.fail("DEL", err)
	}
	return true
}

func (r *Redis) Expire(ctx context.Context, key string, ttl time.Duration) bool {
	ok, err := r.client.Expire(ctx, key, ttl).Result()
	if err != nil {
		return r.fail("EXPIRE", err)
	}
	return ok
}

func (r *Redis) HGet(ctx context.Context, key, field string) (string, bool) {
	v, err := r.client.HGet(ctx, key, field).Result()
	if err != nil {
		return "", r.fail("HGET", err)
	}
	return v, true
}

func (r *Redis) HSet(ctx context.Context, key, field, value string) bool {
	if err := r.client.HSet(ctx, key, field, value).Err(); err != nil {
		return r.fail("HSET", err)
	}
	return true
}

func (r *Redis) HSetNX(ctx context.Context, key, field, value string) bool {
	set, err := r.client.HSetNX(ctx, key, field, value).Result()
	if err != nil {
		return r.fail("HSETNX", err)
	}
	return set
}

func (r *Redis) HGetAll(ctx context.Context, key string) map[string]string {
	m, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		r.fail("HGETALL", err)
		return map[string]string{}
	}
	return m
}

func (r *Redis) HDel(ctx context.Context, key, field string) bool {
	n, err := r.client.HDel(ctx, key, field).Result()
	if err != nil {
		return r.fail("HDEL", err)
	}
	return n > 0
}

func (r *Redis) HDelIfEquals(ctx context.Context, key, field, want string) bool {
	n, err := hdelIfEquals.Run(ctx, r.client, []string{key}, field, want).Int()
	if err != nil {
		return r.fail("HDELIFEQ", err)
	}
	return n > 0
}

func (r *Redis) HExists(ctx context.Context, key, field string) bool {
	exists, err := r.client.HExists(ctx, key, field).Result()
	if err != nil {
		return r.fail("HEXISTS", err)
	}
	return exists
}

func (r *Redis) Scan(ctx context.Context, pattern string) []string {
	var keys []string
	iter := r.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		r.fail("SCAN", err)
		return nil
	}
	return keys
}

func (r *Redis) Publish(ctx context.Context, channel, payload string) bool {
	if err := r.client.Publish(ctx, channel, payload).Err(); err != nil {
		return r.fail("PUBLISH", err)
	}
	return true
}

func (r *Redis) Subscribe(ctx context.Context, pattern string, h Handler) (func(), bool) {
	var ps *redis.PubSub
	if strings.ContainsAny(pattern, "*?") {
		ps = r.client.PSubscribe(ctx, pattern)
	} else {
		ps = r.client.Subscribe(ctx, pattern)
	}
	// Force the subscription to be established before we report success.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		r.fail("SUBSCRIBE", err)
		return nil, false
	}

	r.subMu.Lock()
	r.pubsubs = append(r.pubsubs, ps)
	r.subMu.Unlock()

	go func() {
		for msg := range ps.Channel() {
			h(msg.Channel, msg.Payload)
		}
	}()

	cancel := func() { _ = ps.Close() }
	return cancel, true
}

// Close closes all subscriptions and the client.
func (r *Redis) Close() error {
	r.subMu.Lock()
	for _, ps := range r.pubsubs {
		_ = ps.Close()
	}
	r.pubsubs = nil
	r.subMu.Unlock()
	return r.client.Close()
}
