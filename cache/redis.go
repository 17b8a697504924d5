package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultRedisPrefix namespaces gateway entries inside a shared Redis.
const DefaultRedisPrefix = "apigw:cache:"

// RedisCache implements the Cache interface on top of Redis. Records use the
// same {data, expires} format as FileCache; Redis TTL handles eviction and the
// embedded expiry is still checked on read.
type RedisCache struct {
	client *redis.Client
	prefix string
	log    zerolog.Logger
	now    func() time.Time
}

// NewRedisCache wraps an existing client. An empty prefix uses DefaultRedisPrefix.
func NewRedisCache(client *redis.Client, prefix string, log zerolog.Logger) *RedisCache {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisCache{
		client: client,
		prefix: prefix,
		log:    log.With().Str("component", "rediscache").Logger(),
		now:    time.Now,
	}
}

func (rc *RedisCache) key(key string) string {
	return rc.prefix + FileName(key)
}

// Get implements Reader
func (rc *RedisCache) Get(ctx context.Context, key string) (json.RawMessage, bool) {
	raw, err := rc.client.Get(ctx, rc.key(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			rc.log.Warn().Err(err).Str("key", key).Msg("redis get")
		}
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		rc.log.Warn().Err(err).Str("key", key).Msg("corrupt redis entry")
		return nil, false
	}
	if entry.Expired(rc.now()) {
		rc.Delete(ctx, key)
		return nil, false
	}
	return entry.Data, true
}

// Set implements Writer
func (rc *RedisCache) Set(ctx context.Context, key string, payload json.RawMessage, ttl time.Duration) bool {
	data, err := json.Marshal(NewEntry(payload, rc.now(), ttl))
	if err != nil {
		rc.log.Error().Err(err).Str("key", key).Msg("encode redis entry")
		return false
	}
	if err := rc.client.Set(ctx, rc.key(key), data, ttl).Err(); err != nil {
		rc.log.Error().Err(err).Str("key", key).Msg("redis set")
		return false
	}
	return true
}

// Delete implements Writer
func (rc *RedisCache) Delete(ctx context.Context, key string) bool {
	if err := rc.client.Del(ctx, rc.key(key)).Err(); err != nil {
		rc.log.Error().Err(err).Str("key", key).Msg("redis del")
		return false
	}
	return true
}
