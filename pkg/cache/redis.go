// Package cache keeps ledger lookups that rarely change, such as the
// late-fee rate, in Redis as JSON under a "tuition:" key namespace.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "tuition:"

// ErrMiss is returned by Get when the key is absent or holds a value that no
// longer decodes into the destination.
var ErrMiss = errors.New("cache miss")

// RedisCache is a JSON cache on a Redis connection. Keys are namespaced so a
// shared Redis can also hold the student locks.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to redisURL (redis://[user:pass@]host:port/db) and
// checks the connection before returning.
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, errors.Wrap(err, "invalid redis url")
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrapf(err, "could not reach redis at %s", opt.Addr)
	}
	return &RedisCache{client: client}, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "encode %s", key)
	}
	return errors.Wrapf(c.client.Set(ctx, keyPrefix+key, data, ttl).Err(), "cache set %s", key)
}

// Get decodes the value under key into dest.
func (c *RedisCache) Get(ctx context.Context, key string, dest any) error {
	data, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrMiss
	}
	if err != nil {
		return errors.Wrapf(err, "cache get %s", key)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return ErrMiss
	}
	return nil
}

// GetOrSet returns the cached value under key, loading and storing it with
// load on a miss. When Redis itself fails the loaded value is returned
// uncached, so an outage only costs the extra load.
func GetOrSet[T any](c *RedisCache, ctx context.Context, key string, ttl time.Duration, load func() (T, error)) (T, error) {
	var cached T
	err := c.Get(ctx, key, &cached)
	if err == nil {
		return cached, nil
	}

	v, loadErr := load()
	if loadErr != nil {
		return v, loadErr
	}
	if errors.Is(err, ErrMiss) {
		_ = c.Set(ctx, key, v, ttl)
	}
	return v, nil
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return errors.Wrapf(c.client.Del(ctx, keyPrefix+key).Err(), "cache delete %s", key)
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Client exposes the connection for the distributed student locker.
func (c *RedisCache) Client() *redis.Client {
	return c.client
}
