package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key prefixes shared by every instance pointing at the same Redis.
const (
	AnalyticsPrefix = "analytics:"
)

// Redis is an optional shared cache. A nil *Redis is valid and behaves as an
// always-empty cache, so callers never have to check whether Redis is
// configured.
type Redis struct {
	client *redis.Client
}

// Connect dials Redis and pings it. On failure the client is closed and the
// error returned so the caller can carry on without a shared cache.
func Connect(ctx context.Context, addr, password string, db int) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return &Redis{client: client}, nil
}

// Get returns the cached bytes for key.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	if r == nil {
		return nil, false
	}
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	return data, true
}

// Set stores data with a TTL. Errors are dropped; a failed write only costs
// a recomputation later.
func (r *Redis) Set(ctx context.Context, key string, data []byte, ttl time.Duration) {
	if r == nil {
		return
	}
	r.client.Set(ctx, key, data, ttl)
}

// InvalidatePattern removes all keys matching a glob pattern
func (r *Redis) InvalidatePattern(ctx context.Context, pattern string) error {
	if r == nil {
		return nil
	}
	iter := r.client.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}

// Ping reports whether the connection is working.
func (r *Redis) Ping(ctx context.Context) error {
	if r == nil {
		return errors.New("redis not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	if r == nil {
		return nil
	}
	return r.client.Close()
}
