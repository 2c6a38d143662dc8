package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/codebuildervaibhav/call-transcription/internal/types"
)

// RedisCache stores results as JSON strings under "<prefix>:<key>".
// Entries never expire.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache connects to Redis and verifies the connection
func NewRedisCache(ctx context.Context, opts *redis.Options, prefix string) (*RedisCache, error) {
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	return &RedisCache{client: client, prefix: prefix}, nil
}

func (r *RedisCache) fullKey(key string) string {
	if r.prefix == "" {
		return key
	}
	return r.prefix + ":" + key
}

// Get loads the cached result for key
func (r *RedisCache) Get(ctx context.Context, key string) (*types.TranscriptResult, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}

	raw, err := r.client.Get(ctx, r.fullKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %q: %w", key, err)
	}

	var result types.TranscriptResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("redis unmarshal %q: %w", key, err)
	}
	return &result, nil
}

// Put stores the result for key with no expiration
func (r *RedisCache) Put(ctx context.Context, key string, result *types.TranscriptResult) error {
	if err := checkKey(key); err != nil {
		return err
	}

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("redis marshal %q: %w", key, err)
	}
	if err := r.client.Set(ctx, r.fullKey(key), data, 0).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

// Close releases the connection pool
func (r *RedisCache) Close() error {
	return r.client.Close()
}
