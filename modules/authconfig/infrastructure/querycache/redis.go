package querycache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jacksonlee411/authhooks/modules/authconfig/domain/types"
	"github.com/redis/go-redis/v9"
)

const DefaultRedisPrefix = "authhooks:auth_config:"

// RedisClient is the subset of go-redis used by the backend.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type RedisBackend struct {
	client RedisClient
	prefix string
}

func NewRedisBackend(client RedisClient, prefix string) *RedisBackend {
	if strings.TrimSpace(prefix) == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisBackend{client: client, prefix: prefix}
}

// NewRedisBackendFromURL connects with a redis:// or rediss:// URL.
func NewRedisBackendFromURL(rawURL string, prefix string) (*RedisBackend, *redis.Client, error) {
	opts, err := redis.ParseURL(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, nil, fmt.Errorf("querycache: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	return NewRedisBackend(client, prefix), client, nil
}

func (b *RedisBackend) key(projectRef string) string { return b.prefix + projectRef }

func (b *RedisBackend) Get(ctx context.Context, projectRef string) (types.RemoteConfig, bool, error) {
	raw, err := b.client.Get(ctx, b.key(projectRef)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var cfg types.RemoteConfig
	if err := json.Unmarshal(raw, &cfg); err != nil || cfg == nil {
		// Unreadable entries are treated as a miss and replaced on the next fetch.
		return nil, false, nil
	}
	return cfg, true, nil
}

func (b *RedisBackend) Set(ctx context.Context, projectRef string, cfg types.RemoteConfig, ttl time.Duration) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	if ttl < 0 {
		ttl = 0
	}
	return b.client.Set(ctx, b.key(projectRef), raw, ttl).Err()
}

func (b *RedisBackend) Delete(ctx context.Context, projectRef string) error {
	return b.client.Del(ctx, b.key(projectRef)).Err()
}
