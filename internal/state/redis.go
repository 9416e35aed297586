package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go-portal-harvester/internal/models"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "harvester:"

// RedisStore keeps each state as a JSON value under a per-source key, so
// several harvester hosts can share one rotation.
type RedisStore struct {
	client *redis.Client
	source string
}

func NewRedisStore(client *redis.Client, source string) *RedisStore {
	return &RedisStore{client: client, source: source}
}

// NewRedisClient parses a redis:// URL and pings the server.
func NewRedisClient(ctx context.Context, rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis unreachable: %w", err)
	}
	return client, nil
}

func (r *RedisStore) key(kind string) string {
	return keyPrefix + r.source + ":" + kind
}

func (r *RedisStore) LoadCycle(ctx context.Context) (*models.CycleState, error) {
	var s models.CycleState
	ok, err := r.get(ctx, r.key("cycle"), &s)
	if err != nil || !ok {
		return nil, err
	}
	return &s, nil
}

func (r *RedisStore) SaveCycle(ctx context.Context, s *models.CycleState) error {
	return r.set(ctx, r.key("cycle"), s)
}

func (r *RedisStore) LoadSession(ctx context.Context) (*models.SessionState, error) {
	var s models.SessionState
	ok, err := r.get(ctx, r.key("session"), &s)
	if err != nil || !ok {
		return nil, err
	}
	return &s, nil
}

func (r *RedisStore) SaveSession(ctx context.Context, s *models.SessionState) error {
	return r.set(ctx, r.key("session"), s)
}

func (r *RedisStore) get(ctx context.Context, key string, dst any) (bool, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return true, nil
}

func (r *RedisStore) set(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	if err := r.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}
