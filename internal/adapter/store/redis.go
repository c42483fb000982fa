package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ragswitch/ragswitch/internal/domain"
	"github.com/ragswitch/ragswitch/internal/port"
)

// Redis key layout shared by every process instance.
const (
	configHashKey   = "llm:provider:configs"
	activeChatKey   = "llm:provider:active"
	activeEmbedKey  = "llm:provider:active:embedding"
	tagSetKey       = "ragTag"
	taskProgressKey = "task:progress:"
	taskStopKey     = "task:stop:"
	taskProgressTTL = time.Hour
	taskStopTTL     = 5 * time.Minute
)

// RedisStore implements port.ConfigStore on a shared Redis instance.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(addr, password string, db int) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisStore{rdb: rdb}, nil
}

// NewRedisStoreWithClient wraps an existing client. Used by tests.
func NewRedisStoreWithClient(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// Close releases the underlying client.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

// --- Provider configurations ---

func (s *RedisStore) GetConfig(ctx context.Context, id string) (*domain.ProviderConfig, error) {
	raw, err := s.rdb.HGet(ctx, configHashKey, id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, port.ErrConfigNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get config %s: %w", id, err)
	}

	var cfg domain.ProviderConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", id, err)
	}
	return &cfg, nil
}

func (s *RedisStore) ListConfigs(ctx context.Context) ([]*domain.ProviderConfig, error) {
	raw, err := s.rdb.HGetAll(ctx, configHashKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list configs: %w", err)
	}

	configs := make([]*domain.ProviderConfig, 0, len(raw))
	for id, v := range raw {
		var cfg domain.ProviderConfig
		if err := json.Unmarshal([]byte(v), &cfg); err != nil {
			return nil, fmt.Errorf("decode config %s: %w", id, err)
		}
		configs = append(configs, &cfg)
	}
	return configs, nil
}

func (s *RedisStore) PutConfig(ctx context.Context, cfg *domain.ProviderConfig) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config %s: %w", cfg.ID, err)
	}
	if err := s.rdb.HSet(ctx, configHashKey, cfg.ID, raw).Err(); err != nil {
		return fmt.Errorf("put config %s: %w", cfg.ID, err)
	}
	return nil
}

func (s *RedisStore) DeleteConfig(ctx context.Context, id string) error {
	n, err := s.rdb.HDel(ctx, configHashKey, id).Result()
	if err != nil {
		return fmt.Errorf("delete config %s: %w", id, err)
	}
	if n == 0 {
		return port.ErrConfigNotFound
	}
	return nil
}

// --- Active pointers ---

func (s *RedisStore) GetActiveChatID(ctx context.Context) (string, error) {
	return s.getPointer(ctx, activeChatKey)
}

func (s *RedisStore) SetActiveChatID(ctx context.Context, id string) error {
	return s.rdb.Set(ctx, activeChatKey, id, 0).Err()
}

func (s *RedisStore) GetActiveEmbeddingID(ctx context.Context) (string, error) {
	return s.getPointer(ctx, activeEmbedKey)
}

func (s *RedisStore) SetActiveEmbeddingID(ctx context.Context, id string) error {
	return s.rdb.Set(ctx, activeEmbedKey, id, 0).Err()
}

// getPointer returns "" when the pointer is unset.
func (s *RedisStore) getPointer(ctx context.Context, key string) (string, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	return v, nil
}

// --- Knowledge tags ---

func (s *RedisStore) ListTags(ctx context.Context) ([]string, error) {
	tags, err := s.rdb.SMembers(ctx, tagSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	return tags, nil
}

func (s *RedisStore) AddTag(ctx context.Context, tag string) error {
	return s.rdb.SAdd(ctx, tagSetKey, tag).Err()
}

func (s *RedisStore) RemoveTag(ctx context.Context, tag string) error {
	return s.rdb.SRem(ctx, tagSetKey, tag).Err()
}

func (s *RedisStore) ClearTags(ctx context.Context) error {
	return s.rdb.Del(ctx, tagSetKey).Err()
}

func (s *RedisStore) CountTags(ctx context.Context) (int64, error) {
	return s.rdb.SCard(ctx, tagSetKey).Result()
}

// --- Task progress and cancellation ---

func (s *RedisStore) GetTaskProgress(ctx context.Context, taskID string) (*domain.TaskProgress, error) {
	raw, err := s.rdb.Get(ctx, taskProgressKey+taskID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, port.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task progress %s: %w", taskID, err)
	}

	var p domain.TaskProgress
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("decode task progress %s: %w", taskID, err)
	}
	return &p, nil
}

func (s *RedisStore) SetTaskProgress(ctx context.Context, progress *domain.TaskProgress) error {
	raw, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("encode task progress %s: %w", progress.TaskID, err)
	}
	if err := s.rdb.Set(ctx, taskProgressKey+progress.TaskID, raw, taskProgressTTL).Err(); err != nil {
		return fmt.Errorf("set task progress %s: %w", progress.TaskID, err)
	}
	return nil
}

func (s *RedisStore) RequestCancel(ctx context.Context, taskID string) error {
	return s.rdb.Set(ctx, taskStopKey+taskID, "STOP", taskStopTTL).Err()
}

func (s *RedisStore) IsCancelRequested(ctx context.Context, taskID string) (bool, error) {
	n, err := s.rdb.Exists(ctx, taskStopKey+taskID).Result()
	if err != nil {
		return false, fmt.Errorf("check cancel %s: %w", taskID, err)
	}
	return n > 0, nil
}

func (s *RedisStore) ClearCancel(ctx context.Context, taskID string) error {
	return s.rdb.Del(ctx, taskStopKey+taskID).Err()
}
