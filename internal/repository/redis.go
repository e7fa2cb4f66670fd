package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"recmirror/internal/config"
	"recmirror/internal/models"

	"github.com/redis/go-redis/v9"
)

type RedisStatusCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

func NewRedisStatusCache(client *redis.Client, ttl time.Duration) *RedisStatusCache {
	return &RedisStatusCache{
		client: client,
		ttl:    ttl,
	}
}

type bulkProgressEntry struct {
	Done  int `json:"done"`
	Total int `json:"total"`
}

func statusKey(recordID int64) string {
	return fmt.Sprintf("record_status:%d", recordID)
}

func bulkKey(groupID int64) string {
	return fmt.Sprintf("bulk_progress:%d", groupID)
}

func (r *RedisStatusCache) SetStatus(ctx context.Context, snapshot *models.StatusSnapshot) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal status snapshot: %w", err)
	}

	if err := r.client.Set(ctx, statusKey(snapshot.RecordID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set status in redis: %w", err)
	}
	return nil
}

func (r *RedisStatusCache) GetStatus(ctx context.Context, recordID int64) (*models.StatusSnapshot, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, statusKey(recordID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get status from redis: %w", err)
	}

	var snapshot models.StatusSnapshot
	if err := json.Unmarshal([]byte(val), &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status snapshot: %w", err)
	}
	return &snapshot, nil
}

func (r *RedisStatusCache) SetBulkProgress(ctx context.Context, groupID int64, done, total int) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	data, err := json.Marshal(bulkProgressEntry{Done: done, Total: total})
	if err != nil {
		return fmt.Errorf("failed to marshal bulk progress: %w", err)
	}

	if err := r.client.Set(ctx, bulkKey(groupID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set bulk progress in redis: %w", err)
	}
	return nil
}

func (r *RedisStatusCache) GetBulkProgress(ctx context.Context, groupID int64) (int, int, error) {
	if r.client == nil {
		return 0, 0, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, bulkKey(groupID)).Result()
	if err == redis.Nil {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("failed to get bulk progress from redis: %w", err)
	}

	var entry bulkProgressEntry
	if err := json.Unmarshal([]byte(val), &entry); err != nil {
		return 0, 0, fmt.Errorf("failed to unmarshal bulk progress: %w", err)
	}
	return entry.Done, entry.Total, nil
}

func (r *RedisStatusCache) ClearBulkProgress(ctx context.Context, groupID int64) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.Del(ctx, bulkKey(groupID)).Err(); err != nil {
		return fmt.Errorf("failed to delete bulk progress from redis: %w", err)
	}
	return nil
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
