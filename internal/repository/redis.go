package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"adspot/internal/config"
	"adspot/internal/models"

	"github.com/redis/go-redis/v9"
)

type RedisAvailabilityCache struct {
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

func NewRedisAvailabilityCache(client *redis.Client, ttl time.Duration) *RedisAvailabilityCache {
	return &RedisAvailabilityCache{
		client: client,
		ttl:    ttl,
	}
}

func availabilityKey(placement string, day time.Time) string {
	return fmt.Sprintf("availability:%s:%s", placement, day.Format(models.DateLayout))
}

func (r *RedisAvailabilityCache) Get(ctx context.Context, placement string, day time.Time) ([]models.Availability, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, availabilityKey(placement, day)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get availability from redis: %w", err)
	}

	var entries []models.Availability
	if err := json.Unmarshal([]byte(val), &entries); err != nil {
		return nil, fmt.Errorf("failed to unmarshal availability: %w", err)
	}

	return entries, nil
}

func (r *RedisAvailabilityCache) Set(ctx context.Context, placement string, day time.Time, entries []models.Availability) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to marshal availability: %w", err)
	}

	if err := r.client.Set(ctx, availabilityKey(placement, day), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set availability in redis: %w", err)
	}

	return nil
}

func (r *RedisAvailabilityCache) Invalidate(ctx context.Context, placement string, days ...time.Time) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if len(days) == 0 {
		return nil
	}

	keys := make([]string, 0, len(days))
	for _, day := range days {
		keys = append(keys, availabilityKey(placement, day))
	}

	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to invalidate availability in redis: %w", err)
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
