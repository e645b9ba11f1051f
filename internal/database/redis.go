package database

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/bastion/internal/config"
	"github.com/redis/go-redis/v9"
)

// NewRedisClient connects to the Redis instance named by cfg.URL and verifies it
func NewRedisClient(cfg *config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return client, nil
}
