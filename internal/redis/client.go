// Package redis builds the shared Redis client used by the media dedup
// cache and the activity feed.
package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sitesync/porter/internal/config"
)

const connectionTimeout = 5 * time.Second

// NewClient creates a Redis client from configuration and verifies
// connectivity. Accepts both redis:// URLs and plain host:port addresses.
func NewClient(cfg config.RedisConfig) (*redis.Client, error) {
	client, err := build(cfg)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	if pingErr := client.Ping(pingCtx).Err(); pingErr != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", pingErr)
	}
	return client, nil
}

func build(cfg config.RedisConfig) (*redis.Client, error) {
	if strings.Contains(cfg.URL, "://") {
		opts, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		if cfg.Password != "" {
			opts.Password = cfg.Password
		}
		return redis.NewClient(opts), nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.URL,
		Password: cfg.Password,
		DB:       cfg.DB,
	}), nil
}
