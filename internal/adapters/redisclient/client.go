// Package redisclient opens the shared Redis connection used by the cache,
// deduper and broadcast adapters.
package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Options configures the connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// New connects to Redis and verifies the connection with PING.
func New(ctx context.Context, o Options) (*redis.Client, error) {
	if o.PoolSize <= 0 {
		o.PoolSize = 10
	}
	client := redis.NewClient(&redis.Options{
		Addr:         o.Addr,
		Password:     o.Password,
		DB:           o.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     o.PoolSize,
		MinIdleConns: o.PoolSize / 2,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", o.Addr, err)
	}
	return client, nil
}
