package dedupe

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisDeduper shares seen IDs across instances using SET NX with a TTL.
type redisDeduper struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
	size   atomic.Int64
}

// NewRedisDeduper creates a deduper backed by Redis. Size reports IDs
// recorded by this process only.
func NewRedisDeduper(client redis.Cmdable, opts ...RedisOption) Deduper {
	d := &redisDeduper{
		client: client,
		prefix: "leadtier:dedupe:",
		ttl:    24 * time.Hour,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *redisDeduper) SeenAndRecord(ctx context.Context, id string) (bool, error) {
	ok, err := d.client.SetNX(ctx, d.prefix+id, 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to record interaction %s: %w", id, err)
	}
	if !ok {
		return true, nil
	}
	d.size.Add(1)
	return false, nil
}

func (d *redisDeduper) Unrecord(ctx context.Context, id string) error {
	n, err := d.client.Del(ctx, d.prefix+id).Result()
	if err != nil {
		return fmt.Errorf("failed to unrecord interaction %s: %w", id, err)
	}
	if n > 0 {
		d.size.Add(-1)
	}
	return nil
}

func (d *redisDeduper) Size() int64 {
	return d.size.Load()
}
