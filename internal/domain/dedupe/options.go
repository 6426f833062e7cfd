package dedupe

import "time"

// Option applies a configuration option to the in-memory deduper.
type Option func(*inMemoryDeduper)

// WithMaxSize sets the maximum number of IDs kept in memory.
// maxSize <= 0 disables eviction.
func WithMaxSize(maxSize int) Option {
	return func(d *inMemoryDeduper) {
		d.maxSize = maxSize
	}
}

// RedisOption applies a configuration option to the Redis deduper.
type RedisOption func(*redisDeduper)

// WithTTL sets how long a recorded ID is remembered.
func WithTTL(ttl time.Duration) RedisOption {
	return func(d *redisDeduper) {
		if ttl > 0 {
			d.ttl = ttl
		}
	}
}

// WithKeyPrefix sets the Redis key prefix.
func WithKeyPrefix(prefix string) RedisOption {
	return func(d *redisDeduper) {
		d.prefix = prefix
	}
}
