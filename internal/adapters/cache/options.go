package cache

import "time"

// MemoryOption applies a configuration option to Memory.
type MemoryOption func(*Memory)

// WithMaxEntries bounds the number of entries. n <= 0 disables eviction.
func WithMaxEntries(n int) MemoryOption {
	return func(m *Memory) {
		m.maxEntries = n
	}
}

// WithDefaultTTL sets the TTL used when Set is called with a zero TTL.
func WithDefaultTTL(ttl time.Duration) MemoryOption {
	return func(m *Memory) {
		m.ttl = ttl
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		if now != nil {
			m.now = now
		}
	}
}

// RedisOption applies a configuration option to Redis.
type RedisOption func(*Redis)

// WithRedisTTL sets the TTL used when Set is called with a zero TTL.
func WithRedisTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithPrefix sets the key namespace.
func WithPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		r.prefix = prefix
	}
}
