package broadcast

import "time"

// RedisOption configures a RedisPublisher.
type RedisOption func(*RedisPublisher)

// WithChannelPrefix sets the prefix prepended to every channel name.
func WithChannelPrefix(prefix string) RedisOption {
	return func(p *RedisPublisher) {
		p.prefix = prefix
	}
}

// WithClock overrides the envelope timestamp source.
func WithClock(now func() time.Time) RedisOption {
	return func(p *RedisPublisher) {
		if now != nil {
			p.now = now
		}
	}
}

// MemoryOption configures a Memory publisher.
type MemoryOption func(*Memory)

// WithLimit bounds how many messages are retained.
func WithLimit(n int) MemoryOption {
	return func(m *Memory) {
		if n > 0 {
			m.limit = n
		}
	}
}
