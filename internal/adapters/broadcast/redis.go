package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher publishes JSON envelopes with Redis PUBLISH.
type RedisPublisher struct {
	client redis.Cmdable
	prefix string
	now    func() time.Time
}

// NewRedisPublisher creates a publisher over an existing client.
func NewRedisPublisher(client redis.Cmdable, opts ...RedisOption) *RedisPublisher {
	p := &RedisPublisher{
		client: client,
		prefix: "leadtier:",
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish encodes the payload and publishes it. Zero subscribers is not an
// error.
func (p *RedisPublisher) Publish(ctx context.Context, channel, event string, payload any) error {
	if channel == "" {
		return ErrEmptyChannel
	}
	b, err := json.Marshal(Message{Event: event, Payload: payload, Timestamp: p.now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", event, err)
	}
	if err := p.client.Publish(ctx, p.prefix+channel, b).Err(); err != nil {
		return fmt.Errorf("failed to publish %s to %s: %w", event, channel, err)
	}
	return nil
}
