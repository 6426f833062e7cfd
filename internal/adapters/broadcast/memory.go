package broadcast

import (
	"context"
	"sync"
	"time"
)

// Published is one recorded publish call.
type Published struct {
	Channel string
	Message Message
}

// Memory keeps the most recent publishes in process. It backs the
// single-node mode and tests.
type Memory struct {
	mu       sync.Mutex
	messages []Published
	limit    int
	fail     error
}

// NewMemory creates a recorder holding at most limit messages (default 1000).
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{limit: 1000}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) Publish(_ context.Context, channel, event string, payload any) error {
	if channel == "" {
		return ErrEmptyChannel
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.messages = append(m.messages, Published{
		Channel: channel,
		Message: Message{Event: event, Payload: payload, Timestamp: time.Now().UTC()},
	})
	if over := len(m.messages) - m.limit; over > 0 {
		m.messages = append([]Published(nil), m.messages[over:]...)
	}
	return nil
}

// Messages returns a copy of the recorded publishes, oldest first.
func (m *Memory) Messages() []Published {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Published(nil), m.messages...)
}

// FailWith makes every later Publish return err. Pass nil to recover.
func (m *Memory) FailWith(err error) {
	m.mu.Lock()
	m.fail = err
	m.mu.Unlock()
}
