// Package broadcast publishes engagement events to subscribers.
// Delivery is best effort: callers log failures and move on.
package broadcast

import (
	"context"
	"errors"
	"time"
)

// Event names.
const (
	EventEngagementUpdated = "engagement_updated"
	EventTierChanged       = "tier_changed"
)

// AdminChannel receives every tier change for dashboards.
const AdminChannel = "admin:tier-changes"

// ErrEmptyChannel is returned when a publish has no destination.
var ErrEmptyChannel = errors.New("broadcast channel is empty")

// Publisher sends an event to a channel.
type Publisher interface {
	Publish(ctx context.Context, channel, event string, payload any) error
}

// Message is the envelope written to the transport.
type Message struct {
	Event     string    `json:"event"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// UserChannel returns the per-user channel name.
func UserChannel(userID string) string {
	return "user:" + userID
}
