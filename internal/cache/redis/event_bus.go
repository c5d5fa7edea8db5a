package redis

import (
	"context"
	"fmt"

	"tokensniper/internal/domain"
)

// EventBus implements domain.EventBus using Redis Pub/Sub. Position events
// published here feed external dashboards; consumers that miss messages can
// rebuild state from the status API.
type EventBus struct {
	client *Client
}

// NewEventBus creates an EventBus backed by the given Client.
func NewEventBus(c *Client) *EventBus {
	return &EventBus{client: c}
}

// Publish sends a raw payload to a Pub/Sub channel.
func (b *EventBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := b.client.Underlying().Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.EventBus = (*EventBus)(nil)
