package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RoomPublisher publishes room payloads to Redis pub/sub so broadcasts reach
// rooms hosted by other instances. The channel name is the room name.
type RoomPublisher struct {
	client *redis.Client
}

// NewRoomPublisher creates a new room publisher
func NewRoomPublisher(client *redis.Client) *RoomPublisher {
	return &RoomPublisher{client: client}
}

// Publish sends a payload to a room's pub/sub channel
func (p *RoomPublisher) Publish(ctx context.Context, room string, payload []byte) error {
	if err := p.client.Publish(ctx, roomChannel(room), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to room channel: %w", err)
	}
	return nil
}

// Subscribe opens a subscription for a room's pub/sub channel
func (p *RoomPublisher) Subscribe(ctx context.Context, room string) *redis.PubSub {
	return p.client.Subscribe(ctx, roomChannel(room))
}

func roomChannel(room string) string {
	return "room:" + room
}
