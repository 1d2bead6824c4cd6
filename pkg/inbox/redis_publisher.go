package inbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultPushPrefix is the channel prefix of RedisPublisher.
const DefaultPushPrefix = "inbox"

// RedisPublisher is a Deliverer that publishes each stored message as JSON
// on a per-user Redis pub/sub channel, for a realtime gateway to fan out to
// connected clients.
type RedisPublisher struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisPublisher creates a RedisPublisher. An empty prefix selects
// DefaultPushPrefix.
func NewRedisPublisher(client redis.UniversalClient, prefix string) *RedisPublisher {
	if prefix == "" {
		prefix = DefaultPushPrefix
	}
	return &RedisPublisher{client: client, prefix: prefix}
}

// Channel returns the pub/sub channel of userID.
func (p *RedisPublisher) Channel(userID string) string {
	return p.prefix + ":" + userID
}

// Deliver implements Deliverer.
func (p *RedisPublisher) Deliver(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode inbox message: %w", err)
	}
	if err := p.client.Publish(ctx, p.Channel(msg.UserID), data).Err(); err != nil {
		return fmt.Errorf("publish inbox message: %w", err)
	}
	return nil
}
