package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"fiapstore/internal/models"
)

// PointChannelPrefix prefixes the pub/sub channel of every point
const PointChannelPrefix = "fiap:point:"

// PointPublisher announces committed writes, e.g. to trap subscribers
type PointPublisher interface {
	PublishPointEvent(ctx context.Context, ev models.PointEvent) error
}

// PointChannel returns the pub/sub channel of a point
func PointChannel(pointID string) string {
	return PointChannelPrefix + pointID
}

// RedisPointEvents publishes point events on Redis pub/sub, one channel per point
type RedisPointEvents struct {
	client redis.UniversalClient
}

// NewRedisPointEvents creates a publisher over client
func NewRedisPointEvents(client redis.UniversalClient) *RedisPointEvents {
	return &RedisPointEvents{client: client}
}

// PublishPointEvent publishes ev as JSON on the point's channel
func (p *RedisPointEvents) PublishPointEvent(ctx context.Context, ev models.PointEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal point event: %w", err)
	}
	if err := p.client.Publish(ctx, PointChannel(ev.PointID), data).Err(); err != nil {
		return fmt.Errorf("failed to publish point event: %w", err)
	}
	return nil
}
