// Package messaging carries manual sync triggers over Redis Streams.
package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"outreach_worker/core/domain"
	"outreach_worker/core/port/out"
)

// Stream names
const (
	StreamSyncTrigger = "sync:triggers"
	dlqPrefix         = "dlq:"
)

// TriggerMessage is the stream payload of one queued trigger.
type TriggerMessage struct {
	ID        string                `json:"id"`
	Request   domain.TriggerRequest `json:"request"`
	CreatedAt time.Time             `json:"created_at"`
}

// RedisProducer implements out.JobQueue using Redis Streams.
type RedisProducer struct {
	client *redis.Client
	stream string
	maxLen int64
}

var _ out.JobQueue = (*RedisProducer)(nil)

// NewRedisProducer creates a producer for the trigger stream.
func NewRedisProducer(client *redis.Client) *RedisProducer {
	return &RedisProducer{client: client, stream: StreamSyncTrigger, maxLen: 10000}
}

// Enqueue publishes req and returns the trigger id.
func (p *RedisProducer) Enqueue(ctx context.Context, req domain.TriggerRequest) (string, error) {
	msg := TriggerMessage{
		ID:        uuid.New().String(),
		Request:   req,
		CreatedAt: time.Now().UTC(),
	}
	if err := p.publish(ctx, p.stream, msg); err != nil {
		return "", err
	}
	return msg.ID, nil
}

// publish sends a message to a stream.
func (p *RedisProducer) publish(ctx context.Context, stream string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{"data": string(payload)},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish to stream %s: %w", stream, err)
	}
	return nil
}

// StreamLength returns the number of messages in the trigger stream.
func (p *RedisProducer) StreamLength(ctx context.Context) (int64, error) {
	return p.client.XLen(ctx, p.stream).Result()
}
