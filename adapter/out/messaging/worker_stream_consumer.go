package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"outreach_worker/core/domain"
)

// TriggerHandler runs one queued trigger. A nil error acknowledges the message.
type TriggerHandler interface {
	HandleTrigger(ctx context.Context, req domain.TriggerRequest) error
}

// TriggerHandlerFunc adapts a function to TriggerHandler.
type TriggerHandlerFunc func(ctx context.Context, req domain.TriggerRequest) error

func (f TriggerHandlerFunc) HandleTrigger(ctx context.Context, req domain.TriggerRequest) error {
	return f(ctx, req)
}

// Consumer consumes trigger messages from Redis Streams.
type Consumer struct {
	client   *redis.Client
	group    string
	consumer string
	stream   string
	handler  TriggerHandler
	log      zerolog.Logger

	pendingCheckInterval time.Duration
	pendingIdleTime      time.Duration // reclaim messages pending longer than this
	maxRetries           int
}

// ConsumerConfig holds consumer configuration.
type ConsumerConfig struct {
	Group    string
	Consumer string
	Stream   string // defaults to StreamSyncTrigger
	Handler  TriggerHandler
	Logger   zerolog.Logger

	PendingCheckInterval time.Duration
	PendingIdleTime      time.Duration
	MaxRetries           int
}

// NewConsumer creates a new Consumer.
func NewConsumer(client *redis.Client, cfg *ConsumerConfig) *Consumer {
	c := &Consumer{
		client:               client,
		group:                cfg.Group,
		consumer:             cfg.Consumer,
		stream:               cfg.Stream,
		handler:              cfg.Handler,
		log:                  cfg.Logger,
		pendingCheckInterval: cfg.PendingCheckInterval,
		pendingIdleTime:      cfg.PendingIdleTime,
		maxRetries:           cfg.MaxRetries,
	}
	if c.stream == "" {
		c.stream = StreamSyncTrigger
	}
	if c.pendingCheckInterval == 0 {
		c.pendingCheckInterval = 30 * time.Second
	}
	// a sync run can take minutes; reclaiming earlier would double-run it
	if c.pendingIdleTime == 0 {
		c.pendingIdleTime = 15 * time.Minute
	}
	if c.maxRetries == 0 {
		c.maxRetries = 3
	}
	return c
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	c.log.Info().
		Str("group", c.group).
		Str("consumer", c.consumer).
		Str("stream", c.stream).
		Msg("starting consumer")

	c.createConsumerGroup(ctx)

	go c.processPendingMessages(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		result, err := c.readMessages(ctx)
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Error().Err(err).Msg("error reading from stream")
			time.Sleep(time.Second)
			continue
		}

		for _, stream := range result {
			for _, msg := range stream.Messages {
				c.handle(ctx, msg)
			}
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg redis.XMessage) {
	if err := c.processMessage(ctx, msg); err != nil {
		// left pending; the reclaim loop retries it
		c.log.Error().Err(err).Str("id", msg.ID).Msg("error processing message")
		return
	}
	if err := c.client.XAck(ctx, c.stream, c.group, msg.ID).Err(); err != nil {
		c.log.Error().Err(err).Str("id", msg.ID).Msg("error acknowledging message")
	}
}

// processPendingMessages periodically reclaims stuck pending messages.
func (c *Consumer) processPendingMessages(ctx context.Context) {
	ticker := time.NewTicker(c.pendingCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.claimAndProcessPending(ctx)
		}
	}
}

func (c *Consumer) claimAndProcessPending(ctx context.Context) {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: c.stream,
		Group:  c.group,
		Start:  "-",
		End:    "+",
		Count:  100,
	}).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Error().Err(err).Msg("error getting pending messages")
		}
		return
	}

	for _, p := range pending {
		if p.Idle < c.pendingIdleTime {
			continue
		}

		if int(p.RetryCount) >= c.maxRetries {
			c.log.Warn().
				Str("id", p.ID).
				Int64("retries", p.RetryCount).
				Msg("message exceeded max retries, moving to DLQ")
			if err := c.moveToDeadLetterQueue(ctx, p.ID); err != nil {
				c.log.Error().Err(err).Str("id", p.ID).Msg("error moving message to DLQ")
			}
			c.client.XAck(ctx, c.stream, c.group, p.ID)
			continue
		}

		claimed, err := c.client.XClaim(ctx, &redis.XClaimArgs{
			Stream:   c.stream,
			Group:    c.group,
			Consumer: c.consumer,
			MinIdle:  c.pendingIdleTime,
			Messages: []string{p.ID},
		}).Result()
		if err != nil {
			c.log.Error().Err(err).Str("id", p.ID).Msg("error claiming message")
			continue
		}
		for _, msg := range claimed {
			c.handle(ctx, msg)
		}
	}
}

func (c *Consumer) createConsumerGroup(ctx context.Context) {
	err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		c.log.Warn().Err(err).Str("stream", c.stream).Msg("error creating consumer group")
	}
}

func (c *Consumer) readMessages(ctx context.Context) ([]redis.XStream, error) {
	return c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.consumer,
		Streams:  []string{c.stream, ">"},
		Count:    10,
		Block:    5 * time.Second,
	}).Result()
}

func (c *Consumer) processMessage(ctx context.Context, msg redis.XMessage) error {
	trigger, err := DecodeTrigger(msg.Values)
	if err != nil {
		// malformed payloads are never going to succeed
		c.log.Warn().Err(err).Str("id", msg.ID).Msg("dropping malformed trigger")
		return nil
	}

	c.log.Info().
		Str("trigger_id", trigger.ID).
		Str("connection_id", trigger.Request.ConnectionID).
		Str("job", string(trigger.Request.Job)).
		Msg("processing trigger")
	return c.handler.HandleTrigger(ctx, trigger.Request)
}

// DecodeTrigger parses the "data" field of a stream message.
func DecodeTrigger(values map[string]any) (*TriggerMessage, error) {
	data, ok := values["data"]
	if !ok {
		return nil, fmt.Errorf("invalid message format: missing data field")
	}
	dataStr, ok := data.(string)
	if !ok {
		return nil, fmt.Errorf("invalid message format: data is not a string")
	}
	var msg TriggerMessage
	if err := json.Unmarshal([]byte(dataStr), &msg); err != nil {
		return nil, fmt.Errorf("invalid message format: %w", err)
	}
	if msg.Request.ConnectionID == "" {
		return nil, fmt.Errorf("invalid message format: missing source_connection_id")
	}
	return &msg, nil
}

// moveToDeadLetterQueue copies a failed message to dlq:{stream}.
func (c *Consumer) moveToDeadLetterQueue(ctx context.Context, msgID string) error {
	messages, err := c.client.XRange(ctx, c.stream, msgID, msgID).Result()
	if err != nil {
		return fmt.Errorf("failed to read message for DLQ: %w", err)
	}
	if len(messages) == 0 {
		return fmt.Errorf("message %s not found in stream %s", msgID, c.stream)
	}

	values := map[string]any{
		"original_stream": c.stream,
		"original_id":     msgID,
		"failed_at":       time.Now().UTC().Format(time.RFC3339),
		"consumer":        c.consumer,
		"group":           c.group,
	}
	for k, v := range messages[0].Values {
		values["original_"+k] = v
	}

	return c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: dlqPrefix + c.stream,
		Values: values,
	}).Err()
}
