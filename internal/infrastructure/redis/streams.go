package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	AccountEventStream = "accounts:events"
	DLQStream          = "accounts:dlq"
)

// Event is an account event as carried on the stream.
type Event struct {
	ID          string
	AggregateID string
	EventType   string
	Payload     map[string]any
	Timestamp   time.Time
}

// ParseEvent decodes a stream message written by StreamProducer.Publish.
func ParseEvent(msg redis.XMessage) (Event, error) {
	ev := Event{ID: msg.ID}

	ev.AggregateID, _ = msg.Values["aggregate_id"].(string)
	ev.EventType, _ = msg.Values["event_type"].(string)
	if ev.AggregateID == "" || ev.EventType == "" {
		return ev, fmt.Errorf("stream message %s: missing aggregate_id or event_type", msg.ID)
	}

	if raw, ok := msg.Values["payload"].(string); ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &ev.Payload); err != nil {
			return ev, fmt.Errorf("stream message %s: decode payload: %w", msg.ID, err)
		}
	}
	if ts, ok := msg.Values["timestamp"].(string); ok {
		if sec, err := strconv.ParseInt(ts, 10, 64); err == nil {
			ev.Timestamp = time.Unix(sec, 0).UTC()
		}
	}
	return ev, nil
}

type StreamProducer struct {
	client redis.Cmdable
}

func NewStreamProducer(client redis.Cmdable) *StreamProducer {
	return &StreamProducer{client: client}
}

// Publish appends an account event to AccountEventStream.
func (p *StreamProducer) Publish(ctx context.Context, aggregateID, eventType string, data map[string]any) error {
	return p.add(ctx, AccountEventStream, map[string]any{
		"aggregate_id": aggregateID,
		"event_type":   eventType,
	}, data)
}

// PublishToDLQ parks an event the consumer could not handle.
func (p *StreamProducer) PublishToDLQ(ctx context.Context, ev Event, reason string) error {
	return p.add(ctx, DLQStream, map[string]any{
		"aggregate_id": ev.AggregateID,
		"event_type":   ev.EventType,
		"source_id":    ev.ID,
		"reason":       reason,
	}, ev.Payload)
}

func (p *StreamProducer) add(ctx context.Context, stream string, values map[string]any, data map[string]any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}
	values["payload"] = string(payload)
	values["timestamp"] = time.Now().Unix()

	if err := p.client.XAdd(ctx, &redis.XAddArgs{Stream: stream, Values: values}).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", stream, err)
	}
	return nil
}

type StreamConsumer struct {
	client        redis.Cmdable
	stream        string
	group         string
	consumer      string
	batchSize     int64
	blockDuration time.Duration
}

func NewStreamConsumer(
	client redis.Cmdable,
	stream string,
	group string,
	consumer string,
	batchSize int64,
	blockDuration time.Duration,
) *StreamConsumer {
	return &StreamConsumer{
		client:        client,
		stream:        stream,
		group:         group,
		consumer:      consumer,
		batchSize:     batchSize,
		blockDuration: blockDuration,
	}
}

// CreateGroup creates the consumer group and the stream. An existing group
// is not an error.
func (c *StreamConsumer) CreateGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

// Read blocks for up to the configured duration and returns new messages.
func (c *StreamConsumer) Read(ctx context.Context) ([]redis.XMessage, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.consumer,
		Streams:  []string{c.stream, ">"},
		Count:    c.batchSize,
		Block:    c.blockDuration,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read from stream: %w", err)
	}

	var msgs []redis.XMessage
	for _, s := range streams {
		msgs = append(msgs, s.Messages...)
	}
	return msgs, nil
}

func (c *StreamConsumer) Ack(ctx context.Context, messageID string) error {
	if err := c.client.XAck(ctx, c.stream, c.group, messageID).Err(); err != nil {
		return fmt.Errorf("failed to ack message: %w", err)
	}
	return nil
}

// ClaimStale takes over messages another consumer left pending for longer
// than minIdle.
func (c *StreamConsumer) ClaimStale(ctx context.Context, minIdle time.Duration) ([]redis.XMessage, error) {
	msgs, _, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   c.stream,
		Group:    c.group,
		Consumer: c.consumer,
		MinIdle:  minIdle,
		Start:    "0-0",
		Count:    c.batchSize,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to claim messages: %w", err)
	}
	return msgs, nil
}
