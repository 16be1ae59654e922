package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cassiomorais/fintrack/internal/domain/outbox"
	"github.com/cassiomorais/fintrack/internal/infrastructure/broker"
	"github.com/cassiomorais/fintrack/internal/infrastructure/observability"
	infraRedis "github.com/cassiomorais/fintrack/internal/infrastructure/redis"
	"github.com/cassiomorais/fintrack/internal/service"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// StreamSource is the consumer-group side of the account event stream.
type StreamSource interface {
	Read(ctx context.Context) ([]redis.XMessage, error)
	Ack(ctx context.Context, messageID string) error
	ClaimStale(ctx context.Context, minIdle time.Duration) ([]redis.XMessage, error)
}

type DeadLetterSink interface {
	PublishToDLQ(ctx context.Context, ev infraRedis.Event, reason string) error
}

type ViewInvalidator interface {
	Invalidate(ctx context.Context, view string, userID uuid.UUID) error
}

// EventConsumer reacts to account events: it drops the owner's cached
// dashboard and forwards the event to the broker.
type EventConsumer struct {
	source    StreamSource
	dlq       DeadLetterSink
	views     ViewInvalidator
	publisher broker.Publisher
	metrics   *observability.Metrics
	logger    zerolog.Logger

	// ClaimAfter is how long a message may sit unacknowledged before this
	// consumer takes it over.
	ClaimAfter time.Duration
}

func NewEventConsumer(
	source StreamSource,
	dlq DeadLetterSink,
	views ViewInvalidator,
	publisher broker.Publisher,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *EventConsumer {
	return &EventConsumer{
		source:     source,
		dlq:        dlq,
		views:      views,
		publisher:  publisher,
		metrics:    metrics,
		logger:     observability.Component(logger, "event_consumer"),
		ClaimAfter: time.Minute,
	}
}

// Run reads until ctx is done. Stale messages are reclaimed before each read.
func (c *EventConsumer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		stale, err := c.source.ClaimStale(ctx, c.ClaimAfter)
		if err != nil {
			c.logger.Warn().Err(err).Msg("Failed to claim stale messages")
		}
		fresh, err := c.source.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error().Err(err).Msg("Failed to read from stream")
			sleep(ctx, time.Second)
			continue
		}

		for _, msg := range append(stale, fresh...) {
			c.process(ctx, msg)
		}
	}
}

func (c *EventConsumer) process(ctx context.Context, msg redis.XMessage) {
	start := time.Now()
	status := "success"
	if err := c.Handle(ctx, msg); err != nil {
		status = "error"
		c.logger.Error().Err(err).Str("message_id", msg.ID).Msg("Failed to handle event, leaving it pending")
	}
	if c.metrics != nil {
		c.metrics.WorkerMessagesProcessed.WithLabelValues(infraRedis.AccountEventStream, status).Inc()
		c.metrics.WorkerProcessingDuration.WithLabelValues(infraRedis.AccountEventStream).Observe(time.Since(start).Seconds())
	}
}

// Handle processes one message. Malformed messages are dead-lettered and
// acknowledged; a returned error means the message stays pending.
func (c *EventConsumer) Handle(ctx context.Context, msg redis.XMessage) error {
	ev, err := infraRedis.ParseEvent(msg)
	if err != nil {
		return c.deadLetter(ctx, ev, err.Error())
	}

	if ev.EventType != outbox.EventAccountCreated {
		c.logger.Debug().Str("event_type", ev.EventType).Msg("Ignoring event")
		return c.source.Ack(ctx, msg.ID)
	}

	raw, _ := ev.Payload["user_id"].(string)
	userID, err := uuid.Parse(raw)
	if err != nil {
		return c.deadLetter(ctx, ev, "missing or invalid user_id")
	}

	if err := c.views.Invalidate(ctx, service.DashboardView, userID); err != nil {
		return fmt.Errorf("invalidate dashboard for %s: %w", userID, err)
	}
	if c.metrics != nil {
		c.metrics.ViewInvalidations.Inc()
	}

	body, err := json.Marshal(map[string]any{
		"event_type":   ev.EventType,
		"aggregate_id": ev.AggregateID,
		"occurred_at":  ev.Timestamp,
		"data":         ev.Payload,
	})
	if err != nil {
		return c.deadLetter(ctx, ev, err.Error())
	}
	if err := c.publisher.Publish(ctx, broker.RoutingKey(ev.EventType), body); err != nil {
		return fmt.Errorf("forward %s: %w", ev.EventType, err)
	}

	c.logger.Info().
		Str("event_type", ev.EventType).
		Str("account_id", ev.AggregateID).
		Str("user_id", userID.String()).
		Msg("Event handled")
	return c.source.Ack(ctx, msg.ID)
}

func (c *EventConsumer) deadLetter(ctx context.Context, ev infraRedis.Event, reason string) error {
	c.logger.Warn().Str("message_id", ev.ID).Str("reason", reason).Msg("Dead-lettering event")
	if err := c.dlq.PublishToDLQ(ctx, ev, reason); err != nil {
		return fmt.Errorf("dead-letter %s: %w", ev.ID, err)
	}
	if c.metrics != nil {
		c.metrics.WorkerMessagesProcessed.WithLabelValues(infraRedis.DLQStream, "dead_lettered").Inc()
	}
	return c.source.Ack(ctx, ev.ID)
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
