package worker

import (
	"context"
	"time"

	"github.com/cassiomorais/fintrack/internal/domain/outbox"
	"github.com/cassiomorais/fintrack/internal/infrastructure/observability"
	"github.com/rs/zerolog"
)

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// EventProducer appends events to the account event stream.
type EventProducer interface {
	Publish(ctx context.Context, aggregateID, eventType string, data map[string]any) error
}

// OutboxRelay moves pending outbox entries onto the event stream.
type OutboxRelay struct {
	txManager TransactionManager
	outbox    outbox.Repository
	producer  EventProducer
	batchSize int
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

func NewOutboxRelay(
	txManager TransactionManager,
	outboxRepo outbox.Repository,
	producer EventProducer,
	batchSize int,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *OutboxRelay {
	return &OutboxRelay{
		txManager: txManager,
		outbox:    outboxRepo,
		producer:  producer,
		batchSize: batchSize,
		metrics:   metrics,
		logger:    observability.Component(logger, "outbox_relay"),
	}
}

// Run polls the outbox every interval until ctx is done.
func (r *OutboxRelay) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if _, err := r.RelayOnce(ctx); err != nil {
			r.logger.Error().Err(err).Msg("Outbox relay error")
		}
	}
}

// RelayOnce publishes one batch and returns how many entries made it onto
// the stream. Entries that fail stay pending until their retries run out.
func (r *OutboxRelay) RelayOnce(ctx context.Context) (int, error) {
	published := 0
	err := r.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		entries, err := r.outbox.GetPending(txCtx, r.batchSize)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			if err := r.producer.Publish(txCtx, entry.AggregateID.String(), entry.EventType, entry.Payload); err != nil {
				r.logger.Error().Err(err).
					Str("outbox_id", entry.ID.String()).
					Int("retry_count", entry.RetryCount).
					Msg("Failed to publish outbox event")
				r.record(entry.EventType, "failed")
				if err := r.outbox.MarkFailed(txCtx, entry.ID); err != nil {
					return err
				}
				continue
			}
			if err := r.outbox.MarkPublished(txCtx, entry.ID); err != nil {
				return err
			}
			r.record(entry.EventType, "published")
			published++
		}
		return nil
	})
	return published, err
}

func (r *OutboxRelay) record(eventType, status string) {
	if r.metrics != nil {
		r.metrics.OutboxRelayed.WithLabelValues(eventType, status).Inc()
	}
}
