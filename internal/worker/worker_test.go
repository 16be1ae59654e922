package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	domainErrors "github.com/cassiomorais/fintrack/internal/domain/errors"
	"github.com/cassiomorais/fintrack/internal/domain/outbox"
	"github.com/cassiomorais/fintrack/internal/infrastructure/observability"
	infraRedis "github.com/cassiomorais/fintrack/internal/infrastructure/redis"
	"github.com/cassiomorais/fintrack/internal/testutil"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMetrics() *observability.Metrics {
	return observability.NewMetrics("test", prometheus.NewRegistry())
}

// --- fakes ---

type published struct {
	aggregateID string
	eventType   string
	data        map[string]any
}

type fakeProducer struct {
	mu     sync.Mutex
	events []published
	err    error
}

func (p *fakeProducer) Publish(_ context.Context, aggregateID, eventType string, data map[string]any) error {
	if p.err != nil {
		return p.err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{aggregateID, eventType, data})
	return nil
}

type fakeSource struct {
	acked []string
}

func (s *fakeSource) Read(context.Context) ([]redis.XMessage, error) { return nil, nil }

func (s *fakeSource) Ack(_ context.Context, id string) error {
	s.acked = append(s.acked, id)
	return nil
}

func (s *fakeSource) ClaimStale(context.Context, time.Duration) ([]redis.XMessage, error) {
	return nil, nil
}

type fakeDLQ struct {
	reasons map[string]string
}

func (d *fakeDLQ) PublishToDLQ(_ context.Context, ev infraRedis.Event, reason string) error {
	if d.reasons == nil {
		d.reasons = map[string]string{}
	}
	d.reasons[ev.ID] = reason
	return nil
}

type fakeBroker struct {
	keys   []string
	bodies [][]byte
	err    error
}

func (b *fakeBroker) Publish(_ context.Context, routingKey string, body []byte) error {
	if b.err != nil {
		return b.err
	}
	b.keys = append(b.keys, routingKey)
	b.bodies = append(b.bodies, body)
	return nil
}

func (b *fakeBroker) Close() error { return nil }

func accountCreatedMessage(id string, userID uuid.UUID) redis.XMessage {
	payload, _ := json.Marshal(map[string]any{
		"account_id": "acc-1",
		"user_id":    userID.String(),
		"is_default": true,
	})
	return redis.XMessage{
		ID: id,
		Values: map[string]any{
			"aggregate_id": "acc-1",
			"event_type":   outbox.EventAccountCreated,
			"payload":      string(payload),
			"timestamp":    "1760000000",
		},
	}
}

// --- relay ---

func TestOutboxRelay_PublishesPending(t *testing.T) {
	entries := []*outbox.Entry{
		outbox.NewEntry(outbox.AggregateAccount, uuid.New(), outbox.EventAccountCreated, map[string]any{"name": "Main"}),
		outbox.NewEntry(outbox.AggregateAccount, uuid.New(), outbox.EventAccountCreated, map[string]any{"name": "Savings"}),
	}
	var gotLimit int
	var markedPublished []uuid.UUID
	repo := &testutil.MockOutboxRepository{
		GetPendingFunc: func(_ context.Context, limit int) ([]*outbox.Entry, error) {
			gotLimit = limit
			return entries, nil
		},
		MarkPublishedFunc: func(_ context.Context, id uuid.UUID) error {
			markedPublished = append(markedPublished, id)
			return nil
		},
	}
	producer := &fakeProducer{}
	metrics := newMetrics()
	txm := testutil.NewMockTransactionManager()

	relay := NewOutboxRelay(txm, repo, producer, 25, metrics, zerolog.Nop())
	n, err := relay.RelayOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 25, gotLimit)
	assert.Equal(t, 1, txm.Calls)
	assert.Equal(t, []uuid.UUID{entries[0].ID, entries[1].ID}, markedPublished)
	require.Len(t, producer.events, 2)
	assert.Equal(t, entries[0].AggregateID.String(), producer.events[0].aggregateID)
	assert.Equal(t, outbox.EventAccountCreated, producer.events[0].eventType)
	assert.Equal(t, float64(2), promtest.ToFloat64(metrics.OutboxRelayed.WithLabelValues(outbox.EventAccountCreated, "published")))
}

func TestOutboxRelay_PublishFailureMarksFailed(t *testing.T) {
	entry := outbox.NewEntry(outbox.AggregateAccount, uuid.New(), outbox.EventAccountCreated, nil)
	var failed []uuid.UUID
	repo := &testutil.MockOutboxRepository{
		GetPendingFunc: func(context.Context, int) ([]*outbox.Entry, error) {
			return []*outbox.Entry{entry}, nil
		},
		MarkPublishedFunc: func(context.Context, uuid.UUID) error {
			t.Fatal("entry must not be marked published")
			return nil
		},
		MarkFailedFunc: func(_ context.Context, id uuid.UUID) error {
			failed = append(failed, id)
			return nil
		},
	}
	metrics := newMetrics()

	relay := NewOutboxRelay(testutil.NewMockTransactionManager(), repo, &fakeProducer{err: errors.New("redis down")}, 10, metrics, zerolog.Nop())
	n, err := relay.RelayOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, []uuid.UUID{entry.ID}, failed)
	assert.Equal(t, float64(1), promtest.ToFloat64(metrics.OutboxRelayed.WithLabelValues(outbox.EventAccountCreated, "failed")))
}

func TestOutboxRelay_GetPendingError(t *testing.T) {
	repo := &testutil.MockOutboxRepository{
		GetPendingFunc: func(context.Context, int) ([]*outbox.Entry, error) {
			return nil, errors.New("connection reset")
		},
	}
	relay := NewOutboxRelay(testutil.NewMockTransactionManager(), repo, &fakeProducer{}, 10, nil, zerolog.Nop())

	_, err := relay.RelayOnce(context.Background())
	assert.ErrorContains(t, err, "connection reset")
}

func TestOutboxRelay_RunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	relay := NewOutboxRelay(testutil.NewMockTransactionManager(), &testutil.MockOutboxRepository{}, &fakeProducer{}, 10, nil, zerolog.Nop())

	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx, 5*time.Millisecond) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("relay did not stop")
	}
}

// --- consumer ---

func TestEventConsumer_InvalidatesAndForwards(t *testing.T) {
	userID := uuid.New()
	source := &fakeSource{}
	views := testutil.NewMockViewCache()
	bk := &fakeBroker{}
	metrics := newMetrics()

	c := NewEventConsumer(source, &fakeDLQ{}, views, bk, metrics, zerolog.Nop())
	err := c.Handle(context.Background(), accountCreatedMessage("1-0", userID))

	require.NoError(t, err)
	assert.Equal(t, []string{"/dashboard:" + userID.String()}, views.Invalidated)
	assert.Equal(t, []string{"fintrack.account.created"}, bk.keys)
	assert.Equal(t, []string{"1-0"}, source.acked)
	assert.Equal(t, float64(1), promtest.ToFloat64(metrics.ViewInvalidations))

	var body map[string]any
	require.NoError(t, json.Unmarshal(bk.bodies[0], &body))
	assert.Equal(t, "account.created", body["event_type"])
	assert.Equal(t, "acc-1", body["aggregate_id"])
	data := body["data"].(map[string]any)
	assert.Equal(t, userID.String(), data["user_id"])
}

func TestEventConsumer_MalformedMessageDeadLettered(t *testing.T) {
	source := &fakeSource{}
	dlq := &fakeDLQ{}
	bk := &fakeBroker{}

	c := NewEventConsumer(source, dlq, testutil.NewMockViewCache(), bk, nil, zerolog.Nop())
	err := c.Handle(context.Background(), redis.XMessage{ID: "2-0", Values: map[string]any{"payload": "{}"}})

	require.NoError(t, err)
	assert.Contains(t, dlq.reasons["2-0"], "missing aggregate_id")
	assert.Equal(t, []string{"2-0"}, source.acked)
	assert.Empty(t, bk.keys)
}

func TestEventConsumer_MissingUserDeadLettered(t *testing.T) {
	msg := accountCreatedMessage("3-0", uuid.New())
	msg.Values["payload"] = `{"account_id":"acc-1"}`
	source := &fakeSource{}
	dlq := &fakeDLQ{}

	c := NewEventConsumer(source, dlq, testutil.NewMockViewCache(), &fakeBroker{}, nil, zerolog.Nop())
	require.NoError(t, c.Handle(context.Background(), msg))

	assert.Equal(t, "missing or invalid user_id", dlq.reasons["3-0"])
	assert.Equal(t, []string{"3-0"}, source.acked)
}

func TestEventConsumer_UnknownEventAcked(t *testing.T) {
	msg := accountCreatedMessage("4-0", uuid.New())
	msg.Values["event_type"] = "account.renamed"
	source := &fakeSource{}
	views := testutil.NewMockViewCache()
	bk := &fakeBroker{}

	c := NewEventConsumer(source, &fakeDLQ{}, views, bk, nil, zerolog.Nop())
	require.NoError(t, c.Handle(context.Background(), msg))

	assert.Equal(t, []string{"4-0"}, source.acked)
	assert.Empty(t, views.Invalidated)
	assert.Empty(t, bk.keys)
}

func TestEventConsumer_FailuresLeaveMessagePending(t *testing.T) {
	t.Run("invalidate", func(t *testing.T) {
		source := &fakeSource{}
		views := testutil.NewMockViewCache()
		views.InvalidateErr = errors.New("redis timeout")

		c := NewEventConsumer(source, &fakeDLQ{}, views, &fakeBroker{}, nil, zerolog.Nop())
		err := c.Handle(context.Background(), accountCreatedMessage("5-0", uuid.New()))

		assert.ErrorContains(t, err, "redis timeout")
		assert.Empty(t, source.acked)
	})

	t.Run("broker", func(t *testing.T) {
		source := &fakeSource{}
		c := NewEventConsumer(source, &fakeDLQ{}, testutil.NewMockViewCache(), &fakeBroker{err: errors.New("channel closed")}, nil, zerolog.Nop())
		err := c.Handle(context.Background(), accountCreatedMessage("6-0", uuid.New()))

		assert.ErrorContains(t, err, "channel closed")
		assert.Empty(t, source.acked)
	})
}

// --- scheduler ---

type fakeCleaner struct {
	removed int64
	err     error
	calls   int
}

func (c *fakeCleaner) Cleanup(context.Context) (int64, error) {
	c.calls++
	return c.removed, c.err
}

func runLocked(ctx context.Context, _ string, _ time.Duration, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func TestScheduler_CleanupIdempotencyKeys(t *testing.T) {
	cleaner := &fakeCleaner{removed: 3}
	metrics := newMetrics()
	var lockName string
	lock := func(ctx context.Context, name string, ttl time.Duration, fn func(ctx context.Context) error) error {
		lockName = name
		assert.Equal(t, time.Minute, ttl)
		return fn(ctx)
	}

	s := NewScheduler(context.Background(), cleaner, lock, time.Minute, metrics, zerolog.Nop())
	s.CleanupIdempotencyKeys(context.Background())

	assert.Equal(t, 1, cleaner.calls)
	assert.Equal(t, "idempotency_cleanup", lockName)
	assert.Equal(t, float64(1), promtest.ToFloat64(metrics.CleanupRuns.WithLabelValues("idempotency_cleanup", "success")))
}

func TestScheduler_SkipsWhenLockHeld(t *testing.T) {
	cleaner := &fakeCleaner{}
	metrics := newMetrics()
	held := func(context.Context, string, time.Duration, func(context.Context) error) error {
		return domainErrors.ErrLockAcquisitionFailed
	}

	s := NewScheduler(context.Background(), cleaner, held, time.Minute, metrics, zerolog.Nop())
	s.CleanupIdempotencyKeys(context.Background())

	assert.Equal(t, 0, cleaner.calls)
	assert.Equal(t, float64(1), promtest.ToFloat64(metrics.CleanupRuns.WithLabelValues("idempotency_cleanup", "skipped")))
}

func TestScheduler_RecordsErrors(t *testing.T) {
	metrics := newMetrics()
	s := NewScheduler(context.Background(), &fakeCleaner{err: errors.New("boom")}, runLocked, time.Minute, metrics, zerolog.Nop())
	s.CleanupIdempotencyKeys(context.Background())

	assert.Equal(t, float64(1), promtest.ToFloat64(metrics.CleanupRuns.WithLabelValues("idempotency_cleanup", "error")))
}

func TestScheduler_RejectsBadSchedule(t *testing.T) {
	s := NewScheduler(context.Background(), &fakeCleaner{}, runLocked, time.Minute, nil, zerolog.Nop())
	assert.Error(t, s.Start("not a schedule"))
}
