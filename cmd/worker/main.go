package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cassiomorais/fintrack/internal/bootstrap"
	"github.com/cassiomorais/fintrack/internal/infrastructure/broker"
	infraRedis "github.com/cassiomorais/fintrack/internal/infrastructure/redis"
	"github.com/cassiomorais/fintrack/internal/repository/postgres"
	"github.com/cassiomorais/fintrack/internal/worker"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, "fintrack-worker", "fintrack_worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close(context.Background())

	cfg := app.Config
	workerCfg := cfg.Worker

	// --- Repositories ---
	outboxRepo := postgres.NewOutboxRepository(app.Pool)
	idempotencyRepo := postgres.NewIdempotencyRepository(app.Pool)
	txManager := postgres.NewTxManager(app.Pool)
	streamProducer := infraRedis.NewStreamProducer(app.Redis)
	viewCache := infraRedis.NewViewCache(app.Redis, cfg.Cache.DashboardTTL)

	publisher, err := broker.New(cfg.Broker.URL, cfg.Broker.Exchange, app.Logger)
	if err != nil {
		app.Logger.Fatal().Err(err).Msg("Failed to connect to broker")
	}
	defer publisher.Close()

	// --- Account event consumer ---
	consumer := infraRedis.NewStreamConsumer(
		app.Redis,
		infraRedis.AccountEventStream,
		workerCfg.ConsumerGroup,
		cfg.InstanceID,
		workerCfg.BatchSize,
		workerCfg.BlockDuration,
	)
	if err := consumer.CreateGroup(ctx); err != nil {
		app.Logger.Fatal().Err(err).Msg("Failed to create consumer group")
	}

	relay := worker.NewOutboxRelay(txManager, outboxRepo, streamProducer, int(workerCfg.BatchSize), app.Metrics, app.Logger)
	events := worker.NewEventConsumer(consumer, streamProducer, viewCache, publisher, app.Metrics, app.Logger)

	lock := func(ctx context.Context, name string, ttl time.Duration, fn func(ctx context.Context) error) error {
		return infraRedis.WithLock(ctx, app.Redis, name, ttl, fn)
	}
	scheduler := worker.NewScheduler(ctx, idempotencyRepo, lock, workerCfg.LockTTL, app.Metrics, app.Logger)
	if err := scheduler.Start(workerCfg.CleanupSchedule); err != nil {
		app.Logger.Fatal().Err(err).Str("schedule", workerCfg.CleanupSchedule).Msg("Invalid cleanup schedule")
	}

	app.Logger.Info().
		Str("stream", infraRedis.AccountEventStream).
		Str("group", workerCfg.ConsumerGroup).
		Str("consumer", cfg.InstanceID).
		Msg("Worker started, listening for messages...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	// 1. Outbox relay (polls the outbox table and publishes to the stream).
	g.Go(func() error {
		return relay.Run(gCtx, workerCfg.OutboxPollInterval)
	})

	// 2. Event consumer (invalidates dashboards and forwards to the broker).
	g.Go(func() error {
		return events.Run(gCtx)
	})

	// 3. Wait for shutdown signal.
	g.Go(func() error {
		select {
		case <-gCtx.Done():
			return gCtx.Err()
		case <-quit:
			app.Logger.Info().Msg("Shutting down worker...")
			cancel()
			return nil
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		app.Logger.Error().Err(err).Msg("Worker error")
	}
	<-scheduler.Stop().Done()
	app.Logger.Info().Msg("Worker exited")
}
