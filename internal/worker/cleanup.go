package worker

import (
	"context"
	"errors"
	"time"

	domainErrors "github.com/cassiomorais/fintrack/internal/domain/errors"
	"github.com/cassiomorais/fintrack/internal/infrastructure/observability"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const idempotencyCleanupJob = "idempotency_cleanup"

type ExpiredKeyCleaner interface {
	Cleanup(ctx context.Context) (int64, error)
}

// LockFunc runs fn while holding the named lock, returning
// ErrLockAcquisitionFailed when someone else holds it.
type LockFunc func(ctx context.Context, name string, ttl time.Duration, fn func(ctx context.Context) error) error

// Scheduler runs periodic housekeeping. Each run takes a cluster-wide lock
// so only one worker instance does the work.
type Scheduler struct {
	cron    *cron.Cron
	ctx     context.Context
	cleaner ExpiredKeyCleaner
	lock    LockFunc
	lockTTL time.Duration
	metrics *observability.Metrics
	logger  zerolog.Logger
}

func NewScheduler(
	ctx context.Context,
	cleaner ExpiredKeyCleaner,
	lock LockFunc,
	lockTTL time.Duration,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Scheduler {
	logger = observability.Component(logger, "scheduler")
	c := cron.New(cron.WithChain(cron.Recover(cronLogger{logger})))
	return &Scheduler{
		cron:    c,
		ctx:     ctx,
		cleaner: cleaner,
		lock:    lock,
		lockTTL: lockTTL,
		metrics: metrics,
		logger:  logger,
	}
}

// Start registers the jobs against schedule and starts the cron loop.
func (s *Scheduler) Start(schedule string) error {
	if _, err := s.cron.AddFunc(schedule, func() { s.CleanupIdempotencyKeys(s.ctx) }); err != nil {
		return err
	}
	s.logger.Info().Str("job", idempotencyCleanupJob).Str("schedule", schedule).Msg("Scheduled job")
	s.cron.Start()
	return nil
}

// Stop stops the cron loop and returns a context that is done once running
// jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// CleanupIdempotencyKeys deletes expired idempotency records.
func (s *Scheduler) CleanupIdempotencyKeys(ctx context.Context) {
	var removed int64
	err := s.lock(ctx, idempotencyCleanupJob, s.lockTTL, func(ctx context.Context) error {
		n, err := s.cleaner.Cleanup(ctx)
		removed = n
		return err
	})

	result := "success"
	switch {
	case errors.Is(err, domainErrors.ErrLockAcquisitionFailed):
		result = "skipped"
		s.logger.Debug().Str("job", idempotencyCleanupJob).Msg("Another instance holds the lock")
	case err != nil:
		result = "error"
		s.logger.Error().Err(err).Str("job", idempotencyCleanupJob).Msg("Cleanup failed")
	default:
		s.logger.Info().Str("job", idempotencyCleanupJob).Int64("removed", removed).Msg("Cleanup finished")
	}
	if s.metrics != nil {
		s.metrics.CleanupRuns.WithLabelValues(idempotencyCleanupJob, result).Inc()
	}
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
