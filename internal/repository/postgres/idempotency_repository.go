package postgres

import (
	"context"
	"errors"
	"time"

	domainErrors "github.com/cassiomorais/fintrack/internal/domain/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// IdempotencyEntry is the create-account response recorded under a
// session-scoped Idempotency-Key ("<external id>:<header>").
type IdempotencyEntry struct {
	Key            string
	ResponseBody   string
	ResponseStatus int
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

// IdempotencyRepository backs the Idempotency middleware. Expired rows are
// invisible to Get and are removed by the worker's cleanup job.
type IdempotencyRepository struct {
	pool *pgxpool.Pool
}

func NewIdempotencyRepository(pool *pgxpool.Pool) *IdempotencyRepository {
	return &IdempotencyRepository{pool: pool}
}

func (r *IdempotencyRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// Get returns nil, nil when nothing live is recorded for key, so the
// request runs normally.
func (r *IdempotencyRepository) Get(ctx context.Context, key string) (*IdempotencyEntry, error) {
	row := r.db(ctx).QueryRow(ctx,
		`SELECT key, response_body, response_status, created_at, expires_at
		 FROM idempotency_keys WHERE key = $1 AND expires_at > NOW()`, key,
	)
	e, err := scanIdempotencyEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, domainErrors.NewStoreError("get idempotency key", err)
	}
	return e, nil
}

func scanIdempotencyEntry(s scanner) (*IdempotencyEntry, error) {
	e := &IdempotencyEntry{}
	if err := s.Scan(&e.Key, &e.ResponseBody, &e.ResponseStatus, &e.CreatedAt, &e.ExpiresAt); err != nil {
		return nil, err
	}
	return e, nil
}

// Set records a response. Two retries racing on the same key both run the
// handler, but only the first response is kept and replayed afterwards.
func (r *IdempotencyRepository) Set(ctx context.Context, entry *IdempotencyEntry) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO idempotency_keys (key, response_body, response_status, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (key) DO NOTHING`,
		entry.Key, entry.ResponseBody, entry.ResponseStatus, entry.CreatedAt, entry.ExpiresAt,
	)
	return domainErrors.NewStoreError("set idempotency key", err)
}

// Cleanup drops expired responses and returns the number of rows removed.
func (r *IdempotencyRepository) Cleanup(ctx context.Context) (int64, error) {
	tag, err := r.db(ctx).Exec(ctx, `DELETE FROM idempotency_keys WHERE expires_at < NOW()`)
	if err != nil {
		return 0, domainErrors.NewStoreError("cleanup idempotency keys", err)
	}
	return tag.RowsAffected(), nil
}
