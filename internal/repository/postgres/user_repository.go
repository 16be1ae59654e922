package postgres

import (
	"context"
	"errors"
	"fmt"

	domainErrors "github.com/cassiomorais/fintrack/internal/domain/errors"
	"github.com/cassiomorais/fintrack/internal/domain/user"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserRepository implements user.Repository using PostgreSQL.
type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

func scanUser(s scanner) (*user.User, error) {
	u := &user.User{}
	if err := s.Scan(&u.ID, &u.ExternalID, &u.Email, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrUserNotFound
		}
		return nil, domainErrors.NewStoreError("scan user", err)
	}
	return u, nil
}

func (r *UserRepository) GetByExternalID(ctx context.Context, externalID string) (*user.User, error) {
	return scanUser(r.db(ctx).QueryRow(ctx,
		`SELECT id, external_id, email, created_at, updated_at
		 FROM users WHERE external_id = $1`, externalID))
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*user.User, error) {
	return scanUser(r.db(ctx).QueryRow(ctx,
		`SELECT id, external_id, email, created_at, updated_at
		 FROM users WHERE id = $1`, id))
}

func (r *UserRepository) CreateIfAbsent(ctx context.Context, u *user.User) (bool, error) {
	tag, err := r.db(ctx).Exec(ctx,
		`INSERT INTO users (id, external_id, email, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (external_id) DO NOTHING`,
		u.ID, u.ExternalID, u.Email, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		return false, domainErrors.NewStoreError("insert user", err)
	}
	return tag.RowsAffected() == 1, nil
}

// LockByID must run inside a transaction; outside one the lock is released
// as soon as the statement finishes.
func (r *UserRepository) LockByID(ctx context.Context, id uuid.UUID) error {
	var locked uuid.UUID
	err := r.db(ctx).QueryRow(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domainErrors.ErrUserNotFound
		}
		return domainErrors.NewStoreError("lock user", fmt.Errorf("select for update: %w", err))
	}
	return nil
}
