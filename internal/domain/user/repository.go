package user

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// GetByExternalID returns ErrUserNotFound when no row matches.
	GetByExternalID(ctx context.Context, externalID string) (*User, error)

	GetByID(ctx context.Context, id uuid.UUID) (*User, error)

	// CreateIfAbsent inserts the user unless a row with the same external id
	// already exists. It reports whether a row was inserted.
	CreateIfAbsent(ctx context.Context, u *User) (bool, error)

	// LockByID takes a row lock on the user for the rest of the current
	// transaction.
	LockByID(ctx context.Context, id uuid.UUID) error
}
