package service

import "context"

// TransactionManager runs fn in a single database transaction. Repositories
// called with the ctx passed to fn take part in it.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
