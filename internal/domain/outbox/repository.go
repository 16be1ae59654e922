package outbox

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Insert stores a new entry; call it inside the transaction that
	// changes the aggregate.
	Insert(ctx context.Context, entry *Entry) error

	// GetPending locks and returns up to limit pending entries, oldest first.
	GetPending(ctx context.Context, limit int) ([]*Entry, error)

	MarkPublished(ctx context.Context, id uuid.UUID) error

	// MarkFailed bumps the retry count, flipping the entry to failed once
	// max_retries is reached.
	MarkFailed(ctx context.Context, id uuid.UUID) error
}
