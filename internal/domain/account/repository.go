package account

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Repository defines the interface for account persistence
type Repository interface {
	// Create inserts a new account
	Create(ctx context.Context, account *Account) error

	// GetByID retrieves an account by ID, including its transaction count
	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)

	// ListByUser returns the user's accounts, newest first, with transaction counts
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*Account, error)

	// CountByUser returns how many accounts the user owns
	CountByUser(ctx context.Context, userID uuid.UUID) (int, error)

	// ClearDefault removes the default flag from the user's accounts and
	// reports how many rows changed
	ClearDefault(ctx context.Context, userID uuid.UUID) (int64, error)

	// GetTransactions retrieves transactions for an account, newest first
	GetTransactions(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*Transaction, error)
}

// Transaction is a posted income or expense on an account. Posting happens
// outside this service; FinTrack only reads them.
type Transaction struct {
	ID          uuid.UUID
	AccountID   uuid.UUID
	UserID      uuid.UUID
	Type        TransactionType
	Amount      decimal.Decimal
	Description string
	Category    string
	Date        time.Time
	CreatedAt   time.Time
}

// TransactionType represents the direction of a transaction
type TransactionType string

const (
	TransactionIncome  TransactionType = "INCOME"
	TransactionExpense TransactionType = "EXPENSE"
)
