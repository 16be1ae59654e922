package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/cassiomorais/fintrack/internal/domain/account"
	domainErrors "github.com/cassiomorais/fintrack/internal/domain/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	uniqueViolation     = "23505"
	oneDefaultIndexName = "accounts_one_default_per_user"
)

const accountColumns = `a.id, a.user_id, a.name, a.type, a.balance::text, a.is_default,
	(SELECT COUNT(*) FROM transactions t WHERE t.account_id = a.id),
	a.created_at, a.updated_at`

// AccountRepository implements account.Repository using PostgreSQL.
type AccountRepository struct {
	pool *pgxpool.Pool
}

func NewAccountRepository(pool *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{pool: pool}
}

func (r *AccountRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

func (r *AccountRepository) scanAccount(s scanner) (*account.Account, error) {
	a := &account.Account{}
	var (
		accountType string
		balanceStr  string
	)
	err := s.Scan(&a.ID, &a.UserID, &a.Name, &accountType, &balanceStr, &a.IsDefault,
		&a.TransactionCount, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrAccountNotFound
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}

	balance, err := parseNumeric(balanceStr)
	if err != nil {
		return nil, fmt.Errorf("parse balance: %w", err)
	}
	a.Balance = balance
	a.Type = account.AccountType(accountType)
	return a, nil
}

// Create inserts a new account. Violating the one-default index surfaces as
// ErrDefaultConflict.
func (r *AccountRepository) Create(ctx context.Context, a *account.Account) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO accounts (id, user_id, name, type, balance, is_default, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.UserID, a.Name, string(a.Type), numericArg(a.Balance), a.IsDefault, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == oneDefaultIndexName {
			return domainErrors.ErrDefaultConflict
		}
		return domainErrors.NewStoreError("insert account", err)
	}
	return nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*account.Account, error) {
	a, err := r.scanAccount(r.db(ctx).QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts a WHERE a.id = $1`, id))
	if err != nil && !errors.Is(err, domainErrors.ErrAccountNotFound) {
		return nil, domainErrors.NewStoreError("get account", err)
	}
	return a, err
}

func (r *AccountRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*account.Account, error) {
	rows, err := r.db(ctx).Query(ctx,
		`SELECT `+accountColumns+` FROM accounts a
		 WHERE a.user_id = $1
		 ORDER BY a.created_at DESC, a.id DESC`, userID)
	if err != nil {
		return nil, domainErrors.NewStoreError("list accounts", err)
	}
	defer rows.Close()

	accounts := make([]*account.Account, 0)
	for rows.Next() {
		a, err := r.scanAccount(rows)
		if err != nil {
			return nil, domainErrors.NewStoreError("list accounts", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, domainErrors.NewStoreError("list accounts", err)
	}
	return accounts, nil
}

func (r *AccountRepository) CountByUser(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	if err := r.db(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM accounts WHERE user_id = $1`, userID).Scan(&n); err != nil {
		return 0, domainErrors.NewStoreError("count accounts", err)
	}
	return n, nil
}

func (r *AccountRepository) ClearDefault(ctx context.Context, userID uuid.UUID) (int64, error) {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE accounts SET is_default = FALSE, updated_at = NOW()
		 WHERE user_id = $1 AND is_default`, userID)
	if err != nil {
		return 0, domainErrors.NewStoreError("clear default account", err)
	}
	return tag.RowsAffected(), nil
}

func (r *AccountRepository) GetTransactions(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*account.Transaction, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.db(ctx).Query(ctx,
		`SELECT id, account_id, user_id, type, amount::text, description, category, date, created_at
		 FROM transactions WHERE account_id = $1
		 ORDER BY date DESC, created_at DESC
		 LIMIT $2 OFFSET $3`,
		accountID, limit, offset,
	)
	if err != nil {
		return nil, domainErrors.NewStoreError("list transactions", err)
	}
	defer rows.Close()

	txns := make([]*account.Transaction, 0)
	for rows.Next() {
		tx := &account.Transaction{}
		var txType, amountStr string
		if err := rows.Scan(&tx.ID, &tx.AccountID, &tx.UserID, &txType, &amountStr,
			&tx.Description, &tx.Category, &tx.Date, &tx.CreatedAt); err != nil {
			return nil, domainErrors.NewStoreError("scan transaction", err)
		}
		tx.Type = account.TransactionType(txType)
		amount, err := parseNumeric(amountStr)
		if err != nil {
			return nil, domainErrors.NewStoreError("parse transaction amount", err)
		}
		tx.Amount = amount
		txns = append(txns, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, domainErrors.NewStoreError("list transactions", err)
	}
	return txns, nil
}
