package testutil

import (
	"time"

	"github.com/cassiomorais/fintrack/internal/domain/account"
	"github.com/cassiomorais/fintrack/internal/domain/auth"
	"github.com/cassiomorais/fintrack/internal/domain/user"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func NewTestUser(externalID string) *user.User {
	now := time.Now().UTC()
	return &user.User{
		ID:         uuid.New(),
		ExternalID: externalID,
		Email:      externalID + "@example.com",
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// NewTestSession returns an authenticated session for the user.
func NewTestSession(u *user.User) auth.Session {
	return auth.Session{ExternalID: u.ExternalID, Email: u.Email}
}

// NewTestAccount builds a stored account. createdAgo orders fixtures: a
// larger value means an older account.
func NewTestAccount(userID uuid.UUID, name string, balance string, isDefault bool, createdAgo time.Duration) *account.Account {
	created := time.Now().UTC().Add(-createdAgo)
	return &account.Account{
		ID:        uuid.New(),
		UserID:    userID,
		Name:      name,
		Type:      account.TypeCurrent,
		Balance:   decimal.RequireFromString(balance),
		IsDefault: isDefault,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func NewTestTransaction(acct *account.Account, kind account.TransactionType, amount string, daysAgo int) *account.Transaction {
	date := time.Now().UTC().AddDate(0, 0, -daysAgo)
	return &account.Transaction{
		ID:          uuid.New(),
		AccountID:   acct.ID,
		UserID:      acct.UserID,
		Type:        kind,
		Amount:      decimal.RequireFromString(amount),
		Description: "test " + string(kind),
		Category:    "general",
		Date:        date,
		CreatedAt:   date,
	}
}
