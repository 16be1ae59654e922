// Package serialize turns domain values into transport-friendly shapes.
// Monetary fields are held as decimals in the domain and leave the process
// as plain JSON numbers.
package serialize

import (
	"time"

	"github.com/cassiomorais/fintrack/internal/domain/account"
	"github.com/shopspring/decimal"
)

// MonetaryFields lists the record keys converted by Record.
var MonetaryFields = []string{"balance", "amount"}

// Record returns a shallow copy of rec in which decimal monetary fields are
// replaced by float64. Other keys, and monetary keys holding anything else,
// are copied unchanged. The input map is never modified.
func Record(rec map[string]any) map[string]any {
	out := make(map[string]any, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	for _, field := range MonetaryFields {
		v, ok := out[field]
		if !ok {
			continue
		}
		switch d := v.(type) {
		case decimal.Decimal:
			out[field] = Float(d)
		case *decimal.Decimal:
			if d != nil {
				out[field] = Float(*d)
			}
		}
	}
	return out
}

// Float converts a monetary decimal to the nearest float64.
func Float(d decimal.Decimal) float64 {
	f, _ := d.Round(account.BalanceScale).Float64()
	return f
}

type Account struct {
	ID               string    `json:"id"`
	UserID           string    `json:"userId"`
	Name             string    `json:"name"`
	Type             string    `json:"type"`
	Balance          float64   `json:"balance"`
	IsDefault        bool      `json:"isDefault"`
	TransactionCount int       `json:"transactionCount"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

func FromAccount(a *account.Account) Account {
	return Account{
		ID:               a.ID.String(),
		UserID:           a.UserID.String(),
		Name:             a.Name,
		Type:             string(a.Type),
		Balance:          Float(a.Balance),
		IsDefault:        a.IsDefault,
		TransactionCount: a.TransactionCount,
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
	}
}

// FromAccounts never returns nil, so an empty list encodes as [].
func FromAccounts(accounts []*account.Account) []Account {
	out := make([]Account, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, FromAccount(a))
	}
	return out
}

type Transaction struct {
	ID          string    `json:"id"`
	AccountID   string    `json:"accountId"`
	Type        string    `json:"type"`
	Amount      float64   `json:"amount"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Date        time.Time `json:"date"`
	CreatedAt   time.Time `json:"createdAt"`
}

func FromTransaction(t *account.Transaction) Transaction {
	return Transaction{
		ID:          t.ID.String(),
		AccountID:   t.AccountID.String(),
		Type:        string(t.Type),
		Amount:      Float(t.Amount),
		Description: t.Description,
		Category:    t.Category,
		Date:        t.Date,
		CreatedAt:   t.CreatedAt,
	}
}

func FromTransactions(txs []*account.Transaction) []Transaction {
	out := make([]Transaction, 0, len(txs))
	for _, t := range txs {
		out = append(out, FromTransaction(t))
	}
	return out
}
