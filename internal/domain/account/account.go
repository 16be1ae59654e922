package account

import (
	"strings"
	"time"

	"github.com/cassiomorais/fintrack/internal/domain/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BalanceScale is the number of fractional digits kept for monetary values.
const BalanceScale = 2

type AccountType string

const (
	TypeCurrent AccountType = "CURRENT"
	TypeSavings AccountType = "SAVINGS"
)

// Types lists every supported account type in display order.
var Types = []AccountType{TypeCurrent, TypeSavings}

func (t AccountType) Valid() bool {
	return t == TypeCurrent || t == TypeSavings
}

// ParseType accepts the canonical upper-case names, ignoring case and
// surrounding whitespace.
func ParseType(s string) (AccountType, error) {
	t := AccountType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", errors.ErrInvalidAccountType
	}
	return t, nil
}

type Account struct {
	ID               uuid.UUID
	UserID           uuid.UUID
	Name             string
	Type             AccountType
	Balance          decimal.Decimal
	IsDefault        bool
	TransactionCount int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func NewAccount(userID uuid.UUID, name string, accountType AccountType, balance decimal.Decimal, isDefault bool) (*Account, error) {
	if userID == uuid.Nil {
		return nil, errors.NewValidationError("user_id", "cannot be empty")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.NewValidationError("name", "cannot be empty")
	}
	if !accountType.Valid() {
		return nil, errors.NewValidationError("type", "must be CURRENT or SAVINGS")
	}

	now := time.Now().UTC()
	return &Account{
		ID:        uuid.New(),
		UserID:    userID,
		Name:      name,
		Type:      accountType,
		Balance:   balance.Round(BalanceScale),
		IsDefault: isDefault,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Balances are stored as NUMERIC(18,2), so the magnitude must stay below
// 10^16 once rounded to cents.
const (
	maxBalanceDigits = 16
	// minBalanceExponent bounds how many fraction digits are accepted before
	// rounding; rescaling cost grows with it.
	minBalanceExponent = -18
)

var maxBalance = decimal.New(1, maxBalanceDigits)

// ParseBalance parses a user supplied amount and rounds it to cents. The
// whole string must be a decimal number; partial matches such as "12abc" are
// rejected, as are values the balance column cannot hold.
func ParseBalance(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, errors.ErrInvalidAmount
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, errors.ErrInvalidAmount
	}
	// Check the exponent before anything rescales the coefficient: "1e5000000"
	// is a short string but a huge number.
	if exp := d.Exponent(); exp > maxBalanceDigits || exp < minBalanceExponent {
		return decimal.Zero, errors.ErrInvalidAmount
	}
	d = d.Round(BalanceScale)
	if d.Abs().GreaterThanOrEqual(maxBalance) {
		return decimal.Zero, errors.ErrInvalidAmount
	}
	return d, nil
}

// ResolveDefault decides whether a new account becomes the user's default.
// A user's first account is always the default.
func ResolveDefault(existingAccounts int, requested bool) bool {
	if existingAccounts == 0 {
		return true
	}
	return requested
}

func (a *Account) Demote() {
	if !a.IsDefault {
		return
	}
	a.IsDefault = false
	a.UpdatedAt = time.Now().UTC()
}

// CountDefaults returns how many of the given accounts carry the default flag.
func CountDefaults(accounts []*Account) int {
	n := 0
	for _, a := range accounts {
		if a.IsDefault {
			n++
		}
	}
	return n
}

// TotalBalance sums the balances of the given accounts.
func TotalBalance(accounts []*Account) decimal.Decimal {
	total := decimal.Zero
	for _, a := range accounts {
		total = total.Add(a.Balance)
	}
	return total
}
