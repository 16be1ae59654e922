package service

import "github.com/cassiomorais/fintrack/internal/domain/account"

// CreateAccountRequest is the validated input of CreateAccount. Balance is
// kept as the caller sent it and parsed as a decimal by the service.
type CreateAccountRequest struct {
	Name      string
	Type      account.AccountType
	Balance   string
	IsDefault bool
}

// Page bounds a list query.
type Page struct {
	Limit  int
	Offset int
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Normalize clamps the page to sane bounds.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageSize
	}
	if p.Limit > MaxPageSize {
		p.Limit = MaxPageSize
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
