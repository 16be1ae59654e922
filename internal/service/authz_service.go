package service

import (
	"context"

	"github.com/cassiomorais/fintrack/internal/domain/account"
	"github.com/cassiomorais/fintrack/internal/domain/errors"
	"github.com/cassiomorais/fintrack/internal/domain/user"
	"github.com/google/uuid"
)

// AuthzService answers ownership questions for a resolved user.
type AuthzService struct {
	accountRepo account.Repository
}

func NewAuthzService(accountRepo account.Repository) *AuthzService {
	return &AuthzService{accountRepo: accountRepo}
}

// OwnedAccount loads the account if owner holds it and returns ErrForbidden
// for an account of another user.
func (s *AuthzService) OwnedAccount(ctx context.Context, owner *user.User, accountID uuid.UUID) (*account.Account, error) {
	if owner == nil {
		return nil, errors.ErrUnauthenticated
	}

	acct, err := s.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if !owner.Owns(acct.UserID) {
		return nil, errors.ErrForbidden
	}

	return acct, nil
}
