package service

import (
	"context"
	"errors"
	"time"

	"github.com/cassiomorais/fintrack/internal/domain/account"
	"github.com/cassiomorais/fintrack/internal/domain/auth"
	domainErrors "github.com/cassiomorais/fintrack/internal/domain/errors"
	"github.com/cassiomorais/fintrack/internal/domain/outbox"
	"github.com/cassiomorais/fintrack/internal/domain/user"
	"github.com/cassiomorais/fintrack/internal/infrastructure/observability"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DashboardView names the cached per-user view that lists accounts.
const DashboardView = "/dashboard"

// ViewCache holds derived per-user views.
type ViewCache interface {
	Get(ctx context.Context, view string, userID uuid.UUID, dest any) (bool, error)
	Set(ctx context.Context, view string, userID uuid.UUID, value any) error
	Invalidate(ctx context.Context, view string, userID uuid.UUID) error
}

// IdentityResolver maps a session to its local user.
type IdentityResolver interface {
	Lookup(ctx context.Context, sess auth.Session) (*user.User, error)
	GetOrCreate(ctx context.Context, sess auth.Session) (*user.User, error)
}

type AccountService struct {
	identity    IdentityResolver
	accountRepo account.Repository
	userRepo    user.Repository
	outboxRepo  outbox.Repository
	txManager   TransactionManager
	views       ViewCache
	authz       *AuthzService
	metrics     *observability.Metrics
	logger      zerolog.Logger
}

func NewAccountService(
	identity IdentityResolver,
	accountRepo account.Repository,
	userRepo user.Repository,
	outboxRepo outbox.Repository,
	txManager TransactionManager,
	views ViewCache,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *AccountService {
	return &AccountService{
		identity:    identity,
		accountRepo: accountRepo,
		userRepo:    userRepo,
		outboxRepo:  outboxRepo,
		txManager:   txManager,
		views:       views,
		authz:       NewAuthzService(accountRepo),
		metrics:     metrics,
		logger:      observability.Component(logger, "accounts"),
	}
}

// CreateAccount creates an account for the session's user. The user's first
// account is always the default; asking for a default on a later account
// demotes the previous one in the same transaction, so a user never ends up
// with two defaults.
func (s *AccountService) CreateAccount(ctx context.Context, sess auth.Session, req CreateAccountRequest) (acct *account.Account, err error) {
	start := time.Now()
	defer func() { s.observe("create", start, err) }()
	ctx, span := observability.StartSpan(ctx, "AccountService.CreateAccount")
	defer func() { observability.EndSpan(span, err) }()

	if !sess.Authenticated() {
		return nil, domainErrors.ErrUnauthenticated
	}

	owner, err := s.identity.Lookup(ctx, sess)
	if err != nil {
		return nil, err
	}

	balance, err := account.ParseBalance(req.Balance)
	if err != nil {
		return nil, err
	}

	acct, err = account.NewAccount(owner.ID, req.Name, req.Type, balance, false)
	if err != nil {
		return nil, err
	}

	var demoted int64
	err = s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		// 1. Serialize concurrent creates for the same user
		if err := s.userRepo.LockByID(ctx, owner.ID); err != nil {
			return err
		}

		// 2. Decide the default flag
		existing, err := s.accountRepo.CountByUser(ctx, owner.ID)
		if err != nil {
			return err
		}
		acct.IsDefault = account.ResolveDefault(existing, req.IsDefault)

		// 3. Demote the previous default
		if acct.IsDefault && existing > 0 {
			demoted, err = s.accountRepo.ClearDefault(ctx, owner.ID)
			if err != nil {
				return err
			}
		}

		// 4. Insert
		if err := s.accountRepo.Create(ctx, acct); err != nil {
			return err
		}

		// 5. Record the event for the relay
		entry := outbox.NewEntry(outbox.AggregateAccount, acct.ID, outbox.EventAccountCreated, map[string]any{
			"account_id": acct.ID.String(),
			"user_id":    owner.ID.String(),
			"name":       acct.Name,
			"type":       string(acct.Type),
			"balance":    acct.Balance.StringFixed(account.BalanceScale),
			"is_default": acct.IsDefault,
			"demoted":    demoted,
		})
		return s.outboxRepo.Insert(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.AccountsCreated.WithLabelValues(string(acct.Type)).Inc()
	if demoted > 0 {
		s.metrics.DefaultReassigned.Inc()
	}

	s.invalidate(ctx, owner.ID)

	s.logger.Info().
		Str("account_id", acct.ID.String()).
		Str("user_id", owner.ID.String()).
		Bool("is_default", acct.IsDefault).
		Msg("Account created")

	return acct, nil
}

// ListAccounts returns the session user's accounts, newest first. A user row
// is provisioned on first access.
func (s *AccountService) ListAccounts(ctx context.Context, sess auth.Session) (accounts []*account.Account, err error) {
	start := time.Now()
	defer func() { s.observe("list", start, err) }()
	ctx, span := observability.StartSpan(ctx, "AccountService.ListAccounts")
	defer func() { observability.EndSpan(span, err) }()

	if !sess.Authenticated() {
		return nil, domainErrors.ErrUnauthenticated
	}

	owner, err := s.identity.GetOrCreate(ctx, sess)
	if err != nil {
		return nil, err
	}

	var cached []*account.Account
	hit, cacheErr := s.views.Get(ctx, DashboardView, owner.ID, &cached)
	if cacheErr != nil {
		s.logger.Warn().Err(cacheErr).Str("user_id", owner.ID.String()).Msg("View cache read failed")
	}
	if hit {
		s.metrics.ViewCacheResults.WithLabelValues(DashboardView, "hit").Inc()
		return cached, nil
	}
	s.metrics.ViewCacheResults.WithLabelValues(DashboardView, "miss").Inc()

	accounts, err = s.accountRepo.ListByUser(ctx, owner.ID)
	if err != nil {
		return nil, err
	}
	if accounts == nil {
		accounts = []*account.Account{}
	}

	if err := s.views.Set(ctx, DashboardView, owner.ID, accounts); err != nil {
		s.logger.Warn().Err(err).Str("user_id", owner.ID.String()).Msg("View cache write failed")
	}

	return accounts, nil
}

// GetAccount returns one of the session user's accounts.
func (s *AccountService) GetAccount(ctx context.Context, sess auth.Session, id uuid.UUID) (acct *account.Account, err error) {
	start := time.Now()
	defer func() { s.observe("get", start, err) }()

	owner, err := s.identity.Lookup(ctx, sess)
	if err != nil {
		return nil, err
	}
	return s.authz.OwnedAccount(ctx, owner, id)
}

// ListTransactions pages through an owned account's transactions.
func (s *AccountService) ListTransactions(ctx context.Context, sess auth.Session, accountID uuid.UUID, page Page) (txs []*account.Transaction, err error) {
	start := time.Now()
	defer func() { s.observe("transactions", start, err) }()

	owner, err := s.identity.Lookup(ctx, sess)
	if err != nil {
		return nil, err
	}
	if _, err := s.authz.OwnedAccount(ctx, owner, accountID); err != nil {
		return nil, err
	}

	page = page.Normalize()
	txs, err = s.accountRepo.GetTransactions(ctx, accountID, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	if txs == nil {
		txs = []*account.Transaction{}
	}
	return txs, nil
}

func (s *AccountService) invalidate(ctx context.Context, userID uuid.UUID) {
	// The account is committed; a stale view only costs one TTL.
	if err := s.views.Invalidate(context.WithoutCancel(ctx), DashboardView, userID); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID.String()).Msg("Dashboard invalidation failed")
		return
	}
	s.metrics.ViewInvalidations.Inc()
}

func (s *AccountService) observe(op string, start time.Time, err error) {
	s.metrics.AccountOpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.AccountErrors.WithLabelValues(op, errorType(err)).Inc()
	}
}

func errorType(err error) string {
	var validation *domainErrors.ValidationError
	switch {
	case errors.Is(err, domainErrors.ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, domainErrors.ErrUserNotFound), errors.Is(err, domainErrors.ErrAccountNotFound):
		return "not_found"
	case errors.Is(err, domainErrors.ErrInvalidAmount), errors.As(err, &validation):
		return "invalid_input"
	case errors.Is(err, domainErrors.ErrForbidden):
		return "forbidden"
	case errors.Is(err, domainErrors.ErrDefaultConflict):
		return "conflict"
	case errors.Is(err, domainErrors.ErrProviderUnavailable):
		return "provider"
	default:
		return "internal"
	}
}
