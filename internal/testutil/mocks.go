package testutil

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/cassiomorais/fintrack/internal/domain/account"
	"github.com/cassiomorais/fintrack/internal/domain/auth"
	domainErrors "github.com/cassiomorais/fintrack/internal/domain/errors"
	"github.com/cassiomorais/fintrack/internal/domain/outbox"
	"github.com/cassiomorais/fintrack/internal/domain/user"
	"github.com/cassiomorais/fintrack/internal/repository/postgres"
	"github.com/google/uuid"
)

// --- Account Repository Mock ---

// MockAccountRepository is an in-memory account.Repository.
type MockAccountRepository struct {
	mu           sync.Mutex
	accounts     map[uuid.UUID]*account.Account
	transactions map[uuid.UUID][]*account.Transaction

	CreateFunc          func(ctx context.Context, acct *account.Account) error
	GetByIDFunc         func(ctx context.Context, id uuid.UUID) (*account.Account, error)
	ListByUserFunc      func(ctx context.Context, userID uuid.UUID) ([]*account.Account, error)
	CountByUserFunc     func(ctx context.Context, userID uuid.UUID) (int, error)
	ClearDefaultFunc    func(ctx context.Context, userID uuid.UUID) (int64, error)
	GetTransactionsFunc func(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*account.Transaction, error)

	ListCalls int
}

func NewMockAccountRepository() *MockAccountRepository {
	return &MockAccountRepository{
		accounts:     make(map[uuid.UUID]*account.Account),
		transactions: make(map[uuid.UUID][]*account.Transaction),
	}
}

// AddAccount pre-populates the mock with an account.
func (m *MockAccountRepository) AddAccount(acct *account.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[acct.ID] = acct
}

// AddTransaction pre-populates the mock with a transaction.
func (m *MockAccountRepository) AddTransaction(tx *account.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transactions[tx.AccountID] = append(m.transactions[tx.AccountID], tx)
	if acct, ok := m.accounts[tx.AccountID]; ok {
		acct.TransactionCount++
	}
}

func (m *MockAccountRepository) Create(ctx context.Context, acct *account.Account) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, acct)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if acct.IsDefault {
		for _, other := range m.accounts {
			if other.UserID == acct.UserID && other.IsDefault {
				return domainErrors.ErrDefaultConflict
			}
		}
	}
	m.accounts[acct.ID] = acct
	return nil
}

func (m *MockAccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*account.Account, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	acct, ok := m.accounts[id]
	if !ok {
		return nil, domainErrors.ErrAccountNotFound
	}
	return acct, nil
}

func (m *MockAccountRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*account.Account, error) {
	m.mu.Lock()
	m.ListCalls++
	m.mu.Unlock()
	if m.ListByUserFunc != nil {
		return m.ListByUserFunc(ctx, userID)
	}
	return m.UserAccounts(userID), nil
}

func (m *MockAccountRepository) CountByUser(ctx context.Context, userID uuid.UUID) (int, error) {
	if m.CountByUserFunc != nil {
		return m.CountByUserFunc(ctx, userID)
	}
	return len(m.UserAccounts(userID)), nil
}

func (m *MockAccountRepository) ClearDefault(ctx context.Context, userID uuid.UUID) (int64, error) {
	if m.ClearDefaultFunc != nil {
		return m.ClearDefaultFunc(ctx, userID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, acct := range m.accounts {
		if acct.UserID == userID && acct.IsDefault {
			acct.Demote()
			n++
		}
	}
	return n, nil
}

func (m *MockAccountRepository) GetTransactions(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*account.Transaction, error) {
	if m.GetTransactionsFunc != nil {
		return m.GetTransactionsFunc(ctx, accountID, limit, offset)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	txns := m.transactions[accountID]
	if offset >= len(txns) {
		return nil, nil
	}
	end := offset + limit
	if end > len(txns) {
		end = len(txns)
	}
	return txns[offset:end], nil
}

// UserAccounts returns the stored accounts of a user, newest first.
func (m *MockAccountRepository) UserAccounts(userID uuid.UUID) []*account.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*account.Account
	for _, acct := range m.accounts {
		if acct.UserID == userID {
			out = append(out, acct)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// GetAccountByID returns the stored account (test helper, no context needed).
func (m *MockAccountRepository) GetAccountByID(id uuid.UUID) *account.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accounts[id]
}

// --- User Repository Mock ---

// MockUserRepository is an in-memory user.Repository.
type MockUserRepository struct {
	mu    sync.Mutex
	users map[string]*user.User

	GetByExternalIDFunc func(ctx context.Context, externalID string) (*user.User, error)
	CreateIfAbsentFunc  func(ctx context.Context, u *user.User) (bool, error)
	LockByIDFunc        func(ctx context.Context, id uuid.UUID) error

	Calls  int
	Locked []uuid.UUID
}

func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{users: make(map[string]*user.User)}
}

// AddUser pre-populates the mock with a user.
func (m *MockUserRepository) AddUser(u *user.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ExternalID] = u
}

func (m *MockUserRepository) GetByExternalID(ctx context.Context, externalID string) (*user.User, error) {
	m.mu.Lock()
	m.Calls++
	m.mu.Unlock()
	if m.GetByExternalIDFunc != nil {
		return m.GetByExternalIDFunc(ctx, externalID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[externalID]
	if !ok {
		return nil, domainErrors.ErrUserNotFound
	}
	return u, nil
}

func (m *MockUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	for _, u := range m.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, domainErrors.ErrUserNotFound
}

func (m *MockUserRepository) CreateIfAbsent(ctx context.Context, u *user.User) (bool, error) {
	m.mu.Lock()
	m.Calls++
	m.mu.Unlock()
	if m.CreateIfAbsentFunc != nil {
		return m.CreateIfAbsentFunc(ctx, u)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ExternalID]; ok {
		return false, nil
	}
	m.users[u.ExternalID] = u
	return true, nil
}

func (m *MockUserRepository) LockByID(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	m.Calls++
	m.Locked = append(m.Locked, id)
	m.mu.Unlock()
	if m.LockByIDFunc != nil {
		return m.LockByIDFunc(ctx, id)
	}
	return nil
}

// UserCount returns how many users are stored.
func (m *MockUserRepository) UserCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users)
}

// --- Transaction Manager Mock ---

// MockTransactionManager runs fn directly unless WithTransactionFunc is set.
type MockTransactionManager struct {
	WithTransactionFunc func(ctx context.Context, fn func(ctx context.Context) error) error

	mu    sync.Mutex
	Calls int
}

func NewMockTransactionManager() *MockTransactionManager {
	return &MockTransactionManager{}
}

func (m *MockTransactionManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	m.Calls++
	m.mu.Unlock()
	if m.WithTransactionFunc != nil {
		return m.WithTransactionFunc(ctx, fn)
	}
	return fn(ctx)
}

// --- Outbox Repository Mock ---

// MockOutboxRepository records inserted entries.
type MockOutboxRepository struct {
	mu      sync.Mutex
	Entries []*outbox.Entry

	InsertFunc        func(ctx context.Context, entry *outbox.Entry) error
	GetPendingFunc    func(ctx context.Context, limit int) ([]*outbox.Entry, error)
	MarkPublishedFunc func(ctx context.Context, id uuid.UUID) error
	MarkFailedFunc    func(ctx context.Context, id uuid.UUID) error
}

func (m *MockOutboxRepository) Insert(ctx context.Context, entry *outbox.Entry) error {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, entry)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Entries = append(m.Entries, entry)
	return nil
}

func (m *MockOutboxRepository) GetPending(ctx context.Context, limit int) ([]*outbox.Entry, error) {
	if m.GetPendingFunc != nil {
		return m.GetPendingFunc(ctx, limit)
	}
	return nil, nil
}

func (m *MockOutboxRepository) MarkPublished(ctx context.Context, id uuid.UUID) error {
	if m.MarkPublishedFunc != nil {
		return m.MarkPublishedFunc(ctx, id)
	}
	return nil
}

func (m *MockOutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID) error {
	if m.MarkFailedFunc != nil {
		return m.MarkFailedFunc(ctx, id)
	}
	return nil
}

// --- View Cache Mock ---

// MockViewCache keeps views as JSON in memory, the way the Redis cache does.
type MockViewCache struct {
	mu    sync.Mutex
	views map[string][]byte

	GetErr        error
	InvalidateErr error
	Invalidated   []string
}

func NewMockViewCache() *MockViewCache {
	return &MockViewCache{views: make(map[string][]byte)}
}

func viewKey(view string, userID uuid.UUID) string {
	return view + ":" + userID.String()
}

func (m *MockViewCache) Get(ctx context.Context, view string, userID uuid.UUID, dest any) (bool, error) {
	if m.GetErr != nil {
		return false, m.GetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.views[viewKey(view, userID)]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (m *MockViewCache) Set(ctx context.Context, view string, userID uuid.UUID, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.views[viewKey(view, userID)] = raw
	return nil
}

func (m *MockViewCache) Invalidate(ctx context.Context, view string, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Invalidated = append(m.Invalidated, viewKey(view, userID))
	if m.InvalidateErr != nil {
		return m.InvalidateErr
	}
	delete(m.views, viewKey(view, userID))
	return nil
}

// Cached reports whether the view is currently stored.
func (m *MockViewCache) Cached(view string, userID uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.views[viewKey(view, userID)]
	return ok
}

// --- Profile Fetcher Mock ---

// MockProfileFetcher serves primary emails from a map.
// MockProfileFetcher serves emails from a map. Delay simulates a slow
// provider and honours context cancellation.
type MockProfileFetcher struct {
	mu     sync.Mutex
	Emails map[string]string
	Err    error
	Delay  time.Duration
	Calls  int
}

func (m *MockProfileFetcher) PrimaryEmail(ctx context.Context, externalID string) (string, error) {
	m.mu.Lock()
	m.Calls++
	m.mu.Unlock()
	if m.Delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(m.Delay):
		}
	}
	if m.Err != nil {
		return "", m.Err
	}
	email, ok := m.Emails[externalID]
	if !ok {
		return "", domainErrors.ErrProfileIncomplete
	}
	return email, nil
}

func (m *MockProfileFetcher) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls
}

// --- Session Verifier Mock ---

// MockVerifier maps raw tokens to sessions.
type MockVerifier struct {
	Sessions map[string]auth.Session
}

func (m *MockVerifier) Verify(ctx context.Context, token string) (auth.Session, error) {
	sess, ok := m.Sessions[token]
	if !ok {
		return auth.Session{}, domainErrors.ErrUnauthenticated
	}
	return sess, nil
}

// --- Idempotency Store Mock ---

// MockIdempotencyStore is an in-memory idempotency store.
type MockIdempotencyStore struct {
	mu      sync.Mutex
	entries map[string]*postgres.IdempotencyEntry
}

func NewMockIdempotencyStore() *MockIdempotencyStore {
	return &MockIdempotencyStore{entries: make(map[string]*postgres.IdempotencyEntry)}
}

func (m *MockIdempotencyStore) Get(ctx context.Context, key string) (*postgres.IdempotencyEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok || time.Now().After(e.ExpiresAt) {
		return nil, nil
	}
	return e, nil
}

func (m *MockIdempotencyStore) Set(ctx context.Context, entry *postgres.IdempotencyEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[entry.Key]; ok {
		return nil
	}
	m.entries[entry.Key] = entry
	return nil
}

// Keys lists the stored keys.
func (m *MockIdempotencyStore) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
