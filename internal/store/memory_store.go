/**
 * @description
 * This file provides the in-memory implementation of the `Store` interface.
 * It is the canonical store for the transfer engine's concurrency model and
 * the fake used by unit tests: sequential account identifiers, a login
 * index, a fixed token catalog, and a single canonical transaction table
 * referenced by key from each account's history.
 *
 * @notes
 * - All accessors return copies; the only way to mutate stored state is
 *   through the Store methods, so callers can never race on shared structs.
 * - Transaction records are shared by identity: both histories hold the
 *   same key into the canonical table, so a settlement is observable from
 *   either side immediately.
 */

package store

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/transfa/ledger-service/internal/domain"
)

// MemoryStore is a concrete implementation of the Store interface backed by
// process memory.
type MemoryStore struct {
	mu sync.RWMutex

	nextID   int64
	accounts map[int64]*domain.Account
	byLogin  map[string]int64

	catalog      []domain.TokenType
	catalogIndex map[string]domain.TokenType

	transactions map[uuid.UUID]*domain.TransactionRecord
}

// NewMemoryStore creates a new MemoryStore with the given token catalog.
// The catalog is copied and read-only afterwards.
func NewMemoryStore(catalog []domain.TokenType) *MemoryStore {
	s := &MemoryStore{
		accounts:     make(map[int64]*domain.Account),
		byLogin:      make(map[string]int64),
		catalog:      make([]domain.TokenType, len(catalog)),
		catalogIndex: make(map[string]domain.TokenType, len(catalog)),
		transactions: make(map[uuid.UUID]*domain.TransactionRecord),
	}
	copy(s.catalog, catalog)
	for _, t := range s.catalog {
		s.catalogIndex[t.Name] = t
	}
	return s
}

// CreateAccount assigns the next sequential identifier and initializes an
// empty ledger for the new account.
func (s *MemoryStore) CreateAccount(ctx context.Context, login, passwordHash string) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byLogin[login]; exists {
		return nil, ErrDuplicateLogin
	}

	s.nextID++
	acct := &domain.Account{
		ID:           s.nextID,
		Login:        login,
		PasswordHash: passwordHash,
		Theme:        domain.ThemeLight,
		Balance:      0,
		Holdings:     make(map[string]int64),
		History:      nil,
		CreatedAt:    time.Now().UTC(),
	}
	s.accounts[acct.ID] = acct
	s.byLogin[login] = acct.ID

	return copyAccount(acct), nil
}

// FindAccountByID retrieves an account by its identifier.
func (s *MemoryStore) FindAccountByID(ctx context.Context, id int64) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return copyAccount(acct), nil
}

// FindAccountByLogin retrieves an account by its login.
func (s *MemoryStore) FindAccountByLogin(ctx context.Context, login string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byLogin[login]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return copyAccount(s.accounts[id]), nil
}

// TokenCatalog returns the full token catalog.
func (s *MemoryStore) TokenCatalog(ctx context.Context) ([]domain.TokenType, error) {
	out := make([]domain.TokenType, len(s.catalog))
	copy(out, s.catalog)
	return out, nil
}

// FindToken retrieves a token type by name.
func (s *MemoryStore) FindToken(ctx context.Context, name string) (*domain.TokenType, error) {
	t, ok := s.catalogIndex[name]
	if !ok {
		return nil, ErrUnknownToken
	}
	return &t, nil
}

// DebitAccount subtracts amount from the account balance. The balance is
// never driven negative.
func (s *MemoryStore) DebitAccount(ctx context.Context, id int64, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	if acct.Balance < amount {
		return ErrInsufficientFunds
	}
	acct.Balance -= amount
	return nil
}

// CreditAccount adds amount to the account balance, guarding the
// representable currency range.
func (s *MemoryStore) CreditAccount(ctx context.Context, id int64, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	if acct.Balance > math.MaxInt64-amount {
		return ErrBalanceOverflow
	}
	acct.Balance += amount
	return nil
}

// GrantHolding credits token units to the account's holdings.
func (s *MemoryStore) GrantHolding(ctx context.Context, id int64, tokenName string, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	if acct.Holdings[tokenName] > math.MaxInt64-amount {
		return ErrBalanceOverflow
	}
	acct.Holdings[tokenName] += amount
	return nil
}

// AppendTransaction inserts the record into the canonical table and appends
// its key to both parties' histories. The insert is all-or-nothing: if
// either party is missing, nothing is recorded.
func (s *MemoryStore) AppendTransaction(ctx context.Context, rec *domain.TransactionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	from, ok := s.accounts[rec.FromID]
	if !ok {
		return ErrAccountNotFound
	}
	to, ok := s.accounts[rec.ToID]
	if !ok {
		return ErrAccountNotFound
	}

	stored := *rec
	s.transactions[stored.Key] = &stored
	from.History = append(from.History, stored.Key)
	to.History = append(to.History, stored.Key)
	return nil
}

// FindTransactionForAccount locates a record by key within the given
// account's history.
func (s *MemoryStore) FindTransactionForAccount(ctx context.Context, accountID int64, key uuid.UUID) (*domain.TransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.accounts[accountID]; !ok {
		return nil, ErrAccountNotFound
	}
	rec, ok := s.transactions[key]
	if !ok || (rec.FromID != accountID && rec.ToID != accountID) {
		return nil, ErrTransactionNotFound
	}
	out := *rec
	return &out, nil
}

// SettleTransaction marks a pending record settled: status Success and the
// receiver-side acknowledgement set. Settling a record that is not pending
// is a no-op error; the transition out of Success or Error never happens.
func (s *MemoryStore) SettleTransaction(ctx context.Context, key uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.transactions[key]
	if !ok || rec.Status != domain.StatusPending {
		return ErrTransactionNotFound
	}
	rec.Status = domain.StatusSuccess
	rec.ReceiverAck = true
	return nil
}

// MarkTransactionError marks a pending record as permanently unsettleable.
func (s *MemoryStore) MarkTransactionError(ctx context.Context, key uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.transactions[key]
	if !ok || rec.Status != domain.StatusPending {
		return ErrTransactionNotFound
	}
	rec.Status = domain.StatusError
	return nil
}

// ListTransactionsByAccount resolves the account's history into records, in
// append order.
func (s *MemoryStore) ListTransactionsByAccount(ctx context.Context, accountID int64) ([]domain.TransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[accountID]
	if !ok {
		return nil, ErrAccountNotFound
	}
	out := make([]domain.TransactionRecord, 0, len(acct.History))
	for _, key := range acct.History {
		if rec, ok := s.transactions[key]; ok {
			out = append(out, *rec)
		}
	}
	return out, nil
}

// UpdateProfile mutates the public profile fields only.
func (s *MemoryStore) UpdateProfile(ctx context.Context, id int64, fullName, about string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	acct.FullName = fullName
	acct.About = about
	return nil
}

// SetVerified mutates the verification flag only.
func (s *MemoryStore) SetVerified(ctx context.Context, id int64, verified bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	acct.Verified = verified
	return nil
}

// SetTheme mutates the theme preference only.
func (s *MemoryStore) SetTheme(ctx context.Context, id int64, theme string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	acct.Theme = theme
	return nil
}

func copyAccount(acct *domain.Account) *domain.Account {
	out := *acct
	out.Holdings = make(map[string]int64, len(acct.Holdings))
	for k, v := range acct.Holdings {
		out.Holdings[k] = v
	}
	out.History = make([]uuid.UUID, len(acct.History))
	copy(out.History, acct.History)
	return &out
}
