/**
 * @description
 * This file defines the `Store` interface, which specifies the contract for
 * all account and transaction custody operations required by the transfer
 * engine. By defining an interface, we decouple the engine's business logic
 * from the concrete storage implementation (in-memory or PostgreSQL), making
 * the engine unit-testable and the storage swappable.
 *
 * @dependencies
 * - context: Standard Go library.
 * - github.com/google/uuid: Transaction record keys.
 * - internal/domain: Domain models.
 */

package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/transfa/ledger-service/internal/domain"
)

var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrDuplicateLogin      = errors.New("login already registered")
	ErrUnknownToken        = errors.New("unknown token type")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrBalanceOverflow     = errors.New("balance overflow")
	ErrTransactionNotFound = errors.New("transaction not found")
)

// Store defines the set of methods for account, token catalog and
// transaction record custody.
//
// Store implementations do not serialize multi-account operations; the
// transfer engine owns that. Each individual method is safe for concurrent
// use and every mutation is all-or-nothing.
type Store interface {
	// Account methods
	CreateAccount(ctx context.Context, login, passwordHash string) (*domain.Account, error)
	FindAccountByID(ctx context.Context, id int64) (*domain.Account, error)
	FindAccountByLogin(ctx context.Context, login string) (*domain.Account, error)

	// Token catalog methods. The catalog is fixed at initialization.
	TokenCatalog(ctx context.Context) ([]domain.TokenType, error)
	FindToken(ctx context.Context, name string) (*domain.TokenType, error)

	// Balance methods. DebitAccount fails with ErrInsufficientFunds rather
	// than driving a balance negative; CreditAccount fails with
	// ErrBalanceOverflow rather than wrapping around.
	DebitAccount(ctx context.Context, id int64, amount int64) error
	CreditAccount(ctx context.Context, id int64, amount int64) error

	// Holdings methods
	GrantHolding(ctx context.Context, id int64, tokenName string, amount int64) error

	// Transaction record methods. AppendTransaction inserts the record into
	// the canonical table and appends its key to both parties' histories.
	AppendTransaction(ctx context.Context, rec *domain.TransactionRecord) error
	FindTransactionForAccount(ctx context.Context, accountID int64, key uuid.UUID) (*domain.TransactionRecord, error)
	SettleTransaction(ctx context.Context, key uuid.UUID) error
	MarkTransactionError(ctx context.Context, key uuid.UUID) error
	ListTransactionsByAccount(ctx context.Context, accountID int64) ([]domain.TransactionRecord, error)

	// Profile methods. These mutate public/verification fields only and
	// never touch balance or history.
	UpdateProfile(ctx context.Context, id int64, fullName, about string) error
	SetVerified(ctx context.Context, id int64, verified bool) error
	SetTheme(ctx context.Context, id int64, theme string) error
}
