/**
 * @description
 * This file provides the PostgreSQL implementation of the `Store` interface.
 * It contains the SQL queries for account, holdings and transaction record
 * custody. The token catalog stays in process memory (it is read-only after
 * initialization), so only mutable ledger state lives in the database.
 *
 * @dependencies
 * - context, errors, math: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Domain models.
 */

package store

import (
	"context"
	"errors"
	"math"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/transfa/ledger-service/internal/domain"
)

const pgUniqueViolation = "23505"

// PostgresStore is a concrete implementation of the Store interface for
// PostgreSQL.
type PostgresStore struct {
	db *pgxpool.Pool

	catalog      []domain.TokenType
	catalogIndex map[string]domain.TokenType
}

// NewPostgresStore creates a new PostgresStore over the given pool with the
// given fixed token catalog.
func NewPostgresStore(db *pgxpool.Pool, catalog []domain.TokenType) *PostgresStore {
	s := &PostgresStore{
		db:           db,
		catalog:      make([]domain.TokenType, len(catalog)),
		catalogIndex: make(map[string]domain.TokenType, len(catalog)),
	}
	copy(s.catalog, catalog)
	for _, t := range s.catalog {
		s.catalogIndex[t.Name] = t
	}
	return s
}

// CreateAccount inserts a new account row. The BIGSERIAL primary key gives
// the monotonically increasing identifier.
func (s *PostgresStore) CreateAccount(ctx context.Context, login, passwordHash string) (*domain.Account, error) {
	query := `
		INSERT INTO accounts (login, password_hash, theme, balance)
		VALUES ($1, $2, $3, 0)
		RETURNING id, created_at
	`
	acct := &domain.Account{
		Login:        login,
		PasswordHash: passwordHash,
		Theme:        domain.ThemeLight,
		Holdings:     make(map[string]int64),
	}
	err := s.db.QueryRow(ctx, query, login, passwordHash, domain.ThemeLight).Scan(&acct.ID, &acct.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, ErrDuplicateLogin
		}
		return nil, err
	}
	return acct, nil
}

// FindAccountByID retrieves an account with its holdings and history keys.
func (s *PostgresStore) FindAccountByID(ctx context.Context, id int64) (*domain.Account, error) {
	return s.findAccount(ctx, `WHERE id = $1`, id)
}

// FindAccountByLogin retrieves an account by login.
func (s *PostgresStore) FindAccountByLogin(ctx context.Context, login string) (*domain.Account, error) {
	return s.findAccount(ctx, `WHERE login = $1`, login)
}

func (s *PostgresStore) findAccount(ctx context.Context, where string, arg interface{}) (*domain.Account, error) {
	var acct domain.Account
	query := `
		SELECT id, login, password_hash, verified, full_name, about, theme, balance, created_at
		FROM accounts ` + where
	err := s.db.QueryRow(ctx, query, arg).Scan(
		&acct.ID, &acct.Login, &acct.PasswordHash, &acct.Verified,
		&acct.FullName, &acct.About, &acct.Theme, &acct.Balance, &acct.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}

	acct.Holdings = make(map[string]int64)
	rows, err := s.db.Query(ctx, `SELECT token_name, amount FROM account_holdings WHERE account_id = $1`, acct.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		var amount int64
		if err := rows.Scan(&name, &amount); err != nil {
			return nil, err
		}
		acct.Holdings[name] = amount
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	keyRows, err := s.db.Query(ctx, `
		SELECT key FROM transactions
		WHERE from_id = $1 OR to_id = $1
		ORDER BY date, key
	`, acct.ID)
	if err != nil {
		return nil, err
	}
	defer keyRows.Close()
	for keyRows.Next() {
		var key uuid.UUID
		if err := keyRows.Scan(&key); err != nil {
			return nil, err
		}
		acct.History = append(acct.History, key)
	}
	if err := keyRows.Err(); err != nil {
		return nil, err
	}

	return &acct, nil
}

// TokenCatalog returns the full token catalog.
func (s *PostgresStore) TokenCatalog(ctx context.Context) ([]domain.TokenType, error) {
	out := make([]domain.TokenType, len(s.catalog))
	copy(out, s.catalog)
	return out, nil
}

// FindToken retrieves a token type by name.
func (s *PostgresStore) FindToken(ctx context.Context, name string) (*domain.TokenType, error) {
	t, ok := s.catalogIndex[name]
	if !ok {
		return nil, ErrUnknownToken
	}
	return &t, nil
}

// DebitAccount subtracts from the balance, guarded in SQL so the balance is
// never driven negative even if a caller skips the engine's precondition.
func (s *PostgresStore) DebitAccount(ctx context.Context, id int64, amount int64) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE accounts SET balance = balance - $1
		WHERE id = $2 AND balance >= $1
	`, amount, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if exists, exErr := s.accountExists(ctx, id); exErr != nil {
			return exErr
		} else if !exists {
			return ErrAccountNotFound
		}
		return ErrInsufficientFunds
	}
	return nil
}

// CreditAccount adds to the balance, guarding the representable range.
func (s *PostgresStore) CreditAccount(ctx context.Context, id int64, amount int64) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE accounts SET balance = balance + $1
		WHERE id = $2 AND balance <= $3 - $1
	`, amount, id, int64(math.MaxInt64))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if exists, exErr := s.accountExists(ctx, id); exErr != nil {
			return exErr
		} else if !exists {
			return ErrAccountNotFound
		}
		return ErrBalanceOverflow
	}
	return nil
}

// GrantHolding credits token units to the account's holdings.
func (s *PostgresStore) GrantHolding(ctx context.Context, id int64, tokenName string, amount int64) error {
	if exists, err := s.accountExists(ctx, id); err != nil {
		return err
	} else if !exists {
		return ErrAccountNotFound
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO account_holdings (account_id, token_name, amount)
		VALUES ($1, $2, $3)
		ON CONFLICT (account_id, token_name)
		DO UPDATE SET amount = account_holdings.amount + EXCLUDED.amount
	`, id, tokenName, amount)
	return err
}

// AppendTransaction inserts the canonical transaction row. Histories are a
// view over this table, so both parties see the record immediately.
func (s *PostgresStore) AppendTransaction(ctx context.Context, rec *domain.TransactionRecord) error {
	for _, id := range []int64{rec.FromID, rec.ToID} {
		if exists, err := s.accountExists(ctx, id); err != nil {
			return err
		} else if !exists {
			return ErrAccountNotFound
		}
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO transactions (key, from_id, to_id, trigger_ack, receiver_ack, date, amount, token_name, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, rec.Key, rec.FromID, rec.ToID, rec.TriggerAck, rec.ReceiverAck, rec.Date, rec.Amount, rec.TokenName, string(rec.Status))
	return err
}

// FindTransactionForAccount locates a record by key within the account's
// history.
func (s *PostgresStore) FindTransactionForAccount(ctx context.Context, accountID int64, key uuid.UUID) (*domain.TransactionRecord, error) {
	if exists, err := s.accountExists(ctx, accountID); err != nil {
		return nil, err
	} else if !exists {
		return nil, ErrAccountNotFound
	}

	var rec domain.TransactionRecord
	var status string
	err := s.db.QueryRow(ctx, `
		SELECT key, from_id, to_id, trigger_ack, receiver_ack, date, amount, token_name, status
		FROM transactions
		WHERE key = $1 AND (from_id = $2 OR to_id = $2)
	`, key, accountID).Scan(
		&rec.Key, &rec.FromID, &rec.ToID, &rec.TriggerAck, &rec.ReceiverAck,
		&rec.Date, &rec.Amount, &rec.TokenName, &status,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	rec.Status = domain.TransactionStatus(status)
	return &rec, nil
}

// SettleTransaction flips a pending record to success. The status guard in
// SQL keeps Success and Error terminal.
func (s *PostgresStore) SettleTransaction(ctx context.Context, key uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE transactions SET status = $1, receiver_ack = TRUE
		WHERE key = $2 AND status = $3
	`, string(domain.StatusSuccess), key, string(domain.StatusPending))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

// MarkTransactionError flips a pending record to the terminal error state.
func (s *PostgresStore) MarkTransactionError(ctx context.Context, key uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE transactions SET status = $1
		WHERE key = $2 AND status = $3
	`, string(domain.StatusError), key, string(domain.StatusPending))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

// ListTransactionsByAccount returns the account's records in chronological
// order.
func (s *PostgresStore) ListTransactionsByAccount(ctx context.Context, accountID int64) ([]domain.TransactionRecord, error) {
	if exists, err := s.accountExists(ctx, accountID); err != nil {
		return nil, err
	} else if !exists {
		return nil, ErrAccountNotFound
	}

	rows, err := s.db.Query(ctx, `
		SELECT key, from_id, to_id, trigger_ack, receiver_ack, date, amount, token_name, status
		FROM transactions
		WHERE from_id = $1 OR to_id = $1
		ORDER BY date, key
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.TransactionRecord
	for rows.Next() {
		var rec domain.TransactionRecord
		var status string
		if err := rows.Scan(
			&rec.Key, &rec.FromID, &rec.ToID, &rec.TriggerAck, &rec.ReceiverAck,
			&rec.Date, &rec.Amount, &rec.TokenName, &status,
		); err != nil {
			return nil, err
		}
		rec.Status = domain.TransactionStatus(status)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// UpdateProfile mutates the public profile fields only.
func (s *PostgresStore) UpdateProfile(ctx context.Context, id int64, fullName, about string) error {
	return s.updateAccountField(ctx, `UPDATE accounts SET full_name = $1, about = $2 WHERE id = $3`, fullName, about, id)
}

// SetVerified mutates the verification flag only.
func (s *PostgresStore) SetVerified(ctx context.Context, id int64, verified bool) error {
	return s.updateAccountField(ctx, `UPDATE accounts SET verified = $1 WHERE id = $2`, verified, id)
}

// SetTheme mutates the theme preference only.
func (s *PostgresStore) SetTheme(ctx context.Context, id int64, theme string) error {
	return s.updateAccountField(ctx, `UPDATE accounts SET theme = $1 WHERE id = $2`, theme, id)
}

func (s *PostgresStore) updateAccountField(ctx context.Context, query string, args ...interface{}) error {
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (s *PostgresStore) accountExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}
