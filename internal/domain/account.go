/**
 * @description
 * This file defines the core account and token catalog models for the
 * ledger-service. Accounts carry both a public profile and the private
 * ledger data (currency balance, token holdings, transaction history).
 *
 * @notes
 * - Balances are stored as `int64` in the smallest currency unit, which
 *   avoids floating-point inaccuracies with financial data.
 * - Account identifiers are sequential int64 values assigned by the store
 *   at creation and never change afterwards.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Theme values accepted for an account's UI preference.
const (
	ThemeLight = "light"
	ThemeDark  = "dark"
)

// Account represents a user's identity plus balance and transaction history.
// The history holds only transaction keys; the records themselves live in a
// single canonical table owned by the store, so a status change is visible
// from both parties without any copy synchronization.
type Account struct {
	ID           int64            `json:"id"`
	Login        string           `json:"login"`
	PasswordHash string           `json:"-"`
	Verified     bool             `json:"verified"`
	FullName     string           `json:"full_name,omitempty"`
	About        string           `json:"about,omitempty"`
	Theme        string           `json:"theme"`
	Balance      int64            `json:"balance"` // smallest currency unit
	Holdings     map[string]int64 `json:"holdings"`
	History      []uuid.UUID      `json:"history"`
	CreatedAt    time.Time        `json:"created_at"`
}

// TokenType is a named unit of value with a fixed unit price used to price
// transfers. The catalog of token types is process-wide and read-only after
// initialization.
type TokenType struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	UnitPrice   int64  `json:"unit_price"` // currency units per token
	Origin      string `json:"origin"`
}

// RegisterRequest is the DTO for incoming registration API requests.
type RegisterRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// LoginRequest is the DTO for incoming login API requests.
type LoginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// UpdateProfileRequest is the DTO for profile mutation API requests.
type UpdateProfileRequest struct {
	FullName string `json:"full_name"`
	About    string `json:"about"`
}

// UpdateThemeRequest is the DTO for theme preference API requests.
type UpdateThemeRequest struct {
	Theme string `json:"theme"`
}
