/**
 * @description
 * This file contains the account collaborator logic: registration, login and
 * profile mutation. These operations never touch balance or history fields;
 * all money movement goes through the transfer engine in service.go.
 *
 * @dependencies
 * - context, errors, strings, time: Standard Go libraries.
 * - github.com/golang-jwt/jwt/v5: Session token issuing.
 * - golang.org/x/crypto/bcrypt: Password hashing.
 * - internal/domain, internal/store: Domain models and custody.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/transfa/ledger-service/internal/domain"
	"github.com/transfa/ledger-service/pkg/rabbitmq"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid login or password")
	ErrInvalidTheme       = errors.New("unknown theme")
)

// SessionClaims is the JWT payload issued at login.
type SessionClaims struct {
	AccountID int64 `json:"account_id"`
	jwt.RegisteredClaims
}

// Register creates a new account from validated credentials. The password
// is hashed with bcrypt before it reaches the store.
func (s *Service) Register(ctx context.Context, login, password string) (*domain.Account, error) {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	acct, err := s.store.CreateAccount(ctx, login, string(hash))
	if err != nil {
		return nil, err
	}

	if s.eventProducer != nil {
		event := rabbitmq.AccountCreatedEvent{
			AccountID:  acct.ID,
			Login:      acct.Login,
			OccurredAt: s.now(),
		}
		if pubErr := s.eventProducer.Publish(ctx, EventsExchange, "account.created", event); pubErr != nil {
			log.Printf("level=warn component=accounts msg=\"account created event publish failed\" account_id=%d err=%v", acct.ID, pubErr)
		}
	}
	return acct, nil
}

// Login checks the credentials and returns a signed session token together
// with the account.
func (s *Service) Login(ctx context.Context, login, password string) (string, *domain.Account, error) {
	acct, err := s.store.FindAccountByLogin(ctx, strings.TrimSpace(login))
	if err != nil {
		return "", nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	now := s.now()
	claims := SessionClaims{
		AccountID: acct.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(acct.ID, 10),
			Issuer:    "ledger-service",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign session token: %w", err)
	}
	return token, acct, nil
}

// ParseSessionToken validates a session token and returns its claims.
func (s *Service) ParseSessionToken(token string) (*SessionClaims, error) {
	parsed, err := jwt.ParseWithClaims(token, &SessionClaims{}, func(t *jwt.Token) (interface{}, error) {
		return []byte(s.jwtSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}))
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*SessionClaims)
	if !ok || !parsed.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

// GetAccount returns an account by id.
func (s *Service) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	return s.store.FindAccountByID(ctx, id)
}

// UpdateProfile mutates the public profile fields of an account.
func (s *Service) UpdateProfile(ctx context.Context, id int64, fullName, about string) error {
	return s.store.UpdateProfile(ctx, id, fullName, about)
}

// SetVerified mutates the verification flag of an account.
func (s *Service) SetVerified(ctx context.Context, id int64, verified bool) error {
	return s.store.SetVerified(ctx, id, verified)
}

// SetTheme mutates the theme preference of an account.
func (s *Service) SetTheme(ctx context.Context, id int64, theme string) error {
	if theme != domain.ThemeLight && theme != domain.ThemeDark {
		return ErrInvalidTheme
	}
	return s.store.SetTheme(ctx, id, theme)
}
