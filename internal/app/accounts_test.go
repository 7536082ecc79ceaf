package app

import (
	"context"
	"errors"
	"testing"

	"github.com/transfa/ledger-service/internal/domain"
	"github.com/transfa/ledger-service/internal/store"
)

func TestRegister_HashesPassword(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	acct, err := svc.Register(ctx, "alice", "s3cret")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if acct.ID != 1 {
		t.Fatalf("expected id 1, got %d", acct.ID)
	}

	stored, err := st.FindAccountByLogin(ctx, "alice")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if stored.PasswordHash == "s3cret" || stored.PasswordHash == "" {
		t.Fatal("password must be stored hashed")
	}
}

func TestRegister_RejectsEmptyCredentials(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "  ", "s3cret"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Register(ctx, "alice", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestRegister_DuplicateLogin(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "alice", "s3cret"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Register(ctx, "alice", "other"); !errors.Is(err, store.ErrDuplicateLogin) {
		t.Fatalf("expected ErrDuplicateLogin, got %v", err)
	}
}

func TestLogin_TokenRoundTrip(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	acct, err := svc.Register(ctx, "alice", "s3cret")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	token, loggedIn, err := svc.Login(ctx, "alice", "s3cret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if loggedIn.ID != acct.ID {
		t.Fatalf("expected account %d, got %d", acct.ID, loggedIn.ID)
	}

	claims, err := svc.ParseSessionToken(token)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.AccountID != acct.ID {
		t.Fatalf("expected claim account %d, got %d", acct.ID, claims.AccountID)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "alice", "s3cret"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, _, err := svc.Login(ctx, "alice", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, _, err := svc.Login(ctx, "ghost", "s3cret"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestParseSessionToken_RejectsForeignSignature(t *testing.T) {
	svc, _ := newTestService(t)
	other := NewService(store.NewMemoryStore(testCatalog()), nil, "other-secret", svc.tokenTTL)
	ctx := context.Background()

	if _, err := other.Register(ctx, "alice", "s3cret"); err != nil {
		t.Fatalf("register: %v", err)
	}
	token, _, err := other.Login(ctx, "alice", "s3cret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := svc.ParseSessionToken(token); err == nil {
		t.Fatal("expected token signed with a different secret to be rejected")
	}
}

func TestProfileOperations(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	acct, err := svc.Register(ctx, "alice", "s3cret")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := svc.UpdateProfile(ctx, acct.ID, "Alice Adaeze", "transfers all day"); err != nil {
		t.Fatalf("update profile: %v", err)
	}
	if err := svc.SetVerified(ctx, acct.ID, true); err != nil {
		t.Fatalf("set verified: %v", err)
	}
	if err := svc.SetTheme(ctx, acct.ID, domain.ThemeDark); err != nil {
		t.Fatalf("set theme: %v", err)
	}
	if err := svc.SetTheme(ctx, acct.ID, "sepia"); !errors.Is(err, ErrInvalidTheme) {
		t.Fatalf("expected ErrInvalidTheme, got %v", err)
	}

	reread, err := svc.GetAccount(ctx, acct.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if reread.FullName != "Alice Adaeze" || !reread.Verified || reread.Theme != domain.ThemeDark {
		t.Fatalf("mutations not applied: %+v", reread)
	}
}
