package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/transfa/ledger-service/internal/app"
	"github.com/transfa/ledger-service/internal/domain"
	"github.com/transfa/ledger-service/internal/store"
)

type testEnv struct {
	store   *store.MemoryStore
	service *app.Service
	router  http.Handler
}

func newTestEnv(t *testing.T, cfg RouterConfig) *testEnv {
	t.Helper()
	st := store.NewMemoryStore([]domain.TokenType{
		{Name: "Gold", Description: "Premium transfer token", UnitPrice: 10, Origin: "mint"},
	})
	svc := app.NewService(st, nil, "test-secret", time.Hour)
	h := NewLedgerHandlers(svc)
	return &testEnv{store: st, service: svc, router: LedgerRoutes(h, svc, cfg)}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) registerAndLogin(t *testing.T, login string, balance int64) (string, int64) {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/accounts/register", "", domain.RegisterRequest{Login: login, Password: "s3cret"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("register %s: expected 201, got %d: %s", login, rr.Code, rr.Body.String())
	}
	var acct domain.Account
	if err := json.Unmarshal(rr.Body.Bytes(), &acct); err != nil {
		t.Fatalf("decode register response: %v", err)
	}
	if balance > 0 {
		if err := e.store.CreditAccount(context.Background(), acct.ID, balance); err != nil {
			t.Fatalf("fund %s: %v", login, err)
		}
	}

	rr = e.do(t, http.MethodPost, "/accounts/login", "", domain.LoginRequest{Login: login, Password: "s3cret"})
	if rr.Code != http.StatusOK {
		t.Fatalf("login %s: expected 200, got %d: %s", login, rr.Code, rr.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return resp.Token, acct.ID
}

func decodeOutcome(t *testing.T, rr *httptest.ResponseRecorder) app.Outcome {
	t.Helper()
	var out app.Outcome
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode outcome: %v: %s", err, rr.Body.String())
	}
	return out
}

func TestTriggerEndpoint_FullFlow(t *testing.T) {
	env := newTestEnv(t, RouterConfig{})
	aliceToken, _ := env.registerAndLogin(t, "alice", 100)
	bobToken, bobID := env.registerAndLogin(t, "bob", 0)

	rr := env.do(t, http.MethodPost, "/transfers/trigger", aliceToken, domain.TriggerRequest{
		ToAccountID: bobID,
		Amount:      5,
		TokenName:   "Gold",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	out := decodeOutcome(t, rr)
	if out.Code != 200 || out.Record == nil {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if out.Record.Status != domain.StatusSuccess || out.Record.Amount != 5 {
		t.Fatalf("unexpected record: %+v", out.Record)
	}

	// The settlement must be visible from the receiver's side.
	rr = env.do(t, http.MethodGet, "/accounts/me", bobToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("me: expected 200, got %d", rr.Code)
	}
	var bob domain.Account
	if err := json.Unmarshal(rr.Body.Bytes(), &bob); err != nil {
		t.Fatalf("decode account: %v", err)
	}
	if bob.Balance != 50 {
		t.Fatalf("expected receiver balance 50, got %d", bob.Balance)
	}

	rr = env.do(t, http.MethodGet, "/transfers/history", bobToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("history: expected 200, got %d", rr.Code)
	}
	var records []domain.TransactionRecord
	if err := json.Unmarshal(rr.Body.Bytes(), &records); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(records) != 1 || records[0].Key != out.Record.Key {
		t.Fatalf("unexpected history: %+v", records)
	}
}

func TestTriggerEndpoint_ForwardsEngineOutcome(t *testing.T) {
	env := newTestEnv(t, RouterConfig{})
	aliceToken, _ := env.registerAndLogin(t, "alice", 10)
	_, bobID := env.registerAndLogin(t, "bob", 0)

	cases := []struct {
		name     string
		req      domain.TriggerRequest
		wantCode int
	}{
		{"insufficient funds", domain.TriggerRequest{ToAccountID: bobID, Amount: 1000, TokenName: "Gold"}, http.StatusPaymentRequired},
		{"unknown token", domain.TriggerRequest{ToAccountID: bobID, Amount: 1, TokenName: "Silver"}, http.StatusBadRequest},
		{"unknown receiver", domain.TriggerRequest{ToAccountID: 999, Amount: 1, TokenName: "Gold"}, http.StatusNotFound},
		{"invalid amount", domain.TriggerRequest{ToAccountID: bobID, Amount: 0, TokenName: "Gold"}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, "/transfers/trigger", aliceToken, tc.req)
			if rr.Code != tc.wantCode {
				t.Fatalf("expected %d, got %d: %s", tc.wantCode, rr.Code, rr.Body.String())
			}
			out := decodeOutcome(t, rr)
			if out.Code != tc.wantCode {
				t.Fatalf("body code %d does not match HTTP status %d", out.Code, tc.wantCode)
			}
			if out.Record != nil {
				t.Fatalf("failed outcome must not carry a record: %+v", out.Record)
			}
		})
	}
}

func TestReceiveEndpoint_SettlesDeferredTransfer(t *testing.T) {
	env := newTestEnv(t, RouterConfig{})
	aliceToken, _ := env.registerAndLogin(t, "alice", 100)
	bobToken, bobID := env.registerAndLogin(t, "bob", 0)

	rr := env.do(t, http.MethodPost, "/transfers/trigger", aliceToken, domain.TriggerRequest{
		ToAccountID: bobID,
		Amount:      5,
		TokenName:   "Gold",
		Deferred:    true,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("deferred trigger: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	pending := decodeOutcome(t, rr)
	if pending.Record == nil || pending.Record.Status != domain.StatusPending {
		t.Fatalf("expected pending record, got %+v", pending.Record)
	}

	// Settling from the trigger side is rejected.
	rr = env.do(t, http.MethodPost, "/transfers/receive", aliceToken, domain.ReceiveRequest{TransactionKey: pending.Record.Key})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("trigger-side receive: expected 404, got %d", rr.Code)
	}

	rr = env.do(t, http.MethodPost, "/transfers/receive", bobToken, domain.ReceiveRequest{TransactionKey: pending.Record.Key})
	if rr.Code != http.StatusOK {
		t.Fatalf("receive: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	settled := decodeOutcome(t, rr)
	if settled.Record == nil || settled.Record.Status != domain.StatusSuccess {
		t.Fatalf("expected settled record, got %+v", settled.Record)
	}

	// Settling twice fails with the engine outcome forwarded.
	rr = env.do(t, http.MethodPost, "/transfers/receive", bobToken, domain.ReceiveRequest{TransactionKey: pending.Record.Key})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("second receive: expected 400, got %d", rr.Code)
	}
}

func TestReceiveEndpoint_RequiresTransactionKey(t *testing.T) {
	env := newTestEnv(t, RouterConfig{})
	bobToken, _ := env.registerAndLogin(t, "bob", 0)

	rr := env.do(t, http.MethodPost, "/transfers/receive", bobToken, domain.ReceiveRequest{})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestAuthMiddleware_RejectsMissingAndBadTokens(t *testing.T) {
	env := newTestEnv(t, RouterConfig{})

	rr := env.do(t, http.MethodGet, "/accounts/me", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: expected 401, got %d", rr.Code)
	}

	rr = env.do(t, http.MethodGet, "/accounts/me", "not-a-jwt", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("malformed token: expected 401, got %d", rr.Code)
	}
}

func TestRegisterEndpoint_DuplicateLogin(t *testing.T) {
	env := newTestEnv(t, RouterConfig{})
	env.registerAndLogin(t, "alice", 0)

	rr := env.do(t, http.MethodPost, "/accounts/register", "", domain.RegisterRequest{Login: "alice", Password: "other"})
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
}

func TestLoginEndpoint_InvalidCredentials(t *testing.T) {
	env := newTestEnv(t, RouterConfig{})
	env.registerAndLogin(t, "alice", 0)

	rr := env.do(t, http.MethodPost, "/accounts/login", "", domain.LoginRequest{Login: "alice", Password: "wrong"})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestTokenCatalogEndpoint_IsPublic(t *testing.T) {
	env := newTestEnv(t, RouterConfig{})

	rr := env.do(t, http.MethodGet, "/tokens", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var catalog []domain.TokenType
	if err := json.Unmarshal(rr.Body.Bytes(), &catalog); err != nil {
		t.Fatalf("decode catalog: %v", err)
	}
	if len(catalog) != 1 || catalog[0].Name != "Gold" {
		t.Fatalf("unexpected catalog: %+v", catalog)
	}
}

func TestVerifyEndpoint_InternalKeyGate(t *testing.T) {
	env := newTestEnv(t, RouterConfig{InternalAPIKey: "internal-key"})
	_, aliceID := env.registerAndLogin(t, "alice", 0)
	path := fmt.Sprintf("/accounts/%d/verify", aliceID)

	req := httptest.NewRequest(http.MethodPut, path, nil)
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("missing key: expected 403, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodPut, path, nil)
	req.Header.Set("X-Internal-Api-Key", "wrong")
	rr = httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("wrong key: expected 403, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodPut, path, nil)
	req.Header.Set("X-Internal-Api-Key", "internal-key")
	rr = httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("valid key: expected 204, got %d", rr.Code)
	}

	acct, err := env.store.FindAccountByID(context.Background(), aliceID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if !acct.Verified {
		t.Fatal("expected account verified")
	}
}

func TestPurchaseEndpoint(t *testing.T) {
	env := newTestEnv(t, RouterConfig{})
	aliceToken, aliceID := env.registerAndLogin(t, "alice", 100)

	rr := env.do(t, http.MethodPost, "/tokens/purchase", aliceToken, domain.PurchaseRequest{Amount: 4, TokenName: "Gold"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	acct, err := env.store.FindAccountByID(context.Background(), aliceID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if acct.Balance != 60 || acct.Holdings["Gold"] != 4 {
		t.Fatalf("purchase not applied: balance=%d holdings=%v", acct.Balance, acct.Holdings)
	}

	rr = env.do(t, http.MethodPost, "/tokens/purchase", aliceToken, domain.PurchaseRequest{Amount: 100, TokenName: "Gold"})
	if rr.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d", rr.Code)
	}
}

type stubRateLimiter struct {
	count int
	limit int
}

func (s *stubRateLimiter) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	s.count++
	if s.count > limit {
		return s.count, 30, nil
	}
	return s.count, 0, nil
}

func TestRateLimitMiddleware_LimitsTransferEndpoints(t *testing.T) {
	limiter := &stubRateLimiter{}
	env := newTestEnv(t, RouterConfig{RateLimiter: limiter, TransferRatePerMinute: 2})
	aliceToken, _ := env.registerAndLogin(t, "alice", 100)
	_, bobID := env.registerAndLogin(t, "bob", 0)

	req := domain.TriggerRequest{ToAccountID: bobID, Amount: 1, TokenName: "Gold"}
	for i := 0; i < 2; i++ {
		rr := env.do(t, http.MethodPost, "/transfers/trigger", aliceToken, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rr.Code)
		}
	}
	rr := env.do(t, http.MethodPost, "/transfers/trigger", aliceToken, req)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if got := rr.Header().Get("Retry-After"); got != "30" {
		t.Fatalf("expected Retry-After 30, got %q", got)
	}

	// History is outside the rate-limited group.
	rr = env.do(t, http.MethodGet, "/transfers/history", aliceToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("history: expected 200, got %d", rr.Code)
	}
}
