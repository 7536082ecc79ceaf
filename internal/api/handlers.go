/**
 * @description
 * This file contains the HTTP handlers for the ledger-service's API
 * endpoints. Handlers parse incoming requests, call the application service
 * and write the response. Transfer endpoints forward the engine's outcome
 * verbatim: the outcome code is both the response body code and the HTTP
 * status.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: Service logic, models
 *   and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/transfa/ledger-service/internal/app"
	"github.com/transfa/ledger-service/internal/domain"
	"github.com/transfa/ledger-service/internal/store"
)

// LedgerHandlers holds the application service that handlers will use.
type LedgerHandlers struct {
	service *app.Service
}

// NewLedgerHandlers creates a new instance of LedgerHandlers.
func NewLedgerHandlers(service *app.Service) *LedgerHandlers {
	return &LedgerHandlers{service: service}
}

type loginResponse struct {
	Token   string          `json:"token"`
	Account *domain.Account `json:"account"`
}

// RegisterHandler handles account registration requests.
func (h *LedgerHandlers) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	acct, err := h.service.Register(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateLogin) {
			h.writeError(w, http.StatusConflict, "Login already registered")
			return
		}
		if errors.Is(err, app.ErrInvalidCredentials) {
			h.writeError(w, http.StatusBadRequest, "Login and password are required")
			return
		}
		log.Printf("level=error component=api endpoint=register err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	log.Printf("level=info component=api endpoint=register outcome=created account_id=%d", acct.ID)
	h.writeJSON(w, http.StatusCreated, acct)
}

// LoginHandler handles login requests and issues a session token.
func (h *LedgerHandlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	token, acct, err := h.service.Login(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, app.ErrInvalidCredentials) {
			h.writeError(w, http.StatusUnauthorized, "Invalid login or password")
			return
		}
		log.Printf("level=error component=api endpoint=login err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, loginResponse{Token: token, Account: acct})
}

// MeHandler returns the authenticated account.
func (h *LedgerHandlers) MeHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := GetAccountID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get account ID from context")
		return
	}

	acct, err := h.service.GetAccount(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			h.writeError(w, http.StatusNotFound, "Account not found")
			return
		}
		log.Printf("level=error component=api endpoint=me account_id=%d err=%v", accountID, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	h.writeJSON(w, http.StatusOK, acct)
}

// UpdateProfileHandler mutates the authenticated account's public profile.
func (h *LedgerHandlers) UpdateProfileHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := GetAccountID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get account ID from context")
		return
	}

	var req domain.UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.service.UpdateProfile(r.Context(), accountID, req.FullName, req.About); err != nil {
		log.Printf("level=error component=api endpoint=update_profile account_id=%d err=%v", accountID, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateThemeHandler mutates the authenticated account's theme preference.
func (h *LedgerHandlers) UpdateThemeHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := GetAccountID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get account ID from context")
		return
	}

	var req domain.UpdateThemeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.service.SetTheme(r.Context(), accountID, req.Theme); err != nil {
		if errors.Is(err, app.ErrInvalidTheme) {
			h.writeError(w, http.StatusBadRequest, "Unknown theme")
			return
		}
		log.Printf("level=error component=api endpoint=update_theme account_id=%d err=%v", accountID, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// VerifyAccountHandler sets the verification flag on an account. Gated by
// the internal API key middleware.
func (h *LedgerHandlers) VerifyAccountHandler(w http.ResponseWriter, r *http.Request) {
	accountID, err := strconv.ParseInt(chi.URLParam(r, "accountID"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid account ID")
		return
	}

	if err := h.service.SetVerified(r.Context(), accountID, true); err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			h.writeError(w, http.StatusNotFound, "Account not found")
			return
		}
		log.Printf("level=error component=api endpoint=verify account_id=%d err=%v", accountID, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TokenCatalogHandler returns the process-wide token catalog.
func (h *LedgerHandlers) TokenCatalogHandler(w http.ResponseWriter, r *http.Request) {
	catalog, err := h.service.TokenCatalog(r.Context())
	if err != nil {
		log.Printf("level=error component=api endpoint=token_catalog err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	h.writeJSON(w, http.StatusOK, catalog)
}

// TriggerHandler handles transfer requests. The authenticated account is
// the trigger side; the engine outcome is forwarded verbatim.
func (h *LedgerHandlers) TriggerHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := GetAccountID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get account ID from context")
		return
	}

	var req domain.TriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	var (
		rec *domain.TransactionRecord
		err error
	)
	if req.Deferred {
		rec, err = h.service.TriggerDeferred(r.Context(), accountID, req.ToAccountID, req.Amount, req.TokenName)
	} else {
		rec, err = h.service.Trigger(r.Context(), accountID, req.ToAccountID, req.Amount, req.TokenName)
	}
	outcome := app.OutcomeOf(rec, err)
	if !outcome.Success() {
		log.Printf("level=warn component=api endpoint=trigger outcome=failed from_id=%d to_id=%d code=%d msg=%q",
			accountID, req.ToAccountID, outcome.Code, outcome.Message)
	}
	h.writeJSON(w, outcome.Code, outcome)
}

// ReceiveHandler settles a pending transfer from the receiving side.
func (h *LedgerHandlers) ReceiveHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := GetAccountID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get account ID from context")
		return
	}

	var req domain.ReceiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.TransactionKey == uuid.Nil {
		h.writeError(w, http.StatusBadRequest, "transaction_key is required")
		return
	}

	rec, err := h.service.Receive(r.Context(), accountID, req.TransactionKey)
	outcome := app.OutcomeOf(rec, err)
	if !outcome.Success() {
		log.Printf("level=warn component=api endpoint=receive outcome=failed account_id=%d key=%s code=%d msg=%q",
			accountID, req.TransactionKey, outcome.Code, outcome.Message)
	}
	h.writeJSON(w, outcome.Code, outcome)
}

// HistoryHandler returns the authenticated account's transaction history.
func (h *LedgerHandlers) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := GetAccountID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get account ID from context")
		return
	}

	records, err := h.service.History(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			h.writeError(w, http.StatusNotFound, "Account not found")
			return
		}
		log.Printf("level=error component=api endpoint=history account_id=%d err=%v", accountID, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if records == nil {
		records = []domain.TransactionRecord{}
	}
	h.writeJSON(w, http.StatusOK, records)
}

// PurchaseHandler converts balance into held tokens.
func (h *LedgerHandlers) PurchaseHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := GetAccountID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get account ID from context")
		return
	}

	var req domain.PurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	err := h.service.Purchase(r.Context(), accountID, req.Amount, req.TokenName)
	outcome := app.OutcomeOf(nil, err)
	if !outcome.Success() {
		log.Printf("level=warn component=api endpoint=purchase outcome=failed account_id=%d code=%d msg=%q",
			accountID, outcome.Code, outcome.Message)
	}
	h.writeJSON(w, outcome.Code, outcome)
}

func (h *LedgerHandlers) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("level=error component=api msg=\"response encode failed\" err=%v", err)
	}
}

func (h *LedgerHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
