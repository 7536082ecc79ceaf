/**
 * @description
 * This file defines the structured outcome returned by the transfer engine's
 * operations. Outcomes carry HTTP-style status codes so that any transport
 * layer can forward them verbatim without re-interpreting engine errors.
 */

package app

import (
	"errors"

	"github.com/transfa/ledger-service/internal/domain"
	"github.com/transfa/ledger-service/internal/store"
)

// Outcome is the structured result of a trigger or receive operation.
type Outcome struct {
	Code    int                       `json:"code"`
	Message string                    `json:"message"`
	Record  *domain.TransactionRecord `json:"record,omitempty"`
}

// Success reports whether the outcome is a success.
func (o Outcome) Success() bool {
	return o.Code >= 200 && o.Code < 300
}

// OutcomeOf maps an engine result to its transport-ready outcome.
//
// Codes mirror HTTP status semantics: 200 success, 404 for unresolved
// accounts/transactions, 400 for unknown tokens, bad amounts and
// non-pending records, 402 for insufficient funds and overflow.
func OutcomeOf(rec *domain.TransactionRecord, err error) Outcome {
	if err == nil {
		return Outcome{Code: 200, Message: "ok", Record: rec}
	}

	out := Outcome{Message: err.Error()}
	switch {
	case errors.Is(err, store.ErrAccountNotFound),
		errors.Is(err, store.ErrTransactionNotFound),
		errors.Is(err, ErrTriggerAccountNotFound):
		out.Code = 404
	case errors.Is(err, store.ErrUnknownToken),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrNotPending):
		out.Code = 400
	case errors.Is(err, store.ErrInsufficientFunds),
		errors.Is(err, store.ErrBalanceOverflow):
		out.Code = 402
	default:
		out.Code = 500
		out.Message = "internal error"
	}
	return out
}
