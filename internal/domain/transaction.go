/**
 * @description
 * This file defines the transaction record model and its status lifecycle.
 * A TransactionRecord is the audit entry describing a balance movement
 * between two accounts and its settlement status.
 *
 * @notes
 * - Records are identified by an explicit UUID key assigned at creation.
 *   The key, not the trigger account, is what the receive step matches on.
 * - Records are append-only; the only permitted mutation is the status
 *   transition performed by the transfer engine.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// TransactionStatus is the settlement state of a transaction record.
type TransactionStatus string

const (
	// StatusPending marks a deferred transfer whose funds have not moved yet.
	StatusPending TransactionStatus = "pending"
	// StatusSuccess marks a settled transfer; funds have moved.
	StatusSuccess TransactionStatus = "success"
	// StatusError marks a record that can never settle.
	StatusError TransactionStatus = "error"
)

// TransactionRecord is the central ledger record for a transfer between two
// accounts. Both accounts' histories reference the same record by key.
//
// State machine: Pending -> Success (via receive, funds move on that edge),
// created directly as Success (immediate trigger, funds already moved), or
// Pending -> Error (unsettleable). No transition leaves Success or Error.
type TransactionRecord struct {
	Key         uuid.UUID         `json:"key"`
	FromID      int64             `json:"from_id"`
	ToID        int64             `json:"to_id"`
	TriggerAck  bool              `json:"trigger_ack"`
	ReceiverAck bool              `json:"receiver_ack"`
	Date        time.Time         `json:"date"`
	Amount      int64             `json:"amount"` // token units
	TokenName   string            `json:"token_name"`
	Status      TransactionStatus `json:"status"`
}

// TriggerRequest is the DTO for incoming transfer API requests.
type TriggerRequest struct {
	ToAccountID int64  `json:"to_account_id"`
	Amount      int64  `json:"amount"`
	TokenName   string `json:"token_name"`
	Deferred    bool   `json:"deferred"`
}

// ReceiveRequest is the DTO for incoming settlement API requests.
type ReceiveRequest struct {
	TransactionKey uuid.UUID `json:"transaction_key"`
}

// PurchaseRequest is the DTO for incoming token purchase API requests.
type PurchaseRequest struct {
	Amount    int64  `json:"amount"`
	TokenName string `json:"token_name"`
}
