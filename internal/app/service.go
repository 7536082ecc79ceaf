/**
 * @description
 * This file contains the core business logic for the ledger-service. The
 * `Service` struct orchestrates all money movement operations: immediate
 * transfers (Trigger), deferred transfers (TriggerDeferred), settlement
 * (Receive) and token purchases, coordinating between the store and the
 * message broker.
 *
 * Key features:
 * - Each transfer is a single critical section over both parties: the
 *   engine holds per-account locks for the whole check-then-mutate, so no
 *   caller can observe a state where only one side's balance has moved.
 * - Locks are always taken in ascending account-id order, which makes the
 *   two-account locking deadlock-free; transfers on disjoint pairs run
 *   concurrently.
 * - Publishes lifecycle events to RabbitMQ best-effort.
 *
 * @dependencies
 * - context, errors, math, sort, sync, time: Standard Go libraries.
 * - github.com/google/uuid: Transaction record keys.
 * - internal/domain, internal/store: Domain models and custody.
 * - pkg/rabbitmq: Event publishing.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/transfa/ledger-service/internal/domain"
	"github.com/transfa/ledger-service/internal/store"
	"github.com/transfa/ledger-service/pkg/rabbitmq"
)

// EventsExchange is the topic exchange all ledger events are published to.
const EventsExchange = "ledger.events"

var (
	ErrInvalidAmount          = errors.New("transfer amount must be positive")
	ErrNotPending             = errors.New("transaction is not pending")
	ErrTriggerAccountNotFound = errors.New("trigger account not found")
)

// Service provides the core business logic for the account ledger.
type Service struct {
	store         store.Store
	eventProducer rabbitmq.Publisher

	jwtSecret string
	tokenTTL  time.Duration

	lockMu sync.Mutex
	locks  map[int64]*sync.Mutex

	now func() time.Time
}

// NewService creates a new ledger service instance. The producer may be nil
// when no broker is configured.
func NewService(st store.Store, producer rabbitmq.Publisher, jwtSecret string, tokenTTL time.Duration) *Service {
	return &Service{
		store:         st,
		eventProducer: producer,
		jwtSecret:     jwtSecret,
		tokenTTL:      tokenTTL,
		locks:         make(map[int64]*sync.Mutex),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// lockAccounts locks the given account ids in ascending order and returns
// the matching unlock function. Duplicate ids are locked once.
func (s *Service) lockAccounts(ids ...int64) func() {
	ordered := make([]int64, 0, len(ids))
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			ordered = append(ordered, id)
		}
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i] < ordered[j] })

	held := make([]*sync.Mutex, 0, len(ordered))
	for _, id := range ordered {
		held = append(held, s.accountLock(id))
	}
	for _, mu := range held {
		mu.Lock()
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}

func (s *Service) accountLock(id int64) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	mu, ok := s.locks[id]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[id] = mu
	}
	return mu
}

// transferCost computes amount * unitPrice in the ledger currency unit,
// guarding against multiplication overflow.
func transferCost(amount, unitPrice int64) (int64, error) {
	if amount <= 0 || unitPrice <= 0 {
		return 0, ErrInvalidAmount
	}
	if amount > math.MaxInt64/unitPrice {
		return 0, store.ErrBalanceOverflow
	}
	return amount * unitPrice, nil
}

// Trigger performs an immediately settled transfer: it validates both
// parties, the token and the funds, debits the trigger account, credits the
// receiver and appends one shared Success record to both histories.
//
// Preconditions are checked, and fail, in this order: account resolution,
// token resolution, amount validity, funds, credit capacity. A failed
// precondition leaves both balances and both histories untouched.
func (s *Service) Trigger(ctx context.Context, fromID, toID int64, amount int64, tokenName string) (*domain.TransactionRecord, error) {
	unlock := s.lockAccounts(fromID, toID)
	defer unlock()

	cost, err := s.validateTransfer(ctx, fromID, toID, amount, tokenName)
	if err != nil {
		return nil, err
	}

	if err := s.moveFunds(ctx, fromID, toID, cost); err != nil {
		return nil, err
	}

	rec := &domain.TransactionRecord{
		Key:         uuid.New(),
		FromID:      fromID,
		ToID:        toID,
		TriggerAck:  true,
		ReceiverAck: true,
		Date:        s.now(),
		Amount:      amount,
		TokenName:   tokenName,
		Status:      domain.StatusSuccess,
	}
	if err := s.store.AppendTransaction(ctx, rec); err != nil {
		// Roll the settled funds back so a record-less transfer never sticks.
		if creditErr := s.store.CreditAccount(ctx, fromID, cost); creditErr != nil {
			log.Printf("level=error component=engine msg=\"rollback credit failed after append failure\" from_id=%d err=%v", fromID, creditErr)
		}
		if debitErr := s.store.DebitAccount(ctx, toID, cost); debitErr != nil {
			log.Printf("level=error component=engine msg=\"rollback debit failed after append failure\" to_id=%d err=%v", toID, debitErr)
		}
		return nil, fmt.Errorf("failed to append transaction record: %w", err)
	}

	s.publishTransferEvent(ctx, "transfer.settled", rec)
	return rec, nil
}

// TriggerDeferred creates a Pending transfer without moving funds. The
// funds and capacity checks still run so the caller gets immediate
// feedback, but settlement happens only at Receive time.
func (s *Service) TriggerDeferred(ctx context.Context, fromID, toID int64, amount int64, tokenName string) (*domain.TransactionRecord, error) {
	unlock := s.lockAccounts(fromID, toID)
	defer unlock()

	if _, err := s.validateTransfer(ctx, fromID, toID, amount, tokenName); err != nil {
		return nil, err
	}

	rec := &domain.TransactionRecord{
		Key:        uuid.New(),
		FromID:     fromID,
		ToID:       toID,
		TriggerAck: true,
		Date:       s.now(),
		Amount:     amount,
		TokenName:  tokenName,
		Status:     domain.StatusPending,
	}
	if err := s.store.AppendTransaction(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to append transaction record: %w", err)
	}

	s.publishTransferEvent(ctx, "transfer.pending", rec)
	return rec, nil
}

// Receive settles a pending transfer from the receiving party's side. It
// matches the record by its explicit key within the receiver's history,
// re-resolves the token at settlement time, re-checks the trigger account's
// funds, moves the funds and flips the record to Success.
//
// Success and Error are terminal: receiving an already settled or errored
// record fails with ErrNotPending and changes nothing.
func (s *Service) Receive(ctx context.Context, accountID int64, key uuid.UUID) (*domain.TransactionRecord, error) {
	if _, err := s.store.FindAccountByID(ctx, accountID); err != nil {
		return nil, err
	}

	// First resolution is only to learn the counterparty for lock ordering;
	// everything is re-read once the locks are held.
	probe, err := s.store.FindTransactionForAccount(ctx, accountID, key)
	if err != nil {
		return nil, err
	}
	if probe.ToID != accountID {
		// The record is in this account's history from the trigger side;
		// only the receiving party may settle it.
		return nil, store.ErrTransactionNotFound
	}

	unlock := s.lockAccounts(probe.FromID, accountID)
	defer unlock()

	rec, err := s.store.FindTransactionForAccount(ctx, accountID, key)
	if err != nil {
		return nil, err
	}
	if rec.Status != domain.StatusPending {
		return nil, ErrNotPending
	}

	trigger, err := s.store.FindAccountByID(ctx, rec.FromID)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return nil, ErrTriggerAccountNotFound
		}
		return nil, err
	}

	token, err := s.store.FindToken(ctx, rec.TokenName)
	if err != nil {
		if errors.Is(err, store.ErrUnknownToken) {
			// The recorded token can never resolve again; the record is
			// permanently unsettleable.
			if markErr := s.store.MarkTransactionError(ctx, rec.Key); markErr != nil {
				log.Printf("level=error component=engine msg=\"mark error failed\" key=%s err=%v", rec.Key, markErr)
			}
		}
		return nil, err
	}

	cost, err := transferCost(rec.Amount, token.UnitPrice)
	if err != nil {
		return nil, err
	}
	if trigger.Balance < cost {
		// The record stays Pending; settlement can be retried once the
		// trigger account is funded again.
		return nil, store.ErrInsufficientFunds
	}
	receiver, err := s.store.FindAccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if receiver.Balance > math.MaxInt64-cost {
		return nil, store.ErrBalanceOverflow
	}

	if err := s.moveFunds(ctx, trigger.ID, accountID, cost); err != nil {
		return nil, err
	}
	if err := s.store.SettleTransaction(ctx, rec.Key); err != nil {
		if creditErr := s.store.CreditAccount(ctx, trigger.ID, cost); creditErr != nil {
			log.Printf("level=error component=engine msg=\"rollback credit failed after settle failure\" from_id=%d err=%v", trigger.ID, creditErr)
		}
		if debitErr := s.store.DebitAccount(ctx, accountID, cost); debitErr != nil {
			log.Printf("level=error component=engine msg=\"rollback debit failed after settle failure\" to_id=%d err=%v", accountID, debitErr)
		}
		return nil, fmt.Errorf("failed to settle transaction record: %w", err)
	}

	rec.Status = domain.StatusSuccess
	rec.ReceiverAck = true
	s.publishTransferEvent(ctx, "transfer.settled", rec)
	return rec, nil
}

// Purchase converts currency balance into held tokens: it debits
// amount * unitPrice from the account and credits amount token units to its
// holdings. No transaction record is created (there is no counterparty).
func (s *Service) Purchase(ctx context.Context, accountID int64, amount int64, tokenName string) error {
	unlock := s.lockAccounts(accountID)
	defer unlock()

	acct, err := s.store.FindAccountByID(ctx, accountID)
	if err != nil {
		return err
	}
	token, err := s.store.FindToken(ctx, tokenName)
	if err != nil {
		return err
	}
	cost, err := transferCost(amount, token.UnitPrice)
	if err != nil {
		return err
	}
	if acct.Balance < cost {
		return store.ErrInsufficientFunds
	}

	if err := s.store.DebitAccount(ctx, accountID, cost); err != nil {
		return err
	}
	if err := s.store.GrantHolding(ctx, accountID, tokenName, amount); err != nil {
		if creditErr := s.store.CreditAccount(ctx, accountID, cost); creditErr != nil {
			log.Printf("level=error component=engine msg=\"rollback credit failed after grant failure\" account_id=%d err=%v", accountID, creditErr)
		}
		return fmt.Errorf("failed to grant holding: %w", err)
	}
	return nil
}

// History returns the resolved transaction records for an account in
// chronological order.
func (s *Service) History(ctx context.Context, accountID int64) ([]domain.TransactionRecord, error) {
	return s.store.ListTransactionsByAccount(ctx, accountID)
}

// TokenCatalog returns the process-wide catalog of transferable tokens.
func (s *Service) TokenCatalog(ctx context.Context) ([]domain.TokenType, error) {
	return s.store.TokenCatalog(ctx)
}

// validateTransfer runs the shared trigger preconditions in order (account
// resolution, token resolution, amount, funds, credit capacity) and returns
// the transfer cost. Must be called with both account locks held.
func (s *Service) validateTransfer(ctx context.Context, fromID, toID int64, amount int64, tokenName string) (int64, error) {
	from, err := s.store.FindAccountByID(ctx, fromID)
	if err != nil {
		return 0, err
	}
	to, err := s.store.FindAccountByID(ctx, toID)
	if err != nil {
		return 0, err
	}
	token, err := s.store.FindToken(ctx, tokenName)
	if err != nil {
		return 0, err
	}
	cost, err := transferCost(amount, token.UnitPrice)
	if err != nil {
		return 0, err
	}
	if from.Balance < cost {
		return 0, store.ErrInsufficientFunds
	}
	if to.Balance > math.MaxInt64-cost {
		return 0, store.ErrBalanceOverflow
	}
	return cost, nil
}

// moveFunds debits the trigger side and credits the receiver. Preconditions
// have already been checked under the account locks, so a failure here is a
// store fault; the debit is compensated to keep the ledger conserved.
func (s *Service) moveFunds(ctx context.Context, fromID, toID int64, cost int64) error {
	if err := s.store.DebitAccount(ctx, fromID, cost); err != nil {
		return err
	}
	if err := s.store.CreditAccount(ctx, toID, cost); err != nil {
		if refundErr := s.store.CreditAccount(ctx, fromID, cost); refundErr != nil {
			log.Printf("level=error component=engine msg=\"refund failed after credit failure\" from_id=%d err=%v", fromID, refundErr)
		}
		return err
	}
	return nil
}

func (s *Service) publishTransferEvent(ctx context.Context, routingKey string, rec *domain.TransactionRecord) {
	if s.eventProducer == nil {
		return
	}
	event := rabbitmq.TransferEvent{
		Key:        rec.Key,
		FromID:     rec.FromID,
		ToID:       rec.ToID,
		Amount:     rec.Amount,
		TokenName:  rec.TokenName,
		Status:     string(rec.Status),
		OccurredAt: s.now(),
	}
	if err := s.eventProducer.Publish(ctx, EventsExchange, routingKey, event); err != nil {
		log.Printf("level=warn component=engine msg=\"event publish failed\" routing_key=%s key=%s err=%v", routingKey, rec.Key, err)
	}
}
