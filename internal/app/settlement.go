/**
 * @description
 * The settlement executor: the only component that moves money. One confirmed
 * draft becomes at most one two-sided ledger mutation. The executor
 * re-reads the live balance, re-checks the transfer limit, submits the
 * mutation under the draft's idempotency key with a bounded timeout, and on
 * success writes the durable feed record and publishes the settled event.
 *
 * Failures come back as typed SettlementResult values, never raw transport
 * errors. A timeout or 5xx is reported as LedgerUnavailable with
 * OutcomeUnknown set, because the mutation may still have landed; retrying
 * the same confirm action reuses the same idempotency key, which makes the
 * retry safe.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/kashly/transfer-service/internal/domain"
	"github.com/kashly/transfer-service/internal/store"
	"github.com/kashly/transfer-service/pkg/ledgerclient"
	"github.com/kashly/transfer-service/pkg/rabbitmq"
)

// LedgerClient is the slice of the ledger service the executor needs.
type LedgerClient interface {
	GetBalance(ctx context.Context, accountRef string) (*ledgerclient.Balance, error)
	Transfer(ctx context.Context, transfer ledgerclient.TransferRequest) (*ledgerclient.TransactionRecord, error)
}

// SettlementExecutor submits confirmed drafts to the ledger.
type SettlementExecutor struct {
	repo       store.Repository
	ledger     LedgerClient
	events     rabbitmq.Publisher
	timeout    time.Duration
	limitCents int64
	now        func() time.Time
}

func NewSettlementExecutor(repo store.Repository, ledger LedgerClient, events rabbitmq.Publisher, timeout time.Duration, limitCents int64, now func() time.Time) *SettlementExecutor {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if now == nil {
		now = time.Now
	}
	return &SettlementExecutor{
		repo:       repo,
		ledger:     ledger,
		events:     events,
		timeout:    timeout,
		limitCents: limitCents,
		now:        now,
	}
}

// SenderBalance reads the sender's live available balance. Every read goes
// to the ledger; nothing is cached.
func (e *SettlementExecutor) SenderBalance(ctx context.Context, userID uuid.UUID) (int64, error) {
	accountRef, err := e.repo.FindLedgerAccountRef(ctx, userID)
	if err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	balance, err := e.ledger.GetBalance(ctx, accountRef)
	if err != nil {
		return 0, err
	}
	return balance.AvailableCents, nil
}

// Settle executes one settlement attempt for the draft. The draft must carry
// an idempotency key; the service layer generates one per confirm action and
// reuses it on retry. The returned result classifies the outcome; an error
// return is reserved for broken preconditions (missing accounts, malformed
// draft), not for settlement failures.
func (e *SettlementExecutor) Settle(ctx context.Context, draft *domain.TransferDraft, quote *domain.TransferQuote) (*domain.SettlementResult, error) {
	if draft.IdempotencyKey == "" {
		return nil, errors.New("draft has no idempotency key")
	}
	if !draft.ReadyForReview() {
		return nil, errors.New("draft is missing recipient or amount")
	}

	// Replay check: if this confirm action already produced a feed record,
	// the mutation happened. Return the recorded outcome without touching
	// the ledger again.
	if existing, err := e.repo.FindTransactionByIdempotencyKey(ctx, draft.IdempotencyKey); err == nil {
		log.Printf("level=info component=settlement_executor msg=\"replaying recorded outcome\" idempotency_key=%s transaction_id=%s", draft.IdempotencyKey, existing.ID)
		return &domain.SettlementResult{
			Succeeded:     true,
			TransactionID: existing.ID,
			Timestamp:     existing.CreatedAt,
		}, nil
	} else if !errors.Is(err, store.ErrTransactionNotFound) {
		return nil, fmt.Errorf("failed to check idempotency key: %w", err)
	}

	senderRef, err := e.repo.FindLedgerAccountRef(ctx, draft.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve sender account: %w", err)
	}

	recipientRef, recipientID, err := e.repo.FindLedgerAccountRefByChannel(ctx, draft.Recipient.Channel, draft.Recipient.ChannelValue)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return nil, domain.NewValidationError(domain.ValidationIncompleteRecipient,
				"%q does not resolve to an account", draft.Recipient.ChannelValue)
		}
		return nil, fmt.Errorf("failed to resolve recipient account: %w", err)
	}

	ledgerCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	// Pre-submission re-checks against live state. The quote was computed
	// against a possibly stale balance.
	if quote.AmountCents > e.limitCents {
		return e.failed(ctx, draft, domain.FailureLimitExceeded, false), nil
	}
	balance, err := e.ledger.GetBalance(ledgerCtx, senderRef)
	if err != nil {
		log.Printf("level=warn component=settlement_executor msg=\"balance re-read failed\" user_id=%s err=%v", draft.UserID, err)
		return e.failed(ctx, draft, domain.FailureLedgerUnavailable, false), nil
	}
	if quote.TotalCents > balance.AvailableCents {
		return e.failed(ctx, draft, domain.FailureInsufficientFunds, false), nil
	}

	record, err := e.ledger.Transfer(ledgerCtx, ledgerclient.TransferRequest{
		FromAccount:    senderRef,
		ToAccount:      recipientRef,
		AmountCents:    quote.AmountCents,
		FeeCents:       quote.FeeCents,
		CurrencyCode:   quote.CurrencyCode,
		Note:           draft.Note,
		IdempotencyKey: draft.IdempotencyKey,
	})
	if err != nil {
		switch {
		case errors.Is(err, ledgerclient.ErrInsufficientFunds):
			return e.failed(ctx, draft, domain.FailureInsufficientFunds, false), nil
		case errors.Is(err, ledgerclient.ErrLedgerUnavailable), errors.Is(err, context.DeadlineExceeded):
			// The mutation may have landed; the idempotency key protects a retry.
			log.Printf("level=error component=settlement_executor msg=\"ledger unavailable; outcome unknown\" idempotency_key=%s err=%v", draft.IdempotencyKey, err)
			return e.failed(ctx, draft, domain.FailureLedgerUnavailable, true), nil
		default:
			log.Printf("level=error component=settlement_executor msg=\"transfer rejected\" idempotency_key=%s err=%v", draft.IdempotencyKey, err)
			return e.failed(ctx, draft, domain.FailureLedgerUnavailable, false), nil
		}
	}

	return e.recordSuccess(ctx, draft, quote, record, recipientID), nil
}

// recordSuccess writes the feed record and publishes the settled event. The
// ledger mutation has already happened at this point, so local persistence
// problems are logged at critical severity but do not turn the outcome into
// a failure.
func (e *SettlementExecutor) recordSuccess(ctx context.Context, draft *domain.TransferDraft, quote *domain.TransferQuote, record *ledgerclient.TransactionRecord, recipientID *uuid.UUID) *domain.SettlementResult {
	settledAt := record.SettledAt
	if settledAt.IsZero() {
		settledAt = e.now().UTC()
	}

	tx := &domain.Transaction{
		ID:               uuid.New(),
		SenderID:         draft.UserID,
		RecipientID:      recipientID,
		RecipientName:    draft.Recipient.DisplayName,
		RecipientChannel: draft.Recipient.Channel,
		RecipientValue:   draft.Recipient.ChannelValue,
		AmountCents:      quote.AmountCents,
		FeeCents:         quote.FeeCents,
		CurrencyCode:     quote.CurrencyCode,
		Note:             draft.Note,
		Status:           "completed",
		LedgerTransferID: &record.ID,
		IdempotencyKey:   draft.IdempotencyKey,
	}

	if err := e.repo.CreateTransaction(ctx, tx); err != nil {
		if errors.Is(err, store.ErrDuplicateTransaction) {
			if existing, lookupErr := e.repo.FindTransactionByIdempotencyKey(ctx, draft.IdempotencyKey); lookupErr == nil {
				return &domain.SettlementResult{Succeeded: true, TransactionID: existing.ID, Timestamp: existing.CreatedAt}
			}
		} else {
			log.Printf("level=critical component=settlement_executor msg=\"ledger settled but feed record failed\" idempotency_key=%s ledger_transfer_id=%s err=%v", draft.IdempotencyKey, record.ID, err)
		}
	}

	if err := e.events.Publish(ctx, rabbitmq.EventsExchange, rabbitmq.RoutingTransferSettled, rabbitmq.TransferSettledEvent{
		TransactionID: tx.ID,
		SenderID:      tx.SenderID,
		RecipientID:   tx.RecipientID,
		RecipientName: tx.RecipientName,
		AmountCents:   tx.AmountCents,
		FeeCents:      tx.FeeCents,
		CurrencyCode:  tx.CurrencyCode,
		Note:          tx.Note,
		Timestamp:     settledAt,
	}); err != nil {
		log.Printf("level=warn component=settlement_executor msg=\"failed to publish settled event\" transaction_id=%s err=%v", tx.ID, err)
	}

	return &domain.SettlementResult{
		Succeeded:     true,
		TransactionID: tx.ID,
		Timestamp:     settledAt,
	}
}

func (e *SettlementExecutor) failed(ctx context.Context, draft *domain.TransferDraft, reason domain.FailureReason, outcomeUnknown bool) *domain.SettlementResult {
	if err := e.events.Publish(ctx, rabbitmq.EventsExchange, rabbitmq.RoutingTransferFailed, rabbitmq.TransferFailedEvent{
		SenderID:     draft.UserID,
		AmountCents:  draft.AmountCents,
		CurrencyCode: draft.CurrencyCode,
		Reason:       string(reason),
		Timestamp:    e.now().UTC(),
	}); err != nil {
		log.Printf("level=warn component=settlement_executor msg=\"failed to publish failed event\" user_id=%s err=%v", draft.UserID, err)
	}
	return &domain.SettlementResult{
		Succeeded:      false,
		Reason:         reason,
		OutcomeUnknown: outcomeUnknown,
		Timestamp:      e.now().UTC(),
	}
}
