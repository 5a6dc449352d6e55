package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kashly/transfer-service/internal/domain"
	"github.com/kashly/transfer-service/pkg/ledgerclient"
	"github.com/kashly/transfer-service/pkg/rabbitmq"
)

type settlementFixture struct {
	repo     *fakeRepository
	ledger   *fakeLedger
	events   *fakePublisher
	executor *SettlementExecutor
	sender   uuid.UUID
	draft    *domain.TransferDraft
	quote    *domain.TransferQuote
}

func newSettlementFixture(t *testing.T) *settlementFixture {
	t.Helper()
	sender := uuid.New()
	recipientUser := uuid.New()

	repo := newFakeRepository()
	repo.accountRefs[sender] = "acct-sender"
	repo.channelRefs[channelKey(domain.ChannelEmail, "sarah.chen@example.com")] = channelAccount{
		ref:    "acct-recipient",
		userID: recipientUser,
	}

	ledger := &fakeLedger{balance: ledgerclient.Balance{AvailableCents: 284750, CurrencyCode: "USD"}}
	events := &fakePublisher{}

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	executor := NewSettlementExecutor(repo, ledger, events, 15*time.Second, 500000, fixedClock(now))

	return &settlementFixture{
		repo:     repo,
		ledger:   ledger,
		events:   events,
		executor: executor,
		sender:   sender,
		draft: &domain.TransferDraft{
			UserID: sender,
			Step:   domain.StepSettling,
			Recipient: &domain.Recipient{
				ID:           recipientUser,
				DisplayName:  "Sarah Chen",
				Channel:      domain.ChannelEmail,
				ChannelValue: "sarah.chen@example.com",
			},
			AmountCents:    2500,
			CurrencyCode:   "USD",
			Note:           "lunch",
			IdempotencyKey: uuid.NewString(),
			CreatedAt:      now,
		},
		quote: &domain.TransferQuote{AmountCents: 2500, FeeCents: 299, TotalCents: 2799, CurrencyCode: "USD"},
	}
}

func TestSettleSuccessRecordsAndPublishes(t *testing.T) {
	f := newSettlementFixture(t)

	result, err := f.executor.Settle(context.Background(), f.draft, f.quote)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if !result.Succeeded {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.TransactionID == uuid.Nil {
		t.Fatal("expected a transaction id on success")
	}

	if f.ledger.transferCalls != 1 {
		t.Fatalf("expected one ledger mutation, got %d", f.ledger.transferCalls)
	}
	if f.ledger.lastTransfer.AmountCents != 2500 || f.ledger.lastTransfer.FeeCents != 299 {
		t.Fatalf("unexpected mutation payload: %+v", f.ledger.lastTransfer)
	}
	if f.ledger.lastTransfer.IdempotencyKey != f.draft.IdempotencyKey {
		t.Fatal("expected the draft's idempotency key on the ledger request")
	}

	recorded, err := f.repo.FindTransactionByIdempotencyKey(context.Background(), f.draft.IdempotencyKey)
	if err != nil {
		t.Fatalf("expected a feed record, got %v", err)
	}
	if recorded.Status != "completed" || recorded.AmountCents != 2500 || recorded.FeeCents != 299 {
		t.Fatalf("unexpected feed record: %+v", recorded)
	}

	settled := f.events.byRoutingKey(rabbitmq.RoutingTransferSettled)
	if len(settled) != 1 {
		t.Fatalf("expected one settled event, got %d", len(settled))
	}
}

func TestSettleReplaysRecordedOutcome(t *testing.T) {
	f := newSettlementFixture(t)

	first, err := f.executor.Settle(context.Background(), f.draft, f.quote)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	second, err := f.executor.Settle(context.Background(), f.draft, f.quote)
	if err != nil {
		t.Fatalf("settle replay: %v", err)
	}

	if !second.Succeeded || second.TransactionID != first.TransactionID {
		t.Fatalf("expected replayed outcome %v, got %v", first.TransactionID, second.TransactionID)
	}
	if f.ledger.transferCalls != 1 {
		t.Fatalf("replay must not touch the ledger again, got %d calls", f.ledger.transferCalls)
	}
}

func TestSettleFailureReasons(t *testing.T) {
	tests := []struct {
		name        string
		prepare     func(f *settlementFixture)
		wantReason  domain.FailureReason
		wantUnknown bool
	}{
		{
			name: "insufficient funds on re-read",
			prepare: func(f *settlementFixture) {
				f.ledger.balance.AvailableCents = 2798 // one cent short of amount+fee
			},
			wantReason: domain.FailureInsufficientFunds,
		},
		{
			name: "insufficient funds from the ledger",
			prepare: func(f *settlementFixture) {
				f.ledger.transferErr = ledgerclient.ErrInsufficientFunds
			},
			wantReason: domain.FailureInsufficientFunds,
		},
		{
			name: "over the per-transfer ceiling",
			prepare: func(f *settlementFixture) {
				f.quote.AmountCents = 600000
				f.quote.TotalCents = 600000
				f.draft.AmountCents = 600000
			},
			wantReason: domain.FailureLimitExceeded,
		},
		{
			name: "ledger unavailable is ambiguous",
			prepare: func(f *settlementFixture) {
				f.ledger.transferErr = ledgerclient.ErrLedgerUnavailable
			},
			wantReason:  domain.FailureLedgerUnavailable,
			wantUnknown: true,
		},
		{
			name: "balance re-read failure is a definite failure",
			prepare: func(f *settlementFixture) {
				f.ledger.balanceErr = ledgerclient.ErrLedgerUnavailable
			},
			wantReason: domain.FailureLedgerUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSettlementFixture(t)
			tt.prepare(f)

			result, err := f.executor.Settle(context.Background(), f.draft, f.quote)
			if err != nil {
				t.Fatalf("settle: %v", err)
			}
			if result.Succeeded {
				t.Fatalf("expected failure, got %+v", result)
			}
			if result.Reason != tt.wantReason {
				t.Fatalf("expected reason=%s, got %s", tt.wantReason, result.Reason)
			}
			if result.OutcomeUnknown != tt.wantUnknown {
				t.Fatalf("expected outcome_unknown=%v, got %v", tt.wantUnknown, result.OutcomeUnknown)
			}

			// No feed record on failure.
			if len(f.repo.transactions) != 0 {
				t.Fatalf("failed settlement must not write the feed, got %d records", len(f.repo.transactions))
			}
			if failed := f.events.byRoutingKey(rabbitmq.RoutingTransferFailed); len(failed) != 1 {
				t.Fatalf("expected one failed event, got %d", len(failed))
			}
		})
	}
}

func TestSettleUnresolvableRecipient(t *testing.T) {
	f := newSettlementFixture(t)
	f.draft.Recipient.ChannelValue = "nobody@example.com"

	_, err := f.executor.Settle(context.Background(), f.draft, f.quote)
	var vErr *domain.ValidationError
	if !errors.As(err, &vErr) || vErr.Code != domain.ValidationIncompleteRecipient {
		t.Fatalf("expected incomplete_recipient error, got %v", err)
	}
	if f.ledger.transferCalls != 0 {
		t.Fatal("unresolvable recipient must not reach the ledger")
	}
}

func TestSettleRequiresIdempotencyKey(t *testing.T) {
	f := newSettlementFixture(t)
	f.draft.IdempotencyKey = ""

	if _, err := f.executor.Settle(context.Background(), f.draft, f.quote); err == nil {
		t.Fatal("expected error for draft without idempotency key")
	}
	if f.ledger.transferCalls != 0 {
		t.Fatal("draft without key must not reach the ledger")
	}
}

func TestSenderBalance(t *testing.T) {
	f := newSettlementFixture(t)
	available, err := f.executor.SenderBalance(context.Background(), f.sender)
	if err != nil {
		t.Fatalf("sender balance: %v", err)
	}
	if available != 284750 {
		t.Fatalf("expected 284750, got %d", available)
	}
}
