package app

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/kashly/transfer-service/internal/domain"
	"github.com/kashly/transfer-service/internal/store"
	"github.com/kashly/transfer-service/pkg/directoryclient"
	"github.com/kashly/transfer-service/pkg/ledgerclient"
)

// fakeRepository is an in-memory store.Repository for app tests.
type fakeRepository struct {
	mu           sync.Mutex
	accountRefs  map[uuid.UUID]string
	channelRefs  map[string]channelAccount
	transactions []domain.Transaction
	recents      []domain.RecentRecipient

	findRecentsErr error
}

type channelAccount struct {
	ref    string
	userID uuid.UUID
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		accountRefs: make(map[uuid.UUID]string),
		channelRefs: make(map[string]channelAccount),
	}
}

func channelKey(channel domain.ChannelType, value string) string {
	return string(channel) + "|" + strings.ToLower(strings.TrimSpace(value))
}

func (f *fakeRepository) FindLedgerAccountRef(ctx context.Context, userID uuid.UUID) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ref, ok := f.accountRefs[userID]
	if !ok {
		return "", store.ErrAccountNotFound
	}
	return ref, nil
}

func (f *fakeRepository) FindLedgerAccountRefByChannel(ctx context.Context, channel domain.ChannelType, channelValue string) (string, *uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acct, ok := f.channelRefs[channelKey(channel, channelValue)]
	if !ok {
		return "", nil, store.ErrAccountNotFound
	}
	id := acct.userID
	return acct.ref, &id, nil
}

func (f *fakeRepository) CreateTransaction(ctx context.Context, tx *domain.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.transactions {
		if existing.IdempotencyKey == tx.IdempotencyKey {
			return store.ErrDuplicateTransaction
		}
	}
	f.transactions = append(f.transactions, *tx)
	return nil
}

func (f *fakeRepository) FindTransactionByIdempotencyKey(ctx context.Context, key string) (*domain.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.transactions {
		if f.transactions[i].IdempotencyKey == key {
			tx := f.transactions[i]
			return &tx, nil
		}
	}
	return nil, store.ErrTransactionNotFound
}

func (f *fakeRepository) FindTransactionsByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Transaction
	for _, tx := range f.transactions {
		if tx.SenderID == userID || (tx.RecipientID != nil && *tx.RecipientID == userID) {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (f *fakeRepository) FindRecentRecipients(ctx context.Context, senderID uuid.UUID, limit int) ([]domain.RecentRecipient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findRecentsErr != nil {
		return nil, f.findRecentsErr
	}
	recents := make([]domain.RecentRecipient, len(f.recents))
	copy(recents, f.recents)
	if limit > 0 && len(recents) > limit {
		recents = recents[:limit]
	}
	return recents, nil
}

// fakeDirectory returns canned contacts or a configured error.
type fakeDirectory struct {
	contacts []directoryclient.Contact
	err      error
}

func (f *fakeDirectory) SearchContacts(ctx context.Context, userID, query string) ([]directoryclient.Contact, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.contacts, nil
}

// fakeVerifier accepts exactly one PIN and can simulate an outage.
type fakeVerifier struct {
	correctPIN string
	err        error
	calls      int
}

func (f *fakeVerifier) VerifyPIN(ctx context.Context, subject, code string) (bool, error) {
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	return code == f.correctPIN, nil
}

// fakeLedger serves a fixed balance and scripted transfer outcomes.
type fakeLedger struct {
	mu             sync.Mutex
	balance        ledgerclient.Balance
	balanceErr     error
	transferErr    error
	transferRecord ledgerclient.TransactionRecord
	transferCalls  int
	lastTransfer   ledgerclient.TransferRequest
}

func (f *fakeLedger) GetBalance(ctx context.Context, accountRef string) (*ledgerclient.Balance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balanceErr != nil {
		return nil, f.balanceErr
	}
	balance := f.balance
	return &balance, nil
}

func (f *fakeLedger) Transfer(ctx context.Context, transfer ledgerclient.TransferRequest) (*ledgerclient.TransactionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transferCalls++
	f.lastTransfer = transfer
	if f.transferErr != nil {
		return nil, f.transferErr
	}
	record := f.transferRecord
	if record.ID == "" {
		record.ID = "ledger-tx-1"
		record.Status = "settled"
	}
	return &record, nil
}

// fakePublisher records published events.
type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

type publishedEvent struct {
	exchange   string
	routingKey string
	body       interface{}
}

func (f *fakePublisher) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, publishedEvent{exchange: exchange, routingKey: routingKey, body: body})
	return nil
}

func (f *fakePublisher) Close() {}

func (f *fakePublisher) byRoutingKey(key string) []publishedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []publishedEvent
	for _, e := range f.events {
		if e.routingKey == key {
			out = append(out, e)
		}
	}
	return out
}
