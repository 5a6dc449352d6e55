package ledgerclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGetBalance(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/accounts/acct-1/balance" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-ledger-key") != "secret" {
			t.Fatalf("missing api key header")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"available_cents":284750,"ledger_cents":290000,"currency_code":"USD"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret", true)
	balance, err := client.GetBalance(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if balance.AvailableCents != 284750 || balance.CurrencyCode != "USD" {
		t.Fatalf("unexpected balance: %+v", balance)
	}
}

func TestAtomicTransferSendsIdempotencyKey(t *testing.T) {
	var gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/transfers" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		gotKey = r.Header.Get("Idempotency-Key")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"tx-1","status":"settled","settled_at":"2026-03-01T12:00:00Z"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret", true)
	record, err := client.Transfer(context.Background(), TransferRequest{
		FromAccount:    "acct-1",
		ToAccount:      "acct-2",
		AmountCents:    2500,
		FeeCents:       299,
		CurrencyCode:   "USD",
		IdempotencyKey: "confirm-abc",
	})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if record.ID != "tx-1" {
		t.Fatalf("unexpected record: %+v", record)
	}
	if gotKey != "confirm-abc" {
		t.Fatalf("expected idempotency key on request, got %q", gotKey)
	}
}

func TestTransferErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{
			name:    "insufficient funds code",
			status:  http.StatusPaymentRequired,
			body:    `{"error":{"code":"insufficient_funds","message":"balance too low"}}`,
			wantErr: ErrInsufficientFunds,
		},
		{
			name:    "account not found code",
			status:  http.StatusNotFound,
			body:    `{"error":{"code":"account_not_found","message":"no such account"}}`,
			wantErr: ErrAccountNotFound,
		},
		{
			name:    "5xx with error body",
			status:  http.StatusBadGateway,
			body:    `{"error":{"code":"upstream","message":"ledger core down"}}`,
			wantErr: ErrLedgerUnavailable,
		},
		{
			name:    "5xx with unparsable body",
			status:  http.StatusInternalServerError,
			body:    `boom`,
			wantErr: ErrLedgerUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewClient(server.URL, "secret", true)
			_, err := client.Transfer(context.Background(), TransferRequest{IdempotencyKey: "k"})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestTransferTimeoutIsLedgerUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret", true)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.Transfer(ctx, TransferRequest{IdempotencyKey: "k"})
	if !errors.Is(err, ErrLedgerUnavailable) {
		t.Fatalf("expected ErrLedgerUnavailable on timeout, got %v", err)
	}
}

func TestTwoCallTransferPartialFailure(t *testing.T) {
	var debitKey, creditKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/accounts/acct-1/debits":
			debitKey = r.Header.Get("Idempotency-Key")
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"id":"debit-1","status":"settled"}`))
		case "/v1/accounts/acct-2/credits":
			creditKey = r.Header.Get("Idempotency-Key")
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte(`{"error":{"code":"upstream","message":"down"}}`))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret", false)
	_, err := client.Transfer(context.Background(), TransferRequest{
		FromAccount:    "acct-1",
		ToAccount:      "acct-2",
		AmountCents:    2500,
		FeeCents:       299,
		CurrencyCode:   "USD",
		IdempotencyKey: "confirm-abc",
	})
	if !errors.Is(err, ErrLedgerUnavailable) {
		t.Fatalf("credit-after-debit failure must be ErrLedgerUnavailable, got %v", err)
	}
	if debitKey != "confirm-abc:debit" || creditKey != "confirm-abc:credit" {
		t.Fatalf("expected suffixed keys, got debit=%q credit=%q", debitKey, creditKey)
	}
}

func TestTwoCallTransferSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"debit-1","status":"settled"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret", false)
	record, err := client.Transfer(context.Background(), TransferRequest{
		FromAccount:    "acct-1",
		ToAccount:      "acct-2",
		AmountCents:    2500,
		CurrencyCode:   "USD",
		IdempotencyKey: "confirm-abc",
	})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if record.ID != "debit-1" {
		t.Fatalf("unexpected record: %+v", record)
	}
}
