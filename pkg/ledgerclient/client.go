/**
 * @description
 * This package provides a client for the ledger service, the external system
 * that owns account balances. It encapsulates authenticated HTTP requests for
 * balance reads and balance mutations, and converts transport-level failures
 * into the typed errors the settlement layer works with.
 *
 * The client is written against an atomic transfer endpoint. When the ledger
 * deployment only offers separate debit/credit endpoints, the client wraps
 * both calls and reports any partial failure as ErrLedgerUnavailable; it
 * never retries a debit on its own, because the prior attempt may already
 * have settled.
 *
 * @dependencies
 * - bytes, context, encoding/json, net/http, time: Standard Go libraries.
 */
package ledgerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

var (
	// ErrInsufficientFunds is returned when the ledger rejects a mutation
	// because the source account cannot cover it.
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")

	// ErrAccountNotFound is returned when the referenced account does not
	// exist at the ledger.
	ErrAccountNotFound = errors.New("ledger: account not found")

	// ErrLedgerUnavailable is returned for timeouts, 5xx responses, and
	// partial two-call failures. The outcome of the mutation may be unknown;
	// callers must not retry blindly.
	ErrLedgerUnavailable = errors.New("ledger: unavailable")
)

// Client is a client for the ledger service API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client

	// atomicTransfers selects the single-call transfer endpoint. When false
	// the client falls back to wrapping separate debit and credit calls.
	atomicTransfers bool
}

// NewClient creates a new ledger API client.
func NewClient(baseURL, apiKey string, atomicTransfers bool) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		atomicTransfers: atomicTransfers,
	}
}

// TransferRequest is the payload for a two-sided balance mutation: debit the
// source by amount+fee, credit the destination by amount. The fee is retained
// by the platform account at the ledger.
type TransferRequest struct {
	FromAccount    string `json:"from_account"`
	ToAccount      string `json:"to_account"`
	AmountCents    int64  `json:"amount_cents"`
	FeeCents       int64  `json:"fee_cents"`
	CurrencyCode   string `json:"currency_code"`
	Note           string `json:"note,omitempty"`
	IdempotencyKey string `json:"-"`
}

// TransactionRecord is the ledger's durable record of a settled transfer.
type TransactionRecord struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	SettledAt time.Time `json:"settled_at"`
}

// Balance is the current state of an account at the ledger.
type Balance struct {
	AvailableCents int64  `json:"available_cents"`
	LedgerCents    int64  `json:"ledger_cents"`
	CurrencyCode   string `json:"currency_code"`
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// GetBalance fetches the current balance for an account. Every balance check
// is a fresh read; the service never caches balances locally.
func (c *Client) GetBalance(ctx context.Context, accountRef string) (*Balance, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/v1/accounts/"+accountRef+"/balance", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create balance request: %w", err)
	}
	c.setHeaders(req, "")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		log.Printf("level=warn component=ledger_client op=get_balance account=%s err=%v", accountRef, err)
		return nil, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading balance response: %v", ErrLedgerUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.mapError(resp.StatusCode, body, "get_balance")
	}

	var balance Balance
	if err := json.Unmarshal(body, &balance); err != nil {
		return nil, fmt.Errorf("failed to decode balance response: %w", err)
	}
	return &balance, nil
}

// Transfer performs the two-sided mutation as one indivisible operation from
// the caller's point of view. The idempotency key makes a retried call for
// the same confirm action a no-op at the ledger.
func (c *Client) Transfer(ctx context.Context, transfer TransferRequest) (*TransactionRecord, error) {
	if c.atomicTransfers {
		return c.atomicTransfer(ctx, transfer)
	}
	return c.twoCallTransfer(ctx, transfer)
}

func (c *Client) atomicTransfer(ctx context.Context, transfer TransferRequest) (*TransactionRecord, error) {
	body, err := json.Marshal(transfer)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transfer request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/transfers", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create transfer request: %w", err)
	}
	c.setHeaders(req, transfer.IdempotencyKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		log.Printf("level=warn component=ledger_client op=transfer outcome=unknown err=%v", err)
		return nil, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading transfer response: %v", ErrLedgerUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.mapError(resp.StatusCode, respBody, "transfer")
	}

	var record TransactionRecord
	if err := json.Unmarshal(respBody, &record); err != nil {
		return nil, fmt.Errorf("failed to decode transfer response: %w", err)
	}
	return &record, nil
}

// twoCallTransfer wraps the legacy debit and credit endpoints. A debit
// followed by a failed credit is a partial mutation the ledger must
// reconcile; the client surfaces it as ErrLedgerUnavailable and does not
// attempt compensation itself.
func (c *Client) twoCallTransfer(ctx context.Context, transfer TransferRequest) (*TransactionRecord, error) {
	debit := map[string]any{
		"amount_cents":  transfer.AmountCents + transfer.FeeCents,
		"currency_code": transfer.CurrencyCode,
		"note":          transfer.Note,
	}
	record, err := c.postMutation(ctx, "/v1/accounts/"+transfer.FromAccount+"/debits", debit, transfer.IdempotencyKey+":debit")
	if err != nil {
		return nil, err
	}

	credit := map[string]any{
		"amount_cents":  transfer.AmountCents,
		"currency_code": transfer.CurrencyCode,
		"note":          transfer.Note,
	}
	if _, err := c.postMutation(ctx, "/v1/accounts/"+transfer.ToAccount+"/credits", credit, transfer.IdempotencyKey+":credit"); err != nil {
		log.Printf("level=error component=ledger_client op=transfer msg=\"credit failed after successful debit; manual reconciliation required\" idempotency_key=%s err=%v", transfer.IdempotencyKey, err)
		return nil, fmt.Errorf("%w: credit failed after debit", ErrLedgerUnavailable)
	}
	return record, nil
}

func (c *Client) postMutation(ctx context.Context, path string, payload map[string]any, idempotencyKey string) (*TransactionRecord, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal mutation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create mutation request: %w", err)
	}
	c.setHeaders(req, idempotencyKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading mutation response: %v", ErrLedgerUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.mapError(resp.StatusCode, respBody, "mutation")
	}

	var record TransactionRecord
	if err := json.Unmarshal(respBody, &record); err != nil {
		return nil, fmt.Errorf("failed to decode mutation response: %w", err)
	}
	return &record, nil
}

func (c *Client) setHeaders(req *http.Request, idempotencyKey string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-ledger-key", c.APIKey)
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
}

func (c *Client) mapError(status int, body []byte, op string) error {
	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		log.Printf("level=warn component=ledger_client op=%s status=%d msg=\"non-2xx response (unparsable error body)\"", op, status)
		if status >= 500 {
			return fmt.Errorf("%w: status %d", ErrLedgerUnavailable, status)
		}
		return fmt.Errorf("ledger: unexpected status %d", status)
	}

	log.Printf("level=warn component=ledger_client op=%s status=%d code=%q message=%q", op, status, envelope.Error.Code, envelope.Error.Message)

	switch envelope.Error.Code {
	case "insufficient_funds":
		return ErrInsufficientFunds
	case "account_not_found":
		return ErrAccountNotFound
	}
	if status >= 500 {
		return fmt.Errorf("%w: status %d", ErrLedgerUnavailable, status)
	}
	return fmt.Errorf("ledger: %s (status %d)", envelope.Error.Message, status)
}
