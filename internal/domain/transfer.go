/**
 * @description
 * This file defines the core domain models for the transfer-service.
 * These structs represent the entities moving through the send-money wizard:
 * the recipient being paid, the in-progress draft, the computed quote, and
 * the settlement outcome, plus the durable transaction record written to
 * the feed on success.
 *
 * @notes
 * - Amounts are stored as `int64` in the smallest currency unit (cents),
 *   which avoids floating-point inaccuracies with financial data.
 * - A TransferQuote is derived, never persisted; it is recomputed from the
 *   draft on every amount change and re-validated at settlement time.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Step identifies the wizard's position in the send-money flow.
type Step string

const (
	StepSelectingRecipient Step = "selecting_recipient"
	StepEnteringAmount     Step = "entering_amount"
	StepReviewing          Step = "reviewing"
	StepAuthorizingPin     Step = "authorizing_pin"
	StepSettling           Step = "settling"
	StepSucceeded          Step = "succeeded"
	StepFailed             Step = "failed"
)

// stepOrder gives each step a rank so that "strictly earlier" backward
// navigation can be checked without enumerating pairs.
var stepOrder = map[Step]int{
	StepSelectingRecipient: 0,
	StepEnteringAmount:     1,
	StepReviewing:          2,
	StepAuthorizingPin:     3,
	StepSettling:           4,
	StepSucceeded:          5,
	StepFailed:             5,
}

// Rank returns the ordinal position of the step in the wizard sequence,
// or -1 for an unknown step.
func (s Step) Rank() int {
	rank, ok := stepOrder[s]
	if !ok {
		return -1
	}
	return rank
}

// Valid reports whether the step is one of the enumerated wizard states.
func (s Step) Valid() bool {
	_, ok := stepOrder[s]
	return ok
}

// ChannelType is the kind of resolvable address a recipient is reached by.
type ChannelType string

const (
	ChannelEmail  ChannelType = "email"
	ChannelPhone  ChannelType = "phone"
	ChannelWallet ChannelType = "wallet"
)

// Recipient identifies a transfer counterparty. Recipients resolved from the
// directory or the recent-counterparty feed carry a stable ID; manually
// entered recipients use the nil UUID sentinel with IsManual set.
type Recipient struct {
	ID           uuid.UUID   `json:"id"`
	DisplayName  string      `json:"display_name"`
	Channel      ChannelType `json:"channel"`
	ChannelValue string      `json:"channel_value"`
	IsFrequent   bool        `json:"is_frequent"`
	IsManual     bool        `json:"is_manual"`
}

// Selectable reports whether the recipient is complete enough to attach to a
// draft. Partial manual input (missing name or channel value) is not a valid
// recipient.
func (r *Recipient) Selectable() bool {
	if r == nil {
		return false
	}
	return r.DisplayName != "" && r.ChannelValue != ""
}

// TransferDraft is the wizard's working state, persisted to the draft store
// after every successful transition so an interrupted session can resume.
type TransferDraft struct {
	UserID         uuid.UUID  `json:"user_id"`
	Step           Step       `json:"step"`
	Recipient      *Recipient `json:"recipient,omitempty"`
	AmountCents    int64      `json:"amount_cents"`
	CurrencyCode   string     `json:"currency_code"`
	Note           string     `json:"note,omitempty"`
	IdempotencyKey string     `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	LastTouchedAt  time.Time  `json:"last_touched_at"`
}

// ReadyForReview reports whether the draft satisfies the invariant required
// to reach Reviewing or any later step: a selected recipient and a positive
// amount.
func (d *TransferDraft) ReadyForReview() bool {
	return d != nil && d.Recipient.Selectable() && d.AmountCents > 0
}

// Age returns how long ago the draft was created.
func (d *TransferDraft) Age(now time.Time) time.Duration {
	return now.Sub(d.CreatedAt)
}

// TransferQuote is the computed amount/fee/total breakdown for a prospective
// transfer. It is derived deterministically from the draft and never stored.
type TransferQuote struct {
	AmountCents  int64  `json:"amount_cents"`
	FeeCents     int64  `json:"fee_cents"`
	TotalCents   int64  `json:"total_cents"`
	CurrencyCode string `json:"currency_code"`
}

// FailureReason classifies a settlement failure. These are the only reasons
// the wizard ever sees; raw transport errors are converted at the component
// boundary.
type FailureReason string

const (
	FailureInsufficientFunds   FailureReason = "insufficient_funds"
	FailureAuthorizationFailed FailureReason = "authorization_failed"
	FailureLimitExceeded       FailureReason = "limit_exceeded"
	FailureLedgerUnavailable   FailureReason = "ledger_unavailable"
)

// SettlementResult is the outcome of one settlement attempt. Created only by
// the settlement executor, never mutated, consumed once by the receipt layer.
type SettlementResult struct {
	Succeeded      bool          `json:"succeeded"`
	TransactionID  uuid.UUID     `json:"transaction_id,omitempty"`
	Timestamp      time.Time     `json:"timestamp,omitempty"`
	Reason         FailureReason `json:"reason,omitempty"`
	OutcomeUnknown bool          `json:"outcome_unknown,omitempty"`
}

// Transaction is the durable feed record written for a settled transfer.
// This struct maps directly to the `transactions` table.
type Transaction struct {
	ID               uuid.UUID   `json:"id"`
	SenderID         uuid.UUID   `json:"sender_id"`
	RecipientID      *uuid.UUID  `json:"recipient_id,omitempty"`
	RecipientName    string      `json:"recipient_name"`
	RecipientChannel ChannelType `json:"recipient_channel"`
	RecipientValue   string      `json:"recipient_value"`
	AmountCents      int64       `json:"amount_cents"`
	FeeCents         int64       `json:"fee_cents"`
	CurrencyCode     string      `json:"currency_code"`
	Note             string      `json:"note,omitempty"`
	Status           string      `json:"status"` // 'completed' or 'failed'
	LedgerTransferID *string     `json:"ledger_transfer_id,omitempty"`
	IdempotencyKey   string      `json:"-"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// RecentRecipient is a counterparty from the sender's transaction feed,
// ranked by how recently they were paid.
type RecentRecipient struct {
	Recipient
	LastTransactedAt time.Time `json:"last_transacted_at"`
}
