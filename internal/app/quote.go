/**
 * @description
 * The fee calculator. Quote derives the amount/fee/total breakdown for a
 * prospective transfer and validates it against the currency allowlist, the
 * per-transfer ceiling, and the sender's available balance. It is pure and
 * side-effect free: the same inputs always produce the same quote, so it is
 * safe to call on every keystroke.
 */

package app

import (
	"strings"

	"github.com/kashly/transfer-service/internal/domain"
)

// QuoteCalculator computes transfer quotes from configured pricing rules.
type QuoteCalculator struct {
	flatFeeCents            int64
	feeWaiverThresholdCents int64
	perTransferLimitCents   int64
	currencies              map[string]struct{}
}

// NewQuoteCalculator builds a calculator. Amounts are in the smallest
// currency unit. Transfers strictly above the waiver threshold carry no fee;
// everything else pays the flat fee.
func NewQuoteCalculator(flatFeeCents, feeWaiverThresholdCents, perTransferLimitCents int64, currencies []string) *QuoteCalculator {
	allowed := make(map[string]struct{}, len(currencies))
	for _, c := range currencies {
		allowed[strings.ToUpper(strings.TrimSpace(c))] = struct{}{}
	}
	return &QuoteCalculator{
		flatFeeCents:            flatFeeCents,
		feeWaiverThresholdCents: feeWaiverThresholdCents,
		perTransferLimitCents:   perTransferLimitCents,
		currencies:              allowed,
	}
}

// Quote validates the amount and returns its fee breakdown.
//
// Checks run in a fixed order so callers get deterministic errors:
// positivity, currency, per-transfer ceiling, then balance. The ceiling is
// checked before the balance so an over-limit amount reports the limit
// violation even when the balance would also be insufficient. The balance
// check compares the principal amount, not amount plus fee; the fee is
// re-checked against the live balance at settlement time.
func (c *QuoteCalculator) Quote(amountCents int64, currencyCode string, availableCents int64) (*domain.TransferQuote, error) {
	if amountCents <= 0 {
		return nil, domain.NewValidationError(domain.ValidationBelowMinimum, "amount must be greater than zero")
	}

	currency := strings.ToUpper(strings.TrimSpace(currencyCode))
	if _, ok := c.currencies[currency]; !ok {
		return nil, domain.NewValidationError(domain.ValidationUnsupportedCurrency, "currency %q is not supported", currencyCode)
	}

	if amountCents > c.perTransferLimitCents {
		return nil, domain.NewValidationError(domain.ValidationExceedsDailyLimit,
			"amount exceeds the per-transfer limit of %s", domain.FormatAmount(c.perTransferLimitCents))
	}

	if amountCents > availableCents {
		return nil, domain.NewValidationError(domain.ValidationInsufficientFunds,
			"amount exceeds the available balance of %s", domain.FormatAmount(availableCents))
	}

	fee := c.flatFeeCents
	if amountCents > c.feeWaiverThresholdCents {
		fee = 0
	}

	return &domain.TransferQuote{
		AmountCents:  amountCents,
		FeeCents:     fee,
		TotalCents:   amountCents + fee,
		CurrencyCode: currency,
	}, nil
}

// Price computes the fee breakdown without the ceiling and balance checks.
// Settlement re-validates both against live state, so this is the form used
// when rebuilding a quote from an already accepted draft.
func (c *QuoteCalculator) Price(amountCents int64, currencyCode string) *domain.TransferQuote {
	fee := c.flatFeeCents
	if amountCents > c.feeWaiverThresholdCents {
		fee = 0
	}
	return &domain.TransferQuote{
		AmountCents:  amountCents,
		FeeCents:     fee,
		TotalCents:   amountCents + fee,
		CurrencyCode: strings.ToUpper(strings.TrimSpace(currencyCode)),
	}
}
