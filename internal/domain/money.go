/**
 * @description
 * Exact decimal handling for user-entered amounts. Input strings such as
 * "50.00" are converted to int64 cents through shopspring/decimal so that no
 * binary floating-point rounding ever touches a money value.
 */

package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

var centsFactor = decimal.NewFromInt(100)

// ParseAmount converts a user-entered decimal string into cents. It rejects
// empty input, non-numeric input, negative values, and more than two
// fraction digits.
func ParseAmount(input string) (int64, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return 0, NewValidationError(ValidationMalformedAmount, "amount is required")
	}

	value, err := decimal.NewFromString(trimmed)
	if err != nil {
		return 0, NewValidationError(ValidationMalformedAmount, "amount %q is not a number", trimmed)
	}
	if value.IsNegative() {
		return 0, NewValidationError(ValidationMalformedAmount, "amount must not be negative")
	}
	if value.Exponent() < -2 {
		return 0, NewValidationError(ValidationMalformedAmount, "amount %q has more than two decimal places", trimmed)
	}

	cents := value.Mul(centsFactor)
	if !cents.IsInteger() {
		return 0, NewValidationError(ValidationMalformedAmount, "amount %q has more than two decimal places", trimmed)
	}
	return cents.IntPart(), nil
}

// FormatAmount renders cents as a two-decimal string, e.g. 5299 -> "52.99".
func FormatAmount(cents int64) string {
	return decimal.NewFromInt(cents).Div(centsFactor).StringFixed(2)
}
