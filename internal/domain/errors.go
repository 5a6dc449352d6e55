package domain

import "fmt"

// ValidationCode classifies a local, pre-submission validation failure.
// Validation errors are surfaced inline and never sent to a remote service.
type ValidationCode string

const (
	ValidationBelowMinimum        ValidationCode = "below_minimum"
	ValidationExceedsDailyLimit   ValidationCode = "exceeds_daily_limit"
	ValidationInsufficientFunds   ValidationCode = "insufficient_funds"
	ValidationUnsupportedCurrency ValidationCode = "unsupported_currency"
	ValidationMalformedAmount     ValidationCode = "malformed_amount"
	ValidationMalformedPIN        ValidationCode = "malformed_pin"
	ValidationIncompleteRecipient ValidationCode = "incomplete_recipient"
	ValidationNoteTooLong         ValidationCode = "note_too_long"
)

// ValidationError carries a machine-readable code alongside a user-facing
// message. Handlers map these to HTTP 400/402 responses.
type ValidationError struct {
	Code    ValidationCode
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewValidationError constructs a ValidationError with a formatted message.
func NewValidationError(code ValidationCode, format string, args ...any) *ValidationError {
	return &ValidationError{Code: code, Message: fmt.Sprintf(format, args...)}
}
