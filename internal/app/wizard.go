/**
 * @description
 * The transfer wizard state machine. A Wizard wraps one TransferDraft and
 * enforces the step sequence of the send-money flow:
 *
 *   SelectingRecipient -> EnteringAmount -> Reviewing -> AuthorizingPin
 *     -> Settling -> Succeeded
 *
 * with Settling -> Failed as the only failure edge, and Failed -> Reviewing
 * as the only way out of Failed. Forward progress is gated on per-step
 * validity; backward navigation is permitted only to strictly earlier steps
 * and never clears data captured by later steps.
 *
 * The machine is pure: it mutates only the draft it wraps. Persistence and
 * remote calls live in the service layer.
 */

package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kashly/transfer-service/internal/domain"
)

var (
	// ErrInvalidTransition is returned when a wizard operation is attempted
	// from a step that does not allow it.
	ErrInvalidTransition = errors.New("transition not allowed from current step")

	// ErrGuardNotSatisfied is returned when the step's exit guard fails,
	// e.g. advancing past recipient selection without a recipient.
	ErrGuardNotSatisfied = errors.New("step exit guard not satisfied")
)

// Wizard drives one draft through the transfer flow.
type Wizard struct {
	draft *domain.TransferDraft
	now   func() time.Time
}

// NewWizard starts a fresh flow for the user at SelectingRecipient.
func NewWizard(userID uuid.UUID, now func() time.Time) *Wizard {
	if now == nil {
		now = time.Now
	}
	ts := now().UTC()
	return &Wizard{
		draft: &domain.TransferDraft{
			UserID:        userID,
			Step:          domain.StepSelectingRecipient,
			CurrencyCode:  "USD",
			CreatedAt:     ts,
			LastTouchedAt: ts,
		},
		now: now,
	}
}

// ResumeWizard wraps a previously persisted draft. The caller is responsible
// for TTL checks; the draft store never returns a stale snapshot.
func ResumeWizard(draft *domain.TransferDraft, now func() time.Time) *Wizard {
	if now == nil {
		now = time.Now
	}
	return &Wizard{draft: draft, now: now}
}

// Draft exposes the wizard's working state for persistence and rendering.
func (w *Wizard) Draft() *domain.TransferDraft {
	return w.draft
}

func (w *Wizard) touch() {
	w.draft.LastTouchedAt = w.now().UTC()
}

// SelectRecipient attaches a complete recipient to the draft and advances to
// EnteringAmount. It is only valid while the wizard is at SelectingRecipient
// (including after backward navigation); a previously entered amount is kept.
func (w *Wizard) SelectRecipient(recipient *domain.Recipient) error {
	if w.draft.Step != domain.StepSelectingRecipient {
		return fmt.Errorf("%w: select recipient at %s", ErrInvalidTransition, w.draft.Step)
	}
	if !recipient.Selectable() {
		return fmt.Errorf("%w: recipient requires a display name and channel value", ErrGuardNotSatisfied)
	}
	w.draft.Recipient = recipient
	w.draft.Step = domain.StepEnteringAmount
	w.touch()
	return nil
}

// EnterAmount records a quoted amount and advances to Reviewing. The caller
// must have obtained a valid quote for the amount first; the wizard only
// re-checks the structural guards.
func (w *Wizard) EnterAmount(amountCents int64, currencyCode string) error {
	if w.draft.Step != domain.StepEnteringAmount {
		return fmt.Errorf("%w: enter amount at %s", ErrInvalidTransition, w.draft.Step)
	}
	if w.draft.Recipient == nil {
		return fmt.Errorf("%w: no recipient selected", ErrGuardNotSatisfied)
	}
	if amountCents <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrGuardNotSatisfied)
	}
	w.draft.AmountCents = amountCents
	w.draft.CurrencyCode = currencyCode
	w.draft.Step = domain.StepReviewing
	w.touch()
	return nil
}

// BeginAuthorization moves from Reviewing to AuthorizingPin. This only
// happens on an explicit confirm action; there is no automatic transition
// out of Reviewing.
func (w *Wizard) BeginAuthorization() error {
	if w.draft.Step != domain.StepReviewing {
		return fmt.Errorf("%w: confirm at %s", ErrInvalidTransition, w.draft.Step)
	}
	if !w.draft.ReadyForReview() {
		return fmt.Errorf("%w: draft is missing recipient or amount", ErrGuardNotSatisfied)
	}
	w.draft.Step = domain.StepAuthorizingPin
	w.touch()
	return nil
}

// BeginSettlement moves from AuthorizingPin to Settling after the
// authorization gate has passed. Settling is entered exactly once per
// confirm action; the service layer holds an in-flight lock around it.
func (w *Wizard) BeginSettlement() error {
	if w.draft.Step != domain.StepAuthorizingPin {
		return fmt.Errorf("%w: settle at %s", ErrInvalidTransition, w.draft.Step)
	}
	if !w.draft.ReadyForReview() {
		return fmt.Errorf("%w: draft is missing recipient or amount", ErrGuardNotSatisfied)
	}
	w.draft.Step = domain.StepSettling
	w.touch()
	return nil
}

// CompleteSettlement records the settlement outcome: Succeeded on success,
// Failed otherwise.
func (w *Wizard) CompleteSettlement(succeeded bool) error {
	if w.draft.Step != domain.StepSettling {
		return fmt.Errorf("%w: complete settlement at %s", ErrInvalidTransition, w.draft.Step)
	}
	if succeeded {
		w.draft.Step = domain.StepSucceeded
	} else {
		w.draft.Step = domain.StepFailed
	}
	w.touch()
	return nil
}

// ReturnToReview moves the wizard back to Reviewing after a settlement
// failure or an exhausted authorization gate, keeping all entered data so
// the user can correct and retry.
func (w *Wizard) ReturnToReview() error {
	if w.draft.Step != domain.StepFailed && w.draft.Step != domain.StepAuthorizingPin {
		return fmt.Errorf("%w: return to review at %s", ErrInvalidTransition, w.draft.Step)
	}
	w.draft.Step = domain.StepReviewing
	w.touch()
	return nil
}

// NavigateBack moves to a strictly earlier step on explicit user action.
// Captured data is kept; a later step's data is only replaced when that
// step is re-entered and changed. Backward navigation is not possible once
// settlement has been issued.
func (w *Wizard) NavigateBack(to domain.Step) error {
	if !to.Valid() {
		return fmt.Errorf("%w: unknown step %q", ErrInvalidTransition, to)
	}
	current := w.draft.Step
	if current == domain.StepSettling || current == domain.StepSucceeded {
		return fmt.Errorf("%w: cannot navigate back from %s", ErrInvalidTransition, current)
	}
	if to.Rank() >= current.Rank() {
		return fmt.Errorf("%w: %s is not earlier than %s", ErrInvalidTransition, to, current)
	}
	if to == domain.StepAuthorizingPin || to == domain.StepSettling {
		return fmt.Errorf("%w: cannot navigate directly to %s", ErrInvalidTransition, to)
	}
	w.draft.Step = to
	w.touch()
	return nil
}
