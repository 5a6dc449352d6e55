package app

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kashly/transfer-service/internal/domain"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func testRecipient() *domain.Recipient {
	return &domain.Recipient{
		ID:           uuid.New(),
		DisplayName:  "Sarah Chen",
		Channel:      domain.ChannelEmail,
		ChannelValue: "sarah.chen@example.com",
	}
}

func wizardAt(t *testing.T, step domain.Step) *Wizard {
	t.Helper()
	w := NewWizard(uuid.New(), nil)
	if step == domain.StepSelectingRecipient {
		return w
	}
	if err := w.SelectRecipient(testRecipient()); err != nil {
		t.Fatalf("select recipient: %v", err)
	}
	if step == domain.StepEnteringAmount {
		return w
	}
	if err := w.EnterAmount(2500, "USD"); err != nil {
		t.Fatalf("enter amount: %v", err)
	}
	if step == domain.StepReviewing {
		return w
	}
	if err := w.BeginAuthorization(); err != nil {
		t.Fatalf("begin authorization: %v", err)
	}
	if step == domain.StepAuthorizingPin {
		return w
	}
	if err := w.BeginSettlement(); err != nil {
		t.Fatalf("begin settlement: %v", err)
	}
	if step == domain.StepSettling {
		return w
	}
	succeeded := step == domain.StepSucceeded
	if err := w.CompleteSettlement(succeeded); err != nil {
		t.Fatalf("complete settlement: %v", err)
	}
	return w
}

func TestWizardHappyPath(t *testing.T) {
	w := NewWizard(uuid.New(), nil)
	if got := w.Draft().Step; got != domain.StepSelectingRecipient {
		t.Fatalf("expected fresh wizard at %s, got %s", domain.StepSelectingRecipient, got)
	}

	if err := w.SelectRecipient(testRecipient()); err != nil {
		t.Fatalf("select recipient: %v", err)
	}
	if err := w.EnterAmount(2500, "USD"); err != nil {
		t.Fatalf("enter amount: %v", err)
	}
	if err := w.BeginAuthorization(); err != nil {
		t.Fatalf("begin authorization: %v", err)
	}
	if err := w.BeginSettlement(); err != nil {
		t.Fatalf("begin settlement: %v", err)
	}
	if err := w.CompleteSettlement(true); err != nil {
		t.Fatalf("complete settlement: %v", err)
	}
	if got := w.Draft().Step; got != domain.StepSucceeded {
		t.Fatalf("expected %s, got %s", domain.StepSucceeded, got)
	}
}

func TestWizardRejectsOutOfOrderOperations(t *testing.T) {
	tests := []struct {
		name string
		at   domain.Step
		op   func(w *Wizard) error
	}{
		{"enter amount before recipient", domain.StepSelectingRecipient, func(w *Wizard) error { return w.EnterAmount(2500, "USD") }},
		{"authorize before amount", domain.StepEnteringAmount, func(w *Wizard) error { return w.BeginAuthorization() }},
		{"settle before authorization", domain.StepReviewing, func(w *Wizard) error { return w.BeginSettlement() }},
		{"select recipient at review", domain.StepReviewing, func(w *Wizard) error { return w.SelectRecipient(testRecipient()) }},
		{"complete settlement before settling", domain.StepAuthorizingPin, func(w *Wizard) error { return w.CompleteSettlement(true) }},
		{"authorize again after success", domain.StepSucceeded, func(w *Wizard) error { return w.BeginAuthorization() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := wizardAt(t, tt.at)
			if err := tt.op(w); !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("expected ErrInvalidTransition, got %v", err)
			}
		})
	}
}

func TestWizardGuards(t *testing.T) {
	w := NewWizard(uuid.New(), nil)

	if err := w.SelectRecipient(&domain.Recipient{DisplayName: "No Address"}); !errors.Is(err, ErrGuardNotSatisfied) {
		t.Fatalf("expected ErrGuardNotSatisfied for incomplete recipient, got %v", err)
	}
	if err := w.SelectRecipient(&domain.Recipient{ChannelValue: "nameless@example.com", Channel: domain.ChannelEmail}); !errors.Is(err, ErrGuardNotSatisfied) {
		t.Fatalf("expected ErrGuardNotSatisfied for missing display name, got %v", err)
	}

	if err := w.SelectRecipient(testRecipient()); err != nil {
		t.Fatalf("select recipient: %v", err)
	}
	if err := w.EnterAmount(0, "USD"); !errors.Is(err, ErrGuardNotSatisfied) {
		t.Fatalf("expected ErrGuardNotSatisfied for zero amount, got %v", err)
	}
}

func TestWizardBackwardNavigation(t *testing.T) {
	t.Run("back to earlier step keeps data", func(t *testing.T) {
		w := wizardAt(t, domain.StepReviewing)
		if err := w.NavigateBack(domain.StepSelectingRecipient); err != nil {
			t.Fatalf("navigate back: %v", err)
		}
		draft := w.Draft()
		if draft.Step != domain.StepSelectingRecipient {
			t.Fatalf("expected %s, got %s", domain.StepSelectingRecipient, draft.Step)
		}
		if draft.AmountCents != 2500 {
			t.Fatalf("expected amount retained, got %d", draft.AmountCents)
		}
		if draft.Recipient == nil {
			t.Fatal("expected recipient retained")
		}
	})

	t.Run("changing recipient after back keeps amount", func(t *testing.T) {
		w := wizardAt(t, domain.StepReviewing)
		if err := w.NavigateBack(domain.StepSelectingRecipient); err != nil {
			t.Fatalf("navigate back: %v", err)
		}
		replacement := testRecipient()
		replacement.DisplayName = "Mike Johnson"
		if err := w.SelectRecipient(replacement); err != nil {
			t.Fatalf("select recipient: %v", err)
		}
		draft := w.Draft()
		if draft.Recipient.DisplayName != "Mike Johnson" {
			t.Fatalf("expected replaced recipient, got %q", draft.Recipient.DisplayName)
		}
		if draft.AmountCents != 2500 {
			t.Fatalf("expected amount retained, got %d", draft.AmountCents)
		}
	})

	t.Run("forward and same-step targets rejected", func(t *testing.T) {
		w := wizardAt(t, domain.StepEnteringAmount)
		if err := w.NavigateBack(domain.StepReviewing); !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("expected ErrInvalidTransition for forward target, got %v", err)
		}
		if err := w.NavigateBack(domain.StepEnteringAmount); !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("expected ErrInvalidTransition for same step, got %v", err)
		}
	})

	t.Run("no backward navigation once settling", func(t *testing.T) {
		w := wizardAt(t, domain.StepSettling)
		if err := w.NavigateBack(domain.StepReviewing); !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("expected ErrInvalidTransition, got %v", err)
		}
	})

	t.Run("unknown step rejected", func(t *testing.T) {
		w := wizardAt(t, domain.StepReviewing)
		if err := w.NavigateBack(domain.Step("teleporting")); !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("expected ErrInvalidTransition, got %v", err)
		}
	})
}

func TestWizardFailureReturnsToReview(t *testing.T) {
	w := wizardAt(t, domain.StepFailed)
	if err := w.ReturnToReview(); err != nil {
		t.Fatalf("return to review: %v", err)
	}
	draft := w.Draft()
	if draft.Step != domain.StepReviewing {
		t.Fatalf("expected %s, got %s", domain.StepReviewing, draft.Step)
	}
	if draft.AmountCents != 2500 || draft.Recipient == nil {
		t.Fatal("expected draft data retained after failure")
	}
}

func TestWizardTouchesLastTouchedAt(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	current := start
	w := NewWizard(uuid.New(), func() time.Time { return current })

	current = start.Add(5 * time.Minute)
	if err := w.SelectRecipient(testRecipient()); err != nil {
		t.Fatalf("select recipient: %v", err)
	}

	draft := w.Draft()
	if !draft.CreatedAt.Equal(start) {
		t.Fatalf("expected CreatedAt pinned to start, got %v", draft.CreatedAt)
	}
	if !draft.LastTouchedAt.Equal(current) {
		t.Fatalf("expected LastTouchedAt advanced, got %v", draft.LastTouchedAt)
	}
}
