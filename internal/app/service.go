/**
 * @description
 * The Service orchestrates the send-money flow end to end: it loads and
 * persists drafts, runs the wizard state machine, delegates quoting,
 * recipient resolution, PIN authorization, and settlement to their
 * components, and holds the per-user in-flight lock so one confirm action
 * produces at most one ledger mutation.
 *
 * Every successful transition is persisted before the method returns, so a
 * session interrupted at any point resumes exactly where it left off.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kashly/transfer-service/internal/domain"
	"github.com/kashly/transfer-service/internal/store"
)

var (
	// ErrNoActiveDraft is returned when an operation requires a live draft
	// and none exists (never started, abandoned, or expired).
	ErrNoActiveDraft = errors.New("no active transfer draft")

	// ErrSettlementInFlight is returned when a confirm arrives while a
	// previous settlement for the same user is still running.
	ErrSettlementInFlight = errors.New("a settlement is already in flight")
)

// PINDeniedError reports a rejected PIN along with the attempts left before
// the lockout engages.
type PINDeniedError struct {
	AttemptsRemaining int
}

func (e *PINDeniedError) Error() string {
	return fmt.Sprintf("pin rejected (%d attempts remaining)", e.AttemptsRemaining)
}

// PINLockedError reports an exhausted attempt budget.
type PINLockedError struct {
	RetryAfterSeconds int
}

func (e *PINLockedError) Error() string {
	return fmt.Sprintf("pin attempts exhausted (retry in %ds)", e.RetryAfterSeconds)
}

// Service is the application layer of the transfer core.
type Service struct {
	repo          store.Repository
	drafts        DraftStore
	quotes        *QuoteCalculator
	resolver      *RecipientResolver
	gate          *AuthorizationGate
	executor      *SettlementExecutor
	locks         SettlementLock
	maxNoteLength int
	settleTimeout time.Duration
	now           func() time.Time
}

// NewService wires the transfer components together.
func NewService(
	repo store.Repository,
	drafts DraftStore,
	quotes *QuoteCalculator,
	resolver *RecipientResolver,
	gate *AuthorizationGate,
	executor *SettlementExecutor,
	locks SettlementLock,
	maxNoteLength int,
	settleTimeout time.Duration,
	now func() time.Time,
) *Service {
	if maxNoteLength <= 0 {
		maxNoteLength = 100
	}
	if settleTimeout <= 0 {
		settleTimeout = 15 * time.Second
	}
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:          repo,
		drafts:        drafts,
		quotes:        quotes,
		resolver:      resolver,
		gate:          gate,
		executor:      executor,
		locks:         locks,
		maxNoteLength: maxNoteLength,
		settleTimeout: settleTimeout,
		now:           now,
	}
}

// ResumeWizard returns the user's live draft, starting a fresh flow at
// recipient selection when none exists or the previous one expired.
func (s *Service) ResumeWizard(ctx context.Context, userID uuid.UUID) (*domain.TransferDraft, error) {
	draft, err := s.drafts.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if draft != nil {
		return draft, nil
	}

	wizard := NewWizard(userID, s.now)
	if err := s.drafts.Save(ctx, wizard.Draft()); err != nil {
		return nil, err
	}
	return wizard.Draft(), nil
}

// ResetDraft discards any draft and starts over at recipient selection.
func (s *Service) ResetDraft(ctx context.Context, userID uuid.UUID) (*domain.TransferDraft, error) {
	wizard := NewWizard(userID, s.now)
	if err := s.drafts.Save(ctx, wizard.Draft()); err != nil {
		return nil, err
	}
	return wizard.Draft(), nil
}

// AbandonDraft discards the draft entirely. Abandoning is always allowed and
// never produces a ledger mutation.
func (s *Service) AbandonDraft(ctx context.Context, userID uuid.UUID) error {
	return s.drafts.Clear(ctx, userID)
}

// SearchRecipients resolves a query into recipient candidates.
func (s *Service) SearchRecipients(ctx context.Context, userID uuid.UUID, query string) ([]domain.Recipient, error) {
	return s.resolver.Resolve(ctx, userID, query)
}

// SelectRecipient attaches a recipient to the draft and advances the wizard.
func (s *Service) SelectRecipient(ctx context.Context, userID uuid.UUID, recipient *domain.Recipient) (*domain.TransferDraft, error) {
	wizard, err := s.loadWizard(ctx, userID)
	if errors.Is(err, ErrNoActiveDraft) {
		// Selecting a recipient is the first real action; an expired or
		// missing draft just means a fresh flow.
		wizard = NewWizard(userID, s.now)
	} else if err != nil {
		return nil, err
	}
	if err := wizard.SelectRecipient(recipient); err != nil {
		return nil, err
	}
	if err := s.drafts.Save(ctx, wizard.Draft()); err != nil {
		return nil, err
	}
	return wizard.Draft(), nil
}

// QuoteAmount computes a quote against the live balance without touching the
// draft. Safe to call on every keystroke.
func (s *Service) QuoteAmount(ctx context.Context, userID uuid.UUID, amountCents int64, currencyCode string) (*domain.TransferQuote, error) {
	available, err := s.executor.SenderBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.quotes.Quote(amountCents, currencyCode, available)
}

// EnterAmount validates the amount, records it on the draft, and advances to
// review.
func (s *Service) EnterAmount(ctx context.Context, userID uuid.UUID, amountCents int64, currencyCode string) (*domain.TransferDraft, *domain.TransferQuote, error) {
	wizard, err := s.loadWizard(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	quote, err := s.QuoteAmount(ctx, userID, amountCents, currencyCode)
	if err != nil {
		return nil, nil, err
	}
	if err := wizard.EnterAmount(quote.AmountCents, quote.CurrencyCode); err != nil {
		return nil, nil, err
	}
	if err := s.drafts.Save(ctx, wizard.Draft()); err != nil {
		return nil, nil, err
	}
	return wizard.Draft(), quote, nil
}

// NavigateBack moves the wizard to a strictly earlier step, keeping all
// captured data.
func (s *Service) NavigateBack(ctx context.Context, userID uuid.UUID, to domain.Step) (*domain.TransferDraft, error) {
	wizard, err := s.loadWizard(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := wizard.NavigateBack(to); err != nil {
		return nil, err
	}
	if err := s.drafts.Save(ctx, wizard.Draft()); err != nil {
		return nil, err
	}
	return wizard.Draft(), nil
}

// ReviewQuote rebuilds the quote for the draft under review, for rendering
// the review screen.
func (s *Service) ReviewQuote(ctx context.Context, userID uuid.UUID) (*domain.TransferDraft, *domain.TransferQuote, error) {
	wizard, err := s.loadWizard(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	draft := wizard.Draft()
	if !draft.ReadyForReview() {
		return nil, nil, ErrNoActiveDraft
	}
	return draft, s.quotes.Price(draft.AmountCents, draft.CurrencyCode), nil
}

// Confirm runs the authorization gate and, on success, exactly one
// settlement attempt for the draft. The returned draft reflects the
// wizard's position after the attempt; it is nil once the transfer has
// succeeded and the draft is cleared.
func (s *Service) Confirm(ctx context.Context, userID uuid.UUID, pin, note string) (*domain.SettlementResult, *domain.TransferDraft, error) {
	wizard, err := s.loadWizard(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	draft := wizard.Draft()

	note = strings.TrimSpace(note)
	if len(note) > s.maxNoteLength {
		return nil, draft, domain.NewValidationError(domain.ValidationNoteTooLong,
			"note must be at most %d characters", s.maxNoteLength)
	}
	draft.Note = note

	// A prior denial leaves the wizard at AuthorizingPin; a fresh confirm
	// enters it from Reviewing.
	if draft.Step != domain.StepAuthorizingPin {
		if err := wizard.BeginAuthorization(); err != nil {
			return nil, draft, err
		}
	}
	if err := s.drafts.Save(ctx, draft); err != nil {
		return nil, draft, err
	}

	auth, err := s.gate.Verify(ctx, userID, pin)
	if err != nil {
		return nil, draft, err
	}
	if auth.Locked {
		// The budget is spent; force the user back to review until the
		// window resets.
		if err := wizard.ReturnToReview(); err != nil {
			return nil, draft, err
		}
		if err := s.drafts.Save(ctx, draft); err != nil {
			return nil, draft, err
		}
		return nil, draft, &PINLockedError{RetryAfterSeconds: auth.RetryAfterSeconds}
	}
	if !auth.Authorized {
		return nil, draft, &PINDeniedError{AttemptsRemaining: auth.AttemptsRemaining}
	}

	// One idempotency key per confirm action, minted before submission and
	// persisted so a retry after an ambiguous outcome reuses it.
	if draft.IdempotencyKey == "" {
		draft.IdempotencyKey = uuid.NewString()
		if err := s.drafts.Save(ctx, draft); err != nil {
			return nil, draft, err
		}
	}

	acquired, err := s.locks.Acquire(ctx, userID.String(), s.settleTimeout+5*time.Second)
	if err != nil {
		return nil, draft, fmt.Errorf("failed to acquire settlement lock: %w", err)
	}
	if !acquired {
		return nil, draft, ErrSettlementInFlight
	}
	defer func() {
		if err := s.locks.Release(context.WithoutCancel(ctx), userID.String()); err != nil {
			log.Printf("level=warn component=transfer_service msg=\"failed to release settlement lock\" user_id=%s err=%v", userID, err)
		}
	}()

	if err := wizard.BeginSettlement(); err != nil {
		return nil, draft, err
	}
	if err := s.drafts.Save(ctx, draft); err != nil {
		return nil, draft, err
	}

	quote := s.quotes.Price(draft.AmountCents, draft.CurrencyCode)
	result, err := s.executor.Settle(ctx, draft, quote)
	if err != nil {
		// Broken precondition, not a settlement outcome. No mutation was
		// issued, so the confirm action is over; return to review with a
		// clean key.
		_ = wizard.CompleteSettlement(false)
		_ = wizard.ReturnToReview()
		draft.IdempotencyKey = ""
		if saveErr := s.drafts.Save(ctx, draft); saveErr != nil {
			log.Printf("level=error component=transfer_service msg=\"failed to save draft after settlement error\" user_id=%s err=%v", userID, saveErr)
		}
		return nil, draft, err
	}

	if result.Succeeded {
		_ = wizard.CompleteSettlement(true)
		if err := s.drafts.Clear(ctx, userID); err != nil {
			log.Printf("level=warn component=transfer_service msg=\"failed to clear draft after settlement\" user_id=%s err=%v", userID, err)
		}
		return result, nil, nil
	}

	_ = wizard.CompleteSettlement(false)
	_ = wizard.ReturnToReview()
	if !result.OutcomeUnknown {
		// A definite failure ends the confirm action; the next confirm is a
		// new action with a new key. An ambiguous outcome keeps the key so a
		// retry cannot double-settle.
		draft.IdempotencyKey = ""
	}
	if err := s.drafts.Save(ctx, draft); err != nil {
		log.Printf("level=error component=transfer_service msg=\"failed to save draft after settlement failure\" user_id=%s err=%v", userID, err)
	}
	return result, draft, nil
}

// ListTransactions returns the user's transaction feed, newest first.
func (s *Service) ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.Transaction, error) {
	return s.repo.FindTransactionsByUserID(ctx, userID, limit, offset)
}

func (s *Service) loadWizard(ctx context.Context, userID uuid.UUID) (*Wizard, error) {
	draft, err := s.drafts.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if draft == nil {
		return nil, ErrNoActiveDraft
	}
	return ResumeWizard(draft, s.now), nil
}
