/**
 * @description
 * This file contains the HTTP handlers for the transfer-service's API endpoints.
 * Handlers are responsible for parsing incoming requests, calling the appropriate
 * methods on the application service, and writing the HTTP response. They act as the
 * bridge between the web layer and the business logic layer.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/kashly/transfer-service/internal/app"
	"github.com/kashly/transfer-service/internal/domain"
	"github.com/kashly/transfer-service/pkg/ledgerclient"
)

// TransferHandlers holds the application service that handlers will use.
type TransferHandlers struct {
	service *app.Service
}

// NewTransferHandlers creates a new instance of TransferHandlers.
func NewTransferHandlers(service *app.Service) *TransferHandlers {
	return &TransferHandlers{service: service}
}

// draftResponse is the wizard state sent back after every mutation, so the
// client can render the current step without a second round trip.
type draftResponse struct {
	Draft *domain.TransferDraft `json:"draft"`
	Quote *domain.TransferQuote `json:"quote,omitempty"`
}

type recipientRequest struct {
	ID           string `json:"id,omitempty"`
	DisplayName  string `json:"display_name"`
	Channel      string `json:"channel"`
	ChannelValue string `json:"channel_value"`
	IsManual     bool   `json:"is_manual"`
}

type amountRequest struct {
	Amount       string `json:"amount"`
	CurrencyCode string `json:"currency_code"`
}

type backRequest struct {
	Step string `json:"step"`
}

type confirmRequest struct {
	PIN  string `json:"pin"`
	Note string `json:"note,omitempty"`
}

type settlementResponse struct {
	Result *domain.SettlementResult `json:"result"`
	Draft  *domain.TransferDraft    `json:"draft,omitempty"`
}

// WizardHandler returns the live draft, starting a fresh flow when none
// exists or the previous one expired.
func (h *TransferHandlers) WizardHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}

	draft, err := h.service.ResumeWizard(r.Context(), userID)
	if err != nil {
		h.respondServiceError(w, "wizard", userID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, draftResponse{Draft: draft})
}

// AbandonHandler discards the draft entirely.
func (h *TransferHandlers) AbandonHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}

	if err := h.service.AbandonDraft(r.Context(), userID); err != nil {
		h.respondServiceError(w, "abandon", userID, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ResetHandler discards the draft and starts over at recipient selection.
func (h *TransferHandlers) ResetHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}

	draft, err := h.service.ResetDraft(r.Context(), userID)
	if err != nil {
		h.respondServiceError(w, "reset", userID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, draftResponse{Draft: draft})
}

// SearchRecipientsHandler resolves a query into recipient candidates.
func (h *TransferHandlers) SearchRecipientsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}

	candidates, err := h.service.SearchRecipients(r.Context(), userID, r.URL.Query().Get("q"))
	if err != nil {
		h.respondServiceError(w, "search_recipients", userID, err)
		return
	}
	if candidates == nil {
		candidates = []domain.Recipient{}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"recipients": candidates})
}

// SelectRecipientHandler attaches a recipient to the draft.
func (h *TransferHandlers) SelectRecipientHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}

	var req recipientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=select_recipient outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	recipient, err := h.buildRecipient(req)
	if err != nil {
		h.respondServiceError(w, "select_recipient", userID, err)
		return
	}

	draft, err := h.service.SelectRecipient(r.Context(), userID, recipient)
	if err != nil {
		h.respondServiceError(w, "select_recipient", userID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, draftResponse{Draft: draft})
}

func (h *TransferHandlers) buildRecipient(req recipientRequest) (*domain.Recipient, error) {
	channel := domain.ChannelType(req.Channel)
	if req.IsManual {
		return app.NewManualRecipient(req.DisplayName, channel, req.ChannelValue)
	}

	recipient := &domain.Recipient{
		DisplayName:  req.DisplayName,
		Channel:      channel,
		ChannelValue: req.ChannelValue,
	}
	if req.ID != "" {
		id, err := uuid.Parse(req.ID)
		if err != nil {
			return nil, domain.NewValidationError(domain.ValidationIncompleteRecipient, "invalid recipient id")
		}
		recipient.ID = id
	}
	return recipient, nil
}

// QuoteHandler computes a quote without touching the draft. The client calls
// this as the user types.
func (h *TransferHandlers) QuoteHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}

	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	amountCents, err := domain.ParseAmount(req.Amount)
	if err != nil {
		h.respondServiceError(w, "quote", userID, err)
		return
	}

	quote, err := h.service.QuoteAmount(r.Context(), userID, amountCents, req.CurrencyCode)
	if err != nil {
		h.respondServiceError(w, "quote", userID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, quote)
}

// EnterAmountHandler records a quoted amount on the draft and advances to
// review.
func (h *TransferHandlers) EnterAmountHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}

	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	amountCents, err := domain.ParseAmount(req.Amount)
	if err != nil {
		h.respondServiceError(w, "enter_amount", userID, err)
		return
	}

	draft, quote, err := h.service.EnterAmount(r.Context(), userID, amountCents, req.CurrencyCode)
	if err != nil {
		h.respondServiceError(w, "enter_amount", userID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, draftResponse{Draft: draft, Quote: quote})
}

// ReviewHandler returns the draft under review with its quote.
func (h *TransferHandlers) ReviewHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}

	draft, quote, err := h.service.ReviewQuote(r.Context(), userID)
	if err != nil {
		h.respondServiceError(w, "review", userID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, draftResponse{Draft: draft, Quote: quote})
}

// BackHandler moves the wizard to a strictly earlier step.
func (h *TransferHandlers) BackHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}

	var req backRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	draft, err := h.service.NavigateBack(r.Context(), userID, domain.Step(req.Step))
	if err != nil {
		h.respondServiceError(w, "back", userID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, draftResponse{Draft: draft})
}

// ConfirmHandler runs the authorization gate and settlement for the draft
// under review.
func (h *TransferHandlers) ConfirmHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}

	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=confirm outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, draft, err := h.service.Confirm(r.Context(), userID, req.PIN, req.Note)
	if err != nil {
		h.respondConfirmError(w, userID, err)
		return
	}

	status := http.StatusOK
	if !result.Succeeded {
		// The attempt is over but the flow is not; the client shows the
		// typed reason and returns to review.
		status = http.StatusUnprocessableEntity
	}
	log.Printf("level=info component=api endpoint=confirm outcome=%t user_id=%s reason=%s", result.Succeeded, userID, result.Reason)
	h.writeJSON(w, status, settlementResponse{Result: result, Draft: draft})
}

// HistoryHandler returns the user's transaction feed, newest first.
func (h *TransferHandlers) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	transactions, err := h.service.ListTransactions(r.Context(), userID, limit, offset)
	if err != nil {
		h.respondServiceError(w, "history", userID, err)
		return
	}
	if transactions == nil {
		transactions = []domain.Transaction{}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"transactions": transactions})
}

// respondConfirmError maps confirm-specific failures onto their HTTP shapes
// before falling back to the generic mapping.
func (h *TransferHandlers) respondConfirmError(w http.ResponseWriter, userID uuid.UUID, err error) {
	var denied *app.PINDeniedError
	if errors.As(err, &denied) {
		h.writeJSON(w, http.StatusUnauthorized, map[string]interface{}{
			"error":              "Invalid PIN.",
			"attempts_remaining": denied.AttemptsRemaining,
		})
		return
	}
	var locked *app.PINLockedError
	if errors.As(err, &locked) {
		h.writeJSON(w, http.StatusLocked, map[string]interface{}{
			"error":               "Too many incorrect PIN attempts. Please wait and try again.",
			"retry_after_seconds": locked.RetryAfterSeconds,
		})
		return
	}
	if errors.Is(err, app.ErrSettlementInFlight) {
		h.writeError(w, http.StatusConflict, "A transfer is already being processed.")
		return
	}
	h.respondServiceError(w, "confirm", userID, err)
}

// respondServiceError converts service-layer errors into HTTP responses.
func (h *TransferHandlers) respondServiceError(w http.ResponseWriter, endpoint string, userID uuid.UUID, err error) {
	var vErr *domain.ValidationError
	if errors.As(err, &vErr) {
		status := http.StatusBadRequest
		if vErr.Code == domain.ValidationInsufficientFunds {
			status = http.StatusPaymentRequired
		}
		h.writeJSON(w, status, map[string]string{"error": vErr.Message, "code": string(vErr.Code)})
		return
	}

	switch {
	case errors.Is(err, app.ErrNoActiveDraft):
		h.writeError(w, http.StatusNotFound, "No active transfer draft.")
	case errors.Is(err, app.ErrInvalidTransition), errors.Is(err, app.ErrGuardNotSatisfied):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ledgerclient.ErrLedgerUnavailable):
		h.writeError(w, http.StatusServiceUnavailable, "Balance service is temporarily unavailable.")
	default:
		log.Printf("level=error component=api endpoint=%s user_id=%s err=%v", endpoint, userID, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// writeJSON is a helper for writing JSON responses.
func (h *TransferHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *TransferHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
