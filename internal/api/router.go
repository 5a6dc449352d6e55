/**
 * @description
 * This file sets up the HTTP router for the transfer-service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies any
 * necessary middleware, such as for authentication.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// TransferRoutes creates and returns a new router for the transfer service.
func TransferRoutes(h *TransferHandlers, jwksURL string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Group routes that require authentication.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(jwksURL))

		// Wizard lifecycle
		r.Get("/wizard", h.WizardHandler)
		r.Delete("/wizard", h.AbandonHandler)
		r.Post("/wizard/recipient", h.SelectRecipientHandler)
		r.Post("/wizard/amount", h.EnterAmountHandler)
		r.Post("/wizard/review", h.ReviewHandler)
		r.Post("/wizard/back", h.BackHandler)
		r.Post("/wizard/reset", h.ResetHandler)

		// Recipient resolution and quoting
		r.Get("/recipients", h.SearchRecipientsHandler)
		r.Post("/quote", h.QuoteHandler)

		// Settlement and feed
		r.Post("/confirm", h.ConfirmHandler)
		r.Get("/history", h.HistoryHandler)
	})

	return r
}
