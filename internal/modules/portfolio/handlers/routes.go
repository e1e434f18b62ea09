package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers account and portfolio routes.
// The router must already require an authenticated user.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/accounts", func(r chi.Router) {
		r.Post("/", h.HandleRegister) // Idempotent registration
		r.Get("/me", h.HandleGetAccount)
	})

	r.Route("/portfolio", func(r chi.Router) {
		r.Get("/", h.HandleGetPortfolio)                // Raw state: assets, transactions, balance
		r.Get("/valuation", h.HandleGetValuation)       // Positions priced at the cached snapshot
		r.Get("/transactions", h.HandleGetTransactions) // Newest first
		r.Post("/reset", h.HandleReset)
	})
}
