package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all trading routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/trades", func(r chi.Router) {
		r.Post("/preview", h.HandlePreview)                // Commission breakdown and affordability, no writes
		r.Post("/buy", h.HandleBuy)                        // Execute at the cached market price
		r.Post("/sell", h.HandleSell)                      // Execute at the cached market price
		r.Post("/commission", h.HandleCalculateCommission) // Commission calculator
	})
}
