package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all market data routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/market", func(r chi.Router) {
		r.Get("/snapshot", h.HandleGetSnapshot)
		r.Get("/quotes/{symbol}", h.HandleGetQuote)
		r.Post("/refresh", h.HandleRefresh)
		r.Get("/status", h.HandleGetStatus)
	})
}
