package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers analytics routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/analytics", func(r chi.Router) {
		r.Get("/summary", h.HandleGetSummary)
		r.Get("/allocation", h.HandleGetAllocation)
		r.Get("/risk", h.HandleGetRisk)
		r.Get("/performers", h.HandleGetPerformers)
		r.Get("/monthly", h.HandleGetMonthly)
		r.Get("/commission", h.HandleGetCommission)
		r.Get("/suggestions", h.HandleGetSuggestions)
		r.Get("/recent", h.HandleGetRecent)
	})
}
