package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes mounts the exchange calendar under /market-hours
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/market-hours", func(r chi.Router) {
		r.Get("/status", h.HandleGetStatus)      // Open/closed, next open or close time
		r.Get("/next-open", h.HandleGetNextOpen) // Next session start and seconds until it
		r.Get("/holidays", h.HandleGetHolidays)  // Closure dates for a year
	})
}
