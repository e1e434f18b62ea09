// Package handlers provides HTTP handlers for portfolio analytics.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/sanbist/papertrader/internal/identity"
	"github.com/sanbist/papertrader/internal/modules/analytics"
)

// Handler handles analytics HTTP requests
type Handler struct {
	service *analytics.Service
	log     zerolog.Logger
}

// NewHandler creates a new analytics handler
func NewHandler(service *analytics.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "analytics").Logger(),
	}
}

// HandleGetSummary handles GET /api/analytics/summary
func (h *Handler) HandleGetSummary(w http.ResponseWriter, r *http.Request) {
	userID, _ := identity.UserID(r.Context())
	summary, err := h.service.GetSummary(r.Context(), userID)
	h.respond(w, "summary", summary, err)
}

// HandleGetAllocation handles GET /api/analytics/allocation
func (h *Handler) HandleGetAllocation(w http.ResponseWriter, r *http.Request) {
	userID, _ := identity.UserID(r.Context())
	allocation, err := h.service.GetAllocation(r.Context(), userID)
	h.respond(w, "allocation", allocation, err)
}

// HandleGetRisk handles GET /api/analytics/risk
func (h *Handler) HandleGetRisk(w http.ResponseWriter, r *http.Request) {
	userID, _ := identity.UserID(r.Context())
	risk, err := h.service.GetRisk(r.Context(), userID)
	h.respond(w, "risk", risk, err)
}

// HandleGetPerformers handles GET /api/analytics/performers
func (h *Handler) HandleGetPerformers(w http.ResponseWriter, r *http.Request) {
	userID, _ := identity.UserID(r.Context())
	performers, err := h.service.GetPerformers(r.Context(), userID)
	h.respond(w, "performers", performers, err)
}

// HandleGetMonthly handles GET /api/analytics/monthly
func (h *Handler) HandleGetMonthly(w http.ResponseWriter, r *http.Request) {
	userID, _ := identity.UserID(r.Context())
	months, err := h.service.GetMonthly(r.Context(), userID)
	h.respond(w, "monthly", map[string]interface{}{"months": months}, err)
}

// HandleGetCommission handles GET /api/analytics/commission
func (h *Handler) HandleGetCommission(w http.ResponseWriter, r *http.Request) {
	userID, _ := identity.UserID(r.Context())
	commission, err := h.service.GetCommission(r.Context(), userID)
	h.respond(w, "commission", commission, err)
}

// HandleGetSuggestions handles GET /api/analytics/suggestions
func (h *Handler) HandleGetSuggestions(w http.ResponseWriter, r *http.Request) {
	userID, _ := identity.UserID(r.Context())
	suggestions, err := h.service.GetSuggestions(r.Context(), userID)
	h.respond(w, "suggestions", suggestions, err)
}

// HandleGetRecent handles GET /api/analytics/recent?limit=10
func (h *Handler) HandleGetRecent(w http.ResponseWriter, r *http.Request) {
	userID, _ := identity.UserID(r.Context())

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			h.writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "limit must be between 1 and 100",
				"code":  "INVALID_REQUEST",
			})
			return
		}
		limit = n
	}

	txns, err := h.service.GetRecentTransactions(r.Context(), userID, limit)
	h.respond(w, "recent transactions", map[string]interface{}{"transactions": txns}, err)
}

func (h *Handler) respond(w http.ResponseWriter, what string, data interface{}, err error) {
	if err != nil {
		h.log.Error().Err(err).Str("query", what).Msg("Analytics query failed")
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "Failed to load " + what + ": " + err.Error(),
			"code":  "PERSISTENCE_FAILURE",
		})
		return
	}
	h.writeJSON(w, http.StatusOK, data)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
