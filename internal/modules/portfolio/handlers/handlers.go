// Package handlers provides HTTP handlers for accounts and portfolios.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sanbist/papertrader/internal/identity"
	"github.com/sanbist/papertrader/internal/modules/portfolio"
)

const (
	defaultTransactionLimit = 50
	maxTransactionLimit     = 1000
)

// Handler handles account and portfolio HTTP requests
type Handler struct {
	service *portfolio.Service
	log     zerolog.Logger
}

// NewHandler creates a new portfolio handler
func NewHandler(service *portfolio.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "portfolio").Logger(),
	}
}

type registerRequest struct {
	DisplayName string `json:"display_name"`
}

// HandleRegister handles POST /api/accounts
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	userID, _ := identity.UserID(r.Context())

	var req registerRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil && err != io.EOF {
		h.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body: "+err.Error())
		return
	}
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	if len(req.DisplayName) > 100 {
		h.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "display_name must be at most 100 characters")
		return
	}

	account, created, err := h.service.Register(r.Context(), userID, req.DisplayName)
	if err != nil {
		h.persistenceError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	h.writeJSON(w, status, map[string]interface{}{
		"account": account,
		"created": created,
	})
}

// HandleGetAccount handles GET /api/accounts/me
func (h *Handler) HandleGetAccount(w http.ResponseWriter, r *http.Request) {
	userID, _ := identity.UserID(r.Context())

	account, err := h.service.GetAccount(r.Context(), userID)
	if errors.Is(err, portfolio.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "ACCOUNT_NOT_FOUND", "no account for "+userID+"; register with POST /api/accounts")
		return
	}
	if err != nil {
		h.persistenceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, account)
}

// HandleGetPortfolio handles GET /api/portfolio
func (h *Handler) HandleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	userID, _ := identity.UserID(r.Context())

	state, err := h.service.GetCurrentState(r.Context(), userID)
	if err != nil {
		h.persistenceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, state)
}

// HandleGetValuation handles GET /api/portfolio/valuation
func (h *Handler) HandleGetValuation(w http.ResponseWriter, r *http.Request) {
	userID, _ := identity.UserID(r.Context())

	valued, err := h.service.GetValuation(r.Context(), userID)
	if err != nil {
		h.persistenceError(w, err)
		return
	}

	cash := valued.State.Balance.InexactFloat64()
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"balance":      valued.State.Balance,
		"version":      valued.State.Portfolio.Version,
		"valuation":    valued.Valuation,
		"total_assets": valued.Valuation.TotalCurrentValue + cash,
	})
}

// HandleGetTransactions handles GET /api/portfolio/transactions?limit=50
func (h *Handler) HandleGetTransactions(w http.ResponseWriter, r *http.Request) {
	userID, _ := identity.UserID(r.Context())

	limit := defaultTransactionLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxTransactionLimit {
			h.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "limit must be between 1 and 1000")
			return
		}
		limit = parsed
	}

	txns, err := h.service.ListTransactions(r.Context(), userID, limit)
	if err != nil {
		h.persistenceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": txns,
		"count":        len(txns),
	})
}

// HandleReset handles POST /api/portfolio/reset
func (h *Handler) HandleReset(w http.ResponseWriter, r *http.Request) {
	userID, _ := identity.UserID(r.Context())

	state, err := h.service.Reset(r.Context(), userID)
	if err != nil {
		h.persistenceError(w, err)
		return
	}

	h.log.Info().Str("user_id", userID).Msg("Portfolio reset by user")
	h.writeJSON(w, http.StatusOK, state)
}

func (h *Handler) persistenceError(w http.ResponseWriter, err error) {
	h.log.Error().Err(err).Msg("Portfolio storage failed")
	h.writeError(w, http.StatusServiceUnavailable, "PERSISTENCE_FAILURE", err.Error())
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, map[string]string{"error": message, "code": code})
}
