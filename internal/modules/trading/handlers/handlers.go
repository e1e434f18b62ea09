// Package handlers provides HTTP handlers for trade execution.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/sanbist/papertrader/internal/identity"
	"github.com/sanbist/papertrader/internal/modules/portfolio"
	"github.com/sanbist/papertrader/internal/modules/trading"
	"github.com/shopspring/decimal"
)

// Handler handles trade HTTP requests
type Handler struct {
	service *trading.Service
	log     zerolog.Logger
}

// NewHandler creates a new trading handler
func NewHandler(service *trading.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "trading").Logger(),
	}
}

// tradeRequest is the body of buy, sell and preview requests.
// Quantity accepts a JSON number or a decimal string.
type tradeRequest struct {
	Side     string          `json:"side"`
	Symbol   string          `json:"symbol"`
	Quantity decimal.Decimal `json:"quantity"`
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (tradeRequest, bool) {
	var req tradeRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body: "+err.Error(), nil)
		return req, false
	}
	return req, true
}

// HandleBuy handles POST /api/trades/buy
func (h *Handler) HandleBuy(w http.ResponseWriter, r *http.Request) {
	h.execute(w, r, portfolio.SideBuy)
}

// HandleSell handles POST /api/trades/sell
func (h *Handler) HandleSell(w http.ResponseWriter, r *http.Request) {
	h.execute(w, r, portfolio.SideSell)
}

func (h *Handler) execute(w http.ResponseWriter, r *http.Request, side portfolio.TradeSide) {
	userID, _ := identity.UserID(r.Context())
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	result, err := h.service.Execute(r.Context(), trading.TradeRequest{
		UserID:   userID,
		Side:     side,
		Symbol:   req.Symbol,
		Quantity: req.Quantity,
	})
	if err != nil {
		h.writeTradeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// HandlePreview handles POST /api/trades/preview
func (h *Handler) HandlePreview(w http.ResponseWriter, r *http.Request) {
	userID, _ := identity.UserID(r.Context())
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	side, err := portfolio.ParseTradeSide(req.Side)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
		return
	}

	preview, err := h.service.Preview(r.Context(), trading.TradeRequest{
		UserID:   userID,
		Side:     side,
		Symbol:   req.Symbol,
		Quantity: req.Quantity,
	})
	if err != nil {
		h.writeTradeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, preview)
}

type commissionRequest struct {
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// HandleCalculateCommission handles POST /api/trades/commission
func (h *Handler) HandleCalculateCommission(w http.ResponseWriter, r *http.Request) {
	var req commissionRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body: "+err.Error(), nil)
		return
	}
	if !req.Quantity.IsPositive() || !req.Price.IsPositive() {
		h.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "quantity and price must be positive", nil)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"buy":  trading.Cost(req.Quantity, req.Price),
		"sell": trading.Revenue(req.Quantity, req.Price),
	})
}

// writeTradeError maps the trading error taxonomy onto HTTP statuses
func (h *Handler) writeTradeError(w http.ResponseWriter, err error) {
	var (
		invalid     *trading.InvalidRequestError
		funds       *trading.InsufficientFundsError
		holdings    *trading.InsufficientHoldingsError
		persistence *trading.PersistenceError
	)

	switch {
	case errors.As(err, &invalid):
		h.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
	case errors.As(err, &funds):
		h.writeError(w, http.StatusUnprocessableEntity, "INSUFFICIENT_FUNDS", err.Error(), map[string]interface{}{
			"required":   funds.Required,
			"available":  funds.Available,
			"base_cost":  funds.BaseCost,
			"commission": funds.Commission,
		})
	case errors.As(err, &holdings):
		h.writeError(w, http.StatusUnprocessableEntity, "INSUFFICIENT_HOLDINGS", err.Error(), map[string]interface{}{
			"owned":     holdings.Owned,
			"requested": holdings.Requested,
		})
	case errors.As(err, &persistence) && trading.IsConflict(err):
		h.writeError(w, http.StatusConflict, "CONFLICT", err.Error(), map[string]interface{}{"retryable": true})
	case errors.As(err, &persistence):
		h.writeError(w, http.StatusServiceUnavailable, "PERSISTENCE_FAILURE", err.Error(), map[string]interface{}{"retryable": true})
	default:
		h.log.Error().Err(err).Msg("Unexpected trade error")
		h.writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error(), nil)
	}
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string, details map[string]interface{}) {
	body := map[string]interface{}{
		"error": message,
		"code":  code,
	}
	if details != nil {
		body["details"] = details
	}
	h.writeJSON(w, status, body)
}
