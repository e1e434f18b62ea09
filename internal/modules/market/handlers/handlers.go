// Package handlers provides HTTP handlers for market data.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/sanbist/papertrader/internal/domain"
	"github.com/sanbist/papertrader/internal/modules/market"
)

// Handler handles market data HTTP requests
type Handler struct {
	service      *market.Service
	baseCurrency domain.Currency
	timeout      time.Duration
	log          zerolog.Logger
}

// NewHandler creates a new market handler
func NewHandler(service *market.Service, baseCurrency domain.Currency, timeout time.Duration, log zerolog.Logger) *Handler {
	return &Handler{
		service:      service,
		baseCurrency: baseCurrency,
		timeout:      timeout,
		log:          log.With().Str("handler", "market").Logger(),
	}
}

// QuoteView is a quote annotated for the trading UI
type QuoteView struct {
	market.Quote
	Tradable         bool `json:"tradable"`
	AllowsFractional bool `json:"allows_fractional"`
	LivePrice        bool `json:"live_price"`
}

func (h *Handler) view(q market.Quote) QuoteView {
	_, live := q.LivePrice()
	return QuoteView{
		Quote:            q,
		Tradable:         live && q.Kind.Tradable(h.baseCurrency),
		AllowsFractional: q.Kind.AllowsFractional(),
		LivePrice:        live,
	}
}

// HandleGetSnapshot handles GET /api/market/snapshot?kind=STOCK&q=thy
func (h *Handler) HandleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	snap := h.service.Current()

	var kind domain.InstrumentKind
	if raw := r.URL.Query().Get("kind"); raw != "" {
		kind = domain.ParseInstrumentKind(raw)
		if kind == domain.KindUnknown {
			h.writeError(w, http.StatusBadRequest, "unknown instrument kind: "+raw)
			return
		}
	}
	search := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("q")))

	quotes := make([]QuoteView, 0, len(snap.Quotes))
	for _, q := range snap.Filter(kind) {
		if search != "" && !strings.Contains(q.Symbol, search) && !strings.Contains(strings.ToUpper(q.Name), search) {
			continue
		}
		quotes = append(quotes, h.view(q))
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"source":     snap.Source,
		"fetched_at": snap.FetchedAt,
		"stale":      snap.Stale,
		"quotes":     quotes,
	})
}

// HandleGetQuote handles GET /api/market/quotes/{symbol}
func (h *Handler) HandleGetQuote(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	q, ok := h.service.Quote(symbol)
	if !ok {
		h.writeError(w, http.StatusNotFound, "unknown symbol: "+domain.NormalizeSymbol(symbol))
		return
	}
	h.writeJSON(w, http.StatusOK, h.view(q))
}

// HandleRefresh handles POST /api/market/refresh
func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	snap, err := h.service.Refresh(ctx)
	if err != nil && snap.IsEmpty() {
		h.log.Error().Err(err).Msg("Manual market refresh failed")
		h.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	resp := map[string]interface{}{
		"source":      snap.Source,
		"quote_count": len(snap.Quotes),
		"stale":       snap.Stale,
		"fetched_at":  snap.FetchedAt,
	}
	if err != nil {
		resp["warning"] = err.Error()
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// HandleGetStatus handles GET /api/market/status
func (h *Handler) HandleGetStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.service.Status())
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
