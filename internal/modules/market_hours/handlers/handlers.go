// Package handlers exposes the exchange calendar over HTTP.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/sanbist/papertrader/internal/modules/market_hours"
)

// Handler serves /market-hours
type Handler struct {
	service *market_hours.MarketHoursService
	now     func() time.Time
	log     zerolog.Logger
}

// NewHandler creates a market hours handler
func NewHandler(service *market_hours.MarketHoursService, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		now:     time.Now,
		log:     log.With().Str("handler", "market_hours").Logger(),
	}
}

// instant reads the optional ?at= RFC 3339 timestamp, defaulting to now
func (h *Handler) instant(r *http.Request) (time.Time, bool) {
	raw := r.URL.Query().Get("at")
	if raw == "" {
		return h.now(), true
	}
	at, err := time.Parse(time.RFC3339, raw)
	return at, err == nil
}

// HandleGetStatus handles GET /api/market-hours/status[?at=2025-01-02T10:00:00Z]
func (h *Handler) HandleGetStatus(w http.ResponseWriter, r *http.Request) {
	at, ok := h.instant(r)
	if !ok {
		h.writeError(w, http.StatusBadRequest, "at must be an RFC 3339 timestamp")
		return
	}
	h.writeJSON(w, http.StatusOK, h.service.GetMarketStatus(at))
}

// HandleGetNextOpen handles GET /api/market-hours/next-open[?at=...]
func (h *Handler) HandleGetNextOpen(w http.ResponseWriter, r *http.Request) {
	at, ok := h.instant(r)
	if !ok {
		h.writeError(w, http.StatusBadRequest, "at must be an RFC 3339 timestamp")
		return
	}

	next := h.service.NextOpen(at)
	if next == nil {
		h.writeError(w, http.StatusNotFound, "no session within the next two weeks")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"exchange":       h.service.Exchange().Code,
		"next_open":      next.Format(time.RFC3339),
		"seconds_until":  int64(next.Sub(at).Seconds()),
		"currently_open": h.service.IsMarketOpen(at),
	})
}

// HandleGetHolidays handles GET /api/market-hours/holidays[?year=2025]
func (h *Handler) HandleGetHolidays(w http.ResponseWriter, r *http.Request) {
	year := h.now().Year()
	if raw := r.URL.Query().Get("year"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1900 || parsed > 2200 {
			h.writeError(w, http.StatusBadRequest, "year must be a four digit year")
			return
		}
		year = parsed
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"exchange": h.service.Exchange().Code,
		"year":     year,
		"holidays": h.service.Holidays(year),
	})
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
