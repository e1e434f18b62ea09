package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/sanbist/papertrader/internal/modules/market_hours"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(now time.Time) (*Handler, chi.Router) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	service := market_hours.NewMarketHoursService(market_hours.BISTConfig(time.UTC, nil))
	handler := NewHandler(service, logger)
	handler.now = func() time.Time { return now }

	router := chi.NewRouter()
	handler.RegisterRoutes(router)
	return handler, router
}

func TestHandleGetStatus(t *testing.T) {
	_, router := newTestHandler(time.Date(2024, 1, 16, 12, 0, 0, 0, time.UTC))

	req := httptest.NewRequest("GET", "/market-hours/status", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var status market_hours.MarketStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.True(t, status.Open)
	assert.Equal(t, market_hours.BISTCode, status.Exchange)
	assert.Equal(t, "18:00", status.ClosesAt)
}

func TestHandleGetStatus_At(t *testing.T) {
	_, router := newTestHandler(time.Date(2024, 1, 16, 12, 0, 0, 0, time.UTC))

	// Saturday
	req := httptest.NewRequest("GET", "/market-hours/status?at=2024-01-20T12:00:00Z", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var status market_hours.MarketStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.False(t, status.Open)
	assert.Equal(t, "2024-01-22", status.OpensDate)

	req = httptest.NewRequest("GET", "/market-hours/status?at=yesterday", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleGetNextOpen(t *testing.T) {
	// Friday after the close
	_, router := newTestHandler(time.Date(2024, 1, 19, 19, 0, 0, 0, time.UTC))

	req := httptest.NewRequest("GET", "/market-hours/next-open", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "2024-01-22T10:00:00Z", body["next_open"])
	assert.Equal(t, float64(63*3600), body["seconds_until"])
	assert.Equal(t, false, body["currently_open"])
}

func TestHandleGetHolidays(t *testing.T) {
	_, router := newTestHandler(time.Date(2024, 1, 16, 12, 0, 0, 0, time.UTC))

	tests := []struct {
		name           string
		query          string
		expectedStatus int
		expectedYear   float64
	}{
		{"default year", "", http.StatusOK, 2024},
		{"explicit year", "?year=2026", http.StatusOK, 2026},
		{"invalid year", "?year=abc", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/market-hours/holidays"+tt.query, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedStatus != http.StatusOK {
				return
			}
			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.expectedYear, body["year"])
			assert.NotEmpty(t, body["holidays"])
		})
	}
}
