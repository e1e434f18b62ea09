package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/sanbist/papertrader/internal/events"
	"github.com/sanbist/papertrader/internal/identity"
	"github.com/sanbist/papertrader/internal/modules/portfolio"
	testingpkg "github.com/sanbist/papertrader/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) chi.Router {
	t.Helper()
	db, cleanup := testingpkg.NewTestDB(t, "portfolio")
	t.Cleanup(cleanup)

	logger := zerolog.Nop()
	repo := portfolio.NewRepository(db.Conn(), logger)
	mgr := events.NewManager(events.NewBus(logger), logger)
	prices := &testingpkg.StaticSource{Snapshot: testingpkg.NewDefaultSnapshot()}
	service := portfolio.NewService(repo, prices, mgr, portfolio.InitialStake, logger)

	router := chi.NewRouter()
	router.Use(identity.Require)
	NewHandler(service, logger).RegisterRoutes(router)
	return router
}

func do(router http.Handler, method, path, user, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if user != "" {
		req.Header.Set(identity.Header, user)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandleRegister(t *testing.T) {
	router := newTestRouter(t)

	w := do(router, "POST", "/accounts", "u1", `{"display_name": "  Zeynep "}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var body struct {
		Account portfolio.Account `json:"account"`
		Created bool              `json:"created"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Created)
	assert.Equal(t, "Zeynep", body.Account.DisplayName)
	assert.True(t, portfolio.InitialStake.Equal(body.Account.VirtualBalance))

	w = do(router, "POST", "/accounts", "u1", "")
	assert.Equal(t, http.StatusOK, w.Code, "second registration is a no-op")

	w = do(router, "POST", "/accounts", "u1", "{not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(router, "POST", "/accounts", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandleGetAccountAndPortfolio(t *testing.T) {
	router := newTestRouter(t)

	// Reading the portfolio of an unknown user does not register them
	w := do(router, "GET", "/portfolio", "u1", "")
	require.Equal(t, http.StatusOK, w.Code)

	var state portfolio.State
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	assert.Empty(t, state.Portfolio.Assets)
	assert.True(t, portfolio.InitialStake.Equal(state.Balance))

	w = do(router, "GET", "/accounts/me", "u1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "ACCOUNT_NOT_FOUND")

	w = do(router, "POST", "/accounts", "u1", "")
	require.Equal(t, http.StatusCreated, w.Code)

	w = do(router, "GET", "/accounts/me", "u1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"user_id":"u1"`)
}

func TestHandleGetValuation(t *testing.T) {
	router := newTestRouter(t)

	w := do(router, "GET", "/portfolio/valuation", "u1", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		TotalAssets float64             `json:"total_assets"`
		Valuation   portfolio.Valuation `json:"valuation"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 100000.0, body.TotalAssets)
	assert.Empty(t, body.Valuation.Positions)
}

func TestHandleGetTransactions(t *testing.T) {
	router := newTestRouter(t)

	w := do(router, "GET", "/portfolio/transactions?limit=5", "u1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":0`)

	for _, bad := range []string{"0", "-1", "abc", "5000"} {
		w = do(router, "GET", "/portfolio/transactions?limit="+bad, "u1", "")
		assert.Equal(t, http.StatusBadRequest, w.Code, bad)
	}
}

func TestHandleReset(t *testing.T) {
	router := newTestRouter(t)

	w := do(router, "POST", "/portfolio/reset", "u1", "")
	require.Equal(t, http.StatusOK, w.Code)

	var state portfolio.State
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	assert.True(t, portfolio.InitialStake.Equal(state.Balance))
}
