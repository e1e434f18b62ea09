package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/sanbist/papertrader/internal/config"
	"github.com/sanbist/papertrader/internal/di"
	"github.com/sanbist/papertrader/internal/events"
	"github.com/sanbist/papertrader/internal/identity"
	"github.com/sanbist/papertrader/internal/modules/portfolio"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DataDir:               t.TempDir(),
		Port:                  8001,
		DevMode:               true,
		MarketTimezone:        "Europe/Istanbul",
		BaseCurrency:          "TRY",
		InitialBalance:        100000,
		RefreshOpenInterval:   15 * time.Minute,
		RefreshClosedInterval: time.Hour,
		FeedTimeout:           5 * time.Second,
		Backup:                &config.BackupConfig{},
	}
}

func newTestServer(t *testing.T) (*Server, *di.Container) {
	t.Helper()
	log := zerolog.Nop()
	cfg := testConfig(t)

	container, jobs, err := di.Wire(cfg, log)
	require.NoError(t, err)
	t.Cleanup(func() { container.Close() })

	_, err = container.MarketService.Refresh(context.Background())
	require.NoError(t, err)

	return New(Config{Log: log, Config: cfg, Container: container, Jobs: jobs.All()}), container
}

func request(h http.Handler, method, path, user, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if user != "" {
		req.Header.Set(identity.Header, user)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	w := request(srv.Handler(), "GET", "/health", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "dev", body["version"])
}

func TestRoutesIdentity(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	assert.Equal(t, http.StatusUnauthorized, request(h, "GET", "/api/portfolio", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, request(h, "GET", "/api/analytics/summary", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, request(h, "GET", "/api/events/stream", "", "").Code)

	// Market data and operations are public
	assert.Equal(t, http.StatusOK, request(h, "GET", "/api/market/status", "", "").Code)
	assert.Equal(t, http.StatusOK, request(h, "GET", "/api/market-hours/status", "", "").Code)
	assert.Equal(t, http.StatusOK, request(h, "GET", "/api/system/jobs", "", "").Code)
}

func TestTradeThroughFullStack(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	w := request(h, "POST", "/api/trades/buy", "u1", `{"symbol":"thyao","quantity":"2"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = request(h, "GET", "/api/portfolio", "u1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var state portfolio.State
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	require.Len(t, state.Portfolio.Assets, 1)
	assert.Equal(t, "THYAO", state.Portfolio.Assets[0].Symbol)

	// Another user starts from scratch
	w = request(h, "GET", "/api/portfolio", "u2", "")
	require.Equal(t, http.StatusOK, w.Code)
	var other portfolio.State
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &other))
	assert.Empty(t, other.Portfolio.Assets)

	assert.Equal(t, http.StatusOK, request(h, "GET", "/api/analytics/summary", "u1", "").Code)
}

func TestSystemStatus(t *testing.T) {
	srv, _ := newTestServer(t)

	w := request(srv.Handler(), "GET", "/api/system/status", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp SystemStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Contains(t, resp.Databases, "portfolio")
	assert.Contains(t, resp.Databases, "cache")
	assert.Len(t, resp.Jobs, 3)
	assert.NotNil(t, resp.Market)
	assert.Positive(t, resp.Goroutines)

	require.Len(t, resp.SnapshotCache, 1)
	assert.Equal(t, "static", resp.SnapshotCache[0].Feed)
	assert.False(t, resp.SnapshotCache[0].Expired)
	assert.Positive(t, resp.SnapshotCache[0].QuoteCount)
}

func TestRunJob(t *testing.T) {
	srv, container := newTestServer(t)
	h := srv.Handler()

	w := request(h, "POST", "/api/system/jobs/snapshot_cache_cleanup/run", "", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	runs := map[string]int{}
	for _, s := range container.Scheduler.Status() {
		runs[s.Name] = s.Runs
	}
	assert.Equal(t, 1, runs["snapshot_cache_cleanup"])
	assert.Equal(t, 0, runs["maintenance"])

	w = request(h, "POST", "/api/system/jobs/nope/run", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "market_refresh")
}

func TestParseEventTypes(t *testing.T) {
	all, err := parseEventTypes("")
	require.NoError(t, err)
	assert.Equal(t, events.AllEventTypes, all)

	some, err := parseEventTypes("trade_executed, PRICE_UPDATED,")
	require.NoError(t, err)
	assert.Equal(t, []events.EventType{events.TradeExecuted, events.PriceUpdated}, some)

	_, err = parseEventTypes("TRADE_EXECUTED,BOGUS")
	assert.Error(t, err)
}

func TestSubscribeUser_FiltersAndUnsubscribes(t *testing.T) {
	log := zerolog.Nop()
	bus := events.NewBus(log)
	mgr := events.NewManager(bus, log)

	ch, stop := subscribeUser(bus, "u1", []events.EventType{events.CashUpdated, events.PriceUpdated}, log)

	mgr.EmitTyped("test", &events.CashUpdatedData{UserID: "u2", Balance: "1"})
	mgr.EmitTyped("test", &events.CashUpdatedData{UserID: "u1", Balance: "2"})
	mgr.EmitTyped("test", &events.PriceUpdatedData{})

	require.Len(t, ch, 2)
	first := <-ch
	assert.Equal(t, "u1", first.UserID)
	second := <-ch
	assert.Equal(t, events.PriceUpdated, second.Type)

	stop()
	assert.Equal(t, 0, bus.SubscriberCount(events.CashUpdated))
	assert.Equal(t, 0, bus.SubscriberCount(events.PriceUpdated))
}

func TestEventsStream(t *testing.T) {
	srv, container := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", ts.URL+"/api/events/stream?types=CASH_UPDATED", nil)
	require.NoError(t, err)
	req.Header.Set(identity.Header, "u1")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	next := func() map[string]interface{} {
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			if strings.HasPrefix(line, "data: ") {
				var msg map[string]interface{}
				require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &msg))
				return msg
			}
		}
	}

	assert.Equal(t, "connected", next()["type"])

	container.EventManager.EmitTyped("test", &events.CashUpdatedData{UserID: "u2", Balance: "1"})
	container.EventManager.EmitTyped("test", &events.CashUpdatedData{UserID: "u1", Balance: "42"})

	msg := next()
	assert.Equal(t, string(events.CashUpdated), msg["type"])
	data := msg["data"].(map[string]interface{})
	assert.Equal(t, "42", data["balance"])
}

func TestEventsStream_BadFilter(t *testing.T) {
	srv, _ := newTestServer(t)
	w := request(srv.Handler(), "GET", "/api/events/stream?types=NOPE", "u1", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEventsWebSocket(t *testing.T) {
	srv, container := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/events/ws"
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: http.Header{identity.Header: []string{"u1"}},
	})
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	var msg wsMessage
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	assert.Equal(t, "connected", msg.Type)

	container.EventManager.EmitTyped("test", &events.TradeExecutedData{UserID: "u2", Symbol: "GARAN"})
	container.EventManager.EmitTyped("test", &events.TradeExecutedData{UserID: "u1", Symbol: "THYAO"})

	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	assert.Equal(t, string(events.TradeExecuted), msg.Type)
	assert.Equal(t, "THYAO", msg.Data["symbol"])
}

func TestEventsWebSocket_PushesState(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// The PRICE_UPDATED filter keeps trade events off the socket, leaving state pushes
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/events/ws?types=PRICE_UPDATED&state=true"
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: http.Header{identity.Header: []string{"u1"}},
	})
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	var msg wsMessage
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	assert.Equal(t, "connected", msg.Type)

	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	require.Equal(t, stateMessageType, msg.Type)
	require.NotNil(t, msg.State)
	assert.Empty(t, msg.State.State.Portfolio.Assets)
	assert.True(t, portfolio.InitialStake.Equal(msg.State.State.Balance))

	w := request(srv.Handler(), "POST", "/api/trades/buy", "u1", `{"symbol":"thyao","quantity":"2"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Account creation is pushed before the trade commits; wait for the position
	for {
		var push wsMessage
		require.NoError(t, wsjson.Read(ctx, conn, &push))
		require.Equal(t, stateMessageType, push.Type)
		require.NotNil(t, push.State)
		if len(push.State.State.Portfolio.Assets) == 0 {
			continue
		}
		assert.Equal(t, "THYAO", push.State.State.Portfolio.Assets[0].Symbol)
		assert.True(t, push.State.State.Balance.LessThan(portfolio.InitialStake))
		break
	}
}

func TestEventsStream_PushesStateOnReset(t *testing.T) {
	srv, container := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", ts.URL+"/api/events/stream?types=PRICE_UPDATED&state=1", nil)
	require.NoError(t, err)
	req.Header.Set(identity.Header, "u1")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	reader := bufio.NewReader(resp.Body)
	next := func() map[string]interface{} {
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			if strings.HasPrefix(line, "data: ") {
				var msg map[string]interface{}
				require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &msg))
				return msg
			}
		}
	}

	assert.Equal(t, "connected", next()["type"])
	initial := next()
	assert.Equal(t, stateMessageType, initial["type"])
	assert.Contains(t, initial, "state")

	_, err = container.PortfolioService.Reset(ctx, "u1")
	require.NoError(t, err)

	pushed := next()
	assert.Equal(t, stateMessageType, pushed["type"])
	state := pushed["state"].(map[string]interface{})["state"].(map[string]interface{})
	assert.Equal(t, "100000", state["balance"])
}

func TestWatchState_OptIn(t *testing.T) {
	_, container := newTestServer(t)

	r := httptest.NewRequest("GET", "/api/events/ws", nil)
	ch, stop := watchState(container.PortfolioService, r, "u1")
	assert.Nil(t, ch)
	stop()

	r = httptest.NewRequest("GET", "/api/events/ws?state=true", nil)
	ch, stop = watchState(nil, r, "u1")
	assert.Nil(t, ch)
	stop()

	ch, stop = watchState(container.PortfolioService, r, "u1")
	assert.NotNil(t, ch)
	stop()
}

func TestEventsWebSocket_RequiresIdentity(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/events/ws"
	_, resp, err := websocket.Dial(ctx, url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
