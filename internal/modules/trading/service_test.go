package trading

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sanbist/papertrader/internal/domain"
	"github.com/sanbist/papertrader/internal/events"
	"github.com/sanbist/papertrader/internal/modules/market"
	"github.com/sanbist/papertrader/internal/modules/portfolio"
	testingpkg "github.com/sanbist/papertrader/internal/testing"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	service *Service
	repo    *portfolio.Repository
	prices  *testingpkg.StaticSource
	bus     *events.Bus
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, cleanup := testingpkg.NewTestDB(t, "portfolio")
	t.Cleanup(cleanup)

	logger := zerolog.Nop()
	repo := portfolio.NewRepository(db.Conn(), logger)
	bus := events.NewBus(logger)
	prices := &testingpkg.StaticSource{Snapshot: testingpkg.NewDefaultSnapshot()}

	svc := NewService(repo, prices, events.NewManager(bus, logger), domain.CurrencyTRY, portfolio.InitialStake, logger)
	svc.now = func() time.Time { return execTime }
	return &testEnv{service: svc, repo: repo, prices: prices, bus: bus}
}

func TestService_ScenarioBuyBuySell(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var executed []*events.Event
	env.bus.Subscribe(events.TradeExecuted, func(e *events.Event) { executed = append(executed, e) })
	var changed int
	env.bus.Subscribe(events.PortfolioChanged, func(*events.Event) { changed++ })

	res, err := env.service.ExecuteBuy(ctx, "u1", "x", d("10"))
	require.NoError(t, err)
	assert.True(t, d("98995").Equal(res.Balance))
	require.NotNil(t, res.Position)
	assert.True(t, d("100").Equal(res.Position.AvgPrice))
	assert.Equal(t, int64(1), res.Version)

	// Price moves to 200 for the second buy
	env.prices.Snapshot = testingpkg.NewSnapshotFixture(execTime,
		testingpkg.QuoteFixture{Symbol: "X", Kind: domain.KindStock, Price: 200})
	res, err = env.service.ExecuteBuy(ctx, "u1", "X", d("5"))
	require.NoError(t, err)
	avg, _ := res.Position.AvgPrice.Float64()
	assert.InDelta(t, 133.33, avg, 0.01)
	assert.True(t, d("15").Equal(res.Position.Quantity))

	env.prices.Snapshot = testingpkg.NewSnapshotFixture(execTime,
		testingpkg.QuoteFixture{Symbol: "X", Kind: domain.KindStock, Price: 150})
	balanceBefore := res.Balance
	res, err = env.service.ExecuteSell(ctx, "u1", "X", d("15"))
	require.NoError(t, err)
	assert.Nil(t, res.Position)
	assert.True(t, d("2245").Equal(res.Transaction.TotalAmount))
	assert.True(t, balanceBefore.Add(d("2245")).Equal(res.Balance))

	state, err := env.repo.LoadState(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, state.Portfolio.Assets)
	assert.Len(t, state.Portfolio.Transactions, 3)
	assert.True(t, res.Balance.Equal(state.Balance))

	require.Len(t, executed, 3)
	assert.Equal(t, "u1", executed[0].UserID)
	assert.Equal(t, 3, changed)
}

func TestService_RejectionsLeaveStateUnchanged(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.service.ExecuteBuy(ctx, "u1", "X", d("15"))
	require.NoError(t, err)
	before, err := env.repo.LoadState(ctx, "u1")
	require.NoError(t, err)

	tests := []struct {
		name   string
		req    TradeRequest
		target interface{}
	}{
		{"oversell", TradeRequest{UserID: "u1", Side: portfolio.SideSell, Symbol: "X", Quantity: d("20")}, new(*InsufficientHoldingsError)},
		{"overspend", TradeRequest{UserID: "u1", Side: portfolio.SideBuy, Symbol: "ALTIN", Quantity: d("100")}, new(*InsufficientFundsError)},
		{"zero quantity", TradeRequest{UserID: "u1", Side: portfolio.SideBuy, Symbol: "X", Quantity: decimal.Zero}, new(*InvalidRequestError)},
		{"fractional stock", TradeRequest{UserID: "u1", Side: portfolio.SideBuy, Symbol: "X", Quantity: d("0.5")}, new(*InvalidRequestError)},
		{"unknown symbol", TradeRequest{UserID: "u1", Side: portfolio.SideBuy, Symbol: "NOPE", Quantity: d("1")}, new(*InvalidRequestError)},
		{"no live price", TradeRequest{UserID: "u1", Side: portfolio.SideBuy, Symbol: "DEAD", Quantity: d("1")}, new(*InvalidRequestError)},
		{"ounce metal", TradeRequest{UserID: "u1", Side: portfolio.SideBuy, Symbol: "XAUUSD", Quantity: d("1")}, new(*InvalidRequestError)},
		{"cross rate", TradeRequest{UserID: "u1", Side: portfolio.SideBuy, Symbol: "EURUSD", Quantity: d("1")}, new(*InvalidRequestError)},
		{"index", TradeRequest{UserID: "u1", Side: portfolio.SideBuy, Symbol: "XU100", Quantity: d("1")}, new(*InvalidRequestError)},
		{"bad side", TradeRequest{UserID: "u1", Side: "HOLD", Symbol: "X", Quantity: d("1")}, new(*InvalidRequestError)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.service.Execute(ctx, tt.req)
			require.Error(t, err)
			assert.True(t, errors.As(err, tt.target), "unexpected error type %T: %v", err, err)
			assert.False(t, IsRetryable(err))
		})
	}

	after, err := env.repo.LoadState(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, before.Balance.Equal(after.Balance))
	assert.Equal(t, before.Portfolio.Version, after.Portfolio.Version)
	assert.Len(t, after.Portfolio.Transactions, 1)
}

func TestService_FractionalGold(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.service.ExecuteBuy(context.Background(), "u1", "ALTIN", d("2.5"))
	require.NoError(t, err)
	assert.True(t, d("6125").Equal(res.Transaction.BaseAmount))
	assert.True(t, d("12.25").Equal(res.Transaction.Commission))
	assert.Equal(t, domain.KindMetalGram, res.Position.Kind)
}

func TestService_ConcurrentSellsNeverOversell(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.service.ExecuteBuy(ctx, "u1", "X", d("10"))
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.service.ExecuteSell(ctx, "u1", "X", d("3"))
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			var holdings *InsufficientHoldingsError
			assert.ErrorAs(t, err, &holdings)
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, succeeded)
	state, err := env.repo.LoadState(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, d("1").Equal(state.Portfolio.Holding("X")))
	assert.Len(t, state.Portfolio.Transactions, 4)
}

// conflictingStore simulates another process committing between load and commit
type conflictingStore struct {
	StateStore
}

func (c conflictingStore) CommitTrade(ctx context.Context, next portfolio.State, txn portfolio.Transaction) (portfolio.State, error) {
	return portfolio.State{}, portfolio.ErrVersionConflict
}

func TestService_CommitFailureIsRetryablePersistenceError(t *testing.T) {
	env := newTestEnv(t)
	env.service.store = conflictingStore{StateStore: env.repo}

	var errorEvents int
	env.bus.Subscribe(events.ErrorOccurred, func(*events.Event) { errorEvents++ })

	_, err := env.service.ExecuteBuy(context.Background(), "u1", "X", d("1"))
	require.Error(t, err)

	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.True(t, IsRetryable(err))
	assert.True(t, IsConflict(err))
	assert.Equal(t, "u1", perr.UserID)
	assert.Equal(t, "X", perr.Symbol)
	assert.Equal(t, portfolio.SideBuy, perr.Side)
	assert.True(t, d("105").Equal(perr.Amount))
	assert.Equal(t, 1, errorEvents)

	state, err := env.repo.LoadState(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, portfolio.InitialStake.Equal(state.Balance), "nothing committed")
}

func TestService_CancelledContext(t *testing.T) {
	env := newTestEnv(t)

	release, err := env.service.locks.acquire(context.Background(), "u1")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = env.service.ExecuteBuy(ctx, "u1", "X", d("1"))

	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestService_Preview(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p, err := env.service.Preview(ctx, TradeRequest{UserID: "new", Side: portfolio.SideBuy, Symbol: "X", Quantity: d("10")})
	require.NoError(t, err)
	assert.True(t, p.Allowed)
	assert.True(t, d("1005").Equal(p.TotalAmount))
	assert.True(t, d("98995").Equal(p.BalanceAfter))
	assert.True(t, d("998").Equal(p.MaxBuyable))

	_, err = env.repo.LoadState(ctx, "new")
	assert.ErrorIs(t, err, portfolio.ErrNotFound, "preview does not create accounts")

	p, err = env.service.Preview(ctx, TradeRequest{UserID: "new", Side: portfolio.SideSell, Symbol: "X", Quantity: d("1")})
	require.NoError(t, err)
	assert.False(t, p.Allowed)
	assert.Contains(t, p.Reason, "owned 0")

	_, err = env.service.Preview(ctx, TradeRequest{UserID: "new", Side: portfolio.SideBuy, Symbol: "XU100", Quantity: d("1")})
	var invalid *InvalidRequestError
	assert.ErrorAs(t, err, &invalid)
}

func TestService_QuoteWithErrorIsNotTradable(t *testing.T) {
	env := newTestEnv(t)
	price := 10.0
	env.prices.Snapshot = market.Snapshot{Quotes: []market.Quote{
		{Symbol: "ERR", Kind: domain.KindStock, Price: &price, Error: "halted"},
	}}

	_, err := env.service.ExecuteBuy(context.Background(), "u1", "ERR", d("1"))
	var invalid *InvalidRequestError
	require.ErrorAs(t, err, &invalid)
	assert.Contains(t, err.Error(), "no live price")
}
