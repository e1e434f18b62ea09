package trading

import (
	"testing"
	"time"

	"github.com/sanbist/papertrader/internal/domain"
	"github.com/sanbist/papertrader/internal/modules/portfolio"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var execTime = time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

func freshState() portfolio.State {
	return portfolio.State{
		Portfolio: portfolio.NewPortfolio("u1", execTime),
		Balance:   portfolio.InitialStake,
	}
}

func stockOrder(symbol, qty, price string) Order {
	return Order{Symbol: symbol, Kind: domain.KindStock, Quantity: d(qty), Price: d(price)}
}

func TestApplyBuy_NewPosition(t *testing.T) {
	state := freshState()

	next, txn, err := ApplyBuy(state, stockOrder("X", "10", "100"), domain.CurrencyTRY, execTime)
	require.NoError(t, err)

	assert.True(t, d("98995").Equal(next.Balance))
	require.Len(t, next.Portfolio.Assets, 1)
	pos := next.Portfolio.Assets[0]
	assert.Equal(t, "X", pos.Symbol)
	assert.True(t, d("10").Equal(pos.Quantity))
	assert.True(t, d("100").Equal(pos.AvgPrice))

	assert.Equal(t, portfolio.SideBuy, txn.Type)
	assert.True(t, d("1000").Equal(txn.BaseAmount))
	assert.True(t, d("5").Equal(txn.Commission))
	assert.True(t, d("1005").Equal(txn.TotalAmount))
	assert.NotEmpty(t, txn.ID)
	assert.Equal(t, execTime, txn.Timestamp)
	assert.Len(t, next.Portfolio.Transactions, 1)
	assert.True(t, d("1000").Equal(next.Portfolio.TotalValue))

	// Input state is untouched
	assert.Empty(t, state.Portfolio.Assets)
	assert.True(t, portfolio.InitialStake.Equal(state.Balance))
}

func TestApplyBuy_WeightedAveragePrice(t *testing.T) {
	state, _, err := ApplyBuy(freshState(), stockOrder("X", "10", "100"), domain.CurrencyTRY, execTime)
	require.NoError(t, err)

	next, _, err := ApplyBuy(state, stockOrder("X", "5", "200"), domain.CurrencyTRY, execTime)
	require.NoError(t, err)

	require.Len(t, next.Portfolio.Assets, 1)
	pos := next.Portfolio.Assets[0]
	assert.True(t, d("15").Equal(pos.Quantity))
	avg, _ := pos.AvgPrice.Float64()
	assert.InDelta(t, 133.333333, avg, 1e-6)
	assert.True(t, d("200").Equal(pos.LastPrice))
	assert.True(t, d("3000").Equal(pos.TotalValue))
	assert.True(t, d("98995").Sub(d("1005")).Equal(next.Balance))
}

func TestApplyBuy_AverageCostProperty(t *testing.T) {
	cases := [][4]string{
		{"1", "10", "1", "20"},
		{"3", "47.2", "7", "51.85"},
		{"100", "9.8", "250", "10.15"},
	}
	for _, c := range cases {
		q1, p1, q2, p2 := d(c[0]), d(c[1]), d(c[2]), d(c[3])
		state, _, err := ApplyBuy(freshState(), Order{Symbol: "Y", Kind: domain.KindStock, Quantity: q1, Price: p1}, domain.CurrencyTRY, execTime)
		require.NoError(t, err)
		state, _, err = ApplyBuy(state, Order{Symbol: "Y", Kind: domain.KindStock, Quantity: q2, Price: p2}, domain.CurrencyTRY, execTime)
		require.NoError(t, err)

		want := q1.Mul(p1).Add(q2.Mul(p2)).Div(q1.Add(q2))
		got := state.Portfolio.Assets[0].AvgPrice
		assert.True(t, got.Sub(want).Abs().LessThan(d("0.000001")), "avg %s want %s", got, want)
	}
}

func TestApplyBuy_InsufficientFunds(t *testing.T) {
	state := freshState()
	state.Balance = d("1004.99")

	next, _, err := ApplyBuy(state, stockOrder("X", "10", "100"), domain.CurrencyTRY, execTime)
	require.Error(t, err)

	var funds *InsufficientFundsError
	require.ErrorAs(t, err, &funds)
	assert.True(t, d("1005").Equal(funds.Required))
	assert.True(t, d("1004.99").Equal(funds.Available))
	assert.True(t, d("1000").Equal(funds.BaseCost))
	assert.True(t, d("5").Equal(funds.Commission))
	assert.Contains(t, err.Error(), "required 1005.00")
	assert.Contains(t, err.Error(), "available 1004.99")

	assert.Equal(t, state, next, "rejected buy returns the original state")
}

func TestApplyBuy_BalanceNeverNegative(t *testing.T) {
	state := freshState()
	order := stockOrder("X", "97", "1000")
	for i := 0; i < 5; i++ {
		next, _, err := ApplyBuy(state, order, domain.CurrencyTRY, execTime)
		if err != nil {
			var funds *InsufficientFundsError
			require.ErrorAs(t, err, &funds)
			break
		}
		state = next
		assert.False(t, state.Balance.IsNegative())
	}
	assert.False(t, state.Balance.IsNegative())
}

func TestApplySell_FullAndPartial(t *testing.T) {
	state, _, err := ApplyBuy(freshState(), stockOrder("X", "10", "100"), domain.CurrencyTRY, execTime)
	require.NoError(t, err)
	state, _, err = ApplyBuy(state, stockOrder("X", "5", "200"), domain.CurrencyTRY, execTime)
	require.NoError(t, err)
	state, _, err = ApplyBuy(state, stockOrder("GARAN", "20", "50"), domain.CurrencyTRY, execTime)
	require.NoError(t, err)
	balanceBefore := state.Balance
	avgBefore := state.Portfolio.Assets[0].AvgPrice

	t.Run("partial keeps average price", func(t *testing.T) {
		next, txn, err := ApplySell(state, stockOrder("X", "5", "150"), domain.CurrencyTRY, execTime)
		require.NoError(t, err)

		pos, idx := next.Portfolio.Find("X")
		require.Equal(t, 0, idx)
		assert.True(t, d("10").Equal(pos.Quantity))
		assert.True(t, avgBefore.Equal(pos.AvgPrice))
		assert.True(t, d("150").Equal(pos.LastPrice))
		assert.True(t, d("1500").Equal(pos.TotalValue))
		assert.True(t, d("745").Equal(txn.TotalAmount))
		assert.True(t, balanceBefore.Add(d("745")).Equal(next.Balance))
	})

	t.Run("selling everything removes the position", func(t *testing.T) {
		next, txn, err := ApplySell(state, stockOrder("X", "15", "150"), domain.CurrencyTRY, execTime)
		require.NoError(t, err)

		_, idx := next.Portfolio.Find("X")
		assert.Equal(t, -1, idx)
		require.Len(t, next.Portfolio.Assets, 1)
		assert.Equal(t, "GARAN", next.Portfolio.Assets[0].Symbol)

		assert.Equal(t, portfolio.SideSell, txn.Type)
		assert.True(t, d("2250").Equal(txn.BaseAmount))
		assert.True(t, d("5").Equal(txn.Commission))
		assert.True(t, d("2245").Equal(txn.TotalAmount))
		assert.True(t, balanceBefore.Add(d("2245")).Equal(next.Balance))
		assert.True(t, d("1000").Equal(next.Portfolio.TotalValue))
	})

	t.Run("overselling is rejected", func(t *testing.T) {
		next, _, err := ApplySell(state, stockOrder("X", "20", "150"), domain.CurrencyTRY, execTime)
		var holdings *InsufficientHoldingsError
		require.ErrorAs(t, err, &holdings)
		assert.True(t, d("15").Equal(holdings.Owned))
		assert.True(t, d("20").Equal(holdings.Requested))
		assert.Equal(t, state, next)
	})

	t.Run("selling something not held", func(t *testing.T) {
		_, _, err := ApplySell(state, stockOrder("THYAO", "1", "130"), domain.CurrencyTRY, execTime)
		var holdings *InsufficientHoldingsError
		require.ErrorAs(t, err, &holdings)
		assert.True(t, holdings.Owned.IsZero())
	})
}

func TestApplySell_CommissionCannotOverdrawCash(t *testing.T) {
	state, _, err := ApplyBuy(freshState(), stockOrder("PENNY", "1", "1"), domain.CurrencyTRY, execTime)
	require.NoError(t, err)
	state.Balance = d("2")

	_, _, err = ApplySell(state, stockOrder("PENNY", "1", "1"), domain.CurrencyTRY, execTime)
	var funds *InsufficientFundsError
	require.ErrorAs(t, err, &funds)
	assert.True(t, d("4").Equal(funds.Required))
}

func TestValidateOrder(t *testing.T) {
	tests := []struct {
		name  string
		order Order
		ok    bool
	}{
		{"stock whole", stockOrder("X", "3", "10"), true},
		{"zero quantity", stockOrder("X", "0", "10"), false},
		{"negative quantity", stockOrder("X", "-1", "10"), false},
		{"fractional stock", stockOrder("X", "1.5", "10"), false},
		{"zero price", stockOrder("X", "1", "0"), false},
		{"missing symbol", stockOrder("", "1", "10"), false},
		{"fractional gold", Order{Symbol: "ALTIN", Kind: domain.KindMetalGram, Quantity: d("0.25"), Price: d("2450")}, true},
		{"fractional currency", Order{Symbol: "USDTRY", Kind: domain.KindCurrency, Quantity: d("12.5"), Price: d("32.1")}, true},
		{"ounce metal", Order{Symbol: "XAUUSD", Kind: domain.KindMetalOunce, Quantity: d("1"), Price: d("1950")}, false},
		{"cross rate", Order{Symbol: "EURUSD", Kind: domain.KindCrossCurrency, Quantity: d("1"), Price: d("1.08")}, false},
		{"index", Order{Symbol: "XU100", Kind: domain.KindIndex, Quantity: d("1"), Price: d("9050")}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateOrder(tt.order, domain.CurrencyTRY)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			var invalid *InvalidRequestError
			assert.ErrorAs(t, err, &invalid)
		})
	}
}

func TestApply_RevalidatesTradability(t *testing.T) {
	state := freshState()
	order := Order{Symbol: "XAUUSD", Kind: domain.KindMetalOunce, Quantity: decimal.NewFromInt(1), Price: d("1950")}

	_, _, err := ApplyBuy(state, order, domain.CurrencyTRY, execTime)
	var invalid *InvalidRequestError
	require.ErrorAs(t, err, &invalid)

	_, _, err = ApplySell(state, order, domain.CurrencyTRY, execTime)
	require.ErrorAs(t, err, &invalid)
}
