// Package trading executes simulated buy and sell orders against a user's
// portfolio and cash balance.
package trading

import (
	"github.com/shopspring/decimal"
)

var (
	// CommissionRate is charged on the notional of every trade
	CommissionRate = decimal.RequireFromString("0.002")
	// MinCommission is the floor applied to small trades
	MinCommission = decimal.NewFromInt(5)
)

// Commission returns max(notional x rate, minimum)
func Commission(notional decimal.Decimal) decimal.Decimal {
	return decimal.Max(notional.Mul(CommissionRate), MinCommission)
}

// CostBreakdown is the cash needed to buy
type CostBreakdown struct {
	BaseCost   decimal.Decimal `json:"base_cost"`
	Commission decimal.Decimal `json:"commission"`
	TotalCost  decimal.Decimal `json:"total_cost"`
}

// RevenueBreakdown is the cash received from a sale
type RevenueBreakdown struct {
	BaseRevenue decimal.Decimal `json:"base_revenue"`
	Commission  decimal.Decimal `json:"commission"`
	NetRevenue  decimal.Decimal `json:"net_revenue"`
}

// Cost prices a buy of quantity units at price
func Cost(quantity, price decimal.Decimal) CostBreakdown {
	base := quantity.Mul(price)
	commission := Commission(base)
	return CostBreakdown{
		BaseCost:   base,
		Commission: commission,
		TotalCost:  base.Add(commission),
	}
}

// Revenue prices a sale of quantity units at price
func Revenue(quantity, price decimal.Decimal) RevenueBreakdown {
	base := quantity.Mul(price)
	commission := Commission(base)
	return RevenueBreakdown{
		BaseRevenue: base,
		Commission:  commission,
		NetRevenue:  base.Sub(commission),
	}
}

// MaxAffordable is the largest whole quantity whose total cost, commission
// included, fits in balance.
func MaxAffordable(balance, price decimal.Decimal) decimal.Decimal {
	if !price.IsPositive() || balance.LessThan(MinCommission) {
		return decimal.Zero
	}

	// Both bounds keep the total within balance whichever side of the
	// commission floor the notional lands on.
	byRate := balance.Div(price.Mul(decimal.NewFromInt(1).Add(CommissionRate))).Floor()
	byFloor := balance.Sub(MinCommission).Div(price).Floor()
	n := decimal.Min(byRate, byFloor)
	if n.IsNegative() {
		n = decimal.Zero
	}

	one := decimal.NewFromInt(1)
	for Cost(n.Add(one), price).TotalCost.LessThanOrEqual(balance) {
		n = n.Add(one)
	}
	return n
}
