package portfolio

import (
	"math"
	"time"

	"github.com/sanbist/papertrader/internal/domain"
	"github.com/sanbist/papertrader/internal/modules/market"
	"gonum.org/v1/gonum/floats"
)

// PositionValuation is a position priced against a market snapshot
type PositionValuation struct {
	Symbol            string                `json:"symbol"`
	Name              string                `json:"name"`
	Kind              domain.InstrumentKind `json:"kind"`
	Quantity          float64               `json:"quantity"`
	AvgPrice          float64               `json:"avg_price"`
	CurrentPrice      float64               `json:"current_price"`
	TotalValue        float64               `json:"total_value"`
	InvestmentCost    float64               `json:"investment_cost"`
	ProfitLoss        float64               `json:"profit_loss"`
	ProfitLossPercent float64               `json:"profit_loss_percent"`
	DayChangePercent  float64               `json:"day_change_percent"`
	Stale             bool                  `json:"stale"` // No live price; valued at average cost
}

// Valuation is a portfolio priced against a market snapshot
type Valuation struct {
	Positions              []PositionValuation `json:"positions"`
	TotalCurrentValue      float64             `json:"total_current_value"`
	TotalInvestment        float64             `json:"total_investment"`
	TotalProfitLoss        float64             `json:"total_profit_loss"`
	TotalProfitLossPercent float64             `json:"total_profit_loss_percent"`
	StaleCount             int                 `json:"stale_count"`
	PricesAsOf             time.Time           `json:"prices_as_of"`
}

// Valuate prices every position in p against snap. It is pure: the same
// inputs always give the same output, and missing prices never produce NaN.
func Valuate(p Portfolio, snap market.Snapshot) Valuation {
	v := Valuation{
		Positions:  make([]PositionValuation, 0, len(p.Assets)),
		PricesAsOf: snap.FetchedAt,
	}

	values := make([]float64, 0, len(p.Assets))
	costs := make([]float64, 0, len(p.Assets))

	for _, a := range p.Assets {
		pv := valuePosition(a, snap)
		if pv.Stale {
			v.StaleCount++
		}
		values = append(values, pv.TotalValue)
		costs = append(costs, pv.InvestmentCost)
		v.Positions = append(v.Positions, pv)
	}

	v.TotalCurrentValue = finite(floats.Sum(values))
	v.TotalInvestment = finite(floats.Sum(costs))
	v.TotalProfitLoss = v.TotalCurrentValue - v.TotalInvestment
	v.TotalProfitLossPercent = percentOf(v.TotalProfitLoss, v.TotalInvestment)
	return v
}

func valuePosition(a Position, snap market.Snapshot) PositionValuation {
	qty := a.Quantity.InexactFloat64()
	avg := a.AvgPrice.InexactFloat64()

	pv := PositionValuation{
		Symbol:       a.Symbol,
		Name:         a.DisplayName(),
		Kind:         a.Kind,
		Quantity:     qty,
		AvgPrice:     avg,
		CurrentPrice: avg,
		Stale:        true,
	}

	if q, ok := snap.Lookup(a.Symbol); ok {
		if price, live := q.LivePrice(); live {
			pv.CurrentPrice = price
			pv.Stale = false
			pv.DayChangePercent = finite(q.ChangePercent)
		}
		if pv.Name == a.Symbol && q.Name != "" {
			pv.Name = q.Name
		}
	}

	pv.TotalValue = finite(qty * pv.CurrentPrice)
	pv.InvestmentCost = finite(qty * avg)
	pv.ProfitLoss = pv.TotalValue - pv.InvestmentCost
	pv.ProfitLossPercent = percentOf(pv.ProfitLoss, pv.InvestmentCost)
	return pv
}

func percentOf(part, whole float64) float64 {
	if whole == 0 {
		return 0
	}
	return finite(part / whole * 100)
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
