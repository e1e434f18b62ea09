package analytics

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/sanbist/papertrader/internal/domain"
	"github.com/sanbist/papertrader/internal/modules/market"
	"github.com/sanbist/papertrader/internal/modules/portfolio"
	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/floats"
)

const (
	topPerformerCount     = 5
	suggestionCount       = 5
	suggestionCashShare   = 0.2
	suggestionCap         = 10000.0
	suggestionMinCash     = 1000.0
	defaultRecentTxnLimit = 10
)

// BuildAllocation splits positions and cash into percentages of total assets.
// Percentages sum to 100 when total assets are positive, otherwise all are 0.
func BuildAllocation(v portfolio.Valuation, cash float64) Allocation {
	cash = finite(cash)
	total := v.TotalCurrentValue + cash

	a := Allocation{
		Entries:             make([]AllocationEntry, 0, len(v.Positions)+1),
		TotalPortfolioValue: v.TotalCurrentValue,
		Cash:                cash,
		TotalAssets:         total,
	}
	for _, p := range v.Positions {
		a.Entries = append(a.Entries, AllocationEntry{
			Symbol:     p.Symbol,
			Name:       p.Name,
			Kind:       p.Kind,
			Value:      p.TotalValue,
			Percentage: share(p.TotalValue, total),
		})
	}
	a.Entries = append(a.Entries, AllocationEntry{
		Symbol:     CashSymbol,
		Name:       "Cash",
		Value:      cash,
		Percentage: share(cash, total),
		IsCash:     true,
	})
	return a
}

// DiversityScore is 100 divided by the number of positions, 100 for an empty portfolio
func DiversityScore(positionCount int) float64 {
	if positionCount <= 0 {
		return 100
	}
	return math.Min(100/float64(positionCount), 100)
}

// ConcentrationIndex is the Herfindahl index of position weights within the
// invested value: 1 for a single holding, 1/n for n equal holdings, 0 when empty.
func ConcentrationIndex(v portfolio.Valuation) float64 {
	weights := make([]float64, 0, len(v.Positions))
	for _, p := range v.Positions {
		if p.TotalValue > 0 {
			weights = append(weights, p.TotalValue)
		}
	}
	total := floats.Sum(weights)
	if total <= 0 {
		return 0
	}
	floats.Scale(1/total, weights)
	return finite(floats.Dot(weights, weights))
}

// RiskTier maps the largest position's share of total assets to a risk level
func RiskTier(largestPct float64) RiskLevel {
	switch {
	case largestPct > 50:
		return RiskHigh
	case largestPct > 25:
		return RiskMedium
	default:
		return RiskLow
	}
}

// AnalyzeRisk measures concentration against total assets, cash included
func AnalyzeRisk(v portfolio.Valuation, cash float64) RiskAnalysis {
	cash = finite(cash)
	total := v.TotalCurrentValue + cash

	r := RiskAnalysis{
		DiversityScore:     DiversityScore(len(v.Positions)),
		ConcentrationIndex: ConcentrationIndex(v),
		CashPercentage:     share(cash, total),
		InvestedPercentage: share(v.TotalCurrentValue, total),
		PositionCount:      len(v.Positions),
		RiskLevel:          RiskLow,
	}

	for _, p := range v.Positions {
		if r.LargestPosition == nil || p.TotalValue > r.LargestPosition.Value {
			r.LargestPosition = &LargestPosition{Symbol: p.Symbol, Name: p.Name, Value: p.TotalValue}
		}
	}
	if r.LargestPosition != nil {
		r.LargestPosition.Percentage = share(r.LargestPosition.Value, total)
		r.RiskLevel = RiskTier(r.LargestPosition.Percentage)
	}
	return r
}

// RankPerformers returns up to five gainers (largest profit first), up to
// five losers (largest loss first) and every position by percent return.
// Ties keep portfolio order.
func RankPerformers(v portfolio.Valuation) Performers {
	all := make([]Performer, 0, len(v.Positions))
	for _, p := range v.Positions {
		all = append(all, Performer{
			Symbol:            p.Symbol,
			Name:              p.Name,
			Quantity:          p.Quantity,
			AvgPrice:          p.AvgPrice,
			CurrentPrice:      p.CurrentPrice,
			TotalValue:        p.TotalValue,
			ProfitLoss:        p.ProfitLoss,
			ProfitLossPercent: p.ProfitLossPercent,
			Stale:             p.Stale,
		})
	}

	gainers := make([]Performer, 0, len(all))
	losers := make([]Performer, 0, len(all))
	for _, p := range all {
		switch {
		case p.ProfitLoss > 0:
			gainers = append(gainers, p)
		case p.ProfitLoss < 0:
			losers = append(losers, p)
		}
	}
	sort.SliceStable(gainers, func(i, j int) bool { return gainers[i].ProfitLoss > gainers[j].ProfitLoss })
	sort.SliceStable(losers, func(i, j int) bool { return losers[i].ProfitLoss < losers[j].ProfitLoss })
	sort.SliceStable(all, func(i, j int) bool { return all[i].ProfitLossPercent > all[j].ProfitLossPercent })

	return Performers{
		TopGainers: limit(gainers, topPerformerCount),
		TopLosers:  limit(losers, topPerformerCount),
		All:        all,
	}
}

// MonthlyPerformance buckets transactions by calendar month in loc, oldest month first
func MonthlyPerformance(txns []portfolio.Transaction, loc *time.Location) []MonthlyActivity {
	if loc == nil {
		loc = time.UTC
	}

	type bucket struct {
		buys, sells, total, commission decimal.Decimal
		count                          int
	}
	buckets := make(map[string]*bucket)
	for _, t := range txns {
		key := t.Timestamp.In(loc).Format("2006-01")
		b, ok := buckets[key]
		if !ok {
			b = &bucket{}
			buckets[key] = b
		}
		if t.Type == portfolio.SideBuy {
			b.buys = b.buys.Add(t.TotalAmount)
		} else {
			b.sells = b.sells.Add(t.TotalAmount)
		}
		b.total = b.total.Add(t.TotalAmount)
		b.commission = b.commission.Add(t.Commission)
		b.count++
	}

	months := make([]string, 0, len(buckets))
	for k := range buckets {
		months = append(months, k)
	}
	sort.Strings(months)

	out := make([]MonthlyActivity, 0, len(months))
	for _, m := range months {
		b := buckets[m]
		out = append(out, MonthlyActivity{
			Month:            m,
			Buys:             b.buys.InexactFloat64(),
			Sells:            b.sells.InexactFloat64(),
			TotalAmount:      b.total.InexactFloat64(),
			Commission:       b.commission.InexactFloat64(),
			TransactionCount: b.count,
		})
	}
	return out
}

// Summarize combines valuation, cash and history into the headline figures
func Summarize(state portfolio.State, v portfolio.Valuation, initialBalance decimal.Decimal) Summary {
	cash := state.Balance.InexactFloat64()
	initial := initialBalance.InexactFloat64()
	total := v.TotalCurrentValue + cash

	s := Summary{
		TotalInvestment:    v.TotalInvestment,
		CurrentValue:       v.TotalCurrentValue,
		ProfitLoss:         v.TotalProfitLoss,
		ProfitLossPercent:  v.TotalProfitLossPercent,
		Cash:               cash,
		TotalAssets:        total,
		InitialBalance:     initial,
		PositionCount:      len(v.Positions),
		TransactionCount:   len(state.Portfolio.Transactions),
		StalePositionCount: v.StaleCount,
		PricesAsOf:         v.PricesAsOf,
	}
	if initial > 0 {
		s.OverallReturnPercent = finite((total - initial) / initial * 100)
	}
	return s
}

// SummarizeCommission totals commission and traded volume over txns
func SummarizeCommission(txns []portfolio.Transaction) CommissionSummary {
	commission, volume := decimal.Zero, decimal.Zero
	for _, t := range txns {
		commission = commission.Add(t.Commission)
		volume = volume.Add(t.BaseAmount)
	}

	s := CommissionSummary{
		TotalCommission:  commission.InexactFloat64(),
		TradingVolume:    volume.InexactFloat64(),
		TransactionCount: len(txns),
	}
	if volume.IsPositive() {
		s.EffectiveRatePercent = commission.Div(volume).Mul(decimal.NewFromInt(100)).InexactFloat64()
	}
	return s
}

// Suggest picks up to five unheld instruments tradable in base that are up
// on the day, strongest first. Each is sized at 20% of cash capped at 10,000.
func Suggest(snap market.Snapshot, p portfolio.Portfolio, cash float64, base domain.Currency) Suggestions {
	cash = finite(cash)
	held := make(map[string]struct{}, len(p.Assets))
	for _, a := range p.Assets {
		held[a.Symbol] = struct{}{}
	}

	candidates := make([]Suggestion, 0)
	for _, q := range snap.Quotes {
		if _, ok := held[q.Symbol]; ok {
			continue
		}
		price, live := q.LivePrice()
		if !live || !q.Kind.Tradable(base) || !(q.ChangePercent > 0) {
			continue
		}
		candidates = append(candidates, Suggestion{
			Symbol:        q.Symbol,
			Name:          q.DisplayName(),
			Kind:          q.Kind,
			Price:         price,
			ChangePercent: q.ChangePercent,
			Reason:        "Rising today",
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].ChangePercent > candidates[j].ChangePercent
	})
	candidates = limit(candidates, suggestionCount)

	amount := math.Max(math.Min(cash*suggestionCashShare, suggestionCap), 0)
	for i := range candidates {
		candidates[i].RecommendedAmount = amount
	}

	out := Suggestions{
		Suggestions:    candidates,
		AvailableCash:  cash,
		Recommendation: "Not enough cash for new positions",
	}
	if cash > suggestionMinCash {
		out.Recommendation = fmt.Sprintf("%d suggestions found", len(candidates))
	}
	return out
}

// RecentTransactions returns up to n transactions, newest first. n <= 0 means 10.
func RecentTransactions(txns []portfolio.Transaction, n int) []portfolio.Transaction {
	if n <= 0 {
		n = defaultRecentTxnLimit
	}
	// Stored history is chronological; reversing first keeps same-instant trades newest first
	out := make([]portfolio.Transaction, 0, len(txns))
	for i := len(txns) - 1; i >= 0; i-- {
		out = append(out, txns[i])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return limit(out, n)
}

func limit[T any](items []T, n int) []T {
	if len(items) > n {
		return items[:n]
	}
	return items
}

func share(part, whole float64) float64 {
	if whole <= 0 {
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
