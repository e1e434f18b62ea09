// Package analytics derives read-only portfolio insights: allocation, risk,
// performers, monthly activity, commission totals and buy suggestions.
package analytics

import (
	"time"

	"github.com/sanbist/papertrader/internal/domain"
)

// CashSymbol is the synthetic allocation entry holding the cash balance
const CashSymbol = "CASH"

// AllocationEntry is one slice of the total assets
type AllocationEntry struct {
	Symbol     string                `json:"symbol"`
	Name       string                `json:"name"`
	Kind       domain.InstrumentKind `json:"kind,omitempty"`
	Value      float64               `json:"value"`
	Percentage float64               `json:"percentage"`
	IsCash     bool                  `json:"is_cash"`
}

// Allocation splits total assets across positions and cash
type Allocation struct {
	Entries             []AllocationEntry `json:"entries"`
	TotalPortfolioValue float64           `json:"total_portfolio_value"`
	Cash                float64           `json:"cash"`
	TotalAssets         float64           `json:"total_assets"`
}

// RiskLevel buckets the weight of the largest position
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// LargestPosition identifies the heaviest holding
type LargestPosition struct {
	Symbol     string  `json:"symbol"`
	Name       string  `json:"name"`
	Value      float64 `json:"value"`
	Percentage float64 `json:"percentage"` // Of total assets, cash included
}

// RiskAnalysis summarises how concentrated the portfolio is
type RiskAnalysis struct {
	DiversityScore     float64          `json:"diversity_score"`     // 100/n, 100 when empty
	ConcentrationIndex float64          `json:"concentration_index"` // Herfindahl over position weights, 0..1
	LargestPosition    *LargestPosition `json:"largest_position"`
	RiskLevel          RiskLevel        `json:"risk_level"`
	CashPercentage     float64          `json:"cash_percentage"`
	InvestedPercentage float64          `json:"invested_percentage"`
	PositionCount      int              `json:"position_count"`
}

// Performer is a position ranked by profit or loss
type Performer struct {
	Symbol            string  `json:"symbol"`
	Name              string  `json:"name"`
	Quantity          float64 `json:"quantity"`
	AvgPrice          float64 `json:"avg_price"`
	CurrentPrice      float64 `json:"current_price"`
	TotalValue        float64 `json:"total_value"`
	ProfitLoss        float64 `json:"profit_loss"`
	ProfitLossPercent float64 `json:"profit_loss_percent"`
	Stale             bool    `json:"stale"`
}

// Performers holds the best and worst positions
type Performers struct {
	TopGainers []Performer `json:"top_gainers"`
	TopLosers  []Performer `json:"top_losers"`
	All        []Performer `json:"all"` // By profit/loss percent, descending
}

// MonthlyActivity aggregates the transactions of one calendar month
type MonthlyActivity struct {
	Month            string  `json:"month"` // YYYY-MM in the market timezone
	Buys             float64 `json:"buys"`
	Sells            float64 `json:"sells"`
	TotalAmount      float64 `json:"total_amount"`
	Commission       float64 `json:"commission"`
	TransactionCount int     `json:"transaction_count"`
}

// Summary is the headline view of an account
type Summary struct {
	TotalInvestment      float64   `json:"total_investment"`
	CurrentValue         float64   `json:"current_value"`
	ProfitLoss           float64   `json:"profit_loss"`
	ProfitLossPercent    float64   `json:"profit_loss_percent"`
	Cash                 float64   `json:"cash"`
	TotalAssets          float64   `json:"total_assets"`
	InitialBalance       float64   `json:"initial_balance"`
	OverallReturnPercent float64   `json:"overall_return_percent"` // Total assets against the initial stake
	PositionCount        int       `json:"position_count"`
	TransactionCount     int       `json:"transaction_count"`
	StalePositionCount   int       `json:"stale_position_count"`
	PricesAsOf           time.Time `json:"prices_as_of"`
}

// CommissionSummary totals what trading has cost in fees
type CommissionSummary struct {
	TotalCommission      float64 `json:"total_commission"`
	TradingVolume        float64 `json:"trading_volume"`         // Sum of base amounts
	EffectiveRatePercent float64 `json:"effective_rate_percent"` // Commission over volume
	TransactionCount     int     `json:"transaction_count"`
}

// Suggestion is an unheld instrument that is up on the day
type Suggestion struct {
	Symbol            string                `json:"symbol"`
	Name              string                `json:"name"`
	Kind              domain.InstrumentKind `json:"kind"`
	Price             float64               `json:"price"`
	ChangePercent     float64               `json:"change_percent"`
	RecommendedAmount float64               `json:"recommended_amount"`
	Reason            string                `json:"reason"`
}

// Suggestions is the result of a suggestion query
type Suggestions struct {
	Suggestions    []Suggestion `json:"suggestions"`
	AvailableCash  float64      `json:"available_cash"`
	Recommendation string       `json:"recommendation"`
}
