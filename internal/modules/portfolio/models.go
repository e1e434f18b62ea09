// Package portfolio holds user accounts, their positions and the trade log,
// and values positions against market prices.
package portfolio

import (
	"fmt"
	"strings"
	"time"

	"github.com/sanbist/papertrader/internal/domain"
	"github.com/shopspring/decimal"
)

// InitialStake is the virtual cash every new or reset account starts with
var InitialStake = decimal.NewFromInt(100000)

// TradeSide is the direction of a transaction
type TradeSide string

const (
	SideBuy  TradeSide = "BUY"
	SideSell TradeSide = "SELL"
)

// ParseTradeSide accepts "buy"/"sell" in any case
func ParseTradeSide(s string) (TradeSide, error) {
	switch TradeSide(strings.ToUpper(strings.TrimSpace(s))) {
	case SideBuy:
		return SideBuy, nil
	case SideSell:
		return SideSell, nil
	}
	return "", fmt.Errorf("invalid trade side %q: must be BUY or SELL", s)
}

// Position is a holding of one instrument.
// Quantity is always positive; a position sold down to zero is removed.
type Position struct {
	Symbol     string                `json:"symbol"`
	Name       string                `json:"name"`
	Kind       domain.InstrumentKind `json:"kind"`
	Quantity   decimal.Decimal       `json:"quantity"`
	AvgPrice   decimal.Decimal       `json:"avg_price"`
	LastPrice  decimal.Decimal       `json:"last_price"`  // Price of the most recent execution
	TotalValue decimal.Decimal       `json:"total_value"` // Quantity x LastPrice
}

// DisplayName falls back to the symbol when no name was recorded
func (p Position) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.Symbol
}

// CostBasis is quantity times average price
func (p Position) CostBasis() decimal.Decimal {
	return p.Quantity.Mul(p.AvgPrice)
}

// Transaction is one executed trade. Transactions are never modified.
type Transaction struct {
	ID          string          `json:"id"`
	Type        TradeSide       `json:"type"`
	Symbol      string          `json:"symbol"`
	Name        string          `json:"name"`
	Quantity    decimal.Decimal `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	BaseAmount  decimal.Decimal `json:"base_amount"`  // Quantity x Price
	Commission  decimal.Decimal `json:"commission"`
	TotalAmount decimal.Decimal `json:"total_amount"` // Cash out for buys, cash in for sells
	Timestamp   time.Time       `json:"timestamp"`
}

// Portfolio is a user's holdings plus their chronological transaction log
type Portfolio struct {
	UserID       string          `json:"user_id"`
	Assets       []Position      `json:"assets"`
	Transactions []Transaction   `json:"transactions"`
	TotalValue   decimal.Decimal `json:"total_value"` // Book value at last execution prices
	Version      int64           `json:"version"`
	CreatedAt    time.Time       `json:"created_at"`
	LastUpdated  time.Time       `json:"last_updated"`
}

// NewPortfolio returns an empty portfolio for userID
func NewPortfolio(userID string, now time.Time) Portfolio {
	return Portfolio{
		UserID:       userID,
		Assets:       []Position{},
		Transactions: []Transaction{},
		TotalValue:   decimal.Zero,
		CreatedAt:    now,
		LastUpdated:  now,
	}
}

// FreshState is the state of a user with no stored account
func FreshState(userID string, balance decimal.Decimal, now time.Time) State {
	return State{Portfolio: NewPortfolio(userID, now), Balance: balance}
}

// Find returns the position for symbol and its index, or -1
func (p Portfolio) Find(symbol string) (Position, int) {
	symbol = domain.NormalizeSymbol(symbol)
	for i, a := range p.Assets {
		if a.Symbol == symbol {
			return a, i
		}
	}
	return Position{}, -1
}

// Holding is the quantity owned of symbol (zero when not held)
func (p Portfolio) Holding(symbol string) decimal.Decimal {
	pos, idx := p.Find(symbol)
	if idx < 0 {
		return decimal.Zero
	}
	return pos.Quantity
}

// Clone returns a copy whose slices can be modified independently
func (p Portfolio) Clone() Portfolio {
	out := p
	out.Assets = append(make([]Position, 0, len(p.Assets)), p.Assets...)
	out.Transactions = append(make([]Transaction, 0, len(p.Transactions)), p.Transactions...)
	return out
}

// BookValue sums quantity x last execution price over all assets
func (p Portfolio) BookValue() decimal.Decimal {
	total := decimal.Zero
	for _, a := range p.Assets {
		total = total.Add(a.Quantity.Mul(a.LastPrice))
	}
	return total
}

// Account is a registered user and their cash balance
type Account struct {
	UserID         string          `json:"user_id"`
	DisplayName    string          `json:"display_name"`
	VirtualBalance decimal.Decimal `json:"virtual_balance"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// State is the pair a trade mutates together
type State struct {
	Portfolio Portfolio       `json:"portfolio"`
	Balance   decimal.Decimal `json:"balance"`
}
