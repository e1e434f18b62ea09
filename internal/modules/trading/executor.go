package trading

import (
	"time"

	"github.com/google/uuid"
	"github.com/sanbist/papertrader/internal/domain"
	"github.com/sanbist/papertrader/internal/modules/portfolio"
	"github.com/shopspring/decimal"
)

// Order is a validated request to trade one instrument at a known price
type Order struct {
	ID       string // Transaction id; generated when empty
	Symbol   string
	Name     string
	Kind     domain.InstrumentKind
	Quantity decimal.Decimal
	Price    decimal.Decimal
}

// validateOrder checks everything that does not depend on the user's state
func validateOrder(o Order, base domain.Currency) error {
	if o.Symbol == "" {
		return &InvalidRequestError{Reason: "symbol is required"}
	}
	if !o.Quantity.IsPositive() {
		return &InvalidRequestError{Symbol: o.Symbol, Reason: "quantity must be positive, got " + o.Quantity.String()}
	}
	if !o.Kind.AllowsFractional() && !o.Quantity.Equal(o.Quantity.Truncate(0)) {
		return &InvalidRequestError{Symbol: o.Symbol, Reason: "quantity must be a whole number for " + o.Kind.Label()}
	}
	if !o.Price.IsPositive() {
		return &InvalidRequestError{Symbol: o.Symbol, Reason: "price must be positive, got " + o.Price.String()}
	}
	if !o.Kind.Tradable(base) {
		return &InvalidRequestError{Symbol: o.Symbol, Reason: o.Kind.Label() + " are not tradable in a " + string(base) + " account"}
	}
	return nil
}

func (o Order) transactionID() string {
	if o.ID != "" {
		return o.ID
	}
	return uuid.NewString()
}

func (o Order) displayName() string {
	if o.Name != "" {
		return o.Name
	}
	return o.Symbol
}

// ApplyBuy returns the state after buying o. The input state is not modified.
func ApplyBuy(state portfolio.State, o Order, base domain.Currency, now time.Time) (portfolio.State, portfolio.Transaction, error) {
	if err := validateOrder(o, base); err != nil {
		return state, portfolio.Transaction{}, err
	}

	cost := Cost(o.Quantity, o.Price)
	if state.Balance.LessThan(cost.TotalCost) {
		return state, portfolio.Transaction{}, &InsufficientFundsError{
			Symbol:     o.Symbol,
			Required:   cost.TotalCost,
			Available:  state.Balance,
			BaseCost:   cost.BaseCost,
			Commission: cost.Commission,
		}
	}

	next := portfolio.State{Portfolio: state.Portfolio.Clone(), Balance: state.Balance.Sub(cost.TotalCost)}
	p := &next.Portfolio

	if pos, idx := p.Find(o.Symbol); idx >= 0 {
		qty := pos.Quantity.Add(o.Quantity)
		pos.AvgPrice = pos.AvgPrice.Mul(pos.Quantity).Add(o.Price.Mul(o.Quantity)).Div(qty)
		pos.Quantity = qty
		pos.LastPrice = o.Price
		pos.TotalValue = qty.Mul(o.Price)
		if pos.Name == "" {
			pos.Name = o.Name
		}
		p.Assets[idx] = pos
	} else {
		p.Assets = append(p.Assets, portfolio.Position{
			Symbol:     o.Symbol,
			Name:       o.displayName(),
			Kind:       o.Kind,
			Quantity:   o.Quantity,
			AvgPrice:   o.Price,
			LastPrice:  o.Price,
			TotalValue: cost.BaseCost,
		})
	}

	txn := portfolio.Transaction{
		ID:          o.transactionID(),
		Type:        portfolio.SideBuy,
		Symbol:      o.Symbol,
		Name:        o.displayName(),
		Quantity:    o.Quantity,
		Price:       o.Price,
		BaseAmount:  cost.BaseCost,
		Commission:  cost.Commission,
		TotalAmount: cost.TotalCost,
		Timestamp:   now,
	}
	p.Transactions = append(p.Transactions, txn)
	p.TotalValue = p.BookValue()
	p.LastUpdated = now

	return next, txn, nil
}

// ApplySell returns the state after selling o. The input state is not modified.
// Selling the whole holding removes the position; a partial sale keeps the
// average price.
func ApplySell(state portfolio.State, o Order, base domain.Currency, now time.Time) (portfolio.State, portfolio.Transaction, error) {
	if err := validateOrder(o, base); err != nil {
		return state, portfolio.Transaction{}, err
	}

	pos, idx := state.Portfolio.Find(o.Symbol)
	owned := decimal.Zero
	if idx >= 0 {
		owned = pos.Quantity
	}
	if owned.LessThan(o.Quantity) {
		return state, portfolio.Transaction{}, &InsufficientHoldingsError{
			Symbol:    o.Symbol,
			Owned:     owned,
			Requested: o.Quantity,
		}
	}

	revenue := Revenue(o.Quantity, o.Price)
	balance := state.Balance.Add(revenue.NetRevenue)
	if balance.IsNegative() {
		// A tiny sale can cost more in commission than it raises
		return state, portfolio.Transaction{}, &InsufficientFundsError{
			Symbol:     o.Symbol,
			Required:   revenue.NetRevenue.Neg(),
			Available:  state.Balance,
			BaseCost:   revenue.BaseRevenue,
			Commission: revenue.Commission,
		}
	}

	next := portfolio.State{Portfolio: state.Portfolio.Clone(), Balance: balance}
	p := &next.Portfolio

	if o.Quantity.Equal(pos.Quantity) {
		p.Assets = append(p.Assets[:idx], p.Assets[idx+1:]...)
	} else {
		pos.Quantity = pos.Quantity.Sub(o.Quantity)
		pos.LastPrice = o.Price
		pos.TotalValue = pos.Quantity.Mul(o.Price)
		p.Assets[idx] = pos
	}

	txn := portfolio.Transaction{
		ID:          o.transactionID(),
		Type:        portfolio.SideSell,
		Symbol:      o.Symbol,
		Name:        o.displayName(),
		Quantity:    o.Quantity,
		Price:       o.Price,
		BaseAmount:  revenue.BaseRevenue,
		Commission:  revenue.Commission,
		TotalAmount: revenue.NetRevenue,
		Timestamp:   now,
	}
	p.Transactions = append(p.Transactions, txn)
	p.TotalValue = p.BookValue()
	p.LastUpdated = now

	return next, txn, nil
}
