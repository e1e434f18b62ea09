package trading

import (
	"context"
	"errors"

	"github.com/sanbist/papertrader/internal/domain"
	"github.com/sanbist/papertrader/internal/modules/portfolio"
	"github.com/shopspring/decimal"
)

// Preview is what a trade would do, computed without writing anything
type Preview struct {
	Side             portfolio.TradeSide   `json:"side"`
	Symbol           string                `json:"symbol"`
	Name             string                `json:"name"`
	Kind             domain.InstrumentKind `json:"kind"`
	Quantity         decimal.Decimal       `json:"quantity"`
	Price            decimal.Decimal       `json:"price"`
	BaseAmount       decimal.Decimal       `json:"base_amount"`
	Commission       decimal.Decimal       `json:"commission"`
	TotalAmount      decimal.Decimal       `json:"total_amount"`
	Balance          decimal.Decimal       `json:"balance"`
	BalanceAfter     decimal.Decimal       `json:"balance_after"`
	Owned            decimal.Decimal       `json:"owned"`
	MaxBuyable       decimal.Decimal       `json:"max_buyable"`
	AllowsFractional bool                  `json:"allows_fractional"`
	Allowed          bool                  `json:"allowed"`
	Reason           string                `json:"reason,omitempty"`
}

// Preview prices a trade against the user's current state. Malformed requests
// return an InvalidRequestError; trades the user cannot afford or cover are
// reported with Allowed=false and a reason.
func (s *Service) Preview(ctx context.Context, req TradeRequest) (*Preview, error) {
	order, err := s.resolveOrder(req)
	if err != nil {
		return nil, err
	}

	state, err := s.store.LoadState(ctx, req.UserID)
	if errors.Is(err, portfolio.ErrNotFound) {
		state = portfolio.FreshState(req.UserID, s.initialBalance, s.now().UTC())
	} else if err != nil {
		return nil, s.persistenceError("load state", req, order.Price, err)
	}

	p := &Preview{
		Side:             req.Side,
		Symbol:           order.Symbol,
		Name:             order.Name,
		Kind:             order.Kind,
		Quantity:         order.Quantity,
		Price:            order.Price,
		Balance:          state.Balance,
		BalanceAfter:     state.Balance,
		Owned:            state.Portfolio.Holding(order.Symbol),
		MaxBuyable:       MaxAffordable(state.Balance, order.Price),
		AllowsFractional: order.Kind.AllowsFractional(),
	}

	if req.Side == portfolio.SideBuy {
		cost := Cost(order.Quantity, order.Price)
		p.BaseAmount, p.Commission, p.TotalAmount = cost.BaseCost, cost.Commission, cost.TotalCost
	} else {
		revenue := Revenue(order.Quantity, order.Price)
		p.BaseAmount, p.Commission, p.TotalAmount = revenue.BaseRevenue, revenue.Commission, revenue.NetRevenue
	}

	next, _, err := s.apply(state, req.Side, order, s.now().UTC())
	switch {
	case err == nil:
		p.Allowed = true
		p.BalanceAfter = next.Balance
	case isUserCorrectable(err):
		p.Reason = err.Error()
	default:
		return nil, err
	}
	return p, nil
}

func isUserCorrectable(err error) bool {
	var funds *InsufficientFundsError
	var holdings *InsufficientHoldingsError
	return errors.As(err, &funds) || errors.As(err, &holdings)
}
