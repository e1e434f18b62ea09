package trading

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sanbist/papertrader/internal/domain"
	"github.com/sanbist/papertrader/internal/events"
	"github.com/sanbist/papertrader/internal/modules/market"
	"github.com/sanbist/papertrader/internal/modules/portfolio"
	"github.com/shopspring/decimal"
)

// QuoteSource resolves symbols against the most recently cached snapshot
type QuoteSource interface {
	Quote(symbol string) (market.Quote, bool)
}

// StateStore loads and atomically commits a user's portfolio and balance
type StateStore interface {
	LoadState(ctx context.Context, userID string) (portfolio.State, error)
	CommitTrade(ctx context.Context, next portfolio.State, txn portfolio.Transaction) (portfolio.State, error)
	CreateAccount(ctx context.Context, userID, displayName string, balance decimal.Decimal, now time.Time) (portfolio.Account, bool, error)
}

// Compile-time check that the portfolio repository is a StateStore
var _ StateStore = (*portfolio.Repository)(nil)

// TradeRequest is an order as submitted by a user
type TradeRequest struct {
	UserID   string
	Side     portfolio.TradeSide
	Symbol   string
	Quantity decimal.Decimal
}

// TradeResult is the outcome of a committed trade
type TradeResult struct {
	Transaction portfolio.Transaction `json:"transaction"`
	Balance     decimal.Decimal       `json:"balance"`
	Position    *portfolio.Position   `json:"position,omitempty"` // nil after selling the whole holding
	Version     int64                 `json:"version"`
}

// Service executes trades. Each trade runs under the user's lock and commits
// portfolio, balance and transaction in one database transaction.
type Service struct {
	store          StateStore
	quotes         QuoteSource
	eventManager   *events.Manager
	baseCurrency   domain.Currency
	initialBalance decimal.Decimal
	locks          *userLocks
	now            func() time.Time
	log            zerolog.Logger
}

// NewService creates a new trading service
func NewService(
	store StateStore,
	quotes QuoteSource,
	eventManager *events.Manager,
	baseCurrency domain.Currency,
	initialBalance decimal.Decimal,
	log zerolog.Logger,
) *Service {
	return &Service{
		store:          store,
		quotes:         quotes,
		eventManager:   eventManager,
		baseCurrency:   baseCurrency,
		initialBalance: initialBalance,
		locks:          newUserLocks(),
		now:            time.Now,
		log:            log.With().Str("service", "trading").Logger(),
	}
}

// ExecuteBuy buys quantity units of symbol at the cached market price
func (s *Service) ExecuteBuy(ctx context.Context, userID, symbol string, quantity decimal.Decimal) (*TradeResult, error) {
	return s.Execute(ctx, TradeRequest{UserID: userID, Side: portfolio.SideBuy, Symbol: symbol, Quantity: quantity})
}

// ExecuteSell sells quantity units of symbol at the cached market price
func (s *Service) ExecuteSell(ctx context.Context, userID, symbol string, quantity decimal.Decimal) (*TradeResult, error) {
	return s.Execute(ctx, TradeRequest{UserID: userID, Side: portfolio.SideSell, Symbol: symbol, Quantity: quantity})
}

// Execute validates, applies and commits one trade
func (s *Service) Execute(ctx context.Context, req TradeRequest) (*TradeResult, error) {
	order, err := s.resolveOrder(req)
	if err != nil {
		s.log.Info().Err(err).Str("user_id", req.UserID).Msg("Trade rejected")
		return nil, err
	}

	release, err := s.locks.acquire(ctx, req.UserID)
	if err != nil {
		return nil, s.persistenceError("acquire trade lock", req, order.Price, err)
	}
	defer release()

	state, err := s.loadOrInit(ctx, req.UserID)
	if err != nil {
		return nil, s.persistenceError("load state", req, order.Price, err)
	}

	now := s.now().UTC()
	next, txn, err := s.apply(state, req.Side, order, now)
	if err != nil {
		s.log.Info().Err(err).Str("user_id", req.UserID).Msg("Trade rejected")
		return nil, err
	}

	committed, err := s.store.CommitTrade(ctx, next, txn)
	if err != nil {
		return nil, s.persistenceError("commit trade", req, txn.TotalAmount, err)
	}

	s.log.Info().
		Str("user_id", req.UserID).
		Str("side", string(req.Side)).
		Str("symbol", order.Symbol).
		Str("quantity", txn.Quantity.String()).
		Str("price", txn.Price.String()).
		Str("total", txn.TotalAmount.String()).
		Msg("Trade executed")

	s.emitTrade(committed, txn)

	result := &TradeResult{
		Transaction: txn,
		Balance:     committed.Balance,
		Version:     committed.Portfolio.Version,
	}
	if pos, idx := committed.Portfolio.Find(order.Symbol); idx >= 0 {
		result.Position = &pos
	}
	return result, nil
}

// resolveOrder validates the request and prices it from the cached snapshot.
// Nothing here reads the user's state.
func (s *Service) resolveOrder(req TradeRequest) (Order, error) {
	symbol := domain.NormalizeSymbol(req.Symbol)
	if req.Side != portfolio.SideBuy && req.Side != portfolio.SideSell {
		return Order{}, &InvalidRequestError{Symbol: symbol, Reason: fmt.Sprintf("unknown side %q", req.Side)}
	}
	if symbol == "" {
		return Order{}, &InvalidRequestError{Reason: "symbol is required"}
	}
	if !req.Quantity.IsPositive() {
		return Order{}, &InvalidRequestError{Symbol: symbol, Reason: "quantity must be positive, got " + req.Quantity.String()}
	}

	quote, ok := s.quotes.Quote(symbol)
	if !ok {
		return Order{}, &InvalidRequestError{Symbol: symbol, Reason: "no market data for this symbol"}
	}
	price, live := quote.LivePrice()
	if !live {
		return Order{}, &InvalidRequestError{Symbol: symbol, Reason: "no live price available"}
	}

	order := Order{
		Symbol:   symbol,
		Name:     quote.DisplayName(),
		Kind:     quote.Kind,
		Quantity: req.Quantity,
		Price:    decimal.NewFromFloat(price),
	}
	if err := validateOrder(order, s.baseCurrency); err != nil {
		return Order{}, err
	}
	return order, nil
}

func (s *Service) apply(state portfolio.State, side portfolio.TradeSide, o Order, now time.Time) (portfolio.State, portfolio.Transaction, error) {
	if side == portfolio.SideBuy {
		return ApplyBuy(state, o, s.baseCurrency, now)
	}
	return ApplySell(state, o, s.baseCurrency, now)
}

// loadOrInit loads the user's state, creating the account on first trade
func (s *Service) loadOrInit(ctx context.Context, userID string) (portfolio.State, error) {
	state, err := s.store.LoadState(ctx, userID)
	if !errors.Is(err, portfolio.ErrNotFound) {
		return state, err
	}

	account, created, err := s.store.CreateAccount(ctx, userID, "", s.initialBalance, s.now().UTC())
	if err != nil {
		return portfolio.State{}, err
	}
	if created && s.eventManager != nil {
		s.eventManager.EmitTyped("trading", &events.AccountCreatedData{
			UserID:         userID,
			InitialBalance: account.VirtualBalance.String(),
		})
	}
	return s.store.LoadState(ctx, userID)
}

func (s *Service) persistenceError(op string, req TradeRequest, amount decimal.Decimal, err error) error {
	perr := &PersistenceError{
		Op:       op,
		UserID:   req.UserID,
		Symbol:   domain.NormalizeSymbol(req.Symbol),
		Side:     req.Side,
		Quantity: req.Quantity,
		Amount:   amount,
		Err:      err,
	}
	s.log.Error().Err(err).Str("user_id", req.UserID).Str("op", op).Msg("Trade persistence failed")
	if s.eventManager != nil {
		s.eventManager.EmitError("trading", perr, map[string]interface{}{
			"user_id": req.UserID,
			"symbol":  perr.Symbol,
			"side":    string(req.Side),
		})
	}
	return perr
}

func (s *Service) emitTrade(state portfolio.State, txn portfolio.Transaction) {
	if s.eventManager == nil {
		return
	}
	userID := state.Portfolio.UserID

	s.eventManager.EmitTyped("trading", &events.TradeExecutedData{
		UserID:        userID,
		TransactionID: txn.ID,
		Symbol:        txn.Symbol,
		Side:          string(txn.Type),
		Quantity:      txn.Quantity.String(),
		Price:         txn.Price.String(),
		Commission:    txn.Commission.String(),
		TotalAmount:   txn.TotalAmount.String(),
	})
	s.eventManager.EmitTyped("trading", &events.CashUpdatedData{
		UserID:  userID,
		Balance: state.Balance.String(),
	})
	s.eventManager.EmitTyped("trading", &events.PortfolioChangedData{
		UserID:        userID,
		Version:       state.Portfolio.Version,
		PositionCount: len(state.Portfolio.Assets),
		Balance:       state.Balance.String(),
	})
}
