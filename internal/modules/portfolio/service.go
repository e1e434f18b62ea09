package portfolio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sanbist/papertrader/internal/events"
	"github.com/sanbist/papertrader/internal/modules/market"
	"github.com/shopspring/decimal"
)

// SnapshotSource provides the most recently cached market snapshot
type SnapshotSource interface {
	Current() market.Snapshot
}

// StateChange notifies a watcher that the user's state moved on.
// Watchers re-read state with GetCurrentState.
type StateChange struct {
	Type      events.EventType `json:"type"`
	UserID    string           `json:"user_id"`
	Timestamp time.Time        `json:"timestamp"`
}

// Service is the read side of a user's account: state, valuation, history and reset.
// Trades are executed by the trading module.
type Service struct {
	repo           *Repository
	prices         SnapshotSource
	eventManager   *events.Manager
	initialBalance decimal.Decimal
	now            func() time.Time
	log            zerolog.Logger
}

// NewService creates a new portfolio service
func NewService(
	repo *Repository,
	prices SnapshotSource,
	eventManager *events.Manager,
	initialBalance decimal.Decimal,
	log zerolog.Logger,
) *Service {
	return &Service{
		repo:           repo,
		prices:         prices,
		eventManager:   eventManager,
		initialBalance: initialBalance,
		now:            time.Now,
		log:            log.With().Str("service", "portfolio").Logger(),
	}
}

// InitialBalance is the stake given to new and reset accounts
func (s *Service) InitialBalance() decimal.Decimal {
	return s.initialBalance
}

// Register creates the account if it does not exist yet
func (s *Service) Register(ctx context.Context, userID, displayName string) (Account, bool, error) {
	account, created, err := s.repo.CreateAccount(ctx, userID, displayName, s.initialBalance, s.now().UTC())
	if err != nil {
		return Account{}, false, fmt.Errorf("failed to register %s: %w", userID, err)
	}
	if created && s.eventManager != nil {
		s.eventManager.EmitTyped("portfolio", &events.AccountCreatedData{
			UserID:         userID,
			InitialBalance: account.VirtualBalance.String(),
		})
	}
	return account, created, nil
}

// GetAccount returns the user's account. Users that never registered or
// traded get ErrNotFound.
func (s *Service) GetAccount(ctx context.Context, userID string) (Account, error) {
	return s.repo.ReadAccount(ctx, userID)
}

// GetCurrentState returns portfolio and balance. Read paths never create
// accounts: users that have never been seen get an unsaved empty portfolio
// with the initial balance. The account is written on registration, the
// first trade or a reset.
func (s *Service) GetCurrentState(ctx context.Context, userID string) (State, error) {
	state, err := s.repo.LoadState(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return FreshState(userID, s.initialBalance, s.now().UTC()), nil
	}
	if err != nil {
		return State{}, fmt.Errorf("failed to load state for %s: %w", userID, err)
	}
	return state, nil
}

// ValuedState is the user's state priced against the cached market snapshot
type ValuedState struct {
	State     State     `json:"state"`
	Valuation Valuation `json:"valuation"`
}

// GetValuation prices the user's positions against the cached snapshot
func (s *Service) GetValuation(ctx context.Context, userID string) (ValuedState, error) {
	state, err := s.GetCurrentState(ctx, userID)
	if err != nil {
		return ValuedState{}, err
	}

	var snap market.Snapshot
	if s.prices != nil {
		snap = s.prices.Current()
	}
	return ValuedState{State: state, Valuation: Valuate(state.Portfolio, snap)}, nil
}

// ListTransactions returns up to limit transactions, newest first
func (s *Service) ListTransactions(ctx context.Context, userID string, limit int) ([]Transaction, error) {
	txns, err := s.repo.ListTransactions(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions for %s: %w", userID, err)
	}
	return txns, nil
}

// Reset clears all positions and history and restores the initial balance
func (s *Service) Reset(ctx context.Context, userID string) (State, error) {
	state, err := s.repo.Reset(ctx, userID, s.initialBalance, s.now().UTC())
	if err != nil {
		return State{}, fmt.Errorf("failed to reset portfolio for %s: %w", userID, err)
	}

	if s.eventManager != nil {
		s.eventManager.EmitTyped("portfolio", &events.PortfolioResetData{
			UserID:  userID,
			Balance: state.Balance.String(),
		})
		s.eventManager.EmitTyped("portfolio", &events.PortfolioChangedData{
			UserID:        userID,
			Version:       state.Portfolio.Version,
			PositionCount: 0,
			Balance:       state.Balance.String(),
		})
	}
	return state, nil
}

// watchedEvents are the events that change a user's state
var watchedEvents = []events.EventType{
	events.PortfolioChanged,
	events.PortfolioReset,
	events.AccountCreated,
}

// Watch returns a channel that receives a StateChange whenever the user's
// state changes, and a function that stops the subscription. Slow readers
// miss notifications rather than blocking writers.
func (s *Service) Watch(userID string) (<-chan StateChange, func()) {
	ch := make(chan StateChange, 16)
	if s.eventManager == nil {
		close(ch)
		return ch, func() {}
	}

	bus := s.eventManager.Bus()
	var (
		mu     sync.Mutex
		closed bool
		ids    []events.SubscriptionID
	)

	handler := func(e *events.Event) {
		if e.UserID != userID {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- StateChange{Type: e.Type, UserID: userID, Timestamp: e.Timestamp}:
		default:
			s.log.Debug().Str("user_id", userID).Msg("Watcher is behind, dropping notification")
		}
	}

	for _, t := range watchedEvents {
		ids = append(ids, bus.Subscribe(t, handler))
	}

	var once sync.Once
	stop := func() {
		once.Do(func() {
			for _, id := range ids {
				bus.Unsubscribe(id)
			}
			mu.Lock()
			closed = true
			close(ch)
			mu.Unlock()
		})
	}
	return ch, stop
}
