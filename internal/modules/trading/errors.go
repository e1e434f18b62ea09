package trading

import (
	"errors"
	"fmt"

	"github.com/sanbist/papertrader/internal/modules/portfolio"
	"github.com/shopspring/decimal"
)

// InvalidRequestError rejects a malformed order or an untradable instrument.
// It is raised before any state is read.
type InvalidRequestError struct {
	Symbol string
	Reason string
}

func (e *InvalidRequestError) Error() string {
	if e.Symbol == "" {
		return "invalid trade request: " + e.Reason
	}
	return fmt.Sprintf("invalid trade request for %s: %s", e.Symbol, e.Reason)
}

// InsufficientFundsError rejects a buy whose total cost exceeds the balance
type InsufficientFundsError struct {
	Symbol     string
	Required   decimal.Decimal
	Available  decimal.Decimal
	BaseCost   decimal.Decimal
	Commission decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds for %s: required %s (cost %s + commission %s), available %s",
		e.Symbol, e.Required.StringFixed(2), e.BaseCost.StringFixed(2), e.Commission.StringFixed(2), e.Available.StringFixed(2))
}

// InsufficientHoldingsError rejects a sell of more units than are owned
type InsufficientHoldingsError struct {
	Symbol    string
	Owned     decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientHoldingsError) Error() string {
	return fmt.Sprintf("insufficient holdings of %s: owned %s, requested %s",
		e.Symbol, e.Owned.String(), e.Requested.String())
}

// PersistenceError reports a failed read or write of the user's state.
// Nothing was committed; the caller may re-read state and retry.
type PersistenceError struct {
	Op       string
	UserID   string
	Symbol   string
	Side     portfolio.TradeSide
	Quantity decimal.Decimal
	Amount   decimal.Decimal
	Err      error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to %s for user %s (%s %s %s, amount %s): %v",
		e.Op, e.UserID, e.Side, e.Quantity.String(), e.Symbol, e.Amount.StringFixed(2), e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Retryable is always true: a failed commit leaves the stored state unchanged
func (e *PersistenceError) Retryable() bool {
	return true
}

// IsRetryable reports whether err is worth retrying after re-reading state
func IsRetryable(err error) bool {
	var r interface{ Retryable() bool }
	return errors.As(err, &r) && r.Retryable()
}

// IsConflict reports whether err came from a concurrent modification
func IsConflict(err error) bool {
	return errors.Is(err, portfolio.ErrVersionConflict)
}
