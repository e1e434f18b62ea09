// Package events provides event management functionality.
package events

import (
	"encoding/json"
	"time"
)

// EventType represents different event types
type EventType string

const (
	// Account and portfolio lifecycle
	AccountCreated   EventType = "ACCOUNT_CREATED"
	PortfolioChanged EventType = "PORTFOLIO_CHANGED"
	PortfolioReset   EventType = "PORTFOLIO_RESET"
	TradeExecuted    EventType = "TRADE_EXECUTED"
	CashUpdated      EventType = "CASH_UPDATED"

	// Market data
	PriceUpdated         EventType = "PRICE_UPDATED"
	MarketsStatusChanged EventType = "MARKETS_STATUS_CHANGED"

	// Operations
	BackupCompleted EventType = "BACKUP_COMPLETED"
	ErrorOccurred   EventType = "ERROR_OCCURRED"
)

// AllEventTypes lists every event type a subscriber can ask for
var AllEventTypes = []EventType{
	AccountCreated,
	PortfolioChanged,
	PortfolioReset,
	TradeExecuted,
	CashUpdated,
	PriceUpdated,
	MarketsStatusChanged,
	BackupCompleted,
	ErrorOccurred,
}

// Event represents a system event.
// UserID is empty for events that concern every user (prices, market status).
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Module    string                 `json:"module"`
	UserID    string                 `json:"user_id,omitempty"`
}

// VisibleTo reports whether the event should be delivered to the given user
func (e *Event) VisibleTo(userID string) bool {
	return e.UserID == "" || e.UserID == userID
}

// GetTypedData converts the Data map back to its typed form, or nil if unknown
func (e *Event) GetTypedData() EventData {
	if e.Data == nil {
		return nil
	}

	var target EventData
	switch e.Type {
	case AccountCreated:
		target = &AccountCreatedData{}
	case PortfolioChanged:
		target = &PortfolioChangedData{}
	case PortfolioReset:
		target = &PortfolioResetData{}
	case TradeExecuted:
		target = &TradeExecutedData{}
	case CashUpdated:
		target = &CashUpdatedData{}
	case PriceUpdated:
		target = &PriceUpdatedData{}
	case MarketsStatusChanged:
		target = &MarketsStatusChangedData{}
	case BackupCompleted:
		target = &BackupCompletedData{}
	case ErrorOccurred:
		target = &ErrorEventData{}
	default:
		return nil
	}

	if err := convertMapToStruct(e.Data, target); err != nil {
		return nil
	}
	return target
}

func convertMapToStruct(m map[string]interface{}, v interface{}) error {
	jsonBytes, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(jsonBytes, v)
}

func convertEventDataToMap(data EventData) map[string]interface{} {
	if data == nil {
		return nil
	}

	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return nil
	}

	var result map[string]interface{}
	if err := json.Unmarshal(jsonBytes, &result); err != nil {
		return nil
	}
	return result
}
