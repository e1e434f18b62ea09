package events

// EventData is the interface that all event data types must implement
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// userScoped is implemented by event data that belongs to a single user
type userScoped interface {
	Owner() string
}

// AccountCreatedData contains data for AccountCreated events
type AccountCreatedData struct {
	UserID         string `json:"user_id"`
	InitialBalance string `json:"initial_balance"`
}

// EventType returns the event type for AccountCreatedData
func (d *AccountCreatedData) EventType() EventType { return AccountCreated }

// Owner returns the user the event belongs to
func (d *AccountCreatedData) Owner() string { return d.UserID }

// PortfolioChangedData contains data for PortfolioChanged events
type PortfolioChangedData struct {
	UserID        string `json:"user_id"`
	Version       int64  `json:"version"`
	PositionCount int    `json:"position_count"`
	Balance       string `json:"balance"`
}

// EventType returns the event type for PortfolioChangedData
func (d *PortfolioChangedData) EventType() EventType { return PortfolioChanged }

// Owner returns the user the event belongs to
func (d *PortfolioChangedData) Owner() string { return d.UserID }

// PortfolioResetData contains data for PortfolioReset events
type PortfolioResetData struct {
	UserID  string `json:"user_id"`
	Balance string `json:"balance"`
}

// EventType returns the event type for PortfolioResetData
func (d *PortfolioResetData) EventType() EventType { return PortfolioReset }

// Owner returns the user the event belongs to
func (d *PortfolioResetData) Owner() string { return d.UserID }

// TradeExecutedData contains data for TradeExecuted events
type TradeExecutedData struct {
	UserID        string `json:"user_id"`
	TransactionID string `json:"transaction_id"`
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Quantity      string `json:"quantity"`
	Price         string `json:"price"`
	Commission    string `json:"commission"`
	TotalAmount   string `json:"total_amount"`
}

// EventType returns the event type for TradeExecutedData
func (d *TradeExecutedData) EventType() EventType { return TradeExecuted }

// Owner returns the user the event belongs to
func (d *TradeExecutedData) Owner() string { return d.UserID }

// CashUpdatedData contains data for CashUpdated events
type CashUpdatedData struct {
	UserID  string `json:"user_id"`
	Balance string `json:"balance"`
}

// EventType returns the event type for CashUpdatedData
func (d *CashUpdatedData) EventType() EventType { return CashUpdated }

// Owner returns the user the event belongs to
func (d *CashUpdatedData) Owner() string { return d.UserID }

// PriceUpdatedData contains data for PriceUpdated events
type PriceUpdatedData struct {
	Source     string `json:"source"`
	QuoteCount int    `json:"quote_count"`
	Stale      bool   `json:"stale"`
	FetchedAt  string `json:"fetched_at"`
}

// EventType returns the event type for PriceUpdatedData
func (d *PriceUpdatedData) EventType() EventType { return PriceUpdated }

// MarketsStatusChangedData contains data for MarketsStatusChanged events
type MarketsStatusChangedData struct {
	Exchange string `json:"exchange"`
	Open     bool   `json:"open"`
}

// EventType returns the event type for MarketsStatusChangedData
func (d *MarketsStatusChangedData) EventType() EventType { return MarketsStatusChanged }

// BackupCompletedData contains data for BackupCompleted events
type BackupCompletedData struct {
	Key       string `json:"key"`
	SizeBytes int64  `json:"size_bytes"`
}

// EventType returns the event type for BackupCompletedData
func (d *BackupCompletedData) EventType() EventType { return BackupCompleted }

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType { return ErrorOccurred }
