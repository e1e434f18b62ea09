// Package market owns the price feed: fetching snapshots, caching the latest one,
// and deciding when to refresh it.
package market

import (
	"math"
	"time"

	"github.com/sanbist/papertrader/internal/domain"
)

// Quote is one instrument's price at snapshot time
type Quote struct {
	Symbol        string                `json:"symbol"`
	Name          string                `json:"name"`
	Kind          domain.InstrumentKind `json:"kind"`
	Price         *float64              `json:"price"`
	PreviousClose *float64              `json:"previous_close,omitempty"`
	Change        float64               `json:"change"`
	ChangePercent float64               `json:"change_percent"`
	Timestamp     time.Time             `json:"timestamp"`
	Error         string                `json:"error,omitempty"`
}

// LivePrice returns the price if it is usable for trading and valuation.
// Quotes carrying an error, or a missing, non-finite or non-positive price have none.
func (q Quote) LivePrice() (float64, bool) {
	if q.Error != "" || q.Price == nil {
		return 0, false
	}
	p := *q.Price
	if math.IsNaN(p) || math.IsInf(p, 0) || p <= 0 {
		return 0, false
	}
	return p, true
}

// DisplayName falls back to the symbol when the feed has no name
func (q Quote) DisplayName() string {
	if q.Name != "" {
		return q.Name
	}
	return q.Symbol
}

// Snapshot is the full basket returned by one feed fetch. Snapshots are
// never mutated after construction.
type Snapshot struct {
	Quotes    []Quote   `json:"quotes"`
	Source    string    `json:"source"`
	FetchedAt time.Time `json:"fetched_at"`
	Stale     bool      `json:"stale"` // The last refresh failed and this is the previous snapshot
}

// Lookup finds a quote by symbol (case-insensitive)
func (s Snapshot) Lookup(symbol string) (Quote, bool) {
	symbol = domain.NormalizeSymbol(symbol)
	for _, q := range s.Quotes {
		if q.Symbol == symbol {
			return q, true
		}
	}
	return Quote{}, false
}

// PriceOf returns the live price for symbol, if any
func (s Snapshot) PriceOf(symbol string) (float64, bool) {
	q, ok := s.Lookup(symbol)
	if !ok {
		return 0, false
	}
	return q.LivePrice()
}

// IsEmpty reports whether no fetch has produced quotes yet
func (s Snapshot) IsEmpty() bool {
	return len(s.Quotes) == 0
}

// Age is the time since the snapshot was fetched
func (s Snapshot) Age(now time.Time) time.Duration {
	if s.FetchedAt.IsZero() {
		return time.Duration(math.MaxInt64)
	}
	return now.Sub(s.FetchedAt)
}

// Filter returns the quotes matching kind (all when kind is empty)
func (s Snapshot) Filter(kind domain.InstrumentKind) []Quote {
	if kind == "" {
		return s.Quotes
	}
	out := make([]Quote, 0, len(s.Quotes))
	for _, q := range s.Quotes {
		if q.Kind == kind {
			out = append(out, q)
		}
	}
	return out
}

func floatPtr(v float64) *float64 {
	return &v
}
