package testing

import (
	"time"

	"github.com/sanbist/papertrader/internal/domain"
	"github.com/sanbist/papertrader/internal/modules/market"
)

// QuoteFixture describes one instrument in a test snapshot
type QuoteFixture struct {
	Symbol        string
	Kind          domain.InstrumentKind
	Price         float64
	ChangePercent float64
}

// NewSnapshotFixture builds a snapshot from fixtures, stamped at fetchedAt.
// A zero price produces a quote with no price.
func NewSnapshotFixture(fetchedAt time.Time, fixtures ...QuoteFixture) market.Snapshot {
	quotes := make([]market.Quote, 0, len(fixtures))
	for _, f := range fixtures {
		q := market.Quote{
			Symbol:        f.Symbol,
			Name:          f.Symbol + " Corp",
			Kind:          f.Kind,
			ChangePercent: f.ChangePercent,
			Timestamp:     fetchedAt,
		}
		if f.Price != 0 {
			price := f.Price
			q.Price = &price
		}
		quotes = append(quotes, q)
	}
	return market.Snapshot{Quotes: quotes, Source: "fixture", FetchedAt: fetchedAt}
}

// NewDefaultSnapshot returns a small snapshot with tradable and untradable instruments
func NewDefaultSnapshot() market.Snapshot {
	return NewSnapshotFixture(time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC),
		QuoteFixture{Symbol: "X", Kind: domain.KindStock, Price: 100, ChangePercent: 1.5},
		QuoteFixture{Symbol: "THYAO", Kind: domain.KindStock, Price: 132.5, ChangePercent: 2.1},
		QuoteFixture{Symbol: "GARAN", Kind: domain.KindStock, Price: 47.2, ChangePercent: -0.8},
		QuoteFixture{Symbol: "ALTIN", Kind: domain.KindMetalGram, Price: 2450, ChangePercent: 0.5},
		QuoteFixture{Symbol: "USDTRY", Kind: domain.KindCurrency, Price: 32.15, ChangePercent: 0.1},
		QuoteFixture{Symbol: "XAUUSD", Kind: domain.KindMetalOunce, Price: 1950, ChangePercent: 0.4},
		QuoteFixture{Symbol: "EURUSD", Kind: domain.KindCrossCurrency, Price: 1.08},
		QuoteFixture{Symbol: "XU100", Kind: domain.KindIndex, Price: 9050},
		QuoteFixture{Symbol: "DEAD", Kind: domain.KindStock},
	)
}

// StaticSource serves a fixed snapshot
type StaticSource struct {
	Snapshot market.Snapshot
}

// Current returns the fixed snapshot
func (s *StaticSource) Current() market.Snapshot {
	return s.Snapshot
}

// Quote looks symbol up in the fixed snapshot
func (s *StaticSource) Quote(symbol string) (market.Quote, bool) {
	return s.Snapshot.Lookup(symbol)
}
