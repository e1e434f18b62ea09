package market

import (
	"context"
	"math"
	"time"

	"github.com/sanbist/papertrader/internal/domain"
)

type staticInstrument struct {
	symbol        string
	name          string
	kind          domain.InstrumentKind
	price         float64
	changePercent float64
}

// staticBasket is the built-in fallback universe: a slice of BIST 100 names plus
// metals, currencies, cross rates and the index itself.
var staticBasket = []staticInstrument{
	{"THYAO", "Türk Hava Yolları", domain.KindStock, 132.50, 1.25},
	{"GARAN", "Garanti Bankası", domain.KindStock, 47.20, -0.84},
	{"AKBNK", "Akbank", domain.KindStock, 39.85, 0.63},
	{"YKBNK", "Yapı Kredi Bankası", domain.KindStock, 18.45, -1.12},
	{"ISCTR", "İş Bankası", domain.KindStock, 9.80, 0.41},
	{"KCHOL", "Koç Holding", domain.KindStock, 188.40, 2.05},
	{"SAHOL", "Sabancı Holding", domain.KindStock, 94.25, -0.27},
	{"ASELS", "Aselsan", domain.KindStock, 248.90, 2.86},
	{"TCELL", "Turkcell", domain.KindStock, 87.60, -2.10},
	{"FROTO", "Ford Otosan", domain.KindStock, 845.00, 0.95},
	{"TOASO", "Tofaş", domain.KindStock, 245.80, -0.55},
	{"EREGL", "Ereğli Demir Çelik", domain.KindStock, 57.80, 1.70},
	{"SASA", "Sasa", domain.KindStock, 45.20, -2.95},
	{"TUPRS", "Tüpraş", domain.KindStock, 152.75, 0.33},
	{"BIMAS", "Bim Mağazalar", domain.KindStock, 485.30, 1.02},
	{"MGROS", "Migros", domain.KindStock, 420.80, -0.18},
	{"SISE", "Şişe Cam", domain.KindStock, 38.75, 0.77},
	{"ARCLK", "Arçelik", domain.KindStock, 210.45, -1.48},
	{"PETKM", "Petkim", domain.KindStock, 18.90, 0.00},
	{"PGSUS", "Pegasus", domain.KindStock, 245.60, 2.44},
	{"TTKOM", "Türk Telekom", domain.KindStock, 12.45, -0.96},
	{"ALTIN", "Gram Altın", domain.KindMetalGram, 2450.00, 0.52},
	{"GUMUS", "Gram Gümüş", domain.KindMetalGram, 28.50, -0.35},
	{"USDTRY", "ABD Doları", domain.KindCurrency, 32.15, 0.12},
	{"EURTRY", "Euro", domain.KindCurrency, 34.80, -0.08},
	{"GBPTRY", "İngiliz Sterlini", domain.KindCurrency, 40.50, 0.21},
	{"XAUUSD", "Ons Altın", domain.KindMetalOunce, 1950.00, 0.44},
	{"XAGUSD", "Ons Gümüş", domain.KindMetalOunce, 23.20, -0.61},
	{"EURUSD", "Euro / Dolar", domain.KindCrossCurrency, 1.0825, 0.05},
	{"XU100", "BIST 100", domain.KindIndex, 9050.00, 0.88},
}

// StaticFeed serves a fixed, deterministic basket. It backs development setups
// and stands in when the remote feed has never answered.
type StaticFeed struct {
	now func() time.Time
}

// NewStaticFeed creates the built-in feed
func NewStaticFeed() *StaticFeed {
	return &StaticFeed{now: time.Now}
}

// Name identifies the feed in snapshots and cache keys
func (f *StaticFeed) Name() string {
	return "static"
}

// Fetch returns the basket stamped with the current time
func (f *StaticFeed) Fetch(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}

	now := f.now()
	quotes := make([]Quote, 0, len(staticBasket))
	for _, inst := range staticBasket {
		previous := round(inst.price/(1+inst.changePercent/100), 4)
		quotes = append(quotes, Quote{
			Symbol:        inst.symbol,
			Name:          inst.name,
			Kind:          inst.kind,
			Price:         floatPtr(inst.price),
			PreviousClose: floatPtr(previous),
			Change:        round(inst.price-previous, 4),
			ChangePercent: inst.changePercent,
			Timestamp:     now,
		})
	}

	return Snapshot{
		Quotes:    quotes,
		Source:    f.Name(),
		FetchedAt: now,
	}, nil
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
