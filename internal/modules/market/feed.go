package market

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sanbist/papertrader/internal/domain"
)

// Feed produces market snapshots
type Feed interface {
	Name() string
	Fetch(ctx context.Context) (Snapshot, error)
}

// maxFeedBody caps how much of a feed response is read
const maxFeedBody = 8 << 20

// HTTPFeed pulls the basket from a JSON endpoint. The endpoint may return a bare
// array of quotes or an envelope {"success", "data", "source", "lastUpdate"}.
type HTTPFeed struct {
	url    string
	client *http.Client
	now    func() time.Time
	log    zerolog.Logger
}

// NewHTTPFeed creates a feed client with a per-request timeout
func NewHTTPFeed(url string, timeout time.Duration, log zerolog.Logger) *HTTPFeed {
	return &HTTPFeed{
		url:    url,
		client: &http.Client{Timeout: timeout},
		now:    time.Now,
		log:    log.With().Str("client", "market_feed").Logger(),
	}
}

// Name identifies the feed in snapshots and cache keys
func (f *HTTPFeed) Name() string {
	return "http"
}

// Fetch downloads and decodes one snapshot
func (f *HTTPFeed) Fetch(ctx context.Context) (Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to build feed request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := f.now()
	resp, err := f.client.Do(req)
	if err != nil {
		return Snapshot{}, fmt.Errorf("feed request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Snapshot{}, fmt.Errorf("feed returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBody))
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read feed response: %w", err)
	}

	snapshot, err := decodeFeed(body, f.now())
	if err != nil {
		return Snapshot{}, err
	}
	if snapshot.Source == "" {
		snapshot.Source = f.Name()
	}

	f.log.Debug().
		Int("quotes", len(snapshot.Quotes)).
		Dur("duration", f.now().Sub(start)).
		Msg("Fetched market snapshot")

	return snapshot, nil
}

type feedEnvelope struct {
	Success *bool       `json:"success"`
	Data    []wireQuote `json:"data"`
	Source  string      `json:"source"`
	Error   string      `json:"error"`
}

type wireQuote struct {
	Symbol        string          `json:"symbol"`
	Name          string          `json:"name"`
	Price         flexFloat       `json:"price"`
	PreviousClose flexFloat       `json:"previousClose"`
	Change        flexFloat       `json:"change"`
	ChangePercent flexFloat       `json:"changePercent"`
	Type          string          `json:"type"`
	Error         json.RawMessage `json:"error"`
	Timestamp     string          `json:"timestamp"`
}

// flexFloat accepts numbers, numeric strings and null. Anything else,
// including NaN and infinities, decodes to nil.
type flexFloat struct {
	v *float64
}

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		f.v = nil
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		f.v = nil
		return nil
	}
	f.v = &v
	return nil
}

func decodeFeed(body []byte, fetchedAt time.Time) (Snapshot, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return Snapshot{}, fmt.Errorf("feed returned an empty body")
	}

	var envelope feedEnvelope
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &envelope.Data); err != nil {
			return Snapshot{}, fmt.Errorf("failed to decode feed array: %w", err)
		}
	} else {
		if err := json.Unmarshal(trimmed, &envelope); err != nil {
			return Snapshot{}, fmt.Errorf("failed to decode feed envelope: %w", err)
		}
		if envelope.Success != nil && !*envelope.Success && len(envelope.Data) == 0 {
			return Snapshot{}, fmt.Errorf("feed reported failure: %s", envelope.Error)
		}
	}

	quotes := make([]Quote, 0, len(envelope.Data))
	seen := make(map[string]bool, len(envelope.Data))
	for _, w := range envelope.Data {
		q := w.toQuote(fetchedAt)
		if q.Symbol == "" || seen[q.Symbol] {
			continue
		}
		seen[q.Symbol] = true
		quotes = append(quotes, q)
	}

	if len(quotes) == 0 {
		return Snapshot{}, fmt.Errorf("feed returned no quotes")
	}

	return Snapshot{
		Quotes:    quotes,
		Source:    envelope.Source,
		FetchedAt: fetchedAt,
	}, nil
}

func (w wireQuote) toQuote(fetchedAt time.Time) Quote {
	q := Quote{
		Symbol:        domain.NormalizeSymbol(w.Symbol),
		Name:          strings.TrimSpace(w.Name),
		Kind:          domain.ParseInstrumentKind(w.Type),
		Price:         w.Price.v,
		PreviousClose: w.PreviousClose.v,
		Error:         decodeQuoteError(w.Error),
		Timestamp:     fetchedAt,
	}

	if ts, err := time.Parse(time.RFC3339, w.Timestamp); err == nil {
		q.Timestamp = ts
	}

	switch {
	case w.Change.v != nil:
		q.Change = *w.Change.v
	case q.Price != nil && q.PreviousClose != nil:
		q.Change = *q.Price - *q.PreviousClose
	}

	switch {
	case w.ChangePercent.v != nil:
		q.ChangePercent = *w.ChangePercent.v
	case q.PreviousClose != nil && *q.PreviousClose != 0:
		q.ChangePercent = q.Change / *q.PreviousClose * 100
	}

	// Finite inputs can still overflow; snapshots must stay JSON encodable
	if math.IsInf(q.Change, 0) || math.IsInf(q.ChangePercent, 0) {
		q.Change, q.ChangePercent = 0, 0
	}

	return q
}

// decodeQuoteError normalises the feed's error field, which may be absent,
// null, a boolean or a message.
func decodeQuoteError(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	switch s {
	case "", "null", "false", `""`:
		return ""
	case "true":
		return "quote unavailable"
	}
	var msg string
	if err := json.Unmarshal(raw, &msg); err == nil {
		return msg
	}
	return s
}
