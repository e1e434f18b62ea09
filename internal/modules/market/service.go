package market

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sanbist/papertrader/internal/events"
)

// SnapshotStore persists the last snapshot across restarts
type SnapshotStore interface {
	Save(feed string, snapshot interface{}, quoteCount int) error
	Load(feed string) (json.RawMessage, error)
}

// MarketClock reports whether the exchange is in session
type MarketClock interface {
	IsMarketOpen(t time.Time) bool
}

// FeedStatus summarises the state of the price feed
type FeedStatus struct {
	Source      string    `json:"source"`
	QuoteCount  int       `json:"quote_count"`
	FetchedAt   time.Time `json:"fetched_at"`
	AgeSeconds  float64   `json:"age_seconds"`
	Stale       bool      `json:"stale"`
	MarketOpen  bool      `json:"market_open"`
	LastError   string    `json:"last_error,omitempty"`
	LastAttempt time.Time `json:"last_attempt"`
}

// Service caches the latest market snapshot. Readers never trigger a fetch;
// refreshes come from the scheduler or an explicit refresh call.
type Service struct {
	feed           Feed
	fallback       Feed
	store          SnapshotStore
	clock          MarketClock
	eventManager   *events.Manager
	closedInterval time.Duration
	now            func() time.Time
	log            zerolog.Logger

	refreshMu sync.Mutex // one fetch at a time

	mu          sync.RWMutex
	snapshot    Snapshot
	lastError   string
	lastAttempt time.Time
}

// NewService creates the market data service. fallback and store may be nil.
func NewService(
	feed Feed,
	fallback Feed,
	store SnapshotStore,
	clock MarketClock,
	eventManager *events.Manager,
	closedInterval time.Duration,
	log zerolog.Logger,
) *Service {
	return &Service{
		feed:           feed,
		fallback:       fallback,
		store:          store,
		clock:          clock,
		eventManager:   eventManager,
		closedInterval: closedInterval,
		now:            time.Now,
		log:            log.With().Str("service", "market").Logger(),
	}
}

// Current returns the most recently cached snapshot (possibly empty)
func (s *Service) Current() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// Quote looks a symbol up in the cached snapshot
func (s *Service) Quote(symbol string) (Quote, bool) {
	return s.Current().Lookup(symbol)
}

// IsMarketOpen reports whether the exchange is in session at t
func (s *Service) IsMarketOpen(t time.Time) bool {
	if s.clock == nil {
		return true
	}
	return s.clock.IsMarketOpen(t)
}

// NeedsRefresh decides whether a scheduled tick should fetch. While the market
// is open every tick fetches; while closed only a snapshot older than the
// closed interval is replaced.
func (s *Service) NeedsRefresh(now time.Time) bool {
	snap := s.Current()
	if snap.IsEmpty() || snap.Stale {
		return true
	}
	if s.IsMarketOpen(now) {
		return true
	}
	return snap.Age(now) >= s.closedInterval
}

// Warm seeds the cache from the persisted snapshot, if any
func (s *Service) Warm() error {
	if s.store == nil {
		return nil
	}

	raw, err := s.store.Load(s.feed.Name())
	if err != nil {
		return fmt.Errorf("failed to load cached snapshot: %w", err)
	}
	if raw == nil {
		return nil
	}

	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return fmt.Errorf("failed to decode cached snapshot: %w", err)
	}

	s.mu.Lock()
	if s.snapshot.IsEmpty() {
		s.snapshot = snap
	}
	s.mu.Unlock()

	s.log.Info().
		Int("quotes", len(snap.Quotes)).
		Time("fetched_at", snap.FetchedAt).
		Msg("Warmed market snapshot from cache")
	return nil
}

// Refresh fetches a new snapshot. On failure the previous snapshot is kept and
// flagged stale; with no previous snapshot the fallback feed is used.
func (s *Service) Refresh(ctx context.Context) (Snapshot, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	now := s.now()
	snap, err := s.feed.Fetch(ctx)

	s.mu.Lock()
	s.lastAttempt = now
	if err != nil {
		s.lastError = err.Error()
	} else {
		s.lastError = ""
	}
	s.mu.Unlock()

	if err != nil {
		return s.handleFailure(ctx, err)
	}

	s.install(snap)
	return snap, nil
}

func (s *Service) handleFailure(ctx context.Context, fetchErr error) (Snapshot, error) {
	s.log.Warn().Err(fetchErr).Str("feed", s.feed.Name()).Msg("Market feed refresh failed")
	if s.eventManager != nil {
		s.eventManager.EmitError("market", fetchErr, map[string]interface{}{"feed": s.feed.Name()})
	}

	current := s.Current()
	if current.IsEmpty() && s.fallback != nil {
		snap, err := s.fallback.Fetch(ctx)
		if err == nil {
			snap.Stale = true
			s.install(snap)
			return snap, fmt.Errorf("market feed unavailable, serving %s basket: %w", s.fallback.Name(), fetchErr)
		}
		s.log.Error().Err(err).Msg("Fallback feed failed")
	}

	if !current.IsEmpty() && !current.Stale {
		current.Stale = true
		s.mu.Lock()
		s.snapshot = current
		s.mu.Unlock()
	}

	return current, fmt.Errorf("market feed unavailable: %w", fetchErr)
}

func (s *Service) install(snap Snapshot) {
	s.mu.Lock()
	s.snapshot = snap
	s.mu.Unlock()

	if s.store != nil && !snap.Stale {
		if err := s.store.Save(s.feed.Name(), snap, len(snap.Quotes)); err != nil {
			s.log.Warn().Err(err).Msg("Failed to persist market snapshot")
		}
	}

	if s.eventManager != nil {
		s.eventManager.EmitTyped("market", &events.PriceUpdatedData{
			Source:     snap.Source,
			QuoteCount: len(snap.Quotes),
			Stale:      snap.Stale,
			FetchedAt:  snap.FetchedAt.Format(time.RFC3339),
		})
	}

	s.log.Info().
		Str("source", snap.Source).
		Int("quotes", len(snap.Quotes)).
		Bool("stale", snap.Stale).
		Msg("Market snapshot updated")
}

// Status reports feed health for the API
func (s *Service) Status() FeedStatus {
	now := s.now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	status := FeedStatus{
		Source:      s.snapshot.Source,
		QuoteCount:  len(s.snapshot.Quotes),
		FetchedAt:   s.snapshot.FetchedAt,
		Stale:       s.snapshot.Stale,
		MarketOpen:  s.IsMarketOpen(now),
		LastError:   s.lastError,
		LastAttempt: s.lastAttempt,
	}
	if !s.snapshot.FetchedAt.IsZero() {
		status.AgeSeconds = now.Sub(s.snapshot.FetchedAt).Seconds()
	}
	return status
}
