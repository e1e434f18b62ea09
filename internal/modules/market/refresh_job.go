package market

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sanbist/papertrader/internal/events"
)

// RefreshJob is the scheduled tick that keeps the snapshot current and
// announces market open/close transitions.
type RefreshJob struct {
	service      *Service
	eventManager *events.Manager
	exchange     string
	timeout      time.Duration
	now          func() time.Time
	log          zerolog.Logger

	mu       sync.Mutex
	lastOpen *bool
}

// NewRefreshJob creates the refresh job
func NewRefreshJob(service *Service, eventManager *events.Manager, exchange string, timeout time.Duration, log zerolog.Logger) *RefreshJob {
	return &RefreshJob{
		service:      service,
		eventManager: eventManager,
		exchange:     exchange,
		timeout:      timeout,
		now:          time.Now,
		log:          log.With().Str("job", "market_refresh").Logger(),
	}
}

// Name returns the job name for scheduling and logging
func (j *RefreshJob) Name() string {
	return "market_refresh"
}

// Run fetches a new snapshot when the cadence calls for one
func (j *RefreshJob) Run() error {
	now := j.now()
	j.trackSession(j.service.IsMarketOpen(now))

	if !j.service.NeedsRefresh(now) {
		j.log.Debug().Msg("Market closed and snapshot recent, skipping refresh")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	_, err := j.service.Refresh(ctx)
	return err
}

func (j *RefreshJob) trackSession(open bool) {
	j.mu.Lock()
	changed := j.lastOpen == nil || *j.lastOpen != open
	j.lastOpen = &open
	j.mu.Unlock()

	if !changed {
		return
	}

	j.log.Info().Bool("open", open).Str("exchange", j.exchange).Msg("Market session state")
	if j.eventManager != nil {
		j.eventManager.EmitTyped("market", &events.MarketsStatusChangedData{
			Exchange: j.exchange,
			Open:     open,
		})
	}
}
