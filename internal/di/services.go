package di

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sanbist/papertrader/internal/config"
	"github.com/sanbist/papertrader/internal/domain"
	"github.com/sanbist/papertrader/internal/events"
	"github.com/sanbist/papertrader/internal/modules/analytics"
	"github.com/sanbist/papertrader/internal/modules/market"
	"github.com/sanbist/papertrader/internal/modules/market_hours"
	"github.com/sanbist/papertrader/internal/modules/portfolio"
	"github.com/sanbist/papertrader/internal/modules/trading"
	"github.com/sanbist/papertrader/internal/reliability"
	"github.com/shopspring/decimal"
)

// InitializeServices creates the business logic layer
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil || container.PortfolioRepo == nil {
		return fmt.Errorf("repositories must be initialized before services")
	}

	// Events
	container.EventBus = events.NewBus(log)
	container.EventManager = events.NewManager(container.EventBus, log)

	loc := cfg.Location()
	baseCurrency := domain.Currency(cfg.BaseCurrency)
	initialBalance := decimal.NewFromFloat(cfg.InitialBalance)

	// Market hours
	container.MarketHoursService = market_hours.NewMarketHoursService(
		market_hours.BISTConfig(loc, cfg.MarketClosedDates),
	)

	// Market data: remote feed with the static basket as fallback, or the
	// static basket alone when no feed is configured
	var feed, fallback market.Feed
	if cfg.MarketFeedURL != "" {
		feed = market.NewHTTPFeed(cfg.MarketFeedURL, cfg.FeedTimeout, log)
		fallback = market.NewStaticFeed()
	} else {
		log.Warn().Msg("MARKET_FEED_URL not set, serving the built-in static basket")
		feed = market.NewStaticFeed()
	}
	container.MarketService = market.NewService(
		feed,
		fallback,
		container.SnapshotCache,
		container.MarketHoursService,
		container.EventManager,
		cfg.RefreshClosedInterval,
		log,
	)
	if err := container.MarketService.Warm(); err != nil {
		log.Warn().Err(err).Msg("No cached market snapshot to warm from")
	}

	// Accounts and trading
	container.PortfolioService = portfolio.NewService(
		container.PortfolioRepo,
		container.MarketService,
		container.EventManager,
		initialBalance,
		log,
	)
	container.TradingService = trading.NewService(
		container.PortfolioRepo,
		container.MarketService,
		container.EventManager,
		baseCurrency,
		initialBalance,
		log,
	)
	container.AnalyticsService = analytics.NewService(
		container.PortfolioService,
		container.MarketService,
		baseCurrency,
		initialBalance,
		loc,
		log,
	)

	// Backups
	if cfg.Backup.Enabled() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		client, err := reliability.NewS3Client(ctx, reliability.S3Config{
			Bucket:    cfg.Backup.Bucket,
			Endpoint:  cfg.Backup.Endpoint,
			Region:    cfg.Backup.Region,
			AccessKey: cfg.Backup.AccessKey,
			SecretKey: cfg.Backup.SecretKey,
		}, log)
		if err != nil {
			return fmt.Errorf("failed to create backup client: %w", err)
		}
		container.BackupService = reliability.NewBackupService(
			client,
			container.Databases(),
			cfg.Backup.Prefix,
			cfg.DataDir,
			log,
		)
	}

	log.Info().
		Str("base_currency", string(baseCurrency)).
		Str("initial_balance", initialBalance.String()).
		Bool("backups", container.BackupService != nil).
		Msg("Services initialized")
	return nil
}
