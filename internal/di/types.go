// Package di wires databases, repositories, services and jobs into one container.
package di

import (
	"errors"

	"github.com/sanbist/papertrader/internal/clientdata"
	"github.com/sanbist/papertrader/internal/database"
	"github.com/sanbist/papertrader/internal/events"
	"github.com/sanbist/papertrader/internal/modules/analytics"
	"github.com/sanbist/papertrader/internal/modules/market"
	"github.com/sanbist/papertrader/internal/modules/market_hours"
	"github.com/sanbist/papertrader/internal/modules/portfolio"
	"github.com/sanbist/papertrader/internal/modules/trading"
	"github.com/sanbist/papertrader/internal/reliability"
	"github.com/sanbist/papertrader/internal/scheduler"
)

// Container holds all dependencies for the application.
// It is created by Wire and handed to the server, which reads services from it.
type Container struct {
	// Databases
	PortfolioDB *database.DB // accounts, portfolios, transactions (ledger profile)
	CacheDB     *database.DB // last market snapshot (cache profile)

	// Events
	EventBus     *events.Bus
	EventManager *events.Manager

	// Repositories
	PortfolioRepo *portfolio.Repository
	SnapshotCache *clientdata.Repository

	// Services
	MarketHoursService *market_hours.MarketHoursService
	MarketService      *market.Service
	PortfolioService   *portfolio.Service
	TradingService     *trading.Service
	AnalyticsService   *analytics.Service
	BackupService      *reliability.BackupService // nil when no bucket is configured

	Scheduler *scheduler.Scheduler
}

// Databases returns every open database keyed by name
func (c *Container) Databases() map[string]*database.DB {
	dbs := make(map[string]*database.DB, 2)
	if c.PortfolioDB != nil {
		dbs[c.PortfolioDB.Name()] = c.PortfolioDB
	}
	if c.CacheDB != nil {
		dbs[c.CacheDB.Name()] = c.CacheDB
	}
	return dbs
}

// Close closes every database. It is safe to call on a partially built container.
func (c *Container) Close() error {
	var errs []error
	for _, db := range []*database.DB{c.PortfolioDB, c.CacheDB} {
		if db != nil {
			if err := db.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// JobInstances holds the scheduled jobs so they can also be run on demand
type JobInstances struct {
	MarketRefresh *market.RefreshJob
	CacheCleanup  *clientdata.CleanupJob
	Maintenance   *reliability.MaintenanceJob
	Backup        *reliability.BackupJob // nil when backups are disabled
}

// All returns the registered jobs
func (j *JobInstances) All() []scheduler.Job {
	jobs := []scheduler.Job{j.MarketRefresh, j.CacheCleanup, j.Maintenance}
	if j.Backup != nil {
		jobs = append(jobs, j.Backup)
	}
	return jobs
}
