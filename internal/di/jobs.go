package di

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sanbist/papertrader/internal/clientdata"
	"github.com/sanbist/papertrader/internal/config"
	"github.com/sanbist/papertrader/internal/modules/market"
	"github.com/sanbist/papertrader/internal/reliability"
	"github.com/sanbist/papertrader/internal/scheduler"
)

const (
	cacheCleanupSchedule = "0 0 4 * * *" // 04:00 daily
	maintenanceSchedule  = "0 0 2 * * *" // 02:00 daily
	minFreeDiskBytes     = 500 << 20
	backupTimeout        = 10 * time.Minute
)

// RegisterJobs creates the scheduler and registers every background job.
// The scheduler is not started.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	if container == nil || container.MarketService == nil {
		return nil, fmt.Errorf("services must be initialized before jobs")
	}

	sched := scheduler.New(log)
	container.Scheduler = sched
	instances := &JobInstances{}

	// Market refresh ticks at the open-market cadence; the job itself skips
	// ticks while the market is closed and the snapshot is fresh enough
	instances.MarketRefresh = market.NewRefreshJob(
		container.MarketService,
		container.EventManager,
		container.MarketHoursService.Exchange().Code,
		cfg.FeedTimeout,
		log,
	)
	if err := sched.AddJob("@every "+cfg.RefreshOpenInterval.String(), instances.MarketRefresh); err != nil {
		return nil, err
	}

	instances.CacheCleanup = clientdata.NewCleanupJob(container.SnapshotCache, log)
	if err := sched.AddJob(cacheCleanupSchedule, instances.CacheCleanup); err != nil {
		return nil, err
	}

	instances.Maintenance = reliability.NewMaintenanceJob(container.Databases(), cfg.DataDir, minFreeDiskBytes, log)
	if err := sched.AddJob(maintenanceSchedule, instances.Maintenance); err != nil {
		return nil, err
	}

	if container.BackupService != nil {
		instances.Backup = reliability.NewBackupJob(
			container.BackupService,
			container.EventManager,
			cfg.Backup.Retention,
			backupTimeout,
			log,
		)
		if err := sched.AddJob(cfg.Backup.Schedule, instances.Backup); err != nil {
			return nil, err
		}
	}

	log.Info().Int("jobs", len(instances.All())).Msg("Jobs registered")
	return instances, nil
}
