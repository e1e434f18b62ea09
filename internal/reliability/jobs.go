package reliability

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/sanbist/papertrader/internal/database"
	"github.com/sanbist/papertrader/internal/events"
	"github.com/shirou/gopsutil/v3/disk"
)

// BackupJob uploads a backup and rotates old ones
type BackupJob struct {
	service      *BackupService
	eventManager *events.Manager
	retention    int
	timeout      time.Duration
	log          zerolog.Logger
}

// NewBackupJob creates a new backup job keeping retention archives
func NewBackupJob(service *BackupService, eventManager *events.Manager, retention int, timeout time.Duration, log zerolog.Logger) *BackupJob {
	return &BackupJob{
		service:      service,
		eventManager: eventManager,
		retention:    retention,
		timeout:      timeout,
		log:          log.With().Str("job", "ledger_backup").Logger(),
	}
}

// Name returns the job name for scheduler
func (j *BackupJob) Name() string {
	return "ledger_backup"
}

// Run executes the backup job. A failed rotation is logged but does not fail the job.
func (j *BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	info, err := j.service.CreateAndUpload(ctx)
	if err != nil {
		if j.eventManager != nil {
			j.eventManager.EmitError("reliability", err, map[string]interface{}{"job": j.Name()})
		}
		return err
	}

	if j.eventManager != nil {
		j.eventManager.EmitTyped("reliability", &events.BackupCompletedData{
			Key:       info.Key,
			SizeBytes: info.SizeBytes,
		})
	}

	if _, err := j.service.Rotate(ctx, j.retention); err != nil {
		j.log.Warn().Err(err).Msg("Backup rotation failed")
	}
	return nil
}

// MaintenanceJob checks database integrity, truncates WAL files and watches free disk space
type MaintenanceJob struct {
	databases    map[string]*database.DB
	dataDir      string
	minFreeBytes uint64
	log          zerolog.Logger
}

// NewMaintenanceJob creates a new maintenance job. The job fails when less
// than minFreeBytes remain on the data volume.
func NewMaintenanceJob(databases map[string]*database.DB, dataDir string, minFreeBytes uint64, log zerolog.Logger) *MaintenanceJob {
	return &MaintenanceJob{
		databases:    databases,
		dataDir:      dataDir,
		minFreeBytes: minFreeBytes,
		log:          log.With().Str("job", "maintenance").Logger(),
	}
}

// Name returns the job name for scheduler
func (j *MaintenanceJob) Name() string {
	return "maintenance"
}

// Run executes the maintenance job
func (j *MaintenanceJob) Run() error {
	j.log.Info().Msg("Starting maintenance")
	start := time.Now()

	names := make([]string, 0, len(j.databases))
	for name := range j.databases {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		db := j.databases[name]

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		err := db.HealthCheck(ctx)
		cancel()
		if err != nil {
			j.log.Error().Err(err).Str("database", name).Msg("Integrity check failed")
			return fmt.Errorf("maintenance halted: %w", err)
		}

		// Checkpoint failures only cost disk space
		if err := db.WALCheckpoint("TRUNCATE"); err != nil {
			j.log.Warn().Err(err).Str("database", name).Msg("WAL checkpoint failed")
		}
	}

	if err := j.checkDiskSpace(); err != nil {
		return err
	}

	j.log.Info().
		Dur("duration_ms", time.Since(start)).
		Int("databases", len(names)).
		Msg("Maintenance completed")
	return nil
}

func (j *MaintenanceJob) checkDiskSpace() error {
	usage, err := disk.Usage(j.dataDir)
	if err != nil {
		return fmt.Errorf("failed to read disk usage for %s: %w", j.dataDir, err)
	}

	j.log.Debug().
		Uint64("free_bytes", usage.Free).
		Float64("used_percent", usage.UsedPercent).
		Msg("Disk space check")

	if usage.Free < j.minFreeBytes {
		j.log.Error().Uint64("free_bytes", usage.Free).Msg("Insufficient disk space")
		return fmt.Errorf("only %d bytes free on %s, need %d", usage.Free, j.dataDir, j.minFreeBytes)
	}
	if usage.Free < 2*j.minFreeBytes {
		j.log.Warn().Uint64("free_bytes", usage.Free).Msg("Disk space running low")
	}
	return nil
}
