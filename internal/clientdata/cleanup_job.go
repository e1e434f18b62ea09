package clientdata

import (
	"github.com/rs/zerolog"
)

// CleanupJob purges expired snapshots from the cache database
type CleanupJob struct {
	repo *Repository
	log  zerolog.Logger
}

// NewCleanupJob creates the snapshot cache cleanup job
func NewCleanupJob(repo *Repository, log zerolog.Logger) *CleanupJob {
	return &CleanupJob{
		repo: repo,
		log:  log.With().Str("job", "snapshot_cache_cleanup").Logger(),
	}
}

// Name returns the job name for scheduling and logging
func (j *CleanupJob) Name() string {
	return "snapshot_cache_cleanup"
}

// Run purges expired snapshots and logs what is left
func (j *CleanupJob) Run() error {
	purged, err := j.repo.Purge()
	if err != nil {
		return err
	}

	remaining, err := j.repo.List()
	if err != nil {
		return err
	}

	if purged > 0 {
		j.log.Info().Int64("purged", purged).Int("remaining", len(remaining)).Msg("Purged expired market snapshots")
	}
	if len(remaining) == 0 {
		// Nothing left to warm from after a restart
		j.log.Warn().Msg("Snapshot cache is empty")
	}
	return nil
}
