package di

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanbist/papertrader/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DataDir:               t.TempDir(),
		Port:                  8001,
		MarketTimezone:        "Europe/Istanbul",
		BaseCurrency:          "TRY",
		InitialBalance:        100000,
		RefreshOpenInterval:   15 * time.Minute,
		RefreshClosedInterval: time.Hour,
		FeedTimeout:           5 * time.Second,
		Backup:                &config.BackupConfig{},
	}
}

func TestWire(t *testing.T) {
	cfg := testConfig(t)

	container, jobs, err := Wire(cfg, zerolog.Nop())
	require.NoError(t, err)
	defer container.Close()

	assert.NotNil(t, container.PortfolioDB)
	assert.NotNil(t, container.CacheDB)
	assert.NotNil(t, container.EventManager)
	assert.NotNil(t, container.PortfolioRepo)
	assert.NotNil(t, container.SnapshotCache)
	assert.NotNil(t, container.MarketService)
	assert.NotNil(t, container.PortfolioService)
	assert.NotNil(t, container.TradingService)
	assert.NotNil(t, container.AnalyticsService)
	assert.Nil(t, container.BackupService, "no bucket configured")

	assert.FileExists(t, filepath.Join(cfg.DataDir, "portfolio.db"))
	assert.FileExists(t, filepath.Join(cfg.DataDir, "cache.db"))

	assert.Nil(t, jobs.Backup)
	assert.Len(t, jobs.All(), 3)

	names := []string{}
	for _, s := range container.Scheduler.Status() {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"maintenance", "market_refresh", "snapshot_cache_cleanup"}, names)

	assert.Len(t, container.Databases(), 2)
}

func TestWire_BackupsEnabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Backup = &config.BackupConfig{
		Bucket:    "ledgers",
		Endpoint:  "http://127.0.0.1:9",
		Region:    "auto",
		AccessKey: "key",
		SecretKey: "secret",
		Prefix:    "papertrader",
		Schedule:  "0 30 3 * * *",
		Retention: 7,
	}

	container, jobs, err := Wire(cfg, zerolog.Nop())
	require.NoError(t, err)
	defer container.Close()

	assert.NotNil(t, container.BackupService)
	require.NotNil(t, jobs.Backup)
	assert.Len(t, jobs.All(), 4)
}

func TestWire_BadBackupSchedule(t *testing.T) {
	cfg := testConfig(t)
	cfg.Backup = &config.BackupConfig{
		Bucket:    "ledgers",
		Endpoint:  "http://127.0.0.1:9",
		AccessKey: "key",
		SecretKey: "secret",
		Schedule:  "whenever",
	}

	_, _, err := Wire(cfg, zerolog.Nop())
	assert.Error(t, err)
}

func TestWire_UnwritableDataDir(t *testing.T) {
	cfg := testConfig(t)
	blocker := filepath.Join(cfg.DataDir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))
	cfg.DataDir = filepath.Join(blocker, "nested")

	_, _, err := Wire(cfg, zerolog.Nop())
	assert.Error(t, err)
}

func TestContainerClose_Partial(t *testing.T) {
	assert.NoError(t, (&Container{}).Close())
	assert.Empty(t, (&Container{}).Databases())
}

func TestInitializeOrder(t *testing.T) {
	log := zerolog.Nop()
	assert.Error(t, InitializeRepositories(&Container{}, log))
	assert.Error(t, InitializeServices(&Container{}, testConfig(t), log))
	_, err := RegisterJobs(&Container{}, testConfig(t), log)
	assert.Error(t, err)
}
