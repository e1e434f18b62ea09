package reliability

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/sanbist/papertrader/internal/database"
	testingpkg "github.com/sanbist/papertrader/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaintenanceJob_Run(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t, "portfolio")
	t.Cleanup(cleanup)

	job := NewMaintenanceJob(map[string]*database.DB{"portfolio": db}, t.TempDir(), 1, zerolog.Nop())
	assert.Equal(t, "maintenance", job.Name())
	require.NoError(t, job.Run())
}

func TestMaintenanceJob_FailsOnLowDisk(t *testing.T) {
	job := NewMaintenanceJob(nil, t.TempDir(), ^uint64(0), zerolog.Nop())
	assert.Error(t, job.Run())
}

func TestMaintenanceJob_FailsOnClosedDatabase(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t, "portfolio")
	cleanup()

	job := NewMaintenanceJob(map[string]*database.DB{"portfolio": db}, t.TempDir(), 1, zerolog.Nop())
	assert.Error(t, job.Run())
}
