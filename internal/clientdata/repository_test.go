package clientdata

import (
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchema = `
CREATE TABLE market_snapshots (
	feed TEXT PRIMARY KEY,
	data TEXT NOT NULL,
	quote_count INTEGER NOT NULL DEFAULT 0,
	stored_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);
`

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// Every pooled connection to :memory: would be a separate database
	db.SetMaxOpenConns(1)

	_, err = db.Exec(testSchema)
	require.NoError(t, err)

	return db
}

// newClockedRepo returns a repository whose clock the test can move
func newClockedRepo(db *sql.DB, start time.Time) (*Repository, *time.Time) {
	now := start
	repo := NewRepository(db)
	repo.now = func() time.Time { return now }
	return repo, &now
}

type snapshotFixture struct {
	Source string  `json:"source"`
	Price  float64 `json:"price"`
}

var epoch = time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)

func TestSaveAndLoad(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo, _ := newClockedRepo(db, epoch)
	require.NoError(t, repo.Save("http", snapshotFixture{Source: "http", Price: 132.5}, 12))

	raw, err := repo.LoadFresh("http")
	require.NoError(t, err)
	require.NotNil(t, raw)

	var got snapshotFixture
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, 132.5, got.Price)
}

func TestLoadFresh_IgnoresExpired(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo, now := newClockedRepo(db, epoch)
	require.NoError(t, repo.Save("http", snapshotFixture{Source: "http"}, 1))

	*now = epoch.Add(SnapshotTTL + time.Minute)

	raw, err := repo.LoadFresh("http")
	require.NoError(t, err)
	assert.Nil(t, raw)

	// Load still serves the stale row
	raw, err = repo.Load("http")
	require.NoError(t, err)
	assert.NotNil(t, raw)
}

func TestLoad_MissingFeed(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	raw, err := NewRepository(db).Load("nope")
	require.NoError(t, err)
	assert.Nil(t, raw)
}

func TestSave_ReplacesPreviousSnapshot(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo, now := newClockedRepo(db, epoch)
	require.NoError(t, repo.Save("http", snapshotFixture{Price: 1}, 1))
	*now = epoch.Add(time.Hour)
	require.NoError(t, repo.Save("http", snapshotFixture{Price: 2}, 40))

	entries, err := repo.List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 40, entries[0].QuoteCount)
	assert.Equal(t, epoch.Add(time.Hour).Unix(), entries[0].StoredAt.Unix())
	assert.Equal(t, epoch.Add(time.Hour+SnapshotTTL).Unix(), entries[0].ExpiresAt.Unix())

	raw, err := repo.Load("http")
	require.NoError(t, err)
	var got snapshotFixture
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, 2.0, got.Price)
}

func TestSave_UnencodableSnapshot(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	err := NewRepository(db).Save("http", make(chan int), 0)
	assert.Error(t, err)
}

func TestListAndPurge(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo, now := newClockedRepo(db, epoch)
	require.NoError(t, repo.Save("static", snapshotFixture{}, 5))
	*now = epoch.Add(6 * 24 * time.Hour)
	require.NoError(t, repo.Save("http", snapshotFixture{}, 30))

	// static expires a day before http
	*now = epoch.Add(SnapshotTTL + time.Hour)

	entries, err := repo.List()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "http", entries[0].Feed)
	assert.False(t, entries[0].Expired)
	assert.Equal(t, "static", entries[1].Feed)
	assert.True(t, entries[1].Expired)

	purged, err := repo.Purge()
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	entries, err = repo.List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "http", entries[0].Feed)
}
