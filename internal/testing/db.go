// Package testing holds fixtures shared by the module tests: migrated
// temporary databases and canned market snapshots.
package testing

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/sanbist/papertrader/internal/database"
)

var testProfiles = map[string]database.DatabaseProfile{
	"portfolio": database.ProfileLedger,
	"cache":     database.ProfileCache,
}

// NewTestDB opens a migrated database named name under t.TempDir().
// "portfolio" and "cache" get their real schema and profile; any other name
// yields an empty standard-profile database.
//
// The returned close func may be called more than once. It also runs on
// t.Cleanup, so callers that forget it do not leak connections.
func NewTestDB(t *testing.T, name string) (*database.DB, func()) {
	t.Helper()

	profile, ok := testProfiles[name]
	if !ok {
		profile = database.ProfileStandard
	}

	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), name+".db"),
		Profile: profile,
		Name:    name,
	})
	if err != nil {
		t.Fatalf("open test database %s: %v", name, err)
	}

	var once sync.Once
	closeDB := func() {
		once.Do(func() {
			if err := db.Close(); err != nil {
				t.Logf("close test database %s: %v", name, err)
			}
		})
	}
	t.Cleanup(closeDB)

	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate test database %s: %v", name, err)
	}
	return db, closeDB
}
