package di

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/sanbist/papertrader/internal/config"
	"github.com/sanbist/papertrader/internal/database"
)

// databaseFiles lists what lives under the data directory. The ledger profile
// fsyncs every commit; the cache can always be refetched from the feed.
var databaseFiles = []struct {
	name    string
	file    string
	profile database.DatabaseProfile
	assign  func(*Container, *database.DB)
}{
	{"portfolio", "portfolio.db", database.ProfileLedger, func(c *Container, db *database.DB) { c.PortfolioDB = db }},
	{"cache", "cache.db", database.ProfileCache, func(c *Container, db *database.DB) { c.CacheDB = db }},
}

// InitializeDatabases opens every database and applies its schema. On
// failure the databases opened so far are closed again.
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	for _, f := range databaseFiles {
		db, err := database.New(database.Config{
			Path:    filepath.Join(cfg.DataDir, f.file),
			Profile: f.profile,
			Name:    f.name,
		})
		if err != nil {
			container.Close()
			return nil, fmt.Errorf("failed to open %s database: %w", f.name, err)
		}
		f.assign(container, db)

		if err := db.Migrate(); err != nil {
			container.Close()
			return nil, fmt.Errorf("failed to apply schema to %s: %w", f.name, err)
		}
		log.Debug().Str("database", f.name).Str("profile", string(f.profile)).Msg("Database ready")
	}

	log.Info().Str("data_dir", cfg.DataDir).Int("databases", len(databaseFiles)).Msg("Databases initialized")
	return container, nil
}
