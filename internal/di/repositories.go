package di

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/sanbist/papertrader/internal/clientdata"
	"github.com/sanbist/papertrader/internal/modules/portfolio"
)

// InitializeRepositories creates the data access layer
func InitializeRepositories(container *Container, log zerolog.Logger) error {
	if container == nil || container.PortfolioDB == nil || container.CacheDB == nil {
		return fmt.Errorf("databases must be initialized before repositories")
	}

	container.PortfolioRepo = portfolio.NewRepository(container.PortfolioDB.Conn(), log)
	container.SnapshotCache = clientdata.NewRepository(container.CacheDB.Conn())

	log.Debug().Msg("Repositories initialized")
	return nil
}
