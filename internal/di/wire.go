package di

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/sanbist/papertrader/internal/config"
)

// Wire builds the container and registers the background jobs. Each stage
// depends on the ones before it: databases, repositories, services, jobs.
// Anything opened is closed again if a later stage fails.
func Wire(cfg *config.Config, log zerolog.Logger) (*Container, *JobInstances, error) {
	container, err := InitializeDatabases(cfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize databases: %w", err)
	}

	var jobs *JobInstances
	stages := []struct {
		name string
		run  func() error
	}{
		{"repositories", func() error { return InitializeRepositories(container, log) }},
		{"services", func() error { return InitializeServices(container, cfg, log) }},
		{"jobs", func() (err error) {
			jobs, err = RegisterJobs(container, cfg, log)
			return err
		}},
	}
	for _, stage := range stages {
		if err := stage.run(); err != nil {
			container.Close()
			return nil, nil, fmt.Errorf("failed to initialize %s: %w", stage.name, err)
		}
	}

	log.Info().Int("jobs", len(jobs.All())).Msg("Dependency wiring complete")
	return container, jobs, nil
}
