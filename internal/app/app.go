// Package app wires the components shared by the server and worker
// binaries: storage, sources, events, archive and the update coordinator.
package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aidd/paper-tracker/internal/archive"
	"github.com/aidd/paper-tracker/internal/config"
	"github.com/aidd/paper-tracker/internal/database"
	"github.com/aidd/paper-tracker/internal/domain"
	"github.com/aidd/paper-tracker/internal/events"
	"github.com/aidd/paper-tracker/internal/ingest"
	"github.com/aidd/paper-tracker/internal/observability"
	"github.com/aidd/paper-tracker/internal/papersources"
	"github.com/aidd/paper-tracker/internal/papersources/arxiv"
	"github.com/aidd/paper-tracker/internal/papersources/biorxiv"
	"github.com/aidd/paper-tracker/internal/papersources/chemrxiv"
	"github.com/aidd/paper-tracker/internal/repository"
	"github.com/aidd/paper-tracker/internal/taxonomy"
)

// Components are the long-lived collaborators of a process.
type Components struct {
	DB          *database.DB
	Papers      *repository.PgPaperRepository
	Sources     *papersources.Registry
	Taxonomy    *taxonomy.Taxonomy
	Events      *events.Emitter
	Metrics     *observability.Metrics
	Coordinator *ingest.Coordinator

	publisher events.Publisher
}

// Build connects to the database, runs migrations when configured and
// assembles the coordinator. metrics must not be nil. Close releases what
// Build opened.
func Build(ctx context.Context, cfg *config.Config, metrics *observability.Metrics, logger zerolog.Logger) (*Components, error) {
	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if cfg.Database.MigrationAutoRun {
		if err := migrate(db, cfg.Database.MigrationPath, logger); err != nil {
			db.Close()
			return nil, err
		}
	}

	c := &Components{
		DB:       db,
		Papers:   repository.NewPgPaperRepository(db),
		Taxonomy: taxonomy.Default(),
		Metrics:  metrics,
	}
	c.Sources = NewRegistry(cfg.Sources, c.Taxonomy, metrics, logger)

	if cfg.Kafka.Enabled {
		c.publisher = events.NewKafkaPublisher(cfg.Kafka, logger)
		logger.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("kafka publisher enabled")
	} else {
		c.publisher = events.NoopPublisher{}
	}
	c.Events = events.NewEmitter(c.publisher, metrics, logger)

	opts := []ingest.Option{ingest.WithEvents(c.Events), ingest.WithMetrics(metrics)}
	if cfg.Archive.Enabled {
		archiver, err := archive.NewS3Archiver(ctx, cfg.Archive, logger)
		if err != nil {
			c.Close(logger)
			return nil, fmt.Errorf("create archiver: %w", err)
		}
		opts = append(opts, ingest.WithArchiver(archiver))
		logger.Info().Str("bucket", cfg.Archive.Bucket).Msg("poll batch archive enabled")
	}

	c.Coordinator = ingest.NewCoordinator(c.Sources, c.Papers, c.Taxonomy, ingest.Config{
		DefaultDaysBack:   cfg.Poll.DefaultDaysBack,
		DefaultCategories: DefaultCategories(cfg.Sources),
	}, logger, opts...)

	return c, nil
}

// Close flushes the event publisher and closes the database pool.
func (c *Components) Close(logger zerolog.Logger) {
	if c.publisher != nil {
		if err := c.publisher.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close event publisher")
		}
	}
	c.DB.Close()
}

func migrate(db *database.DB, path string, logger zerolog.Logger) error {
	migrator, err := database.NewMigrator(db, path, logger)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("failed to close migrator")
		}
	}()

	if err := migrator.Up(); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// NewRegistry registers all three adapters. Disabled sources are registered
// too so they can be listed; the registry never polls them.
func NewRegistry(cfg config.SourcesConfig, tax *taxonomy.Taxonomy, observer papersources.RequestObserver, logger zerolog.Logger) *papersources.Registry {
	registry := papersources.NewRegistry()

	registry.Register(arxiv.New(arxiv.Config{
		BaseURL:      cfg.ArXiv.BaseURL,
		Timeout:      cfg.ArXiv.Timeout,
		RequestDelay: cfg.ArXiv.RequestDelay,
		MaxRetries:   cfg.ArXiv.MaxRetries,
		PageSize:     cfg.ArXiv.PageSize,
		Taxonomy:     tax,
		Enabled:      cfg.ArXiv.Enabled,
		Observer:     observer,
	}, logger))

	registry.Register(biorxiv.New(biorxiv.Config{
		BaseURL:      cfg.BioRxiv.BaseURL,
		Timeout:      cfg.BioRxiv.Timeout,
		RequestDelay: cfg.BioRxiv.RequestDelay,
		MaxRetries:   cfg.BioRxiv.MaxRetries,
		PageSize:     cfg.BioRxiv.PageSize,
		Taxonomy:     tax,
		Enabled:      cfg.BioRxiv.Enabled,
		Observer:     observer,
	}, logger))

	registry.Register(chemrxiv.New(chemrxiv.Config{
		BaseURL:      cfg.ChemRxiv.BaseURL,
		Timeout:      cfg.ChemRxiv.Timeout,
		RequestDelay: cfg.ChemRxiv.RequestDelay,
		MaxRetries:   cfg.ChemRxiv.MaxRetries,
		PageSize:     cfg.ChemRxiv.PageSize,
		Taxonomy:     tax,
		Enabled:      cfg.ChemRxiv.Enabled,
		Observer:     observer,
	}, logger))

	for _, f := range registry.AllSources() {
		logger.Info().
			Str("source", string(f.SourceType())).
			Bool("enabled", f.IsEnabled()).
			Msg("paper source registered")
	}
	return registry
}

// DefaultCategories collects the configured per-source category overrides.
func DefaultCategories(cfg config.SourcesConfig) map[domain.SourceType][]string {
	out := make(map[domain.SourceType][]string)
	for src, sc := range map[domain.SourceType]config.SourceConfig{
		domain.SourceTypeArXiv:    cfg.ArXiv,
		domain.SourceTypeBioRxiv:  cfg.BioRxiv,
		domain.SourceTypeChemRxiv: cfg.ChemRxiv,
	} {
		if len(sc.Categories) > 0 {
			out[src] = sc.Categories
		}
	}
	return out
}
