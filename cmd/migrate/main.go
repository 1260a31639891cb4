// Package main applies, rolls back and inspects the paper store schema.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/aidd/paper-tracker/internal/config"
	"github.com/aidd/paper-tracker/internal/database"
	"github.com/aidd/paper-tracker/internal/observability"
)

const connectTimeout = 30 * time.Second

// action is one migration command selected on the command line.
type action struct {
	name string
	run  func(m *database.Migrator, logger zerolog.Logger) error
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	up := flag.Bool("up", false, "apply all pending migrations")
	down := flag.Bool("down", false, "roll back every migration")
	steps := flag.Int("steps", 0, "apply N steps (negative rolls back)")
	version := flag.Bool("version", false, "print the current schema version")
	force := flag.Int("force", -1, "mark the schema as version V without running it")
	path := flag.String("path", "", "migrations directory (overrides database.migration_path)")
	flag.Parse()

	act, err := selectAction(*up, *down, *steps, *version, *force)
	if err != nil {
		flag.Usage()
		return err
	}

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(config.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     "console",
		Output:     "stdout",
		TimeFormat: time.RFC3339,
	})
	logger = observability.WithComponent(logger, "migrate")

	dir := cfg.Database.MigrationPath
	if *path != "" {
		dir = *path
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	migrator, err := database.NewMigrator(db, dir, logger)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("failed to close migrator")
		}
	}()

	logger.Info().Str("action", act.name).Str("path", dir).Msg("running migration command")
	if err := act.run(migrator, logger); err != nil {
		return fmt.Errorf("%s: %w", act.name, err)
	}
	reportVersion(migrator, logger)
	return nil
}

// selectAction maps the flags to exactly one command.
func selectAction(up, down bool, steps int, version bool, force int) (action, error) {
	var selected []action
	if up {
		selected = append(selected, action{"up", func(m *database.Migrator, _ zerolog.Logger) error {
			return m.Up()
		}})
	}
	if down {
		selected = append(selected, action{"down", func(m *database.Migrator, logger zerolog.Logger) error {
			logger.Warn().Msg("rolling back all migrations")
			return m.Down()
		}})
	}
	if steps != 0 {
		selected = append(selected, action{"steps", func(m *database.Migrator, _ zerolog.Logger) error {
			return m.Steps(steps)
		}})
	}
	if version {
		selected = append(selected, action{"version", func(*database.Migrator, zerolog.Logger) error {
			return nil
		}})
	}
	if force >= 0 {
		selected = append(selected, action{"force", func(m *database.Migrator, logger zerolog.Logger) error {
			logger.Warn().Int("version", force).Msg("forcing schema version")
			return m.Force(force)
		}})
	}

	switch len(selected) {
	case 0:
		return action{}, errors.New("no action specified: use one of -up, -down, -steps N, -version, -force V")
	case 1:
		return selected[0], nil
	default:
		return action{}, errors.New("specify only one action at a time")
	}
}

func reportVersion(m *database.Migrator, logger zerolog.Logger) {
	v, dirty, err := m.Version()
	if err != nil {
		logger.Warn().Err(err).Msg("could not determine schema version")
		return
	}
	logger.Info().Uint("version", v).Bool("dirty", dirty).Msg("schema version")
}
