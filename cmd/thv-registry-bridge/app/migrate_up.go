package app

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"

	"github.com/stacklok/toolhive-registry-bridge/database"
)

func newMigrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply pending database migrations",
		Long: `Apply pending database migrations to bring the postgres sink schema up to date.
The connection parameters are read from the database section of the config file.

Examples:
  # Apply all pending migrations
  thv-registry-bridge migrate up --config config.yaml --yes

  # Apply the next migration only
  thv-registry-bridge migrate up --config config.yaml --num-steps 1`,
		RunE: runMigrateUp,
	}
}

func runMigrateUp(cmd *cobra.Command, _ []string) error {
	numSteps, err := getNumSteps(cmd)
	if err != nil {
		return err
	}

	dbCfg, m, err := setupMigration(cmd)
	if err != nil {
		return err
	}
	defer closeMigrator(m)

	ok, err := confirmOrSkip(cmd, fmt.Sprintf("About to apply migrations to %s@%s:%d/%s. Continue?",
		dbCfg.User, dbCfg.Host, dbCfg.Port, dbCfg.Database))
	if err != nil {
		return err
	}
	if !ok {
		slog.Info("Migration cancelled by user")
		return nil
	}

	if err := executeMigrateUp(m, numSteps); err != nil {
		return err
	}
	displayMigrationVersion(m)
	return nil
}

func executeMigrateUp(m database.Migrator, numSteps int) error {
	var err error
	if numSteps == 0 {
		slog.Info("Applying all pending migrations")
		err = m.Up()
	} else {
		slog.Info("Applying migrations", "steps", numSteps)
		err = m.Steps(numSteps)
	}

	if err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			slog.Info("No migrations to apply, database is up to date")
			return nil
		}
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("Migrations applied successfully")
	return nil
}
