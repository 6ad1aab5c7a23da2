package app

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"

	"github.com/stacklok/toolhive-registry-bridge/database"
)

func newMigrateDownCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "down",
		Short: "Migrate the database down",
		Long: `Migrate the postgres sink schema down by reverting migrations.
WARNING: This operation can result in data loss. Use with caution.

Examples:
  # Migrate down by 1 step
  thv-registry-bridge migrate down --config config.yaml --num-steps 1 --yes

  # Migrate down all the way (WARNING: destroys all data)
  thv-registry-bridge migrate down --config config.yaml --yes`,
		RunE: runMigrateDown,
	}
}

func runMigrateDown(cmd *cobra.Command, _ []string) error {
	numSteps, err := getNumSteps(cmd)
	if err != nil {
		return err
	}

	_, m, err := setupMigration(cmd)
	if err != nil {
		return err
	}
	defer closeMigrator(m)

	prompt := "WARNING: This will migrate down ALL steps and may result in complete data loss. Continue?"
	if numSteps > 0 {
		prompt = fmt.Sprintf("WARNING: This will migrate down %d step(s) and may result in data loss. Continue?", numSteps)
	}
	ok, err := confirmOrSkip(cmd, prompt)
	if err != nil {
		return err
	}
	if !ok {
		slog.Info("Migration cancelled")
		return fmt.Errorf("migration cancelled by user")
	}

	if err := executeMigrateDown(m, numSteps); err != nil {
		return err
	}
	displayMigrationVersion(m)
	return nil
}

func executeMigrateDown(m database.Migrator, numSteps int) error {
	var err error
	if numSteps == 0 {
		slog.Warn("Migrating down all steps, this will remove the whole schema")
		err = m.Down()
	} else {
		slog.Info("Migrating down", "steps", numSteps)
		err = m.Steps(-numSteps)
	}

	if err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			slog.Info("No migrations to revert, database is already at the oldest version")
			return nil
		}
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("Migration completed successfully")
	return nil
}
