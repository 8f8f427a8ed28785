package app

import (
	"errors"
	"fmt"

	"moex-bond-screener/internal/storage"
)

func (a *App) openMigrator() (*storage.Migrator, error) {
	if a.Config.Database.DSN == "" {
		return nil, errors.New("database.dsn not configured; cannot migrate")
	}
	return storage.NewMigrator(a.Config.Database.DSN)
}

func (a *App) migrateUp() error {
	m, err := a.openMigrator()
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		return err
	}
	a.Logger.Info().Msg("database schema is up to date")
	return nil
}

// MigrateUp applies all pending schema migrations.
func (a *App) MigrateUp() error {
	return a.migrateUp()
}

// MigrateDown rolls back the given number of migrations.
func (a *App) MigrateDown(steps int) error {
	m, err := a.openMigrator()
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Down(steps); err != nil {
		return err
	}
	a.Logger.Info().Int("steps", steps).Msg("migrations rolled back")
	return nil
}

// MigrationVersion prints the applied schema version.
func (a *App) MigrationVersion() error {
	m, err := a.openMigrator()
	if err != nil {
		return err
	}
	defer m.Close()

	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "version: %d\ndirty: %t\n", version, dirty)
	return nil
}
