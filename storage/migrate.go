package storage

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationFS embed.FS

// RunMigrations executes all pending schema migrations against db.
// dbType is either "sqlite" or "postgres"; the migration SQL is embedded
// in the binary, one dialect per directory.
func RunMigrations(db *sql.DB, dbType string) error {
	m, err := newMigrator(db, dbType)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// RollbackMigrations rolls back migrations by the specified number of steps.
// If steps is 0, all migrations are rolled back.
func RollbackMigrations(db *sql.DB, dbType string, steps int) error {
	m, err := newMigrator(db, dbType)
	if err != nil {
		return err
	}

	if steps == 0 {
		if err := m.Down(); err != nil && err != migrate.ErrNoChange {
			return fmt.Errorf("failed to rollback all migrations: %w", err)
		}
		return nil
	}
	if err := m.Steps(-steps); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to rollback %d migration(s): %w", steps, err)
	}
	return nil
}

// MigrationVersion returns the current migration version and whether the
// schema is dirty.
func MigrationVersion(db *sql.DB, dbType string) (uint, bool, error) {
	m, err := newMigrator(db, dbType)
	if err != nil {
		return 0, false, err
	}

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return 0, false, fmt.Errorf("failed to get migration version: %w", err)
	}
	return version, dirty, nil
}

// newMigrator builds a migrate instance over the embedded migration source
// and a driver for the given database type.
func newMigrator(db *sql.DB, dbType string) (*migrate.Migrate, error) {
	driver, err := createMigrationDriver(db, dbType)
	if err != nil {
		return nil, err
	}

	source, err := iofs.New(migrationFS, "migrations/"+dbType)
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations for %s: %w", dbType, err)
	}

	m, err := migrate.NewWithInstance("iofs", source, dbType, driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration instance: %w", err)
	}
	return m, nil
}

// createMigrationDriver creates a migration driver for the specified database type.
func createMigrationDriver(db *sql.DB, dbType string) (database.Driver, error) {
	switch dbType {
	case "sqlite":
		driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite migration driver: %w", err)
		}
		return driver, nil

	case "postgres":
		driver, err := postgres.WithInstance(db, &postgres.Config{})
		if err != nil {
			return nil, fmt.Errorf("failed to create PostgreSQL migration driver: %w", err)
		}
		return driver, nil

	default:
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}
}
