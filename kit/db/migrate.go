package db

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// MigrateSQLite applies the migrations found under dir in migrations.
func MigrateSQLite(conn *sql.DB, migrations fs.FS, dir string) error {
	driver, err := sqlite3.WithInstance(conn, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to set up sqlite migrate driver: %w", err)
	}
	return runMigrations(migrations, dir, "sqlite3", driver)
}

// MigratePostgres applies the migrations found under dir in migrations.
func MigratePostgres(conn *sql.DB, migrations fs.FS, dir string) error {
	driver, err := migratepgx.WithInstance(conn, &migratepgx.Config{})
	if err != nil {
		return fmt.Errorf("failed to set up postgres migrate driver: %w", err)
	}
	return runMigrations(migrations, dir, "pgx5", driver)
}

func runMigrations(migrations fs.FS, dir, dbName string, driver database.Driver) error {
	src, err := iofs.New(migrations, dir)
	if err != nil {
		return fmt.Errorf("failed to create iofs source driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, dbName, driver)
	if err != nil {
		return fmt.Errorf("failed to set up migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migration(up): %w", err)
	}
	return nil
}
