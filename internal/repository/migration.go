package repository

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/chronokeep/portal-gateway/internal/model"
	"github.com/chronokeep/portal-gateway/internal/portalerr"
	"github.com/chronokeep/portal-gateway/pkg/log"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/sqlite3
var migrationFiles embed.FS

// Migrate brings db up to model.CurrentDatabaseVersion, failing fatally
// only on a genuine migration error. A database newer than this build
// understands is refused with DatabaseTooNew rather than migrated
// (spec §6 "Current version = 4", §4.H "opening a store with a future
// schema version fails with DatabaseTooNew").
func Migrate(db *sql.DB) error {
	version, err := currentVersion(db)
	if err != nil {
		return err
	}
	if version > model.CurrentDatabaseVersion {
		return &portalerr.StorageError{Kind: portalerr.StorageTooNew,
			Err: fmt.Errorf("database version %d is newer than supported version %d", version, model.CurrentDatabaseVersion)}
	}

	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("repository: migration driver: %w", err)
	}
	src, err := iofs.New(migrationFiles, "migrations/sqlite3")
	if err != nil {
		return fmt.Errorf("repository: migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("repository: migration setup: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("repository: running migrations: %w", err)
	}
	log.Infof("repository: schema up to date at version %d", model.CurrentDatabaseVersion)
	return nil
}

// currentVersion reads the schema version row directly (a plain
// settings row, not golang-migrate's own version table) so the
// DatabaseTooNew check can run before any migration driver touches
// the connection.
func currentVersion(db *sql.DB) (int, error) {
	row := db.QueryRow(`SELECT value FROM settings WHERE name = ?`, model.SettingDatabaseVersion)
	var raw string
	if err := row.Scan(&raw); err != nil {
		// No settings table yet means a brand new database file: that
		// is version 0, always safe to migrate forward from.
		return 0, nil
	}
	var version int
	if _, err := fmt.Sscanf(raw, "%d", &version); err != nil {
		return 0, fmt.Errorf("repository: unparsable schema version %q", raw)
	}
	return version, nil
}
