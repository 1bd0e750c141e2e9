// Package repository is the data-access port of spec §4.H: settings,
// readers, remote APIs, reads, participants, bib-chips and sightings,
// all backed by a single local sqlite3 file.
package repository

import (
	"database/sql"
	"fmt"
	"sync"

	"github.com/chronokeep/portal-gateway/pkg/log"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/qustavo/sqlhooks/v2"
)

var (
	connectOnce sync.Once
	instance    *Repository
)

// Repository wraps the sqlite3 connection and exposes the
// entity-grouped methods in the other files of this package.
type Repository struct {
	DB *sqlx.DB
}

// Connect opens (creating if necessary) the sqlite3 database at path,
// registering query-logging hooks the way the teacher's connection
// layer does, and returns the shared Repository instance. Only the
// first call's path takes effect; later calls return the existing
// connection (spec §5 "a single sqlite3 connection, serialized").
func Connect(path string) (*Repository, error) {
	var err error
	connectOnce.Do(func() {
		sql.Register("sqlite3WithHooks", sqlhooks.Wrap(&sqlite3.SQLiteDriver{}, &queryHooks{}))
		var db *sqlx.DB
		db, err = sqlx.Open("sqlite3WithHooks", fmt.Sprintf("%s?_foreign_keys=on", path))
		if err != nil {
			return
		}
		// sqlite3 does not benefit from more than one writer; a single
		// connection serializes access the same way the teacher's
		// sqlite3 driver setup does.
		db.SetMaxOpenConns(1)
		instance = &Repository{DB: db}
	})
	if err != nil {
		return nil, fmt.Errorf("repository: opening %s: %w", path, err)
	}
	if instance == nil {
		return nil, fmt.Errorf("repository: an earlier Connect call failed to open the database")
	}
	return instance, nil
}

// Get returns the already-established Repository, for components
// constructed after the initial Connect call.
func Get() *Repository {
	if instance == nil {
		log.Fatalf("repository: Connect was never called")
	}
	return instance
}
