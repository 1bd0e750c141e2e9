package repository

import (
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

// testRepo opens a fresh sqlite3 file under t.TempDir and migrates it
// to the current schema. Connect is a process-wide singleton (spec §5
// "a single sqlite3 connection"), so every test in this package shares
// the one instance the first call establishes; truncateAll resets its
// contents between tests instead of reconnecting.
func testRepo(t *testing.T) *Repository {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "portal-test.db")
	repo, err := Connect(dbPath)
	if err != nil {
		// Connect only fails when opening the database failed. A later
		// test in the same process gets the shared instance back with
		// no error (still pointing at the first test's temp file), so it
		// takes the branch below, where Migrate finds nothing to do.
		repo = Get()
	} else {
		require.NoError(t, Migrate(repo.DB.DB))
	}
	truncateAll(t, repo)
	return repo
}

// sqlxOpenForTest opens a standalone connection bypassing the
// package's process-wide Connect singleton, for migration tests that
// need a database file in a specific pre-migration state.
func sqlxOpenForTest(t *testing.T, path string) (*Repository, error) {
	t.Helper()
	db, err := sqlx.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, err
	}
	t.Cleanup(func() { db.Close() })
	return &Repository{DB: db}, nil
}

func truncateAll(t *testing.T, repo *Repository) {
	t.Helper()
	for _, table := range []string{"sightings", "reads", "bib_chips", "participants", "remote_apis", "readers"} {
		_, err := repo.DB.Exec("DELETE FROM " + table)
		require.NoError(t, err)
	}
}
