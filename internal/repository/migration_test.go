package repository

import (
	"path/filepath"
	"testing"

	"github.com/chronokeep/portal-gateway/internal/model"
	"github.com/chronokeep/portal-gateway/internal/portalerr"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

func TestCurrentVersionIsZeroOnBrandNewFile(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "fresh.db")
	repo, err := sqlxOpenForTest(t, dbPath)
	require.NoError(t, err)

	version, err := currentVersion(repo.DB.DB)
	require.NoError(t, err)
	require.Zero(t, version)
}

func TestMigrateRefusesDatabaseNewerThanSupported(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "toonew.db")
	repo, err := sqlxOpenForTest(t, dbPath)
	require.NoError(t, err)

	_, execErr := repo.DB.Exec(`CREATE TABLE settings (name TEXT PRIMARY KEY, value TEXT NOT NULL)`)
	require.NoError(t, execErr)
	_, execErr = repo.DB.Exec(`INSERT INTO settings (name, value) VALUES (?, ?)`, model.SettingDatabaseVersion, "99")
	require.NoError(t, execErr)

	err = Migrate(repo.DB.DB)
	require.Error(t, err)
	var storageErr *portalerr.StorageError
	require.ErrorAs(t, err, &storageErr)
	require.Equal(t, portalerr.StorageTooNew, storageErr.Kind)
}
