package repository

import (
	"github.com/chronokeep/portal-gateway/internal/model"
	"github.com/chronokeep/portal-gateway/internal/portalerr"
)

type remoteAPIRow struct {
	ID    int64  `db:"id"`
	Name  string `db:"name"`
	Kind  string `db:"kind"`
	URI   string `db:"uri"`
	Token string `db:"token"`
}

func (row remoteAPIRow) toModel() model.RemoteAPI {
	return model.RemoteAPI{ID: row.ID, Name: row.Name, Kind: model.RemoteAPIKind(row.Kind), URI: row.URI, Token: row.Token}
}

// SaveAPI inserts or updates a remote upload target.
func (r *Repository) SaveAPI(api model.RemoteAPI) (int64, error) {
	if api.ID == 0 {
		res, err := r.DB.Exec(`INSERT INTO remote_apis (name, kind, uri, token) VALUES (?, ?, ?, ?)`,
			api.Name, string(api.Kind), api.URI, api.Token)
		if err != nil {
			return 0, &portalerr.StorageError{Kind: portalerr.StorageInsertion, Err: err}
		}
		return res.LastInsertId()
	}
	_, err := r.DB.Exec(`UPDATE remote_apis SET name=?, kind=?, uri=?, token=? WHERE id=?`,
		api.Name, string(api.Kind), api.URI, api.Token, api.ID)
	if err != nil {
		return 0, &portalerr.StorageError{Kind: portalerr.StorageInsertion, Err: err}
	}
	return api.ID, nil
}

// RemoteAPIs returns every configured upload target, in insertion
// (storage) order, which is what spec §9's "first encountered in
// storage order" single-instance rule relies on.
func (r *Repository) RemoteAPIs() ([]model.RemoteAPI, error) {
	var rows []remoteAPIRow
	if err := r.DB.Select(&rows, `SELECT id, name, kind, uri, token FROM remote_apis ORDER BY id ASC`); err != nil {
		return nil, &portalerr.StorageError{Kind: portalerr.StorageRetrieval, Err: err}
	}
	out := make([]model.RemoteAPI, len(rows))
	for i, row := range rows {
		out[i] = row.toModel()
	}
	return out, nil
}

// DeleteAPI removes a configured upload target by id.
func (r *Repository) DeleteAPI(id int64) error {
	if _, err := r.DB.Exec(`DELETE FROM remote_apis WHERE id = ?`, id); err != nil {
		return &portalerr.StorageError{Kind: portalerr.StorageDeletion, Err: err}
	}
	return nil
}
