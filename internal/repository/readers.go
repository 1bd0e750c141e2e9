package repository

import (
	"fmt"
	"net"

	"github.com/chronokeep/portal-gateway/internal/model"
	"github.com/chronokeep/portal-gateway/internal/portalerr"
	sq "github.com/Masterminds/squirrel"
)

type readerRow struct {
	ID          int64  `db:"id"`
	Nickname    string `db:"nickname"`
	Kind        string `db:"kind"`
	IPAddress   string `db:"ip_address"`
	Port        int    `db:"port"`
	AutoConnect bool   `db:"auto_connect"`
}

func (row readerRow) toModel() *model.Reader {
	return &model.Reader{
		ID:          row.ID,
		Nickname:    row.Nickname,
		Kind:        model.ReaderKind(row.Kind),
		IPAddress:   net.ParseIP(row.IPAddress),
		Port:        uint16(row.Port),
		AutoConnect: row.AutoConnect,
	}
}

// SaveReader inserts or, if ID is set, updates a reader's persisted
// descriptor. Live session state (Connected/Reading/etc.) is never
// stored; it exists only in the in-memory model.Reader.
func (r *Repository) SaveReader(reader *model.Reader) (int64, error) {
	if reader.ID == 0 {
		res, err := r.DB.Exec(
			`INSERT INTO readers (nickname, kind, ip_address, port, auto_connect) VALUES (?, ?, ?, ?, ?)`,
			reader.Nickname, string(reader.Kind), reader.IPAddress.String(), reader.Port, reader.AutoConnect,
		)
		if err != nil {
			return 0, &portalerr.StorageError{Kind: portalerr.StorageInsertion, Err: err}
		}
		return res.LastInsertId()
	}
	_, err := r.DB.Exec(
		`UPDATE readers SET nickname=?, kind=?, ip_address=?, port=?, auto_connect=? WHERE id=?`,
		reader.Nickname, string(reader.Kind), reader.IPAddress.String(), reader.Port, reader.AutoConnect, reader.ID,
	)
	if err != nil {
		return 0, &portalerr.StorageError{Kind: portalerr.StorageInsertion, Err: err}
	}
	return reader.ID, nil
}

// Reader returns the reader descriptor with the given id.
func (r *Repository) Reader(id int64) (*model.Reader, error) {
	query, args, err := sq.Select("id", "nickname", "kind", "ip_address", "port", "auto_connect").
		From("readers").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("repository: building reader query: %w", err)
	}
	var row readerRow
	if err := r.DB.Get(&row, query, args...); err != nil {
		return nil, &portalerr.StorageError{Kind: portalerr.StorageNotFound, Err: err}
	}
	return row.toModel(), nil
}

// Readers returns every configured reader.
func (r *Repository) Readers() ([]*model.Reader, error) {
	var rows []readerRow
	if err := r.DB.Select(&rows, `SELECT id, nickname, kind, ip_address, port, auto_connect FROM readers`); err != nil {
		return nil, &portalerr.StorageError{Kind: portalerr.StorageRetrieval, Err: err}
	}
	out := make([]*model.Reader, len(rows))
	for i, row := range rows {
		out[i] = row.toModel()
	}
	return out, nil
}

// DeleteReader removes a reader's descriptor by id.
func (r *Repository) DeleteReader(id int64) error {
	if _, err := r.DB.Exec(`DELETE FROM readers WHERE id = ?`, id); err != nil {
		return &portalerr.StorageError{Kind: portalerr.StorageDeletion, Err: err}
	}
	return nil
}
