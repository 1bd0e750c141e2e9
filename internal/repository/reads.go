package repository

import (
	"github.com/chronokeep/portal-gateway/internal/model"
	"github.com/chronokeep/portal-gateway/internal/portalerr"
	sq "github.com/Masterminds/squirrel"
)

type readRow struct {
	ID                 int64  `db:"id"`
	Identifier         string `db:"identifier"`
	Seconds            uint64 `db:"seconds"`
	Milliseconds       uint32 `db:"milliseconds"`
	ReaderSeconds      uint64 `db:"reader_seconds"`
	ReaderMilliseconds uint32 `db:"reader_milliseconds"`
	Antenna            int    `db:"antenna"`
	Reader             string `db:"reader"`
	RSSI               string `db:"rssi"`
	IdentType          string `db:"ident_type"`
	Kind               string `db:"kind"`
	Status             string `db:"status"`
	Uploaded           bool   `db:"uploaded"`
}

func (row readRow) toModel() model.Read {
	return model.Read{
		ID: row.ID, Identifier: row.Identifier,
		Seconds: row.Seconds, Milliseconds: row.Milliseconds,
		ReaderSeconds: row.ReaderSeconds, ReaderMilliseconds: row.ReaderMilliseconds,
		Antenna: uint16(row.Antenna), Reader: row.Reader, RSSI: row.RSSI,
		IdentType: model.IdentType(row.IdentType), Kind: model.ReadKind(row.Kind),
		Status: model.ReadStatus(row.Status), Uploaded: row.Uploaded,
	}
}

const readColumns = "id, identifier, seconds, milliseconds, reader_seconds, reader_milliseconds, antenna, reader, rssi, ident_type, kind, status, uploaded"

// SaveReads inserts a batch of reads atomically. A read that
// duplicates an existing (identifier, seconds, milliseconds) tuple is
// silently dropped (spec invariant 3) rather than failing the batch.
func (r *Repository) SaveReads(reads []model.Read) error {
	if len(reads) == 0 {
		return nil
	}
	tx, err := r.DB.Beginx()
	if err != nil {
		return &portalerr.StorageError{Kind: portalerr.StorageInsertion, Err: err}
	}
	for _, read := range reads {
		if _, err := tx.Exec(
			`INSERT INTO reads (identifier, seconds, milliseconds, reader_seconds, reader_milliseconds, antenna, reader, rssi, ident_type, kind, status, uploaded)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(identifier, seconds, milliseconds) DO NOTHING`,
			read.Identifier, read.Seconds, read.Milliseconds, read.ReaderSeconds, read.ReaderMilliseconds,
			read.Antenna, read.Reader, read.RSSI, string(read.IdentType), string(read.Kind),
			string(read.Status), read.Uploaded,
		); err != nil {
			tx.Rollback()
			return &portalerr.StorageError{Kind: portalerr.StorageInsertion, Err: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return &portalerr.StorageError{Kind: portalerr.StorageInsertion, Err: err}
	}
	return nil
}

// ReadsBetween returns reads with seconds in [start, end], inclusive.
func (r *Repository) ReadsBetween(start, end uint64) ([]model.Read, error) {
	query, args, err := sq.Select("id", "identifier", "seconds", "milliseconds", "reader_seconds",
		"reader_milliseconds", "antenna", "reader", "rssi", "ident_type", "kind", "status", "uploaded").
		From("reads").
		Where(sq.And{sq.GtOrEq{"seconds": start}, sq.LtOrEq{"seconds": end}}).
		OrderBy("seconds ASC", "milliseconds ASC").
		ToSql()
	if err != nil {
		return nil, &portalerr.StorageError{Kind: portalerr.StorageRetrieval, Err: err}
	}
	var rows []readRow
	if err := r.DB.Select(&rows, query, args...); err != nil {
		return nil, &portalerr.StorageError{Kind: portalerr.StorageRetrieval, Err: err}
	}
	out := make([]model.Read, len(rows))
	for i, row := range rows {
		out[i] = row.toModel()
	}
	return out, nil
}

// AllReads returns every stored read.
func (r *Repository) AllReads() ([]model.Read, error) {
	var rows []readRow
	if err := r.DB.Select(&rows, `SELECT `+readColumns+` FROM reads`); err != nil {
		return nil, &portalerr.StorageError{Kind: portalerr.StorageRetrieval, Err: err}
	}
	out := make([]model.Read, len(rows))
	for i, row := range rows {
		out[i] = row.toModel()
	}
	return out, nil
}

// UsefulReads returns reads not yet classified too_soon, i.e. those
// the sightings processor still needs to consider (spec §4.F).
func (r *Repository) UsefulReads() ([]model.Read, error) {
	var rows []readRow
	if err := r.DB.Select(&rows, `SELECT `+readColumns+` FROM reads WHERE status != ? ORDER BY seconds ASC, milliseconds ASC`,
		string(model.ReadStatusTooSoon)); err != nil {
		return nil, &portalerr.StorageError{Kind: portalerr.StorageRetrieval, Err: err}
	}
	out := make([]model.Read, len(rows))
	for i, row := range rows {
		out[i] = row.toModel()
	}
	return out, nil
}

// NotUploadedReads returns reads the upload worker still needs to
// send (spec §7).
func (r *Repository) NotUploadedReads() ([]model.Read, error) {
	var rows []readRow
	if err := r.DB.Select(&rows, `SELECT `+readColumns+` FROM reads WHERE uploaded = 0 ORDER BY seconds ASC, milliseconds ASC`); err != nil {
		return nil, &portalerr.StorageError{Kind: portalerr.StorageRetrieval, Err: err}
	}
	out := make([]model.Read, len(rows))
	for i, row := range rows {
		out[i] = row.toModel()
	}
	return out, nil
}

// DeleteReadsBetween removes reads with seconds in [start, end] and
// reports how many rows were removed, for the control protocol's
// success{count} response (spec §6).
func (r *Repository) DeleteReadsBetween(start, end uint64) (int64, error) {
	res, err := r.DB.Exec(`DELETE FROM reads WHERE seconds >= ? AND seconds <= ?`, start, end)
	if err != nil {
		return 0, &portalerr.StorageError{Kind: portalerr.StorageDeletion, Err: err}
	}
	return res.RowsAffected()
}

// DeleteAllReads clears the reads table (operator "reset event"
// action) and reports how many rows were removed.
func (r *Repository) DeleteAllReads() (int64, error) {
	res, err := r.DB.Exec(`DELETE FROM reads`)
	if err != nil {
		return 0, &portalerr.StorageError{Kind: portalerr.StorageDeletion, Err: err}
	}
	return res.RowsAffected()
}

// UpdateReadStatuses writes back the classification the sightings
// processor assigned to each read, matched by its unique
// (identifier, seconds, milliseconds) tuple.
func (r *Repository) UpdateReadStatuses(reads []model.Read) error {
	if len(reads) == 0 {
		return nil
	}
	tx, err := r.DB.Beginx()
	if err != nil {
		return &portalerr.StorageError{Kind: portalerr.StorageInsertion, Err: err}
	}
	for _, read := range reads {
		if _, err := tx.Exec(
			`UPDATE reads SET status = ? WHERE identifier = ? AND seconds = ? AND milliseconds = ?`,
			string(read.Status), read.Identifier, read.Seconds, read.Milliseconds,
		); err != nil {
			tx.Rollback()
			return &portalerr.StorageError{Kind: portalerr.StorageInsertion, Err: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return &portalerr.StorageError{Kind: portalerr.StorageInsertion, Err: err}
	}
	return nil
}

// MarkUploaded flips the uploaded flag for a batch of reads,
// regardless of how many rows the remote actually accepted (spec §8
// property 7: a 2xx response flips the flag for the whole batch).
func (r *Repository) MarkUploaded(reads []model.Read) error {
	if len(reads) == 0 {
		return nil
	}
	tx, err := r.DB.Beginx()
	if err != nil {
		return &portalerr.StorageError{Kind: portalerr.StorageInsertion, Err: err}
	}
	for _, read := range reads {
		if _, err := tx.Exec(
			`UPDATE reads SET uploaded = 1 WHERE identifier = ? AND seconds = ? AND milliseconds = ?`,
			read.Identifier, read.Seconds, read.Milliseconds,
		); err != nil {
			tx.Rollback()
			return &portalerr.StorageError{Kind: portalerr.StorageInsertion, Err: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return &portalerr.StorageError{Kind: portalerr.StorageInsertion, Err: err}
	}
	return nil
}

// ResetUploadState clears the uploaded flag on every read, used when
// an operator rewires the remote target and wants a full re-upload.
func (r *Repository) ResetUploadState() error {
	if _, err := r.DB.Exec(`UPDATE reads SET uploaded = 0`); err != nil {
		return &portalerr.StorageError{Kind: portalerr.StorageInsertion, Err: err}
	}
	return nil
}
