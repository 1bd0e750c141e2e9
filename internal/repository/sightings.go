package repository

import (
	"github.com/chronokeep/portal-gateway/internal/model"
	"github.com/chronokeep/portal-gateway/internal/portalerr"
)

// SaveSightings inserts a batch of finalized sightings atomically,
// resolving each one's participant and read to their stored ids by
// the natural keys the sightings processor already carries (bib,
// identifier+seconds+milliseconds).
func (r *Repository) SaveSightings(sightings []model.Sighting) error {
	if len(sightings) == 0 {
		return nil
	}
	tx, err := r.DB.Beginx()
	if err != nil {
		return &portalerr.StorageError{Kind: portalerr.StorageInsertion, Err: err}
	}
	for _, s := range sightings {
		var participantID int64
		if err := tx.Get(&participantID, `SELECT id FROM participants WHERE bib = ?`, s.Participant.Bib); err != nil {
			tx.Rollback()
			return &portalerr.StorageError{Kind: portalerr.StorageInsertion, Err: err}
		}
		var readID int64
		if err := tx.Get(&readID, `SELECT id FROM reads WHERE identifier = ? AND seconds = ? AND milliseconds = ?`,
			s.Read.Identifier, s.Read.Seconds, s.Read.Milliseconds); err != nil {
			tx.Rollback()
			return &portalerr.StorageError{Kind: portalerr.StorageInsertion, Err: err}
		}
		if _, err := tx.Exec(`INSERT INTO sightings (participant_id, read_id) VALUES (?, ?)`, participantID, readID); err != nil {
			tx.Rollback()
			return &portalerr.StorageError{Kind: portalerr.StorageInsertion, Err: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return &portalerr.StorageError{Kind: portalerr.StorageInsertion, Err: err}
	}
	return nil
}

// Sightings returns every finalized sighting joined with its
// participant and read.
func (r *Repository) Sightings() ([]model.Sighting, error) {
	rows, err := r.DB.Queryx(`
		SELECT p.id, p.bib, p.first, p.last, p.birthdate, p.gender, p.age_group, p.distance, p.anonymous,
		       rd.id, rd.identifier, rd.seconds, rd.milliseconds, rd.reader_seconds, rd.reader_milliseconds,
		       rd.antenna, rd.reader, rd.rssi, rd.ident_type, rd.kind, rd.status, rd.uploaded
		FROM sightings s
		JOIN participants p ON p.id = s.participant_id
		JOIN reads rd ON rd.id = s.read_id`)
	if err != nil {
		return nil, &portalerr.StorageError{Kind: portalerr.StorageRetrieval, Err: err}
	}
	defer rows.Close()

	var out []model.Sighting
	for rows.Next() {
		var (
			p participantRow
			d readRow
		)
		if err := rows.Scan(
			&p.ID, &p.Bib, &p.First, &p.Last, &p.Birthdate, &p.Gender, &p.AgeGroup, &p.Distance, &p.Anonymous,
			&d.ID, &d.Identifier, &d.Seconds, &d.Milliseconds, &d.ReaderSeconds, &d.ReaderMilliseconds,
			&d.Antenna, &d.Reader, &d.RSSI, &d.IdentType, &d.Kind, &d.Status, &d.Uploaded,
		); err != nil {
			return nil, &portalerr.StorageError{Kind: portalerr.StorageRetrieval, Err: err}
		}
		out = append(out, model.Sighting{Participant: p.toModel(), Read: d.toModel()})
	}
	if err := rows.Err(); err != nil {
		return nil, &portalerr.StorageError{Kind: portalerr.StorageRetrieval, Err: err}
	}
	return out, nil
}

// DeleteAllSightings clears the sightings table (operator "reset
// event" action).
func (r *Repository) DeleteAllSightings() error {
	if _, err := r.DB.Exec(`DELETE FROM sightings`); err != nil {
		return &portalerr.StorageError{Kind: portalerr.StorageDeletion, Err: err}
	}
	return nil
}
