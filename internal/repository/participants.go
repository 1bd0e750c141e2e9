package repository

import (
	"github.com/chronokeep/portal-gateway/internal/model"
	"github.com/chronokeep/portal-gateway/internal/portalerr"
)

type participantRow struct {
	ID        int64  `db:"id"`
	Bib       string `db:"bib"`
	First     string `db:"first"`
	Last      string `db:"last"`
	Birthdate string `db:"birthdate"`
	Gender    string `db:"gender"`
	AgeGroup  string `db:"age_group"`
	Distance  string `db:"distance"`
	Anonymous bool   `db:"anonymous"`
}

func (row participantRow) toModel() model.Participant {
	return model.Participant{
		ID: row.ID, Bib: row.Bib, First: row.First, Last: row.Last,
		Birthdate: row.Birthdate, Gender: row.Gender, AgeGroup: row.AgeGroup,
		Distance: row.Distance, Anonymous: row.Anonymous,
	}
}

// AddParticipants inserts participants atomically (spec §4.H "save
// batch operations are atomic"). A bib that already exists replaces
// the prior row (spec §3).
func (r *Repository) AddParticipants(participants []model.Participant) error {
	if len(participants) == 0 {
		return nil
	}
	tx, err := r.DB.Beginx()
	if err != nil {
		return &portalerr.StorageError{Kind: portalerr.StorageInsertion, Err: err}
	}
	for _, p := range participants {
		if _, err := tx.Exec(
			`INSERT INTO participants (bib, first, last, birthdate, gender, age_group, distance, anonymous)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(bib) DO UPDATE SET
				first=excluded.first, last=excluded.last, birthdate=excluded.birthdate,
				gender=excluded.gender, age_group=excluded.age_group, distance=excluded.distance,
				anonymous=excluded.anonymous`,
			p.Bib, p.First, p.Last, p.Birthdate, p.Gender, p.AgeGroup, p.Distance, p.Anonymous,
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

// Participants returns every known participant.
func (r *Repository) Participants() ([]model.Participant, error) {
	var rows []participantRow
	if err := r.DB.Select(&rows, `SELECT id, bib, first, last, birthdate, gender, age_group, distance, anonymous FROM participants`); err != nil {
		return nil, &portalerr.StorageError{Kind: portalerr.StorageRetrieval, Err: err}
	}
	out := make([]model.Participant, len(rows))
	for i, row := range rows {
		out[i] = row.toModel()
	}
	return out, nil
}

// DeleteAllParticipants clears the roster (operator "reset event"
// action).
func (r *Repository) DeleteAllParticipants() error {
	if _, err := r.DB.Exec(`DELETE FROM participants`); err != nil {
		return &portalerr.StorageError{Kind: portalerr.StorageDeletion, Err: err}
	}
	return nil
}
