package repository

import (
	"github.com/chronokeep/portal-gateway/internal/model"
	"github.com/chronokeep/portal-gateway/internal/portalerr"
)

// AddBibChips inserts bib/chip pairs atomically. Both sides are
// unique: inserting a bib or chip that already exists elsewhere
// replaces the prior row carrying that value (spec §3).
func (r *Repository) AddBibChips(bibChips []model.BibChip) error {
	if len(bibChips) == 0 {
		return nil
	}
	tx, err := r.DB.Beginx()
	if err != nil {
		return &portalerr.StorageError{Kind: portalerr.StorageInsertion, Err: err}
	}
	for _, bc := range bibChips {
		if _, err := tx.Exec(`DELETE FROM bib_chips WHERE bib = ? OR chip = ?`, bc.Bib, bc.Chip); err != nil {
			tx.Rollback()
			return &portalerr.StorageError{Kind: portalerr.StorageInsertion, Err: err}
		}
		if _, err := tx.Exec(`INSERT INTO bib_chips (bib, chip) VALUES (?, ?)`, bc.Bib, bc.Chip); err != nil {
			tx.Rollback()
			return &portalerr.StorageError{Kind: portalerr.StorageInsertion, Err: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return &portalerr.StorageError{Kind: portalerr.StorageInsertion, Err: err}
	}
	return nil
}

// BibChips returns every bib/chip mapping.
func (r *Repository) BibChips() ([]model.BibChip, error) {
	var out []model.BibChip
	if err := r.DB.Select(&out, `SELECT bib, chip FROM bib_chips`); err != nil {
		return nil, &portalerr.StorageError{Kind: portalerr.StorageRetrieval, Err: err}
	}
	return out, nil
}

// DeleteAllBibChips clears every bib/chip mapping.
func (r *Repository) DeleteAllBibChips() error {
	if _, err := r.DB.Exec(`DELETE FROM bib_chips`); err != nil {
		return &portalerr.StorageError{Kind: portalerr.StorageDeletion, Err: err}
	}
	return nil
}
