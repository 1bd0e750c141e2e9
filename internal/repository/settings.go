package repository

import (
	"database/sql"
	"fmt"

	"github.com/chronokeep/portal-gateway/internal/model"
	"github.com/chronokeep/portal-gateway/internal/portalerr"
	sq "github.com/Masterminds/squirrel"
)

// Setting returns the value stored for name, or StorageNotFound if no
// row exists (callers fall back to internal/config.Defaults).
func (r *Repository) Setting(name string) (model.Setting, error) {
	query, args, err := sq.Select("name", "value").From("settings").Where(sq.Eq{"name": name}).ToSql()
	if err != nil {
		return model.Setting{}, fmt.Errorf("repository: building setting query: %w", err)
	}
	var s model.Setting
	if err := r.DB.Get(&s, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return model.Setting{}, &portalerr.StorageError{Kind: portalerr.StorageNotFound, Err: err}
		}
		return model.Setting{}, &portalerr.StorageError{Kind: portalerr.StorageRetrieval, Err: err}
	}
	return s, nil
}

// Settings returns every stored setting.
func (r *Repository) Settings() ([]model.Setting, error) {
	var out []model.Setting
	if err := r.DB.Select(&out, `SELECT name, value FROM settings`); err != nil {
		return nil, &portalerr.StorageError{Kind: portalerr.StorageRetrieval, Err: err}
	}
	return out, nil
}

// SetSetting upserts name=value.
func (r *Repository) SetSetting(name, value string) error {
	_, err := r.DB.Exec(`INSERT INTO settings (name, value) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value`, name, value)
	if err != nil {
		return &portalerr.StorageError{Kind: portalerr.StorageInsertion, Err: err}
	}
	return nil
}
