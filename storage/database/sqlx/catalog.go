package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/somalabs/darasa/core/catalog"
)

type CatalogRepository struct {
	db *sqlx.DB
}

var _ catalog.Repository = (*CatalogRepository)(nil) // interface compliance check

func NewCatalogRepository(db *sqlx.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

func (repo *CatalogRepository) GetStage(ctx context.Context, id string) (catalog.Stage, error) {
	if _, err := uuid.Parse(id); err != nil {
		return catalog.Stage{}, catalog.ErrStageNotFound
	}
	var stage catalog.Stage
	err := repo.db.QueryRowContext(ctx, `SELECT id, name FROM stage WHERE id = $1`, id).
		Scan(&stage.ID, &stage.Name)
	if err != nil {
		if err == sql.ErrNoRows {
			return catalog.Stage{}, catalog.ErrStageNotFound
		}
		return catalog.Stage{}, errors.Wrap(err, "finding stage")
	}
	return stage, nil
}

func (repo *CatalogRepository) GetSubject(ctx context.Context, id string) (catalog.Subject, error) {
	if _, err := uuid.Parse(id); err != nil {
		return catalog.Subject{}, catalog.ErrSubjectNotFound
	}
	var subject catalog.Subject
	err := repo.db.QueryRowContext(ctx, `SELECT id, name FROM subject WHERE id = $1`, id).
		Scan(&subject.ID, &subject.Name)
	if err != nil {
		if err == sql.ErrNoRows {
			return catalog.Subject{}, catalog.ErrSubjectNotFound
		}
		return catalog.Subject{}, errors.Wrap(err, "finding subject")
	}
	return subject, nil
}
