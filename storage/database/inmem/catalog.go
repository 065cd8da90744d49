package inmemdb

import (
	"context"

	"github.com/google/uuid"

	"github.com/somalabs/darasa/core/catalog"
)

type catalogRepository struct {
	db *catalogTable
}

var _ catalog.Repository = (*catalogRepository)(nil) // interface compliance check

func NewCatalogRepository(db *DB) *catalogRepository {
	return &catalogRepository{db: db.catalog}
}

func (repo *catalogRepository) GetStage(_ context.Context, id string) (catalog.Stage, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if stage, ok := repo.db.stages[id]; ok {
		return *stage, nil
	}
	return catalog.Stage{}, catalog.ErrStageNotFound
}

func (repo *catalogRepository) GetSubject(_ context.Context, id string) (catalog.Subject, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if subject, ok := repo.db.subjects[id]; ok {
		return *subject, nil
	}
	return catalog.Subject{}, catalog.ErrSubjectNotFound
}

// AddStage seeds a stage; used by tests and dev fixtures.
func (repo *catalogRepository) AddStage(name string) catalog.Stage {
	repo.db.Lock()
	defer repo.db.Unlock()

	stage := catalog.Stage{ID: uuid.New().String(), Name: name}
	repo.db.stages[stage.ID] = &stage
	return stage
}

// AddSubject seeds a subject; used by tests and dev fixtures.
func (repo *catalogRepository) AddSubject(name string) catalog.Subject {
	repo.db.Lock()
	defer repo.db.Unlock()

	subject := catalog.Subject{ID: uuid.New().String(), Name: name}
	repo.db.subjects[subject.ID] = &subject
	return subject
}
