package catalog

import (
	"context"

	"github.com/pkg/errors"
)

var (
	ErrStageNotFound   = errors.New("stage not found")
	ErrSubjectNotFound = errors.New("subject not found")
)

// Stage is a study level (eg. a grade year) meetings are scheduled for.
type Stage struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Subject is a taught discipline meetings are scheduled for.
type Subject struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Repository resolves catalog references. The catalog itself is managed
// elsewhere; this subsystem only validates references against it.
type Repository interface {
	GetStage(ctx context.Context, id string) (Stage, error)
	GetSubject(ctx context.Context, id string) (Subject, error)
}
