package repo

import (
	"context"
	"errors"

	"github.com/animus-labs/spec-relay/internal/domain"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

type StatusEventFilter struct {
	RunID string
	Phase domain.Phase
	Limit int
}

// SpecRepository records received specifications.
type SpecRepository interface {
	// CreateSpec inserts spec and returns it with the database-assigned id.
	CreateSpec(ctx context.Context, spec domain.Spec) (domain.Spec, error)
	GetSpec(ctx context.Context, id string) (domain.Spec, error)
}

// StatusEventRepository appends pipeline milestones.
type StatusEventRepository interface {
	LogEvent(ctx context.Context, event domain.StatusEvent) (int64, error)
	ListEvents(ctx context.Context, filter StatusEventFilter) ([]domain.StatusEvent, error)
}

// ArtifactRepository manages run artifacts referenced by reports.
type ArtifactRepository interface {
	CreateArtifact(ctx context.Context, artifact domain.Artifact) (domain.Artifact, error)
	ListArtifactsByRun(ctx context.Context, runID string) ([]domain.Artifact, error)
}

// RunRepository tracks sprints and the CI runs gated on them.
type RunRepository interface {
	// SprintForSpec returns the earliest sprint of specID or ErrNotFound.
	SprintForSpec(ctx context.Context, specID string) (domain.Sprint, error)
	CreateSprint(ctx context.Context, sprint domain.Sprint) (domain.Sprint, error)
	CreateRun(ctx context.Context, run domain.Run) (domain.Run, error)
}
