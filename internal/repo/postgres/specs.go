package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/animus-labs/spec-relay/internal/domain"
	"github.com/animus-labs/spec-relay/internal/repo"
)

type SpecStore struct {
	db DB
}

func NewSpecStore(db DB) *SpecStore {
	if db == nil {
		return nil
	}
	return &SpecStore{db: db}
}

func (s *SpecStore) CreateSpec(ctx context.Context, spec domain.Spec) (domain.Spec, error) {
	if s == nil || s.db == nil {
		return domain.Spec{}, fmt.Errorf("spec store not initialized")
	}
	if err := spec.Validate(); err != nil {
		return domain.Spec{}, err
	}
	created := domain.Spec{
		Repo:        strings.TrimSpace(spec.Repo),
		Branch:      strings.TrimSpace(spec.Branch),
		StoragePath: strings.TrimSpace(spec.StoragePath),
		CreatedBy:   strings.TrimSpace(spec.CreatedBy),
	}
	err := s.db.QueryRowContext(
		ctx,
		`INSERT INTO specs (repo, branch, storage_path, created_by)
		 VALUES ($1,$2,$3,$4)
		 RETURNING id, created_at`,
		created.Repo,
		created.Branch,
		created.StoragePath,
		created.CreatedBy,
	).Scan(&created.ID, &created.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Spec{}, fmt.Errorf("insert spec %s: %w", created.StoragePath, repo.ErrConflict)
		}
		return domain.Spec{}, fmt.Errorf("insert spec: %w", err)
	}
	created.CreatedAt = created.CreatedAt.UTC()
	return created, nil
}

func (s *SpecStore) GetSpec(ctx context.Context, id string) (domain.Spec, error) {
	if s == nil || s.db == nil {
		return domain.Spec{}, fmt.Errorf("spec store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Spec{}, fmt.Errorf("spec id is required")
	}
	var spec domain.Spec
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, repo, branch, storage_path, created_by, created_at
		 FROM specs
		 WHERE id = $1`,
		id,
	)
	if err := row.Scan(&spec.ID, &spec.Repo, &spec.Branch, &spec.StoragePath, &spec.CreatedBy, &spec.CreatedAt); err != nil {
		return domain.Spec{}, handleNotFound(err)
	}
	spec.CreatedAt = spec.CreatedAt.UTC()
	return spec, nil
}

// LatestSpec returns the most recently recorded spec or repo.ErrNotFound.
func (s *SpecStore) LatestSpec(ctx context.Context) (domain.Spec, error) {
	if s == nil || s.db == nil {
		return domain.Spec{}, fmt.Errorf("spec store not initialized")
	}
	var spec domain.Spec
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, repo, branch, storage_path, created_by, created_at
		 FROM specs
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`,
	)
	if err := row.Scan(&spec.ID, &spec.Repo, &spec.Branch, &spec.StoragePath, &spec.CreatedBy, &spec.CreatedAt); err != nil {
		return domain.Spec{}, handleNotFound(err)
	}
	spec.CreatedAt = spec.CreatedAt.UTC()
	return spec, nil
}
